// Package config holds the immutable run configuration of the track runner.
//
// A Config is assembled once at startup from three layers, later layers
// overriding earlier ones: the compiled-in defaults, an optional YAML file,
// and TRACKRUNNER_* environment variables. The result is validated and then
// passed by value to every component; nothing mutates it afterwards.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"
)

// EnvPrefix is the prefix of environment overrides. Sections are separated
// by a double underscore, e.g. TRACKRUNNER_PID__KP=350 or
// TRACKRUNNER_RUN__BASE_SPEED=35.
const EnvPrefix = "TRACKRUNNER_"

// Speed limits shared by the allocator and the motor driver.
const (
	MaxTrackSpeed = 99
	MinTrackSpeed = -MaxTrackSpeed
)

// Config is the complete startup configuration.
type Config struct {
	Camera    CameraConfig    `koanf:"camera" yaml:"camera"`
	Detector  DetectorConfig  `koanf:"detector" yaml:"detector"`
	PID       PIDConfig       `koanf:"pid" yaml:"pid"`
	Run       RunConfig       `koanf:"run" yaml:"run"`
	Motor     MotorConfig     `koanf:"motor" yaml:"motor"`
	PWM       PWMConfig       `koanf:"pwm" yaml:"pwm"`
	Telemetry TelemetryConfig `koanf:"telemetry" yaml:"telemetry"`
}

// CameraConfig selects the frame source and its native capture resolution.
type CameraConfig struct {
	// Source is a device index ("0") or a video file path.
	Source        string `koanf:"source" yaml:"source"`
	CaptureWidth  int    `koanf:"capture_width" yaml:"capture_width"`
	CaptureHeight int    `koanf:"capture_height" yaml:"capture_height"`
}

// DetectorConfig controls the working resolution and binarisation.
type DetectorConfig struct {
	Width     int `koanf:"width" yaml:"width"`
	Height    int `koanf:"height" yaml:"height"`
	Threshold int `koanf:"threshold" yaml:"threshold"`

	// DiagnosticVideo, when set, receives annotated working frames.
	DiagnosticVideo string  `koanf:"diagnostic_video" yaml:"diagnostic_video"`
	DiagnosticFPS   float64 `koanf:"diagnostic_fps" yaml:"diagnostic_fps"`
}

// PIDConfig holds the steering gains.
type PIDConfig struct {
	Kp float64 `koanf:"kp" yaml:"kp"`
	Kd float64 `koanf:"kd" yaml:"kd"`
	Ki float64 `koanf:"ki" yaml:"ki"`
}

// RunConfig bounds a single run.
type RunConfig struct {
	BaseSpeed  int           `koanf:"base_speed" yaml:"base_speed"`
	Duration   time.Duration `koanf:"duration" yaml:"duration"`
	StartDelay time.Duration `koanf:"start_delay" yaml:"start_delay"`

	// MaxConsecutiveMisses stops the motors after this many cycles without
	// a fresh heading, until perception recovers. Zero keeps the last
	// command in force indefinitely.
	MaxConsecutiveMisses int `koanf:"max_consecutive_misses" yaml:"max_consecutive_misses"`
}

// MotorConfig describes the two tracks and their PWM channels.
type MotorConfig struct {
	// MinSpeed is the duty floor in percent below which a motor stalls.
	MinSpeed  float64 `koanf:"min_speed" yaml:"min_speed"`
	FlipLeft  bool    `koanf:"flip_left" yaml:"flip_left"`
	FlipRight bool    `koanf:"flip_right" yaml:"flip_right"`

	// BCM pin numbers of the direction channels.
	LeftForwardPin   int `koanf:"left_forward_pin" yaml:"left_forward_pin"`
	LeftBackwardPin  int `koanf:"left_backward_pin" yaml:"left_backward_pin"`
	RightForwardPin  int `koanf:"right_forward_pin" yaml:"right_forward_pin"`
	RightBackwardPin int `koanf:"right_backward_pin" yaml:"right_backward_pin"`

	// SubcycleTime is the PWM period in microseconds.
	SubcycleTime int `koanf:"subcycle_time" yaml:"subcycle_time"`
}

// PWMConfig selects the hardware PWM backend.
type PWMConfig struct {
	// Backend is "serial" for the PWM co-processor or "log" for dry runs.
	Backend  string `koanf:"backend" yaml:"backend"`
	Device   string `koanf:"device" yaml:"device"`
	BaudRate int    `koanf:"baud_rate" yaml:"baud_rate"`
}

// TelemetryConfig enables the optional run logs. Empty paths disable them.
type TelemetryConfig struct {
	CSVPath string `koanf:"csv_path" yaml:"csv_path"`
	DBPath  string `koanf:"db_path" yaml:"db_path"`
}

// Default returns the reference configuration of the vehicle.
func Default() Config {
	return Config{
		Camera: CameraConfig{
			Source:        "0",
			CaptureWidth:  320,
			CaptureHeight: 240,
		},
		Detector: DetectorConfig{
			Width:         80,
			Height:        60,
			Threshold:     128,
			DiagnosticFPS: 6,
		},
		PID: PIDConfig{Kp: 400, Kd: 10, Ki: 0},
		Run: RunConfig{
			BaseSpeed:  40,
			Duration:   30 * time.Second,
			StartDelay: 10 * time.Second,
		},
		Motor: MotorConfig{
			MinSpeed:         0,
			LeftForwardPin:   24,
			LeftBackwardPin:  23,
			RightForwardPin:  22,
			RightBackwardPin: 27,
			SubcycleTime:     6000,
		},
		PWM: PWMConfig{
			Backend:  "serial",
			Device:   "/dev/ttyACM0",
			BaudRate: 115200,
		},
	}
}

// Load layers the defaults, the YAML file at path (skipped when empty) and
// the environment, then validates the result.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envKey maps TRACKRUNNER_RUN__BASE_SPEED to run.base_speed.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects configurations the control loop cannot run with.
func (c Config) Validate() error {
	if c.Camera.Source == "" {
		return fmt.Errorf("camera.source must be set")
	}
	if c.Camera.CaptureWidth <= 0 || c.Camera.CaptureHeight <= 0 {
		return fmt.Errorf("camera capture resolution must be positive, got %dx%d",
			c.Camera.CaptureWidth, c.Camera.CaptureHeight)
	}
	if c.Detector.Width <= 0 || c.Detector.Height <= 0 {
		return fmt.Errorf("detector resolution must be positive, got %dx%d",
			c.Detector.Width, c.Detector.Height)
	}
	if c.Detector.Threshold < 0 || c.Detector.Threshold > 255 {
		return fmt.Errorf("detector.threshold must be between 0 and 255, got %d", c.Detector.Threshold)
	}
	if c.Detector.DiagnosticVideo != "" && c.Detector.DiagnosticFPS <= 0 {
		return fmt.Errorf("detector.diagnostic_fps must be positive when diagnostic_video is set")
	}
	if c.Run.BaseSpeed < MinTrackSpeed || c.Run.BaseSpeed > MaxTrackSpeed {
		return fmt.Errorf("run.base_speed must be between %d and %d, got %d",
			MinTrackSpeed, MaxTrackSpeed, c.Run.BaseSpeed)
	}
	if c.Run.Duration <= 0 {
		return fmt.Errorf("run.duration must be positive, got %s", c.Run.Duration)
	}
	if c.Run.StartDelay < 0 {
		return fmt.Errorf("run.start_delay must not be negative, got %s", c.Run.StartDelay)
	}
	if c.Run.MaxConsecutiveMisses < 0 {
		return fmt.Errorf("run.max_consecutive_misses must not be negative")
	}
	if c.Motor.MinSpeed < 0 || c.Motor.MinSpeed > 100 {
		return fmt.Errorf("motor.min_speed must be between 0 and 100, got %g", c.Motor.MinSpeed)
	}
	if c.Motor.SubcycleTime <= 0 || c.Motor.SubcycleTime%10 != 0 {
		return fmt.Errorf("motor.subcycle_time must be a positive multiple of 10, got %d", c.Motor.SubcycleTime)
	}
	pins := map[int]string{}
	for name, pin := range map[string]int{
		"left_forward_pin":   c.Motor.LeftForwardPin,
		"left_backward_pin":  c.Motor.LeftBackwardPin,
		"right_forward_pin":  c.Motor.RightForwardPin,
		"right_backward_pin": c.Motor.RightBackwardPin,
	} {
		if pin < 0 {
			return fmt.Errorf("motor.%s must not be negative", name)
		}
		if other, dup := pins[pin]; dup {
			return fmt.Errorf("motor.%s and motor.%s share pin %d", name, other, pin)
		}
		pins[pin] = name
	}
	switch c.PWM.Backend {
	case "serial":
		if c.PWM.Device == "" {
			return fmt.Errorf("pwm.device must be set for the serial backend")
		}
	case "log":
	default:
		return fmt.Errorf("unsupported pwm.backend %q: expected serial or log", c.PWM.Backend)
	}
	return nil
}

// WriteYAML dumps the configuration so it can be saved back as a config file.
func (c Config) WriteYAML(w io.Writer) error {
	return yml.NewEncoder(w).Encode(c)
}

