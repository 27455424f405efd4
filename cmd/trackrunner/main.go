// Command trackrunner drives the vehicle along a dark track for one timed
// run and stops the motors on exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/trackrunner/internal/config"
	"github.com/banshee-data/trackrunner/internal/motor"
	"github.com/banshee-data/trackrunner/internal/pwm"
	"github.com/banshee-data/trackrunner/internal/runner"
	"github.com/banshee-data/trackrunner/internal/steering"
	"github.com/banshee-data/trackrunner/internal/timeutil"
	"github.com/banshee-data/trackrunner/internal/version"
	"github.com/banshee-data/trackrunner/internal/vision"
)

var (
	configPath  = flag.String("config", "", "YAML config file (defaults are used when empty)")
	printConfig = flag.Bool("print-config", false, "Print the effective configuration as YAML and exit")
	showVersion = flag.Bool("version", false, "Print version information and exit")
	dryRun      = flag.Bool("dry-run", false, "Log PWM commands instead of driving the PWM board")
	noDelay     = flag.Bool("no-delay", false, "Skip the start countdown")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("trackrunner"))
		return
	}

	if err := run(); err != nil {
		log.Fatalf("trackrunner: %v", err)
	}
}

func run() error {
	cfg, err := loadConfig(*configPath, *dryRun)
	if err != nil {
		return err
	}
	if *printConfig {
		return cfg.WriteYAML(os.Stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := pwm.Open(ctx, cfg.PWM.Backend, cfg.PWM.Device, cfg.PWM.BaudRate, cfg.Motor.SubcycleTime)
	if err != nil {
		return fmt.Errorf("open pwm backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Printf("close pwm backend: %v", err)
		}
	}()

	drv, err := motor.New(backend, motorConfig(cfg))
	if err != nil {
		return err
	}
	// The runner stops the motors itself; this covers failures before it
	// starts.
	started := false
	defer func() {
		if !started {
			drv.StopMotors()
		}
	}()

	det, err := openDetector(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := det.Close(); err != nil {
			log.Printf("close detector: %v", err)
		}
	}()

	tel, err := openTelemetry(cfg, time.Now())
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Close(); err != nil {
			log.Printf("close telemetry: %v", err)
		}
	}()

	if !*noDelay {
		if err := countdown(ctx, cfg.Run.StartDelay, os.Stdout); err != nil {
			return err
		}
	}

	clock := timeutil.RealClock{}
	r := runner.New(runnerConfig(cfg), runner.Dependencies{
		Detector: det,
		PID:      steering.NewPID(cfg.PID.Kp, cfg.PID.Kd, cfg.PID.Ki, clock),
		Driver:   drv,
		Clock:    clock,
		Sink:     tel.Sink(),
	})

	log.Printf("run started: base speed %d for %s (kp=%g kd=%g ki=%g)",
		cfg.Run.BaseSpeed, cfg.Run.Duration, cfg.PID.Kp, cfg.PID.Kd, cfg.PID.Ki)
	started = true
	res, runErr := r.Run(ctx)

	tel.Finish(time.Now(), res.Reason.String())
	log.Printf("run finished (%s): %d iterations, %d cycles, %d misses",
		res.Reason, res.Iterations, res.Cycles, res.Misses)
	log.Printf("summary: %s", res.Summary)
	if !res.Stop.OK() {
		log.Printf("motor stop incomplete: %v", res.Stop.Err())
	}
	return runErr
}

func loadConfig(path string, dry bool) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if dry {
		cfg.PWM.Backend = "log"
	}
	return cfg, nil
}

func motorConfig(cfg config.Config) motor.Config {
	return motor.Config{
		MinSpeed:  cfg.Motor.MinSpeed,
		FlipLeft:  cfg.Motor.FlipLeft,
		FlipRight: cfg.Motor.FlipRight,
		Pins: motor.Pins{
			LeftForward:   cfg.Motor.LeftForwardPin,
			LeftBackward:  cfg.Motor.LeftBackwardPin,
			RightForward:  cfg.Motor.RightForwardPin,
			RightBackward: cfg.Motor.RightBackwardPin,
		},
		SubcycleTime: cfg.Motor.SubcycleTime,
	}
}

func runnerConfig(cfg config.Config) runner.Config {
	return runner.Config{
		BaseSpeed:            cfg.Run.BaseSpeed,
		Duration:             cfg.Run.Duration,
		MaxConsecutiveMisses: cfg.Run.MaxConsecutiveMisses,
	}
}

func detectorConfig(cfg config.Config) vision.Config {
	return vision.Config{
		Width:         cfg.Detector.Width,
		Height:        cfg.Detector.Height,
		CaptureWidth:  cfg.Camera.CaptureWidth,
		CaptureHeight: cfg.Camera.CaptureHeight,
		Threshold:     cfg.Detector.Threshold,
	}
}

func openDetector(cfg config.Config) (*vision.Detector, error) {
	var (
		opts []vision.Option
		dw   *vision.DiagnosticWriter
	)
	if path := cfg.Detector.DiagnosticVideo; path != "" {
		var err error
		dw, err = vision.NewDiagnosticWriter(path, cfg.Detector.DiagnosticFPS, cfg.Detector.Width, cfg.Detector.Height)
		if err != nil {
			return nil, err
		}
		opts = append(opts, vision.WithAnnotator(dw))
	}

	src := vision.NewCapture(cfg.Camera.Source, cfg.Camera.CaptureWidth, cfg.Camera.CaptureHeight)
	det, err := vision.NewDetector(src, detectorConfig(cfg), opts...)
	if err != nil {
		if dw != nil {
			_ = dw.Close()
		}
		if errors.Is(err, vision.ErrSourceUnavailable) {
			return nil, fmt.Errorf("camera %q: %w", cfg.Camera.Source, err)
		}
		return nil, err
	}
	return det, nil
}
