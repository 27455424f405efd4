package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trackrunner.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 80, cfg.Detector.Width)
	assert.Equal(t, 60, cfg.Detector.Height)
	assert.Equal(t, 128, cfg.Detector.Threshold)
	assert.Equal(t, 400.0, cfg.PID.Kp)
	assert.Equal(t, 10.0, cfg.PID.Kd)
	assert.Equal(t, 0.0, cfg.PID.Ki)
	assert.Equal(t, 40, cfg.Run.BaseSpeed)
	assert.Equal(t, 30*time.Second, cfg.Run.Duration)
	assert.Equal(t, 10*time.Second, cfg.Run.StartDelay)
	assert.Equal(t, 6000, cfg.Motor.SubcycleTime)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
pid:
  kp: 350
  kd: 12.5
run:
  base_speed: 35
  duration: 45s
  start_delay: 0s
telemetry:
  csv_path: run.csv
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 350.0, cfg.PID.Kp)
	assert.Equal(t, 12.5, cfg.PID.Kd)
	assert.Equal(t, 35, cfg.Run.BaseSpeed)
	assert.Equal(t, 45*time.Second, cfg.Run.Duration)
	assert.Equal(t, time.Duration(0), cfg.Run.StartDelay)
	assert.Equal(t, "run.csv", cfg.Telemetry.CSVPath)

	// Untouched keys keep their defaults.
	assert.Equal(t, 80, cfg.Detector.Width)
	assert.Equal(t, 24, cfg.Motor.LeftForwardPin)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "run:\n  base_speed: 35\n")
	t.Setenv("TRACKRUNNER_RUN__BASE_SPEED", "20")
	t.Setenv("TRACKRUNNER_PWM__BACKEND", "log")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Run.BaseSpeed)
	assert.Equal(t, "log", cfg.PWM.Backend)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	path := writeConfig(t, "run:\n  base_speed: 150\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run.base_speed")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty source", func(c *Config) { c.Camera.Source = "" }, "camera.source"},
		{"zero working width", func(c *Config) { c.Detector.Width = 0 }, "detector resolution"},
		{"threshold too high", func(c *Config) { c.Detector.Threshold = 300 }, "detector.threshold"},
		{"video without fps", func(c *Config) {
			c.Detector.DiagnosticVideo = "diag.avi"
			c.Detector.DiagnosticFPS = 0
		}, "diagnostic_fps"},
		{"base speed below range", func(c *Config) { c.Run.BaseSpeed = -100 }, "run.base_speed"},
		{"zero duration", func(c *Config) { c.Run.Duration = 0 }, "run.duration"},
		{"negative delay", func(c *Config) { c.Run.StartDelay = -time.Second }, "run.start_delay"},
		{"negative miss limit", func(c *Config) { c.Run.MaxConsecutiveMisses = -1 }, "max_consecutive_misses"},
		{"min speed above 100", func(c *Config) { c.Motor.MinSpeed = 101 }, "motor.min_speed"},
		{"odd subcycle", func(c *Config) { c.Motor.SubcycleTime = 6005 }, "subcycle_time"},
		{"shared pin", func(c *Config) { c.Motor.RightForwardPin = c.Motor.LeftForwardPin }, "share pin"},
		{"unknown backend", func(c *Config) { c.PWM.Backend = "gpio" }, "pwm.backend"},
		{"serial without device", func(c *Config) { c.PWM.Device = "" }, "pwm.device"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_LogBackendNeedsNoDevice(t *testing.T) {
	cfg := Default()
	cfg.PWM.Backend = "log"
	cfg.PWM.Device = ""
	assert.NoError(t, cfg.Validate())
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.PID.Kp = 275
	cfg.Run.MaxConsecutiveMisses = 5

	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "kp: 275")

	loaded, err := Load(writeConfig(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
