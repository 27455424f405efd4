package main

import (
	"errors"
	"log"
	"time"

	"github.com/banshee-data/trackrunner/internal/config"
	"github.com/banshee-data/trackrunner/internal/fsutil"
	"github.com/banshee-data/trackrunner/internal/telemetry"
)

// runTelemetry owns the optional CSV log and run database of one run.
type runTelemetry struct {
	sinks telemetry.Multi
	db    *telemetry.DB
	run   *telemetry.RunSink
}

func openTelemetry(cfg config.Config, startedAt time.Time) (*runTelemetry, error) {
	return openTelemetryOn(fsutil.OSFileSystem{}, cfg, startedAt)
}

func openTelemetryOn(fs fsutil.FileSystem, cfg config.Config, startedAt time.Time) (*runTelemetry, error) {
	t := &runTelemetry{}

	if path := cfg.Telemetry.CSVPath; path != "" {
		csv, err := telemetry.NewCSVSink(fs, path)
		if err != nil {
			return nil, err
		}
		t.sinks = append(t.sinks, csv)
	}

	if path := cfg.Telemetry.DBPath; path != "" {
		db, err := telemetry.OpenDB(path)
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		t.db = db
		run, err := db.NewRun(telemetry.RunInfo{
			StartedAt: startedAt,
			BaseSpeed: cfg.Run.BaseSpeed,
			Kp:        cfg.PID.Kp,
			Kd:        cfg.PID.Kd,
			Ki:        cfg.PID.Ki,
		})
		if err != nil {
			_ = t.Close()
			return nil, err
		}
		t.run = run
		t.sinks = append(t.sinks, run)
		log.Printf("telemetry: run %s logged to %s", run.ID(), path)
	}
	return t, nil
}

// Sink returns the sink for the control loop, nil when nothing is logged.
func (t *runTelemetry) Sink() telemetry.Sink {
	if len(t.sinks) == 0 {
		return nil
	}
	return t.sinks
}

// Finish records the exit reason of the run in the database.
func (t *runTelemetry) Finish(at time.Time, reason string) {
	if t.run == nil {
		return
	}
	if err := t.run.Finish(at, reason); err != nil {
		log.Printf("telemetry: %v", err)
	}
}

func (t *runTelemetry) Close() error {
	err := t.sinks.Close()
	if t.db != nil {
		err = errors.Join(err, t.db.Close())
	}
	return err
}
