// Package runner is the closed steering loop: estimate the heading, turn it
// into a differential, allocate track speeds and command the motors until
// the run deadline passes. Every exit path stops the motors.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/trackrunner/internal/monitoring"
	"github.com/banshee-data/trackrunner/internal/motor"
	"github.com/banshee-data/trackrunner/internal/steering"
	"github.com/banshee-data/trackrunner/internal/telemetry"
	"github.com/banshee-data/trackrunner/internal/timeutil"
	"github.com/banshee-data/trackrunner/internal/vision"
)

// Detector yields one heading estimate per call.
type Detector interface {
	EstimateHeading() vision.Estimate
}

// Driver commands the two tracks.
type Driver interface {
	SetSpeed(left, right int) error
	StopMotors() motor.StopReport
}

// Config is fixed for the lifetime of a Runner.
type Config struct {
	BaseSpeed int
	Duration  time.Duration
	// MaxConsecutiveMisses stops the motors after this many estimates in a
	// row without a heading. Zero keeps the last command in force.
	MaxConsecutiveMisses int
}

// Dependencies are the collaborators of the loop. Clock and Sink are
// optional.
type Dependencies struct {
	Detector Detector
	PID      steering.PID
	Driver   Driver
	Clock    timeutil.Clock
	Sink     telemetry.Sink
}

// ExitReason says why a run ended.
type ExitReason int

const (
	ExitDeadline ExitReason = iota
	ExitCancelled
	ExitMotorError
)

func (r ExitReason) String() string {
	switch r {
	case ExitDeadline:
		return "deadline"
	case ExitCancelled:
		return "cancelled"
	case ExitMotorError:
		return "motor error"
	default:
		return fmt.Sprintf("ExitReason(%d)", int(r))
	}
}

// Result describes a finished run.
type Result struct {
	// Iterations counts every estimate taken.
	Iterations int
	// Cycles counts iterations that produced a motor command.
	Cycles int
	// Misses counts iterations without a heading.
	Misses int
	// MissStops counts times the miss limit stopped the motors.
	MissStops int
	Reason    ExitReason
	Stop      motor.StopReport
	Summary   telemetry.Summary
}

// Runner owns one run of the control loop.
type Runner struct {
	cfg  Config
	deps Dependencies
}

// New returns a Runner. A nil Clock uses the wall clock and a nil Sink
// discards samples. New panics if Detector, PID or Driver is nil.
func New(cfg Config, deps Dependencies) *Runner {
	switch {
	case deps.Detector == nil:
		panic("runner: nil Detector")
	case deps.PID == nil:
		panic("runner: nil PID")
	case deps.Driver == nil:
		panic("runner: nil Driver")
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Sink == nil {
		deps.Sink = telemetry.Nop{}
	}
	return &Runner{cfg: cfg, deps: deps}
}

// Run drives the loop until the deadline, ctx cancellation or a motor
// error. StopMotors runs on every exit, including a panic, which is
// re-raised once the motors are stopped. The returned error is non-nil
// only for a motor error.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	clock := r.deps.Clock
	start := clock.Now()
	deadline := start.Add(r.cfg.Duration)

	var samples []telemetry.Sample
	defer func() {
		p := recover()
		res.Stop = r.deps.Driver.StopMotors()
		res.Summary = telemetry.Summarize(samples, steering.MaxSpeed)
		if p != nil {
			panic(p)
		}
	}()

	sink := r.deps.Sink
	misses := 0
	for {
		if ctx.Err() != nil {
			res.Reason = ExitCancelled
			return res, nil
		}
		if !clock.Now().Before(deadline) {
			res.Reason = ExitDeadline
			return res, nil
		}

		res.Iterations++
		est := r.deps.Detector.EstimateHeading()
		if !est.OK {
			res.Misses++
			misses++
			if r.cfg.MaxConsecutiveMisses > 0 && misses == r.cfg.MaxConsecutiveMisses {
				monitoring.Logf("runner: %d estimates without a heading, stopping tracks", misses)
				res.MissStops++
				if err := r.deps.Driver.SetSpeed(0, 0); err != nil {
					res.Reason = ExitMotorError
					return res, fmt.Errorf("stop after lost track: %w", err)
				}
			}
			continue
		}
		misses = 0

		diff := r.deps.PID.Compute(est.Heading)
		cmd := steering.Allocate(r.cfg.BaseSpeed, diff)
		res.Cycles++

		sample := telemetry.Sample{
			Seq:     res.Cycles,
			Elapsed: clock.Since(start),
			Heading: est.Heading,
			Diff:    diff,
			Left:    cmd.Left,
			Right:   cmd.Right,
		}
		samples = append(samples, sample)
		if sink != nil {
			if err := sink.Record(sample); err != nil {
				monitoring.Logf("runner: telemetry disabled: %v", err)
				sink = nil
			}
		}

		if err := r.deps.Driver.SetSpeed(cmd.Left, cmd.Right); err != nil {
			res.Reason = ExitMotorError
			return res, fmt.Errorf("set speed %s: %w", cmd, err)
		}
	}
}

