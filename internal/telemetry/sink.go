// Package telemetry records one sample per control cycle for later tuning.
package telemetry

import (
	"errors"
	"math"
	"time"
)

// Sample is one successful control cycle.
type Sample struct {
	Seq     int
	Elapsed time.Duration
	// Heading is the heading error in radians.
	Heading float64
	// Diff is the raw PID differential.
	Diff  float64
	Left  int
	Right int
}

// HeadingDegrees returns the heading in degrees.
func (s Sample) HeadingDegrees() float64 { return s.Heading * 180 / math.Pi }

// Sink receives control samples. Record is called from the control loop
// and must not block for long.
type Sink interface {
	Record(s Sample) error
	Close() error
}

// Nop discards samples.
type Nop struct{}

func (Nop) Record(Sample) error { return nil }
func (Nop) Close() error        { return nil }

// Multi fans samples out to several sinks.
type Multi []Sink

// Record forwards s to every sink and joins their errors.
func (m Multi) Record(s Sample) error {
	var errs []error
	for _, sink := range m {
		if err := sink.Record(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, sink := range m {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
