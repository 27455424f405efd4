package telemetry

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes the tracking quality of a run.
type Summary struct {
	Samples  int
	Duration time.Duration
	// Heading statistics in degrees.
	MeanHeading   float64
	StdDevHeading float64
	MaxAbsHeading float64
	// RMSDiff is the root mean square PID differential.
	RMSDiff float64
	// Saturated counts samples where a track sat at a speed bound.
	Saturated int
}

// Summarize computes run statistics. maxSpeed is the speed bound used to
// count saturated samples.
func Summarize(samples []Sample, maxSpeed int) Summary {
	sum := Summary{Samples: len(samples)}
	if len(samples) == 0 {
		return sum
	}

	headings := make([]float64, len(samples))
	diffs := make([]float64, len(samples))
	for i, s := range samples {
		headings[i] = s.HeadingDegrees()
		diffs[i] = s.Diff * s.Diff
		if abs(s.Left) >= maxSpeed || abs(s.Right) >= maxSpeed {
			sum.Saturated++
		}
	}

	sum.Duration = samples[len(samples)-1].Elapsed - samples[0].Elapsed
	sum.MeanHeading, sum.StdDevHeading = stat.MeanStdDev(headings, nil)
	if len(samples) == 1 {
		sum.StdDevHeading = 0
	}
	sum.MaxAbsHeading = math.Max(floats.Max(headings), -floats.Min(headings))
	sum.RMSDiff = math.Sqrt(stat.Mean(diffs, nil))
	return sum
}

func (s Summary) String() string {
	return fmt.Sprintf("%d samples over %s: heading %.2f±%.2f° (max %.2f°), rms diff %.1f, %d saturated",
		s.Samples, s.Duration.Round(time.Millisecond), s.MeanHeading, s.StdDevHeading,
		s.MaxAbsHeading, s.RMSDiff, s.Saturated)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
