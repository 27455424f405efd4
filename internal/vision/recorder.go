package vision

import (
	"context"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/trackrunner/internal/monitoring"
	"github.com/banshee-data/trackrunner/internal/timeutil"
)

// FrameWriter accepts raw frames, typically a *gocv.VideoWriter.
type FrameWriter interface {
	Write(img gocv.Mat) error
}

// RecordStats summarises a recording.
type RecordStats struct {
	Frames  int
	Dropped int
	Elapsed time.Duration
}

// Record copies frames from src to w at fps until duration has elapsed or
// ctx is cancelled. src must already be open. Frames are taken on a fixed
// schedule; a read that fails counts as dropped and its slot is skipped.
func Record(ctx context.Context, src FrameSource, w FrameWriter, fps float64, duration time.Duration, clock timeutil.Clock) (RecordStats, error) {
	if fps <= 0 {
		return RecordStats{}, fmt.Errorf("record: fps must be positive, got %g", fps)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	period := time.Duration(float64(time.Second) / fps)
	start := clock.Now()
	end := start.Add(duration)
	next := start

	frame := gocv.NewMat()
	defer frame.Close()

	var stats RecordStats
	for {
		if err := ctx.Err(); err != nil {
			stats.Elapsed = clock.Since(start)
			return stats, err
		}
		now := clock.Now()
		if !now.Before(end) {
			break
		}
		if wait := next.Sub(now); wait > 0 {
			clock.Sleep(wait)
			continue
		}
		next = next.Add(period)

		if !src.Read(&frame) {
			stats.Dropped++
			continue
		}
		if err := w.Write(frame); err != nil {
			stats.Elapsed = clock.Since(start)
			return stats, fmt.Errorf("record frame %d: %w", stats.Frames, err)
		}
		stats.Frames++
	}

	stats.Elapsed = clock.Since(start)
	if stats.Dropped > 0 {
		monitoring.Logf("record: %d frame reads failed", stats.Dropped)
	}
	return stats, nil
}
