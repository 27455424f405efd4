package vision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/banshee-data/trackrunner/internal/testutil"
	"github.com/banshee-data/trackrunner/internal/timeutil"
)

type countingWriter struct {
	frames int
	err    error
}

func (w *countingWriter) Write(img gocv.Mat) error {
	if w.err != nil {
		return w.err
	}
	w.frames++
	return nil
}

func repeatFrames(m *gocv.Mat, n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		frames[i] = m
	}
	return frames
}

func TestRecord_PacesFrames(t *testing.T) {
	muteLogs(t)
	blank := testutil.BlankFrame(t)

	src := &fakeSource{frames: repeatFrames(&blank, 100), opened: true}
	w := &countingWriter{}
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	stats, err := Record(context.Background(), src, w, 5, time.Second, clock)
	require.NoError(t, err)

	assert.Equal(t, 5, stats.Frames)
	assert.Equal(t, 5, w.frames)
	assert.Zero(t, stats.Dropped)
	assert.Equal(t, time.Second, stats.Elapsed)
}

func TestRecord_CountsDroppedReads(t *testing.T) {
	muteLogs(t)
	blank := testutil.BlankFrame(t)

	src := &fakeSource{frames: []*gocv.Mat{&blank, nil, &blank, nil, &blank}, opened: true}
	w := &countingWriter{}
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	stats, err := Record(context.Background(), src, w, 5, time.Second, clock)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Frames)
	assert.Equal(t, 2, stats.Dropped)
}

func TestRecord_WriteErrorStops(t *testing.T) {
	blank := testutil.BlankFrame(t)

	src := &fakeSource{frames: repeatFrames(&blank, 10), opened: true}
	w := &countingWriter{err: errors.New("disk full")}
	clock := timeutil.NewMockClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	_, err := Record(context.Background(), src, w, 5, time.Second, clock)
	assert.ErrorContains(t, err, "disk full")
}

func TestRecord_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{opened: true}
	_, err := Record(ctx, src, &countingWriter{}, 5, time.Second, timeutil.NewMockClock(time.Time{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecord_RejectsZeroFPS(t *testing.T) {
	_, err := Record(context.Background(), &fakeSource{}, &countingWriter{}, 0, time.Second, nil)
	assert.Error(t, err)
}
