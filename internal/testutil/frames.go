package testutil

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"
)

// Capture resolution of the synthetic frames.
const (
	FrameWidth  = 320
	FrameHeight = 240
)

// Track bands in capture coordinates.
var (
	// StraightBand runs vertically through the horizontal centre.
	StraightBand = []image.Point{{144, 0}, {176, 0}, {176, 239}, {144, 239}}
	// LeftBand runs from the bottom centre toward the top left.
	LeftBand = []image.Point{{140, 239}, {180, 239}, {80, 0}, {40, 0}}
	// BottomEdgeBand is a strip along the bottom rows; it shrinks to the
	// last row of an 80x60 working frame.
	BottomEdgeBand = []image.Point{{100, 236}, {219, 236}, {219, 239}, {100, 239}}
	// UpperLeftBlock is an axis-aligned block in the upper left quadrant.
	UpperLeftBlock = []image.Point{{40, 0}, {119, 0}, {119, 119}, {40, 119}}
	// RightBlob is a small square right of centre, clear of LeftBand.
	RightBlob = []image.Point{{260, 100}, {300, 100}, {300, 140}, {260, 140}}
)

// BlankFrame returns a white capture-resolution BGR frame, closed when the
// test ends.
func BlankFrame(t testing.TB) gocv.Mat {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), FrameHeight, FrameWidth, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { img.Close() })
	return img
}

// TrackFrame returns a blank frame with each band filled in black.
func TrackFrame(t testing.TB, bands ...[]image.Point) gocv.Mat {
	t.Helper()
	img := BlankFrame(t)
	pv := gocv.NewPointsVectorFromPoints(bands)
	defer pv.Close()
	gocv.FillPoly(&img, pv, color.RGBA{})
	return img
}
