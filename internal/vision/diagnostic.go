package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

var (
	outlineColor = color.RGBA{R: 255, G: 255, B: 0, A: 0}
	headingColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// DiagnosticWriter appends annotated working frames to an MJPG video.
type DiagnosticWriter struct {
	vw     *gocv.VideoWriter
	frames int
}

// NewDiagnosticWriter creates the video file at path. The frame size must
// match the detector's working resolution.
func NewDiagnosticWriter(path string, fps float64, width, height int) (*DiagnosticWriter, error) {
	vw, err := gocv.VideoWriterFile(path, "MJPG", fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("open diagnostic video %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("open diagnostic video %s: writer not opened", path)
	}
	return &DiagnosticWriter{vw: vw}, nil
}

// Annotate draws the primitive outline and the heading line onto frame and
// writes it.
func (w *DiagnosticWriter) Annotate(frame *gocv.Mat, corners []image.Point, far, origin image.Point) error {
	DrawAnnotations(frame, corners, far, origin)
	if err := w.vw.Write(*frame); err != nil {
		return fmt.Errorf("write diagnostic frame: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written so far.
func (w *DiagnosticWriter) Frames() int { return w.frames }

// Close finalises the video file.
func (w *DiagnosticWriter) Close() error {
	return w.vw.Close()
}

// DrawAnnotations outlines the bounding primitive and draws the line from
// its far point to the vehicle origin.
func DrawAnnotations(frame *gocv.Mat, corners []image.Point, far, origin image.Point) {
	if len(corners) > 1 {
		outline := gocv.NewPointsVectorFromPoints([][]image.Point{corners})
		gocv.Polylines(frame, outline, true, outlineColor, 1)
		outline.Close()
	}
	gocv.Line(frame, far, origin, headingColor, 1)
}
