// Package vision turns camera frames into a heading estimate for the
// steering loop.
//
// The detector binarises a downscaled frame, keeps the largest dark region
// as the track, bounds it with an ellipse or rotated rectangle and measures
// the angle from the vehicle's reference point (bottom centre of the frame)
// to the far end of that primitive. A positive heading means the far end of
// the track lies left of the vehicle's forward axis in image coordinates.
package vision

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/trackrunner/internal/monitoring"
)

// Status classifies the outcome of one heading estimate.
type Status int

const (
	// StatusOK means a new heading was computed from this frame.
	StatusOK Status = iota
	// StatusNoFrame means the source was not open or returned no frame.
	StatusNoFrame
	// StatusNoContour means no region qualified as the track.
	StatusNoContour
	// StatusDegenerate means the far point sat on the reference row and
	// the heading was left unchanged.
	StatusDegenerate
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoFrame:
		return "no-frame"
	case StatusNoContour:
		return "no-contour"
	case StatusDegenerate:
		return "degenerate"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Estimate is the result of EstimateHeading.
//
// OK is true only when this call processed a frame with a qualifying
// contour. Heading is 0 when no frame was read and the last known heading
// otherwise, so callers acting only on OK coast on the previous command.
type Estimate struct {
	OK      bool
	Heading float64
	Status  Status
}

// Config is the detector's view of the run configuration.
type Config struct {
	// Working resolution.
	Width, Height int
	// Native capture resolution the scale factors are derived from.
	CaptureWidth, CaptureHeight int
	// Threshold is the grey level below which a pixel belongs to the track.
	Threshold int
}

func (c Config) validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("working resolution must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.CaptureWidth <= 0 || c.CaptureHeight <= 0 {
		return fmt.Errorf("capture resolution must be positive, got %dx%d", c.CaptureWidth, c.CaptureHeight)
	}
	if c.Threshold < 0 || c.Threshold > 255 {
		return fmt.Errorf("threshold %d outside 0..255", c.Threshold)
	}
	return nil
}

// Annotator receives the working frame with the detected primitive.
type Annotator interface {
	Annotate(frame *gocv.Mat, corners []image.Point, far, origin image.Point) error
	Close() error
}

// Option configures a Detector.
type Option func(*Detector)

// WithAnnotator attaches a diagnostic sink for annotated frames.
func WithAnnotator(a Annotator) Option {
	return func(d *Detector) { d.annotator = a }
}

// WithWarningInterval sets how often perception warnings may be logged.
func WithWarningInterval(interval time.Duration) Option {
	return func(d *Detector) { d.warn = monitoring.NewThrottle(interval, 1) }
}

// Detector estimates the track heading. It is not safe for concurrent use;
// the control loop owns it exclusively.
type Detector struct {
	src       FrameSource
	cfg       Config
	fx, fy    float64
	annotator Annotator
	warn      *monitoring.Throttle

	frame, small, gray, mask gocv.Mat

	lastHeading float64
}

// NewDetector opens src and prepares the working buffers. A source that
// cannot be opened yields an error wrapping ErrSourceUnavailable.
func NewDetector(src FrameSource, cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("detector config: %w", err)
	}
	if err := src.Open(); err != nil {
		return nil, fmt.Errorf("open frame source: %w", err)
	}

	d := &Detector{
		src:   src,
		cfg:   cfg,
		fx:    float64(cfg.Width) / float64(cfg.CaptureWidth),
		fy:    float64(cfg.Height) / float64(cfg.CaptureHeight),
		warn:  monitoring.NewThrottle(time.Second, 1),
		frame: gocv.NewMat(),
		small: gocv.NewMat(),
		gray:  gocv.NewMat(),
		mask:  gocv.NewMat(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// LastHeading returns the most recent non-degenerate heading, 0 if none.
func (d *Detector) LastHeading() float64 { return d.lastHeading }

// EstimateHeading reads one frame and updates the heading estimate.
func (d *Detector) EstimateHeading() Estimate {
	if !d.src.Read(&d.frame) || d.frame.Empty() {
		d.warn.Logf("vision: no frame from source")
		return Estimate{OK: false, Heading: 0, Status: StatusNoFrame}
	}

	d.binarise()

	corners, ok := d.trackCorners()
	if !ok {
		d.warn.Logf("vision: no track contour found")
		return Estimate{OK: false, Heading: d.lastHeading, Status: StatusNoContour}
	}

	heading, far, ok := HeadingFromCorners(corners, d.cfg.Width, d.cfg.Height)
	status := StatusDegenerate
	if ok {
		d.lastHeading = heading
		status = StatusOK
	}

	if d.annotator != nil {
		if err := d.annotator.Annotate(&d.small, corners, far, Origin(d.cfg.Width, d.cfg.Height)); err != nil {
			d.warn.Logf("vision: diagnostic frame dropped: %v", err)
		}
	}

	return Estimate{OK: true, Heading: d.lastHeading, Status: status}
}

// binarise scales the current frame to the working resolution and writes
// the inverse-thresholded mask.
func (d *Detector) binarise() {
	fx, fy := d.fx, d.fy
	if cols, rows := d.frame.Cols(), d.frame.Rows(); cols != d.cfg.CaptureWidth || rows != d.cfg.CaptureHeight {
		// The device ignored the requested capture size.
		fx = float64(d.cfg.Width) / float64(cols)
		fy = float64(d.cfg.Height) / float64(rows)
	}
	gocv.Resize(d.frame, &d.small, image.Point{}, fx, fy, gocv.InterpolationLinear)
	gocv.CvtColor(d.small, &d.gray, gocv.ColorBGRToGray)
	gocv.Threshold(d.gray, &d.mask, float32(d.cfg.Threshold), 255, gocv.ThresholdBinaryInv)
}

// trackCorners selects the track contour in the mask and returns the four
// corners of its bounding primitive.
func (d *Detector) trackCorners() ([]image.Point, bool) {
	contours := gocv.FindContours(d.mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	areas := make([]float64, contours.Size())
	for i := range areas {
		areas[i] = gocv.ContourArea(contours.At(i))
	}
	idx, ok := SelectContour(areas)
	if !ok {
		return nil, false
	}

	contour := contours.At(idx)
	var rect gocv.RotatedRect
	if contour.Size() >= 5 {
		rect = gocv.FitEllipse(contour)
	} else {
		rect = gocv.MinAreaRect(contour)
	}
	return append([]image.Point(nil), rect.Points...), true
}

// Close releases the frame source, the annotator and the working buffers.
func (d *Detector) Close() error {
	var firstErr error
	if d.annotator != nil {
		if err := d.annotator.Close(); err != nil {
			firstErr = fmt.Errorf("close annotator: %w", err)
		}
	}
	if err := d.src.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close frame source: %w", err)
	}
	for _, m := range []*gocv.Mat{&d.frame, &d.small, &d.gray, &d.mask} {
		m.Close()
	}
	return firstErr
}
