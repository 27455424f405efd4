package vision

import (
	"errors"
	"fmt"
	"strconv"

	"gocv.io/x/gocv"
)

// ErrSourceUnavailable is returned when the frame source cannot be opened.
// The control loop cannot run without perception, so it is fatal.
var ErrSourceUnavailable = errors.New("frame source unavailable")

// FrameSource delivers raw frames on demand. Read blocks until a frame is
// available or the source gives up; there is no timeout.
type FrameSource interface {
	Open() error
	Read(dst *gocv.Mat) bool
	Close() error
}

// Capture is a FrameSource backed by an OpenCV video capture.
type Capture struct {
	source        string
	width, height int

	vc *gocv.VideoCapture
}

// NewCapture returns a capture for source, which is a device index ("0")
// or a video file path. The requested resolution is applied on Open.
func NewCapture(source string, width, height int) *Capture {
	return &Capture{source: source, width: width, height: height}
}

// Open opens the device or file and configures the capture resolution.
func (c *Capture) Open() error {
	var device interface{} = c.source
	if id, err := strconv.Atoi(c.source); err == nil {
		device = id
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, c.source, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("%w: %s did not open", ErrSourceUnavailable, c.source)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(c.width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(c.height))
	c.vc = vc
	return nil
}

// Read grabs the next frame into dst.
func (c *Capture) Read(dst *gocv.Mat) bool {
	if c.vc == nil {
		return false
	}
	return c.vc.Read(dst) && !dst.Empty()
}

// Close releases the capture. It is safe to call on an unopened capture.
func (c *Capture) Close() error {
	if c.vc == nil {
		return nil
	}
	err := c.vc.Close()
	c.vc = nil
	return err
}
