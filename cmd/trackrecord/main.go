// Command trackrecord dumps raw camera frames to an MJPG video for offline
// threshold and PID tuning.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/trackrunner/internal/timeutil"
	"github.com/banshee-data/trackrunner/internal/version"
	"github.com/banshee-data/trackrunner/internal/vision"
)

var (
	source      = flag.String("source", "0", "Camera device index or video file")
	output      = flag.String("out", "test.avi", "Output video file")
	width       = flag.Int("width", 320, "Capture width")
	height      = flag.Int("height", 240, "Capture height")
	fps         = flag.Float64("fps", 6, "Frames per second to record")
	duration    = flag.Duration("duration", 60*time.Second, "Recording length")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("trackrecord"))
		return
	}

	if err := run(); err != nil {
		log.Fatalf("trackrecord: %v", err)
	}
}

func run() error {
	if *fps <= 0 {
		return fmt.Errorf("fps must be positive, got %g", *fps)
	}
	if *duration <= 0 {
		return fmt.Errorf("duration must be positive, got %s", *duration)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src := vision.NewCapture(*source, *width, *height)
	if err := src.Open(); err != nil {
		return err
	}
	defer src.Close()

	vw, err := gocv.VideoWriterFile(*output, "MJPG", *fps, *width, *height, true)
	if err != nil {
		return fmt.Errorf("open %s: %w", *output, err)
	}
	defer vw.Close()

	log.Printf("recording %s from %s at %gfps to %s", *duration, *source, *fps, *output)
	stats, err := vision.Record(ctx, src, vw, *fps, *duration, timeutil.RealClock{})
	log.Printf("recorded %d frames (%d dropped) in %s", stats.Frames, stats.Dropped, stats.Elapsed.Round(time.Millisecond))
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
