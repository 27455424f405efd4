// Command motortest sweeps both tracks through their speed range to check
// wiring and direction flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/trackrunner/internal/config"
	"github.com/banshee-data/trackrunner/internal/motor"
	"github.com/banshee-data/trackrunner/internal/pwm"
	"github.com/banshee-data/trackrunner/internal/timeutil"
	"github.com/banshee-data/trackrunner/internal/version"
)

var (
	configPath  = flag.String("config", "", "YAML config file (defaults are used when empty)")
	step        = flag.Duration("step", 500*time.Millisecond, "Hold time of one self test step")
	dryRun      = flag.Bool("dry-run", false, "Log PWM commands instead of driving the PWM board")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String("motortest"))
		return
	}

	if err := run(); err != nil {
		log.Fatalf("motortest: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dryRun {
		cfg.PWM.Backend = "log"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := pwm.Open(ctx, cfg.PWM.Backend, cfg.PWM.Device, cfg.PWM.BaudRate, cfg.Motor.SubcycleTime)
	if err != nil {
		return fmt.Errorf("open pwm backend: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			log.Printf("close pwm backend: %v", err)
		}
	}()

	drv, err := motor.New(backend, motor.Config{
		MinSpeed:  cfg.Motor.MinSpeed,
		FlipLeft:  cfg.Motor.FlipLeft,
		FlipRight: cfg.Motor.FlipRight,
		Pins: motor.Pins{
			LeftForward:   cfg.Motor.LeftForwardPin,
			LeftBackward:  cfg.Motor.LeftBackwardPin,
			RightForward:  cfg.Motor.RightForwardPin,
			RightBackward: cfg.Motor.RightBackwardPin,
		},
		SubcycleTime: cfg.Motor.SubcycleTime,
	})
	if err != nil {
		return err
	}

	log.Printf("self test: slope %d offset %d, %d steps of %s", drv.Slope(), drv.Offset(), len(motor.SelfTestSequence()), *step)
	if err := drv.SelfTest(ctx, timeutil.RealClock{}, *step); err != nil {
		if ctx.Err() != nil {
			log.Printf("self test interrupted")
			return nil
		}
		return err
	}
	log.Printf("self test complete")
	return nil
}
