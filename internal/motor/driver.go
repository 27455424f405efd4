// Package motor drives the two tracks of the vehicle through four PWM
// direction channels.
//
// Each track has a forward and a backward channel. Speeds are signed
// percentages in [-99, 99]; the driver maps them onto PWM active time with a
// dead-zone floor, keeps at most one direction channel per track active and
// guarantees a best-effort stop of all channels on cleanup.
package motor

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/trackrunner/internal/monitoring"
)

// MaxSpeed is the largest speed magnitude the driver commands.
const MaxSpeed = 99

// DefaultSubcycleTime is the PWM period in microseconds.
const DefaultSubcycleTime = 6000

// PWM is the hardware boundary: a channel is identified by its pin and
// driven with an active time in microseconds per subcycle.
type PWM interface {
	Activate(pin, duty int) error
	Deactivate(pin int) error
}

// Pins are the BCM numbers of the four direction channels.
type Pins struct {
	LeftForward   int
	LeftBackward  int
	RightForward  int
	RightBackward int
}

// DefaultPins returns the wiring of the reference chassis.
func DefaultPins() Pins {
	return Pins{LeftForward: 24, LeftBackward: 23, RightForward: 22, RightBackward: 27}
}

// Config is fixed at construction.
type Config struct {
	// MinSpeed is the duty floor in percent (0-100) below which a motor
	// does not reliably move.
	MinSpeed float64
	// FlipLeft and FlipRight swap a track's forward and backward channels.
	FlipLeft  bool
	FlipRight bool

	Pins         Pins
	SubcycleTime int
}

// DefaultConfig returns the reference chassis configuration.
func DefaultConfig() Config {
	return Config{Pins: DefaultPins(), SubcycleTime: DefaultSubcycleTime}
}

// State is the direction a track is currently driven in.
type State int

const (
	Stopped State = iota
	Forward
	Backward
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SideState is a snapshot of one track.
type SideState struct {
	Name     string
	Forward  int
	Backward int
	Speed    int
	State    State
}

type side struct {
	name              string
	forward, backward int
	speed             int
	state             State
}

func (s *side) snapshot() SideState {
	return SideState{Name: s.name, Forward: s.forward, Backward: s.backward, Speed: s.speed, State: s.state}
}

// Driver owns the four direction channels. It is not safe for concurrent
// use; the control loop is its only caller.
type Driver struct {
	pwm      PWM
	slope    int
	offset   int
	subcycle int

	left, right side
}

// New validates cfg and precomputes the speed-to-duty map.
func New(pwm PWM, cfg Config) (*Driver, error) {
	if pwm == nil {
		return nil, errors.New("motor: nil PWM backend")
	}
	if cfg.MinSpeed < 0 || cfg.MinSpeed > 100 || math.IsNaN(cfg.MinSpeed) {
		return nil, fmt.Errorf("motor: min speed %g outside 0..100", cfg.MinSpeed)
	}
	if cfg.SubcycleTime <= 0 {
		return nil, fmt.Errorf("motor: subcycle time must be positive, got %d", cfg.SubcycleTime)
	}

	p := cfg.Pins
	seen := map[int]bool{}
	for _, pin := range []int{p.LeftForward, p.LeftBackward, p.RightForward, p.RightBackward} {
		if seen[pin] {
			return nil, fmt.Errorf("motor: pin %d assigned to more than one channel", pin)
		}
		seen[pin] = true
	}

	sub := float64(cfg.SubcycleTime)
	d := &Driver{
		pwm:      pwm,
		slope:    int(math.Floor(sub * (1 - cfg.MinSpeed/100) / 100)),
		offset:   int(math.Floor(sub * cfg.MinSpeed / 100)),
		subcycle: cfg.SubcycleTime,
		left:     side{name: "left", forward: p.LeftForward, backward: p.LeftBackward},
		right:    side{name: "right", forward: p.RightForward, backward: p.RightBackward},
	}
	if cfg.FlipLeft {
		d.left.forward, d.left.backward = d.left.backward, d.left.forward
	}
	if cfg.FlipRight {
		d.right.forward, d.right.backward = d.right.backward, d.right.forward
	}
	return d, nil
}

// ClipSpeed clamps s to [-MaxSpeed, MaxSpeed].
func ClipSpeed(s int) int {
	switch {
	case s > MaxSpeed:
		return MaxSpeed
	case s < -MaxSpeed:
		return -MaxSpeed
	default:
		return s
	}
}

// Duty returns the PWM active time for a speed magnitude, quantised down
// to a multiple of 10 microseconds.
func (d *Driver) Duty(speed int) int {
	if speed < 0 {
		speed = -speed
	}
	return (d.slope*speed + d.offset) / 10 * 10
}

// Slope and Offset expose the linear speed map.
func (d *Driver) Slope() int  { return d.slope }
func (d *Driver) Offset() int { return d.offset }

// SetSpeed commands both tracks, left first. Speeds are clipped. A track
// whose speed is unchanged is not touched. On a hardware failure the track's
// state reflects the calls that did succeed, the other track is still
// commanded and the failures are returned.
func (d *Driver) SetSpeed(left, right int) error {
	errLeft := d.setSide(&d.left, ClipSpeed(left))
	errRight := d.setSide(&d.right, ClipSpeed(right))
	return errors.Join(errLeft, errRight)
}

func (d *Driver) setSide(s *side, speed int) error {
	if speed == s.speed {
		return nil
	}

	if s.speed != 0 {
		pin := s.forward
		if s.speed < 0 {
			pin = s.backward
		}
		if err := d.pwm.Deactivate(pin); err != nil {
			return fmt.Errorf("%s track: deactivate pin %d: %w", s.name, pin, err)
		}
		s.speed, s.state = 0, Stopped
	}

	if speed == 0 {
		return nil
	}

	pin, state := s.forward, Forward
	if speed < 0 {
		pin, state = s.backward, Backward
	}
	duty := d.Duty(speed)
	if err := d.pwm.Activate(pin, duty); err != nil {
		return fmt.Errorf("%s track: activate pin %d duty %d: %w", s.name, pin, duty, err)
	}
	s.speed, s.state = speed, state
	return nil
}

// Speeds returns the last commanded left and right speeds.
func (d *Driver) Speeds() (left, right int) { return d.left.speed, d.right.speed }

// Left returns a snapshot of the left track.
func (d *Driver) Left() SideState { return d.left.snapshot() }

// Right returns a snapshot of the right track.
func (d *Driver) Right() SideState { return d.right.snapshot() }

// ChannelResult is the outcome of stopping one direction channel.
type ChannelResult struct {
	Side      string
	Direction State
	Pin       int
	Err       error
}

// StopReport lists the outcome for every channel StopMotors attempted.
type StopReport struct {
	Results []ChannelResult
}

// OK reports whether every channel stopped cleanly.
func (r StopReport) OK() bool { return len(r.Failed()) == 0 }

// Failed returns the channels whose deactivation failed.
func (r StopReport) Failed() []ChannelResult {
	var failed []ChannelResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err joins the per-channel failures, nil if there were none.
func (r StopReport) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, fmt.Errorf("%s %s pin %d: %w", res.Side, res.Direction, res.Pin, res.Err))
	}
	return errors.Join(errs...)
}

// StopMotors deactivates all four channels. Each channel is attempted
// regardless of earlier failures, which are logged and reported but never
// returned as an error. Both tracks end Stopped at speed 0.
func (d *Driver) StopMotors() StopReport {
	var report StopReport
	for _, s := range []*side{&d.left, &d.right} {
		for _, ch := range []struct {
			dir State
			pin int
		}{{Forward, s.forward}, {Backward, s.backward}} {
			err := d.pwm.Deactivate(ch.pin)
			if err != nil {
				monitoring.Logf("motor: stop %s %s pin %d: %v", s.name, ch.dir, ch.pin, err)
			}
			report.Results = append(report.Results, ChannelResult{Side: s.name, Direction: ch.dir, Pin: ch.pin, Err: err})
		}
		s.speed, s.state = 0, Stopped
	}
	return report
}
