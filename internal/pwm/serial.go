package pwm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/banshee-data/trackrunner/internal/monitoring"
)

// DefaultReplyTimeout bounds how long the board may take to acknowledge a
// command.
const DefaultReplyTimeout = 500 * time.Millisecond

var (
	// ErrInvalidDuty is returned for duty times the hardware cannot produce.
	ErrInvalidDuty = errors.New("invalid duty time")
	// ErrReplyTimeout is returned when the board does not answer in time.
	ErrReplyTimeout = errors.New("pwm board reply timeout")
	// ErrProtocol is returned for replies that are neither OK nor ERR.
	ErrProtocol = errors.New("unexpected pwm board reply")
	// ErrClosed is returned for commands issued after Close.
	ErrClosed = errors.New("pwm backend closed")
)

// BoardError is a command the board rejected with an ERR reply.
type BoardError struct {
	Command string
	Reason  string
}

func (e *BoardError) Error() string {
	return fmt.Sprintf("pwm board rejected %q: %s", e.Command, e.Reason)
}

// ValidateDuty checks that duty is a multiple of 10 within [0, subcycle].
func ValidateDuty(duty, subcycle int) error {
	if duty < 0 || duty > subcycle || duty%10 != 0 {
		return fmt.Errorf("%w: %d (must be a multiple of 10 within 0..%d)", ErrInvalidDuty, duty, subcycle)
	}
	return nil
}

// Serial drives the PWM co-processor over a serial line protocol:
//
//	C <subcycle>     configure the period in microseconds
//	A <pin> <duty>   start a channel with the given active time
//	D <pin>          stop a channel
//
// Every command is answered by a line "OK" or "ERR <reason>".
type Serial struct {
	mu       sync.Mutex
	port     Port
	subcycle int
	timeout  time.Duration
	closed   bool
	// stale is set when a reply may still be in flight from an earlier
	// command; the next command drains the line first.
	stale bool
}

// SerialOption configures a Serial backend.
type SerialOption func(*Serial)

// WithReplyTimeout overrides DefaultReplyTimeout.
func WithReplyTimeout(d time.Duration) SerialOption {
	return func(s *Serial) { s.timeout = d }
}

// NewSerial configures the board on an open port.
func NewSerial(port Port, subcycle int, opts ...SerialOption) (*Serial, error) {
	if subcycle <= 0 || subcycle%10 != 0 {
		return nil, fmt.Errorf("subcycle must be a positive multiple of 10, got %d", subcycle)
	}
	s := &Serial{port: port, subcycle: subcycle, timeout: DefaultReplyTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.command(fmt.Sprintf("C %d", subcycle)); err != nil {
		return nil, fmt.Errorf("configure pwm board: %w", err)
	}
	return s, nil
}

// OpenSerial opens device and configures the board, retrying with
// exponential backoff while the board boots after a USB attach.
func OpenSerial(ctx context.Context, device string, opts PortOptions, subcycle int, serialOpts ...SerialOption) (*Serial, error) {
	return openSerialWith(ctx, openSerialPort, device, opts, subcycle, 3*time.Second, serialOpts...)
}

func openSerialWith(ctx context.Context, open Opener, device string, opts PortOptions, subcycle int, maxElapsed time.Duration, serialOpts ...SerialOption) (*Serial, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, fmt.Errorf("serial options for %s: %w", device, err)
	}

	var s *Serial
	attempt := 0
	op := func() error {
		attempt++
		port, err := open(device, mode)
		if err != nil {
			monitoring.Logf("pwm: open %s (attempt %d): %v", device, attempt, err)
			return err
		}
		s, err = NewSerial(port, subcycle, serialOpts...)
		if err != nil {
			_ = port.Close()
			var boardErr *BoardError
			if errors.As(err, &boardErr) {
				// The board is alive and said no; retrying will not help.
				return backoff.Permanent(err)
			}
			monitoring.Logf("pwm: configure %s (attempt %d): %v", device, attempt, err)
			return err
		}
		return nil
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     50 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      maxElapsed,
		Clock:               backoff.SystemClock,
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("open pwm board on %s: %w", device, err)
	}
	return s, nil
}

// Activate starts pin with duty microseconds of active time per subcycle.
func (s *Serial) Activate(pin, duty int) error {
	if err := ValidateDuty(duty, s.subcycle); err != nil {
		return err
	}
	return s.command(fmt.Sprintf("A %d %d", pin, duty))
}

// Deactivate stops pin.
func (s *Serial) Deactivate(pin int) error {
	return s.command(fmt.Sprintf("D %d", pin))
}

// Close closes the serial port.
func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

// command sends one line and waits for the board's reply.
func (s *Serial) command(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.stale {
		if err := s.drain(); err != nil {
			return fmt.Errorf("resync before %q: %w", line, err)
		}
		s.stale = false
	}
	if _, err := s.port.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("write %q: %w", line, err)
	}

	reply, err := s.readReply()
	if err != nil {
		s.stale = true
		return fmt.Errorf("%q: %w", line, err)
	}
	if err := parseReply(line, reply); err != nil {
		if errors.Is(err, ErrProtocol) {
			s.stale = true
		}
		return err
	}
	return nil
}

// drain discards input until the line has been quiet for one reply timeout,
// so a late answer to an earlier command is not read as the next one's.
// A line that never goes quiet within four timeouts is a protocol error.
func (s *Serial) drain() error {
	start := time.Now()
	limit := start.Add(4 * s.timeout)
	quietUntil := start.Add(s.timeout)
	buf := make([]byte, 64)
	discarded := 0

	for {
		now := time.Now()
		if !now.Before(quietUntil) {
			break
		}
		if !now.Before(limit) {
			return fmt.Errorf("%w: line not quiet after %s (%d bytes discarded)", ErrProtocol, now.Sub(start).Round(time.Millisecond), discarded)
		}
		if err := s.port.SetReadTimeout(time.Until(quietUntil)); err != nil {
			return fmt.Errorf("set read timeout: %w", err)
		}
		n, err := s.port.Read(buf)
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		if n > 0 {
			discarded += n
			quietUntil = time.Now().Add(s.timeout)
		}
	}
	if discarded > 0 {
		monitoring.Logf("pwm: discarded %d late reply bytes", discarded)
	}
	return nil
}

// readReply reads up to the next newline. go.bug.st/serial reports a read
// timeout as a zero-length read, so the deadline is tracked here.
func (s *Serial) readReply() (string, error) {
	deadline := time.Now().Add(s.timeout)
	var buf []byte
	one := make([]byte, 1)

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ErrReplyTimeout
		}
		if err := s.port.SetReadTimeout(remaining); err != nil {
			return "", fmt.Errorf("set read timeout: %w", err)
		}

		n, err := s.port.Read(one)
		if err != nil {
			return "", fmt.Errorf("read reply: %w", err)
		}
		if n == 0 {
			continue
		}
		if one[0] == '\n' {
			return strings.TrimSpace(string(buf)), nil
		}
		buf = append(buf, one[0])
	}
}

func parseReply(cmd, reply string) error {
	switch {
	case reply == "OK":
		return nil
	case reply == "ERR" || strings.HasPrefix(reply, "ERR "):
		return &BoardError{Command: cmd, Reason: strings.TrimSpace(strings.TrimPrefix(reply, "ERR"))}
	default:
		return fmt.Errorf("%w to %q: %s", ErrProtocol, cmd, strconv.Quote(reply))
	}
}
