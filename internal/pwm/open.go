package pwm

import (
	"context"
	"fmt"
)

// Backend is a PWM implementation that owns a resource.
type Backend interface {
	Activate(pin, duty int) error
	Deactivate(pin int) error
	Close() error
}

// Open returns the backend named by kind: "serial" opens the board on
// device, "log" only logs.
func Open(ctx context.Context, kind, device string, baud, subcycle int) (Backend, error) {
	switch kind {
	case "serial":
		s, err := OpenSerial(ctx, device, PortOptions{BaudRate: baud}, subcycle)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "log":
		return NewLog(subcycle), nil
	default:
		return nil, fmt.Errorf("unknown pwm backend %q", kind)
	}
}
