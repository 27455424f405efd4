package pwm

import (
	"fmt"
	"sort"
	"sync"

	"github.com/banshee-data/trackrunner/internal/monitoring"
)

// Log is a PWM backend that only logs commands. It keeps the set of active
// channels so dry runs can check that cleanup left nothing running.
type Log struct {
	mu       sync.Mutex
	subcycle int
	active   map[int]int
}

// NewLog returns a logging backend for the given subcycle.
func NewLog(subcycle int) *Log {
	return &Log{subcycle: subcycle, active: make(map[int]int)}
}

// Activate records pin as active with duty.
func (l *Log) Activate(pin, duty int) error {
	if err := ValidateDuty(duty, l.subcycle); err != nil {
		return err
	}
	l.mu.Lock()
	l.active[pin] = duty
	l.mu.Unlock()
	monitoring.Logf("pwm: activate pin %d duty %d/%d", pin, duty, l.subcycle)
	return nil
}

// Deactivate records pin as stopped.
func (l *Log) Deactivate(pin int) error {
	l.mu.Lock()
	delete(l.active, pin)
	l.mu.Unlock()
	monitoring.Logf("pwm: deactivate pin %d", pin)
	return nil
}

// Active returns the running channels as pin -> duty.
func (l *Log) Active() map[int]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[int]int, len(l.active))
	for pin, duty := range l.active {
		out[pin] = duty
	}
	return out
}

// Close reports channels that are still active.
func (l *Log) Close() error {
	active := l.Active()
	if len(active) == 0 {
		return nil
	}
	pins := make([]int, 0, len(active))
	for pin := range active {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return fmt.Errorf("pwm: channels still active at close: %v", pins)
}
