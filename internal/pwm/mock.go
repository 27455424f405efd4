package pwm

import (
	"fmt"
	"sync"
)

// Op names a PWM operation.
type Op string

const (
	OpActivate   Op = "activate"
	OpDeactivate Op = "deactivate"
)

// Call is one recorded PWM operation.
type Call struct {
	Op   Op
	Pin  int
	Duty int
}

func (c Call) String() string {
	if c.Op == OpActivate {
		return fmt.Sprintf("A %d %d", c.Pin, c.Duty)
	}
	return fmt.Sprintf("D %d", c.Pin)
}

// Mock records PWM calls for tests. Failures can be injected per pin and
// operation; a failed call is still recorded.
type Mock struct {
	mu     sync.Mutex
	calls  []Call
	active map[int]int
	fail   map[Call]error
}

// NewMock returns an empty Mock.
func NewMock() *Mock {
	return &Mock{active: make(map[int]int), fail: make(map[Call]error)}
}

// FailActivate makes every Activate on pin return err.
func (m *Mock) FailActivate(pin int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[Call{Op: OpActivate, Pin: pin}] = err
}

// FailDeactivate makes every Deactivate on pin return err.
func (m *Mock) FailDeactivate(pin int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[Call{Op: OpDeactivate, Pin: pin}] = err
}

// Activate records the call and marks pin active unless a failure is set.
func (m *Mock) Activate(pin, duty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: OpActivate, Pin: pin, Duty: duty})
	if err := m.fail[Call{Op: OpActivate, Pin: pin}]; err != nil {
		return err
	}
	m.active[pin] = duty
	return nil
}

// Deactivate records the call and clears pin unless a failure is set.
func (m *Mock) Deactivate(pin int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: OpDeactivate, Pin: pin})
	if err := m.fail[Call{Op: OpDeactivate, Pin: pin}]; err != nil {
		return err
	}
	delete(m.active, pin)
	return nil
}

// Calls returns the recorded calls in order.
func (m *Mock) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Reset forgets recorded calls but keeps active pins and failures.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// Active returns the running channels as pin -> duty.
func (m *Mock) Active() map[int]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]int, len(m.active))
	for pin, duty := range m.active {
		out[pin] = duty
	}
	return out
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }
