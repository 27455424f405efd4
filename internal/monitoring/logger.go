package monitoring

import (
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Throttle forwards messages to Logf at a bounded rate. Perception warnings
// can fire on every frame; a throttle keeps them readable at loop cadence.
// Dropped messages are counted and reported with the next message that passes.
type Throttle struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	suppressed int
}

// NewThrottle allows burst messages immediately and then one per interval.
func NewThrottle(interval time.Duration, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), burst)}
}

// Logf logs the message if the limiter allows it, otherwise counts it.
func (t *Throttle) Logf(format string, v ...interface{}) {
	t.mu.Lock()
	if !t.limiter.Allow() {
		t.suppressed++
		t.mu.Unlock()
		return
	}
	dropped := t.suppressed
	t.suppressed = 0
	t.mu.Unlock()

	if dropped > 0 {
		Logf(format+" (%d similar messages suppressed)", append(v, dropped)...)
		return
	}
	Logf(format, v...)
}

// Suppressed returns how many messages are waiting to be reported as dropped.
func (t *Throttle) Suppressed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.suppressed
}
