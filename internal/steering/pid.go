package steering

import (
	"time"

	"github.com/felixge/pidctrl"

	"github.com/banshee-data/trackrunner/internal/timeutil"
)

// PID maps the current heading error to a total speed differential. It is
// stateful: successive calls form the error time series.
type PID interface {
	Compute(heading float64) float64
}

// PIDController adapts pidctrl to the heading loop. The setpoint is a zero
// heading, and elapsed time between calls comes from the injected clock so
// the integral and derivative terms can be tested deterministically.
type PIDController struct {
	ctrl  *pidctrl.PIDController
	clock timeutil.Clock

	last    time.Time
	started bool
}

// NewPID builds a controller with the given gains. A nil clock uses the
// wall clock.
func NewPID(kp, kd, ki float64, clock timeutil.Clock) *PIDController {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	ctrl := pidctrl.NewPIDController(kp, ki, kd)
	ctrl.Set(0)
	return &PIDController{ctrl: ctrl, clock: clock}
}

// Compute returns Kp*h + Ki*integral(h) + Kd*dh/dt. The first call has no
// elapsed time, so only the proportional term contributes.
func (p *PIDController) Compute(heading float64) float64 {
	now := p.clock.Now()
	var dt time.Duration
	if p.started {
		dt = now.Sub(p.last)
	}
	p.last, p.started = now, true

	// pidctrl works on setpoint - value with the derivative taken on the
	// measured value, so the heading is fed negated to get the sign right.
	return p.ctrl.UpdateDuration(-heading, dt)
}

// SetOutputLimits bounds the differential the controller may return.
func (p *PIDController) SetOutputLimits(min, max float64) {
	p.ctrl.SetOutputLimits(min, max)
}
