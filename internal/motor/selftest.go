package motor

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/trackrunner/internal/monitoring"
	"github.com/banshee-data/trackrunner/internal/timeutil"
)

// Step is one command of the self test, held for Hold step durations.
type Step struct {
	Left, Right int
	Hold        int
}

// SelfTestSequence sweeps each track from full reverse to near full
// forward, then exercises both tracks together and ends stopped.
func SelfTestSequence() []Step {
	var steps []Step
	for s := -MaxSpeed; s <= MaxSpeed; s += 40 {
		steps = append(steps, Step{Left: s, Hold: 1})
	}
	for s := -MaxSpeed; s <= MaxSpeed; s += 40 {
		steps = append(steps, Step{Right: s, Hold: 1})
	}
	return append(steps,
		Step{Left: MaxSpeed, Right: MaxSpeed, Hold: 2},
		Step{Left: -MaxSpeed, Right: -MaxSpeed, Hold: 2},
		Step{Left: MaxSpeed, Right: MaxSpeed, Hold: 2},
		Step{Left: 0, Right: MaxSpeed, Hold: 2},
		Step{Left: 0, Right: 0, Hold: 2},
	)
}

// SelfTest runs SelfTestSequence on the chassis. The motors are stopped on
// every exit path. Cancellation is checked between steps.
func (d *Driver) SelfTest(ctx context.Context, clock timeutil.Clock, step time.Duration) error {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	defer func() {
		if report := d.StopMotors(); !report.OK() {
			monitoring.Logf("motor: self test cleanup: %v", report.Err())
		}
	}()

	for i, st := range SelfTestSequence() {
		if err := ctx.Err(); err != nil {
			return err
		}
		monitoring.Logf("motor: self test step %d: left %d right %d", i+1, st.Left, st.Right)
		if err := d.SetSpeed(st.Left, st.Right); err != nil {
			return fmt.Errorf("self test step %d: %w", i+1, err)
		}
		clock.Sleep(time.Duration(st.Hold) * step)
	}
	return nil
}
