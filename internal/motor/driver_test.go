package motor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackrunner/internal/pwm"
	"github.com/banshee-data/trackrunner/internal/testutil"
	"github.com/banshee-data/trackrunner/internal/timeutil"
)

func newTestDriver(t *testing.T, minSpeed float64) (*Driver, *pwm.Mock) {
	t.Helper()
	mock := pwm.NewMock()
	cfg := DefaultConfig()
	cfg.MinSpeed = minSpeed
	d, err := New(mock, cfg)
	require.NoError(t, err)
	return d, mock
}

func assertCalls(t *testing.T, want []pwm.Call, got []pwm.Call) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PWM calls mismatch (-want +got):\n%s", diff)
	}
}

func TestClipSpeed(t *testing.T) {
	assert.Equal(t, 99, ClipSpeed(150))
	assert.Equal(t, -99, ClipSpeed(-150))
	assert.Equal(t, 40, ClipSpeed(40))
	assert.Equal(t, 99, ClipSpeed(99))
	assert.Equal(t, -99, ClipSpeed(-99))
	assert.Equal(t, 0, ClipSpeed(0))
}

func TestNew_LinearMap(t *testing.T) {
	tests := []struct {
		minSpeed float64
		slope    int
		offset   int
		duty40   int
		duty99   int
	}{
		{minSpeed: 0, slope: 60, offset: 0, duty40: 2400, duty99: 5940},
		{minSpeed: 50, slope: 30, offset: 3000, duty40: 4200, duty99: 5970},
		{minSpeed: 25, slope: 45, offset: 1500, duty40: 3300, duty99: 5950},
	}

	for _, tt := range tests {
		d, _ := newTestDriver(t, tt.minSpeed)
		assert.Equal(t, tt.slope, d.Slope(), "min %g", tt.minSpeed)
		assert.Equal(t, tt.offset, d.Offset(), "min %g", tt.minSpeed)
		assert.Equal(t, tt.duty40, d.Duty(40), "min %g", tt.minSpeed)
		assert.Equal(t, tt.duty40, d.Duty(-40), "duty ignores sign")
		assert.Equal(t, tt.duty99, d.Duty(99), "min %g", tt.minSpeed)
	}
}

func TestNew_Validation(t *testing.T) {
	mock := pwm.NewMock()

	_, err := New(nil, DefaultConfig())
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MinSpeed = 120
	_, err = New(mock, cfg)
	assert.ErrorContains(t, err, "min speed")

	cfg = DefaultConfig()
	cfg.SubcycleTime = 0
	_, err = New(mock, cfg)
	assert.ErrorContains(t, err, "subcycle")

	cfg = DefaultConfig()
	cfg.Pins.RightBackward = cfg.Pins.LeftForward
	_, err = New(mock, cfg)
	assert.ErrorContains(t, err, "more than one channel")
}

func TestSetSpeed_ForwardThenStop(t *testing.T) {
	d, mock := newTestDriver(t, 50)

	require.NoError(t, d.SetSpeed(99, 0))
	assert.Equal(t, Forward, d.Left().State)
	assert.Equal(t, Stopped, d.Right().State)

	require.NoError(t, d.SetSpeed(0, 0))
	assert.Equal(t, Stopped, d.Left().State)

	assertCalls(t, []pwm.Call{
		{Op: pwm.OpActivate, Pin: 24, Duty: 5970},
		{Op: pwm.OpDeactivate, Pin: 24},
	}, mock.Calls())
	assert.Empty(t, mock.Active())
}

func TestSetSpeed_ReversalDeactivatesFirst(t *testing.T) {
	d, mock := newTestDriver(t, 50)

	require.NoError(t, d.SetSpeed(50, 0))
	require.NoError(t, d.SetSpeed(-50, 0))

	assertCalls(t, []pwm.Call{
		{Op: pwm.OpActivate, Pin: 24, Duty: 4500},
		{Op: pwm.OpDeactivate, Pin: 24},
		{Op: pwm.OpActivate, Pin: 23, Duty: 4500},
	}, mock.Calls())
	assert.Equal(t, map[int]int{23: 4500}, mock.Active())
	assert.Equal(t, Backward, d.Left().State)
	assert.Equal(t, -50, d.Left().Speed)
}

func TestSetSpeed_UnchangedIsNoop(t *testing.T) {
	d, mock := newTestDriver(t, 0)

	require.NoError(t, d.SetSpeed(40, -40))
	mock.Reset()
	require.NoError(t, d.SetSpeed(40, -40))
	require.NoError(t, d.SetSpeed(400, -40), "400 clips to 99")
	require.NoError(t, d.SetSpeed(99, -40))

	assertCalls(t, []pwm.Call{
		{Op: pwm.OpDeactivate, Pin: 24},
		{Op: pwm.OpActivate, Pin: 24, Duty: 5940},
	}, mock.Calls())
}

func TestSetSpeed_SpeedChangeReactivates(t *testing.T) {
	d, mock := newTestDriver(t, 0)

	require.NoError(t, d.SetSpeed(0, 40))
	require.NoError(t, d.SetSpeed(0, 45))

	assertCalls(t, []pwm.Call{
		{Op: pwm.OpActivate, Pin: 22, Duty: 2400},
		{Op: pwm.OpDeactivate, Pin: 22},
		{Op: pwm.OpActivate, Pin: 22, Duty: 2700},
	}, mock.Calls())
	left, right := d.Speeds()
	assert.Equal(t, 0, left)
	assert.Equal(t, 45, right)
}

func TestSetSpeed_Flip(t *testing.T) {
	mock := pwm.NewMock()
	cfg := DefaultConfig()
	cfg.FlipLeft = true
	cfg.FlipRight = true
	d, err := New(mock, cfg)
	require.NoError(t, err)

	require.NoError(t, d.SetSpeed(40, -40))

	assertCalls(t, []pwm.Call{
		{Op: pwm.OpActivate, Pin: 23, Duty: 2400},
		{Op: pwm.OpActivate, Pin: 22, Duty: 2400},
	}, mock.Calls())
	assert.Equal(t, 23, d.Left().Forward)
	assert.Equal(t, 24, d.Left().Backward)
}

func TestSetSpeed_ActivateFailureSurfaces(t *testing.T) {
	d, mock := newTestDriver(t, 0)
	mock.FailActivate(22, errors.New("board rejected"))

	err := d.SetSpeed(40, 40)
	require.Error(t, err)
	assert.ErrorContains(t, err, "right track")
	assert.ErrorContains(t, err, "board rejected")

	assert.Equal(t, SideState{Name: "left", Forward: 24, Backward: 23, Speed: 40, State: Forward}, d.Left())
	assert.Equal(t, SideState{Name: "right", Forward: 22, Backward: 27, Speed: 0, State: Stopped}, d.Right())
}

func TestSetSpeed_LeftFailureStillCommandsRight(t *testing.T) {
	d, mock := newTestDriver(t, 0)
	boom := errors.New("boom")
	mock.FailActivate(24, boom)

	err := d.SetSpeed(40, 40)
	assert.ErrorIs(t, err, boom)
	_, right := d.Speeds()
	assert.Equal(t, 40, right)
}

func TestSetSpeed_DeactivateFailureKeepsState(t *testing.T) {
	d, mock := newTestDriver(t, 0)
	require.NoError(t, d.SetSpeed(40, 0))

	mock.FailDeactivate(24, errors.New("stuck"))
	err := d.SetSpeed(-40, 0)
	require.Error(t, err)

	assert.Equal(t, Forward, d.Left().State)
	assert.Equal(t, 40, d.Left().Speed)
	_, backwardActive := mock.Active()[23]
	assert.False(t, backwardActive, "backward channel must not start while forward may still run")
}

func TestStopMotors_AttemptsAllChannels(t *testing.T) {
	testutil.MuteLogs(t)
	d, mock := newTestDriver(t, 0)
	require.NoError(t, d.SetSpeed(40, 40))

	mock.FailDeactivate(24, errors.New("already inactive"))
	mock.FailDeactivate(27, errors.New("already inactive"))
	mock.Reset()

	report := d.StopMotors()

	assertCalls(t, []pwm.Call{
		{Op: pwm.OpDeactivate, Pin: 24},
		{Op: pwm.OpDeactivate, Pin: 23},
		{Op: pwm.OpDeactivate, Pin: 22},
		{Op: pwm.OpDeactivate, Pin: 27},
	}, mock.Calls())

	require.Len(t, report.Results, 4)
	assert.False(t, report.OK())
	failed := report.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, 24, failed[0].Pin)
	assert.Equal(t, Forward, failed[0].Direction)
	assert.Equal(t, 27, failed[1].Pin)
	assert.ErrorContains(t, report.Err(), "right backward pin 27")

	left, right := d.Speeds()
	assert.Equal(t, 0, left)
	assert.Equal(t, 0, right)
	assert.Equal(t, Stopped, d.Left().State)
	assert.Equal(t, Stopped, d.Right().State)
}

func TestStopMotors_Clean(t *testing.T) {
	d, mock := newTestDriver(t, 0)
	require.NoError(t, d.SetSpeed(-20, 60))

	report := d.StopMotors()
	assert.True(t, report.OK())
	assert.NoError(t, report.Err())
	assert.Empty(t, mock.Active())

	// After a stop the next command starts from Stopped without a
	// redundant deactivate.
	mock.Reset()
	require.NoError(t, d.SetSpeed(-20, 0))
	assertCalls(t, []pwm.Call{{Op: pwm.OpActivate, Pin: 23, Duty: 1200}}, mock.Calls())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "forward", Forward.String())
	assert.Equal(t, "backward", Backward.String())
	assert.Equal(t, "state(7)", State(7).String())
}

func TestSelfTestSequence(t *testing.T) {
	steps := SelfTestSequence()
	require.Len(t, steps, 15)
	assert.Equal(t, Step{Left: -99, Hold: 1}, steps[0])
	assert.Equal(t, Step{Left: 61, Hold: 1}, steps[4])
	assert.Equal(t, Step{Right: -99, Hold: 1}, steps[5])
	assert.Equal(t, Step{Left: 0, Right: 0, Hold: 2}, steps[14])
}

func TestSelfTest_RunsAndStops(t *testing.T) {
	testutil.MuteLogs(t)
	d, mock := newTestDriver(t, 0)
	clock := timeutil.NewMockClock(time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))

	require.NoError(t, d.SelfTest(context.Background(), clock, time.Second))

	var total time.Duration
	for _, s := range clock.Sleeps() {
		total += s
	}
	assert.Equal(t, 20*time.Second, total)
	assert.Empty(t, mock.Active())

	calls := mock.Calls()
	require.GreaterOrEqual(t, len(calls), 4)
	assertCalls(t, []pwm.Call{
		{Op: pwm.OpDeactivate, Pin: 24},
		{Op: pwm.OpDeactivate, Pin: 23},
		{Op: pwm.OpDeactivate, Pin: 22},
		{Op: pwm.OpDeactivate, Pin: 27},
	}, calls[len(calls)-4:])
}

func TestSelfTest_CancelledStillStops(t *testing.T) {
	testutil.MuteLogs(t)
	d, mock := newTestDriver(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.SelfTest(ctx, timeutil.NewMockClock(time.Time{}), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, mock.Calls(), 4, "only the cleanup deactivations run")
}

func TestSelfTest_FailureStops(t *testing.T) {
	testutil.MuteLogs(t)
	d, mock := newTestDriver(t, 0)
	mock.FailActivate(23, errors.New("no power"))

	err := d.SelfTest(context.Background(), timeutil.NewMockClock(time.Time{}), time.Second)
	assert.ErrorContains(t, err, "self test step 1")
	assert.Empty(t, mock.Active())
}
