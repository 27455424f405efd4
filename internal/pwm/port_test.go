package pwm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptions_Normalize(t *testing.T) {
	tests := []struct {
		name    string
		opts    PortOptions
		want    PortOptions
		wantErr string
	}{
		{
			name: "defaults",
			opts: PortOptions{},
			want: PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"},
		},
		{
			name: "even parity spelled out",
			opts: PortOptions{BaudRate: 57600, Parity: " even "},
			want: PortOptions{BaudRate: 57600, DataBits: 8, StopBits: 1, Parity: "E"},
		},
		{name: "bad data bits", opts: PortOptions{DataBits: 4}, wantErr: "data bits"},
		{name: "bad stop bits", opts: PortOptions{StopBits: 3}, wantErr: "stop bits"},
		{name: "bad parity", opts: PortOptions{Parity: "mark"}, wantErr: "parity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.opts.Normalize()
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 9600, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		StopBits: serial.TwoStopBits,
		Parity:   serial.OddParity,
	}, mode)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}

func TestLog_TracksActivePins(t *testing.T) {
	muteLogs(t)
	l := NewLog(6000)

	require.NoError(t, l.Activate(24, 2400))
	require.NoError(t, l.Activate(22, 2400))
	assert.ErrorIs(t, l.Activate(23, 7), ErrInvalidDuty)
	require.NoError(t, l.Deactivate(24))

	assert.Equal(t, map[int]int{22: 2400}, l.Active())
	assert.ErrorContains(t, l.Close(), "[22]")

	require.NoError(t, l.Deactivate(22))
	assert.NoError(t, l.Close())
}

func TestMock_RecordsAndFails(t *testing.T) {
	m := NewMock()
	boom := errors.New("boom")
	m.FailDeactivate(23, boom)

	require.NoError(t, m.Activate(24, 100))
	assert.ErrorIs(t, m.Deactivate(23), boom)
	require.NoError(t, m.Deactivate(24))

	assert.Equal(t, []Call{
		{Op: OpActivate, Pin: 24, Duty: 100},
		{Op: OpDeactivate, Pin: 23},
		{Op: OpDeactivate, Pin: 24},
	}, m.Calls())
	assert.Empty(t, m.Active())
	assert.Equal(t, "A 24 100", m.Calls()[0].String())
	assert.Equal(t, "D 23", m.Calls()[1].String())

	m.Reset()
	assert.Empty(t, m.Calls())
}

func TestOpen_Backends(t *testing.T) {
	b, err := Open(context.Background(), "log", "", 0, 6000)
	require.NoError(t, err)
	assert.IsType(t, &Log{}, b)

	_, err = Open(context.Background(), "gpio", "", 0, 6000)
	assert.ErrorContains(t, err, "unknown pwm backend")
}
