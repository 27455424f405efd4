// Package steering converts a heading error into a pair of track speeds.
package steering

import (
	"fmt"
	"math"
)

// Track speed bounds accepted by the motor driver.
const (
	MinSpeed = -99
	MaxSpeed = 99
)

// maxDiff bounds the PID output before integer conversion. Any differential
// beyond twice the speed range saturates the same way.
const maxDiff = 4 * (MaxSpeed - MinSpeed)

// Command is a left/right speed pair for the motor driver.
type Command struct {
	Left  int
	Right int
}

// Differential returns Right - Left.
func (c Command) Differential() int { return c.Right - c.Left }

func (c Command) String() string { return fmt.Sprintf("(%d, %d)", c.Left, c.Right) }

// Allocate splits diff symmetrically around baseSpeed and shifts both tracks
// by a common offset so that neither exceeds the speed bounds. The commanded
// differential is preserved exactly; only the common-mode speed moves. When
// the differential itself is wider than the speed range, the faster track is
// held at its bound and the slower one is left for the driver to clip.
//
// A NaN diff is treated as no correction.
func Allocate(baseSpeed int, diff float64) Command {
	switch {
	case math.IsNaN(diff):
		diff = 0
	case diff > maxDiff:
		diff = maxDiff
	case diff < -maxDiff:
		diff = -maxDiff
	}

	halfDiff := int(math.Floor(diff / 2))
	left := baseSpeed - halfDiff
	right := baseSpeed + halfDiff

	offset := SaturationOffset(left, right)
	return Command{Left: left - offset, Right: right - offset}
}

// SaturationOffset returns the common-mode shift that brings the pair inside
// [MinSpeed, MaxSpeed], preferring the upper bound when both are violated.
func SaturationOffset(left, right int) int {
	high, low := left, right
	if low > high {
		high, low = low, high
	}
	switch {
	case high > MaxSpeed:
		return high - MaxSpeed
	case low < MinSpeed:
		return low - MinSpeed
	default:
		return 0
	}
}
