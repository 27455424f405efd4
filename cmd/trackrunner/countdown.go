package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/theckman/yacspin"
)

// countdown shows a spinner for delay so the vehicle can be placed on the
// track. It returns early with ctx's error if the run is aborted.
func countdown(ctx context.Context, delay time.Duration, w io.Writer) error {
	if delay <= 0 {
		return nil
	}

	spinner, err := yacspin.New(yacspin.Config{
		Writer:            w,
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		SuffixAutoColon:   true,
		Message:           countdownMessage(delay),
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopMessage:       "go",
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		StopFailMessage:   "aborted",
	})
	if err != nil {
		return fmt.Errorf("start countdown: %w", err)
	}
	if err := spinner.Start(); err != nil {
		return fmt.Errorf("start countdown: %w", err)
	}

	deadline := time.Now().Add(delay)
	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return spinner.Stop()
		}
		spinner.Message(countdownMessage(remaining))
		select {
		case <-ctx.Done():
			_ = spinner.StopFail()
			return ctx.Err()
		case <-time.After(remaining):
		case <-tick.C:
		}
	}
}

func countdownMessage(remaining time.Duration) string {
	return fmt.Sprintf("starting in %ds", int((remaining+time.Second-1)/time.Second))
}
