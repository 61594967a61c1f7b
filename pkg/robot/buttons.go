package robot

import (
	"context"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Debounce is the minimum time between two accepted presses.
const Debounce = 200 * time.Millisecond

// ButtonPin is the subset of gpio.PinIn used to watch a button.
type ButtonPin interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
}

// WatchButton calls onPress on every falling edge of an active-low button
// until ctx is done. It blocks; run it in its own goroutine.
func WatchButton(ctx context.Context, pin ButtonPin, onPress func()) error {
	if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
		return err
	}

	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Short timeout so cancellation is noticed.
		if !pin.WaitForEdge(100 * time.Millisecond) {
			continue
		}
		now := time.Now()
		if now.Sub(last) < Debounce {
			continue
		}
		last = now
		onPress()
	}
}
