package robot

import (
	"context"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// mockButton reports an edge for each queued press.
type mockButton struct {
	mu      sync.Mutex
	pull    gpio.Pull
	edge    gpio.Edge
	presses int
}

func (b *mockButton) In(pull gpio.Pull, edge gpio.Edge) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pull, b.edge = pull, edge
	return nil
}

func (b *mockButton) WaitForEdge(timeout time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.presses > 0 {
		b.presses--
		return true
	}
	return false
}

func TestWatchButton(t *testing.T) {
	// Two edges arrive back to back; the second is a bounce.
	btn := &mockButton{presses: 2}
	ctx, cancel := context.WithCancel(context.Background())

	var mu sync.Mutex
	count := 0
	done := make(chan error, 1)
	go func() {
		done <- WatchButton(ctx, btn, func() {
			mu.Lock()
			count++
			mu.Unlock()
		})
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		btn.mu.Lock()
		remaining := btn.presses
		btn.mu.Unlock()
		if remaining == 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	if err := <-done; err != context.Canceled {
		t.Errorf("WatchButton() = %v, want context.Canceled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("presses = %d, want 1 (bounce suppressed)", count)
	}
	if btn.pull != gpio.PullUp || btn.edge != gpio.FallingEdge {
		t.Errorf("button configured with %v/%v, want PullUp/FallingEdge", btn.pull, btn.edge)
	}
}
