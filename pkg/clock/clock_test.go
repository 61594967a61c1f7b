package clock

import (
	"context"
	"testing"
	"time"
)

func TestFake_SleepAdvances(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if err := f.Sleep(context.Background(), 50*time.Millisecond); err != nil {
		t.Fatalf("Sleep: %v", err)
	}
	f.Advance(10 * time.Microsecond)

	want := start.Add(50*time.Millisecond + 10*time.Microsecond)
	if got := f.Now(); !got.Equal(want) {
		t.Errorf("Now() = %v, want %v", got, want)
	}
	if got := f.Sleeps(); len(got) != 1 || got[0] != 50*time.Millisecond {
		t.Errorf("Sleeps() = %v, want [50ms]", got)
	}
}

func TestFake_SleepCancelled(t *testing.T) {
	f := NewFake(time.Time{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := f.Sleep(ctx, time.Second); err != context.Canceled {
		t.Errorf("Sleep() = %v, want context.Canceled", err)
	}
	if !f.Now().IsZero() {
		t.Error("cancelled Sleep should not advance the clock")
	}
}

func TestReal_SleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := (Real{}).Sleep(ctx, time.Hour); err != context.Canceled {
		t.Errorf("Sleep() = %v, want context.Canceled", err)
	}
}
