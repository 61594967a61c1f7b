package motion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gwillem/rover/pkg/clock"
	"github.com/gwillem/rover/pkg/rangesensor"
	"github.com/gwillem/rover/pkg/robot"
)

// events records every actuator command in order.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, fmt.Sprintf(format, args...))
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type mockMotor struct {
	name string
	ev   *events
	duty float64
	err  error
}

func (m *mockMotor) SetDuty(percent float64) error {
	if m.err != nil {
		return m.err
	}
	m.duty = percent
	m.ev.add("%s=%g", m.name, percent)
	return nil
}

type mockAim struct {
	ev  *events
	aim robot.Aim
}

func (a *mockAim) Aim(ctx context.Context, aim robot.Aim) error {
	a.aim = aim
	a.ev.add("aim=%s", aim)
	return nil
}

type rig struct {
	ev    *events
	left  *mockMotor
	right *mockMotor
	aim   *mockAim
	clk   *clock.Fake
}

func newRig() *rig {
	ev := &events{}
	return &rig{
		ev:    ev,
		left:  &mockMotor{name: "L", ev: ev},
		right: &mockMotor{name: "R", ev: ev},
		aim:   &mockAim{ev: ev},
		clk:   clock.NewFake(time.Unix(0, 0)),
	}
}

func (r *rig) drive() robot.Drive {
	return robot.Drive{Left: r.left, Right: r.right, Aim: r.aim}
}

// reading is one scripted sensor result: a distance in mm, or an error.
type reading struct {
	mm  int
	err error
}

func mm(v int) reading { return reading{mm: v} }

var outOfRange = reading{err: rangesensor.ErrOutOfRange}

// scriptedRanger returns readings in order, then fallback forever.
type scriptedRanger struct {
	mu       sync.Mutex
	script   []reading
	fallback reading
	calls    int
	onCall   func(n int)
}

func (s *scriptedRanger) Measure(ctx context.Context) (rangesensor.Distance, error) {
	s.mu.Lock()
	r := s.fallback
	if len(s.script) > 0 {
		r, s.script = s.script[0], s.script[1:]
	}
	s.calls++
	n, hook := s.calls, s.onCall
	s.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if r.err != nil {
		return rangesensor.OutOfRange, r.err
	}
	return rangesensor.FromMillimeters(r.mm), nil
}

// recordingDisplay keeps every state and distance shown.
type recordingDisplay struct {
	mu        sync.Mutex
	states    []string
	distances []rangesensor.Distance
}

func (d *recordingDisplay) ShowDistance(dist rangesensor.Distance) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.distances = append(d.distances, dist)
}

func (d *recordingDisplay) ShowState(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.states = append(d.states, name)
}

func (d *recordingDisplay) stateList() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.states...)
}

type mockToner struct {
	calls int
	hz    int
	d     time.Duration
}

func (m *mockToner) Tone(hz int, d time.Duration) error {
	m.calls++
	m.hz, m.d = hz, d
	return errors.New("no buzzer")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
