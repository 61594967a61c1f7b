package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/gwillem/rover/pkg/clock"
	"github.com/gwillem/rover/pkg/motion"
	"github.com/gwillem/rover/pkg/rangesensor"
	"github.com/gwillem/rover/pkg/robot"
	"github.com/gwillem/rover/pkg/sim"
)

func TestMotionConfig(t *testing.T) {
	cfg := robot.DefaultConfig()
	got := motionConfig(cfg)
	want := motion.DefaultConfig()
	if got != want {
		t.Errorf("motionConfig(default) = %+v, want %+v", got, want)
	}

	cfg.Motion.ClearanceThresholdMM = 150
	cfg.Motion.TurnMs = 750
	got = motionConfig(cfg)
	if got.ClearanceThresholdMM != 150 {
		t.Errorf("ClearanceThresholdMM = %d, want 150", got.ClearanceThresholdMM)
	}
	if got.TurnDuration != 750*time.Millisecond {
		t.Errorf("TurnDuration = %v, want 750ms", got.TurnDuration)
	}
}

func TestLoadConfig(t *testing.T) {
	old := opts.Config
	defer func() { opts.Config = old }()
	opts.Config = filepath.Join(t.TempDir(), "rover.json")

	if _, err := loadConfig(false); err == nil {
		t.Error("loadConfig(false) with missing file: expected error")
	}
	cfg, err := loadConfig(true)
	if err != nil {
		t.Fatalf("loadConfig(true) error: %v", err)
	}
	if cfg.Motion.ClearanceThresholdMM != 220 {
		t.Errorf("ClearanceThresholdMM = %d, want 220", cfg.Motion.ClearanceThresholdMM)
	}

	cfg.Pins.Echo = "GPIO23"
	if err := cfg.SaveTo(opts.Config); err != nil {
		t.Fatalf("SaveTo error: %v", err)
	}
	cfg, err = loadConfig(false)
	if err != nil {
		t.Fatalf("loadConfig(false) error: %v", err)
	}
	if cfg.Pins.Echo != "GPIO23" {
		t.Errorf("Pins.Echo = %q, want GPIO23", cfg.Pins.Echo)
	}
}

func TestParseAim(t *testing.T) {
	tests := []struct {
		name string
		want robot.Aim
	}{
		{"centre", robot.AimCentre},
		{"left", robot.AimLeft},
		{"right", robot.AimRight},
		{"up", robot.AimCentre},
	}
	for _, tt := range tests {
		if got := parseAim(tt.name); got != tt.want {
			t.Errorf("parseAim(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestProbe(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	world := sim.New(sim.DefaultConfig(), clk)
	sensor, err := rangesensor.New(world.Hardware().SensorPins(), 0, clk)
	if err != nil {
		t.Fatalf("rangesensor.New error: %v", err)
	}

	if err := probe(context.Background(), sensor, clk, 3, 250*time.Millisecond); err != nil {
		t.Fatalf("probe error: %v", err)
	}

	waits := 0
	for _, d := range clk.Sleeps() {
		if d == 250*time.Millisecond {
			waits++
		}
	}
	if waits != 2 {
		t.Errorf("interval sleeps = %d, want 2", waits)
	}
}

func TestCalibrationModel(t *testing.T) {
	m := newCalibrationModel(nil)
	for _, pos := range []int{2048, 2600, 1500} {
		if m.done() {
			t.Fatal("done before all positions recorded")
		}
		m = m.record(pos)
	}
	if !m.done() {
		t.Fatal("not done after three positions")
	}
	m = m.record(1) // ignored

	got := m.calibration(3)
	want := robot.AimCalibration{ID: 3, Centre: 2048, Left: 2600, Right: 1500}
	if got != want {
		t.Errorf("calibration = %+v, want %+v", got, want)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() error: %v", err)
	}
}

func TestCalibrationModel_Keys(t *testing.T) {
	var model tea.Model = newCalibrationModel(nil)
	enter := tea.KeyMsg{Type: tea.KeyEnter}

	model, _ = model.Update(tickMsg(time.Now()))
	model, _ = model.Update(enter)
	model, _ = model.Update(enter)
	model, cmd := model.Update(enter)
	m := model.(calibrationModel)
	if !m.done() || !m.quitting || m.aborted {
		t.Errorf("after three Enters: done=%v quitting=%v aborted=%v, want true true false", m.done(), m.quitting, m.aborted)
	}
	if cmd == nil {
		t.Error("expected quit command")
	}

	model, _ = newCalibrationModel(nil).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !model.(calibrationModel).aborted {
		t.Error("q did not abort calibration")
	}
}

func TestSummaryRows(t *testing.T) {
	cfg := robot.DefaultConfig()
	cfg.Pins.Buzzer = "12"

	rows := summaryRows(cfg)
	find := func(label string) string {
		for _, r := range rows {
			if r[0] == label {
				return r[1]
			}
		}
		return ""
	}

	if got := find("Aim servo"); got != "pwm pin 17" {
		t.Errorf("Aim servo = %q, want %q", got, "pwm pin 17")
	}
	if got := find("Buzzer"); got != "12" {
		t.Errorf("Buzzer = %q, want 12", got)
	}
	if got := find("Start button"); got != "" {
		t.Errorf("Start button = %q, want no row", got)
	}
	if got := find("Threshold"); got != "220 mm" {
		t.Errorf("Threshold = %q, want %q", got, "220 mm")
	}

	cfg.Aim.Backend = robot.AimBackendFeetech
	cfg.Aim.Port = "/dev/ttyUSB0"
	cfg.Aim.Calibration = robot.AimCalibration{ID: 1, Centre: 2048, Left: 2600, Right: 1500}
	rows = summaryRows(cfg)
	if got := find("Aim servo"); got != "feetech ID 1 on /dev/ttyUSB0" {
		t.Errorf("Aim servo = %q, want feetech ID 1 on /dev/ttyUSB0", got)
	}
}

func TestTUIDisplay_DropsWhenFull(t *testing.T) {
	d := newTUIDisplay()
	for i := 0; i < cap(d.events)+10; i++ {
		d.ShowState("LookAhead")
	}
	if len(d.events) != cap(d.events) {
		t.Errorf("queued = %d, want %d", len(d.events), cap(d.events))
	}
}

func TestLogWriter(t *testing.T) {
	w := newLogWriter()
	logger := slog.New(slog.NewTextHandler(w, nil))
	logger.Info("blocked", "polls", 3)

	line := <-w.lines
	if strings.HasSuffix(line, "\n") {
		t.Errorf("line %q has trailing newline", line)
	}
	if !strings.Contains(line, "polls=3") {
		t.Errorf("line %q missing attribute", line)
	}
}

func newTestModel(t *testing.T) (runModel, *motion.Controller) {
	t.Helper()
	clk := clock.NewFake(time.Unix(0, 0))
	hw := sim.New(sim.DefaultConfig(), clk).Hardware()
	sensor, err := rangesensor.New(hw.SensorPins(), 0, clk)
	if err != nil {
		t.Fatalf("rangesensor.New error: %v", err)
	}
	display := newTUIDisplay()
	ctrl, err := motion.NewController(motion.DefaultConfig(), hw.Drive(), sensor,
		motion.WithClock(clk),
		motion.WithDisplay(display),
		motion.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("NewController error: %v", err)
	}
	return initialRunModel(ctrl, display, newLogWriter(), 220), ctrl
}

func TestRunModel_Update(t *testing.T) {
	m, _ := newTestModel(t)
	var model tea.Model = m

	model, _ = model.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	model, _ = model.Update(stateMsg("MoveForward"))
	model, _ = model.Update(distanceMsg(rangesensor.FromMillimeters(350)))
	model, _ = model.Update(logMsg("blocked"))

	got := model.(runModel)
	if got.state != "MoveForward" {
		t.Errorf("state = %q, want MoveForward", got.state)
	}
	if got.distance.Millimeters() != 350 {
		t.Errorf("distance = %v, want 350mm", got.distance)
	}
	if len(got.lines) != 1 || got.lines[0] != "blocked" {
		t.Errorf("lines = %v, want [blocked]", got.lines)
	}

	view := got.View()
	for _, want := range []string{"Rover", "MoveForward", "350mm"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestRunModel_Keys(t *testing.T) {
	m, ctrl := newTestModel(t)
	var model tea.Model = m

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The stop key cancels the queued start before the controller sees it.
	model, _ = model.Update(tea.KeyMsg{Type: tea.KeySpace})
	go ctrl.Run(ctx)
	time.Sleep(10 * time.Millisecond)
	if ctrl.Running() {
		t.Error("controller running after start was cancelled")
	}

	model, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !model.(runModel).quitting {
		t.Error("q did not quit")
	}
	if cmd == nil {
		t.Error("expected quit command")
	}
}

func TestRunModel_LogsCapped(t *testing.T) {
	m, _ := newTestModel(t)
	for i := 0; i < maxLogs+3; i++ {
		m.addLog("line")
	}
	if len(m.lines) != maxLogs {
		t.Errorf("lines = %d, want %d", len(m.lines), maxLogs)
	}
}

// driveLog records actuations and whether the controller was still running
// when each one happened.
type driveLog struct {
	mu      sync.Mutex
	ctrl    *motion.Controller
	events  []string
	running []bool
}

func (l *driveLog) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	l.running = append(l.running, l.ctrl != nil && l.ctrl.Running())
}

func (l *driveLog) snapshot() ([]string, []bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...), append([]bool(nil), l.running...)
}

type logMotor struct {
	name string
	log  *driveLog
}

func (m logMotor) SetDuty(percent float64) error {
	m.log.add(m.name + "=" + strconv.FormatFloat(percent, 'f', -1, 64))
	return nil
}

type logAim struct{ log *driveLog }

func (a logAim) Aim(ctx context.Context, aim robot.Aim) error {
	a.log.add("aim=" + aim.String())
	return nil
}

type clearRanger struct{}

func (clearRanger) Measure(context.Context) (rangesensor.Distance, error) {
	return rangesensor.FromMillimeters(800), nil
}

func TestDriveWhile_HaltsAfterControllerReturns(t *testing.T) {
	dl := &driveLog{}
	drive := robot.Drive{Left: logMotor{"L", dl}, Right: logMotor{"R", dl}, Aim: logAim{dl}}
	hw := robot.NewHardware(rangesensor.Pins{}, drive, nil)

	ctrl, err := motion.NewController(motion.DefaultConfig(), drive, clearRanger{},
		motion.WithClock(clock.NewFake(time.Unix(0, 0))),
		motion.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		t.Fatalf("NewController error: %v", err)
	}
	dl.mu.Lock()
	dl.ctrl = ctrl
	dl.mu.Unlock()

	err = driveWhile(context.Background(), ctrl, hw, func() error {
		ctrl.Start()
		deadline := time.Now().Add(2 * time.Second)
		for {
			events, _ := dl.snapshot()
			for _, ev := range events {
				if ev == "L=70" {
					return nil
				}
			}
			if time.Now().After(deadline) {
				return fmt.Errorf("never drove forward: %v", events)
			}
			time.Sleep(time.Millisecond)
		}
	})
	if err != nil {
		t.Fatal(err)
	}

	if ctrl.Running() {
		t.Error("controller still running after driveWhile returned")
	}
	events, running := dl.snapshot()
	n := len(events)
	if n < 3 {
		t.Fatalf("events = %v, want a final halt", events)
	}
	want := []string{"L=0", "R=0", "aim=centre"}
	for i, ev := range events[n-3:] {
		if ev != want[i] {
			t.Errorf("final events = %v, want %v", events[n-3:], want)
			break
		}
	}
	if running[n-1] {
		t.Error("final halt issued while the controller was running")
	}
}
