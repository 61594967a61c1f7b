package main

import (
	"log/slog"
	"strings"

	"github.com/gwillem/rover/pkg/rangesensor"
)

// Messages from the controller
type stateMsg string
type distanceMsg rangesensor.Distance
type logMsg string

// tuiDisplay forwards controller status to the TUI. Updates are dropped
// when the TUI falls behind.
type tuiDisplay struct {
	events chan any
}

func newTUIDisplay() *tuiDisplay {
	return &tuiDisplay{events: make(chan any, 64)}
}

func (d *tuiDisplay) send(msg any) {
	select {
	case d.events <- msg:
	default:
		// Drop if channel full
	}
}

func (d *tuiDisplay) ShowDistance(dist rangesensor.Distance) {
	d.send(distanceMsg(dist))
}

func (d *tuiDisplay) ShowState(name string) {
	d.send(stateMsg(name))
}

// logWriter turns slog output into TUI log lines.
type logWriter struct {
	lines chan string
}

func newLogWriter() *logWriter {
	return &logWriter{lines: make(chan string, 16)}
}

func (w *logWriter) Write(p []byte) (int, error) {
	select {
	case w.lines <- strings.TrimRight(string(p), "\n"):
	default:
	}
	return len(p), nil
}

// logDisplay reports status through the logger in headless mode.
type logDisplay struct {
	log *slog.Logger
}

func (d logDisplay) ShowDistance(dist rangesensor.Distance) {
	d.log.Debug("distance", "reading", dist.String())
}

func (d logDisplay) ShowState(name string) {
	d.log.Info("state", "name", name)
}
