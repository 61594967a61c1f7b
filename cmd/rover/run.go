package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/rover/internal/log"
	"github.com/gwillem/rover/pkg/motion"
	"github.com/gwillem/rover/pkg/rangesensor"
	"github.com/gwillem/rover/pkg/robot"
)

type RunCommand struct {
	Sim      bool `long:"sim" description:"Drive a simulated robot in a walled room"`
	Headless bool `long:"headless" description:"No TUI: start immediately and log status"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 7 // log box height
	maxLogs      = 5 // number of log messages to show
	borderSize   = 2 // chart border

	chartMaxMM = 1000 // readings above this are drawn at the top
)

// State colors
var stateColors = map[motion.State]string{
	motion.LookAhead:   "51",  // cyan
	motion.LookLeft:    "33",  // blue
	motion.LookRight:   "33",  // blue
	motion.MoveForward: "46",  // green
	motion.TurnLeft:    "226", // yellow
	motion.TurnRight:   "226", // yellow
	motion.Stop:        "196", // red
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type runModel struct {
	ctrl      *motion.Controller
	display   *tuiDisplay
	logs      *logWriter
	threshold int
	chart     *streamlinechart.Model
	width     int      // terminal width
	height    int      // terminal height
	lines     []string // last N log messages
	state     string
	distance  rangesensor.Distance
	quitting  bool
}

func (m *runModel) addLog(msg string) {
	m.lines = append(m.lines, msg)
	if len(m.lines) > maxLogs {
		m.lines = m.lines[len(m.lines)-maxLogs:]
	}
}

func waitForEvent(d *tuiDisplay) tea.Cmd {
	return func() tea.Msg {
		return <-d.events
	}
}

func waitForLog(w *logWriter) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-w.lines)
	}
}

// chartSize calculates the size of the chart based on terminal dimensions
func (m *runModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 80, 20 // default size before we know terminal size
	}
	width = m.width - borderSize - 2
	if width < 40 {
		width = 40
	}
	height = m.height - headerHeight - legendHeight - footerHeight - borderSize
	if height < 10 {
		height = 10
	}
	return width, height
}

func (m *runModel) resizeChart() {
	w, h := m.chartSize()
	m.chart.Resize(w, h)
}

func initialRunModel(ctrl *motion.Controller, display *tuiDisplay, logs *logWriter, threshold int) runModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, chartMaxMM),
	)
	chart.SetDataSetStyles("distance", runes.ThinLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("46")))
	chart.SetDataSetStyles("threshold", runes.ThinLineStyle, lipgloss.NewStyle().Foreground(lipgloss.Color("196")))

	return runModel{
		ctrl:      ctrl,
		display:   display,
		logs:      logs,
		threshold: threshold,
		chart:     &chart,
		state:     ctrl.CurrentStateName(),
		distance:  rangesensor.OutOfRange,
	}
}

func (m runModel) Init() tea.Cmd {
	return tea.Batch(
		waitForEvent(m.display),
		waitForLog(m.logs),
	)
}

func (m runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "s":
			m.ctrl.Start()
		case "x", " ", "space":
			m.ctrl.Stop()
		case "q", "ctrl+c":
			m.ctrl.Stop()
			m.quitting = true
			return m, tea.Quit
		}

	case stateMsg:
		m.state = string(msg)
		return m, waitForEvent(m.display)

	case distanceMsg:
		m.distance = rangesensor.Distance(msg)
		mm := chartMaxMM
		if m.distance.InRange() {
			mm = min(m.distance.Millimeters(), chartMaxMM)
		}
		m.chart.PushDataSet("distance", float64(mm))
		m.chart.PushDataSet("threshold", float64(m.threshold))
		m.chart.DrawAll()
		return m, waitForEvent(m.display)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.logs)
	}

	return m, nil
}

func (m runModel) View() string {
	if m.quitting {
		return "Rover stopped.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Rover"))
	sb.WriteString(" ")
	sb.WriteString(renderState(m.state))
	sb.WriteString(fmt.Sprintf("  %s", m.distance))
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Chart
	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend(m.threshold))
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(m.width - 4)

	var logLines string
	if len(m.lines) == 0 {
		logLines = statusStyle.Render("s: start  x/space: stop  q: quit")
	} else {
		logLines = strings.Join(m.lines, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderState(name string) string {
	color := "241"
	if s, err := motion.ParseState(name); err == nil {
		color = stateColors[s]
	}
	return lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("0")).
		Background(lipgloss.Color(color)).
		Padding(0, 1).
		Render(name)
}

func renderLegend(threshold int) string {
	distance := lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true).Render("━━")
	limit := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true).Render("━━")
	return fmt.Sprintf("%s distance (mm)  %s threshold %dmm", distance, limit, threshold)
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.Sim)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if c.Headless {
		log.Init(opts.LogLevel, os.Stderr)
		return c.runHeadless(ctx, cfg)
	}

	logs := newLogWriter()
	log.Init(opts.LogLevel, logs)
	display := newTUIDisplay()

	ctrl, hw, err := newController(ctx, cfg, c.Sim, motion.WithDisplay(display))
	if err != nil {
		return err
	}

	watchButtons(ctx, hw, ctrl.Start, ctrl.Stop)
	return driveWhile(ctx, ctrl, hw, func() error {
		p := tea.NewProgram(initialRunModel(ctrl, display, logs, cfg.Motion.ClearanceThresholdMM), tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("run TUI: %w", err)
		}
		return nil
	})
}

// driveWhile runs ctrl on its own goroutine for as long as fn runs. The
// controller is cancelled and has returned before hw is closed, so the
// halt in Close is the last actuation.
func driveWhile(ctx context.Context, ctrl *motion.Controller, hw *robot.Hardware, fn func() error) error {
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ctrl.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("controller stopped", "err", err)
		}
	}()

	err := fn()
	cancel()
	<-done
	if cerr := hw.Close(); cerr != nil {
		log.Warn("close hardware", "err", cerr)
	}
	return err
}

func (c *RunCommand) runHeadless(ctx context.Context, cfg *robot.Config) error {
	ctrl, hw, err := newController(ctx, cfg, c.Sim, motion.WithDisplay(logDisplay{log: log.L()}))
	if err != nil {
		return err
	}
	defer hw.Close()

	watchButtons(ctx, hw, ctrl.Start, ctrl.Stop)
	ctrl.Start()

	err = ctrl.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info("interrupted", "state", ctrl.CurrentStateName(), "distance", ctrl.LastDistance())
		return nil
	}
	return err
}

// newController opens the hardware and wires the range sensor and drive
// into a motion controller. The caller closes the returned hardware.
func newController(ctx context.Context, cfg *robot.Config, simulate bool, opts ...motion.Option) (*motion.Controller, *robot.Hardware, error) {
	hw, err := openHardware(ctx, cfg, simulate)
	if err != nil {
		return nil, nil, fmt.Errorf("open hardware: %w", err)
	}

	sensor, err := rangesensor.New(hw.SensorPins(), cfg.Sensor.EchoTimeout(), nil)
	if err != nil {
		hw.Close()
		return nil, nil, fmt.Errorf("init range sensor: %w", err)
	}

	if buzzer := hw.Buzzer(); buzzer != nil {
		opts = append(opts, motion.WithToner(buzzer))
	}
	ctrl, err := motion.NewController(motionConfig(cfg), hw.Drive(), sensor, opts...)
	if err != nil {
		hw.Close()
		return nil, nil, fmt.Errorf("create controller: %w", err)
	}
	return ctrl, hw, nil
}
