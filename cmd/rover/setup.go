package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"

	"github.com/gwillem/rover/pkg/robot"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Highest servo ID probed when looking for the aim servo.
const maxScanID = 10

type SetupCommand struct{}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Rover Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := loadConfig(true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Step 1: Pins and aim backend
	askPins(cfg)

	// Step 2: Aim servo
	fmt.Println()
	fmt.Println(subHeaderStyle.Render("━━━ Sensor Aim ━━━"))
	fmt.Println()
	switch cfg.Aim.Backend {
	case robot.AimBackendFeetech:
		setupFeetechAim(cfg)
	default:
		askServoDuty(cfg)
	}

	// Step 3: Motion tuning
	askMotion(cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.SaveTo(opts.Config); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println(renderSummary(cfg))
	fmt.Println()
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Start the rover with: " + headerStyle.Render("rover run"))

	return nil
}

func runForm(form *huh.Form) {
	if err := form.Run(); err != nil {
		fmt.Println()
		os.Exit(0)
	}
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func isNumber(s string) error {
	if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
		return fmt.Errorf("not a number")
	}
	return nil
}

func askPins(cfg *robot.Config) {
	p := &cfg.Pins
	runForm(huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("GPIO pins").
				Description("Pin names as known to the host, e.g. 26 or GPIO26"),
			huh.NewInput().Title("Left motor").Value(&p.LeftMotor).Validate(required),
			huh.NewInput().Title("Right motor").Value(&p.RightMotor).Validate(required),
			huh.NewInput().Title("Sensor trigger").Value(&p.Trigger).Validate(required),
			huh.NewInput().Title("Sensor echo").Value(&p.Echo).Validate(required),
		),
		huh.NewGroup(
			huh.NewInput().Title("Buzzer").Description("Leave empty if not fitted").Value(&p.Buzzer),
			huh.NewInput().Title("Start button").Description("Leave empty if not fitted").Value(&p.StartButton),
			huh.NewInput().Title("Stop button").Description("Leave empty if not fitted").Value(&p.StopButton),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("How is the sensor turned?").
				Options(
					huh.NewOption("Hobby servo on a PWM pin", robot.AimBackendPWM),
					huh.NewOption("Feetech serial-bus servo", robot.AimBackendFeetech),
				).
				Value(&cfg.Aim.Backend),
		),
	))
}

func askServoDuty(cfg *robot.Config) {
	centre := formatDuty(cfg.Aim.Duty.Centre)
	left := formatDuty(cfg.Aim.Duty.Left)
	right := formatDuty(cfg.Aim.Duty.Right)

	runForm(huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Servo pin").Value(&cfg.Pins.Servo).Validate(required),
			huh.NewInput().Title("Centre duty (%)").Value(&centre).Validate(isNumber),
			huh.NewInput().Title("Left duty (%)").Value(&left).Validate(isNumber),
			huh.NewInput().Title("Right duty (%)").Value(&right).Validate(isNumber),
		),
	))

	cfg.Aim.Duty = robot.AimDuty{
		Centre: parseFloat(centre),
		Left:   parseFloat(left),
		Right:  parseFloat(right),
	}
}

func askMotion(cfg *robot.Config) {
	m := &cfg.Motion
	threshold := strconv.Itoa(m.ClearanceThresholdMM)
	duty := formatDuty(m.ForwardDuty)
	trim := formatDuty(m.RightTrim)

	runForm(huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Clearance threshold (mm)").Value(&threshold).Validate(isNumber),
			huh.NewInput().Title("Forward duty (%)").Value(&duty).Validate(isNumber),
			huh.NewInput().Title("Right motor trim (%)").
				Description("Added to the right motor so the rover drives straight").
				Value(&trim).Validate(isNumber),
		),
	))

	m.ClearanceThresholdMM = int(parseFloat(threshold))
	m.ForwardDuty = parseFloat(duty)
	m.RightTrim = parseFloat(trim)
}

func formatDuty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

type aimServo struct {
	port  string
	servo feetech.FoundServo
}

func setupFeetechAim(cfg *robot.Config) {
	fmt.Println("Scanning serial ports for servos...")
	fmt.Println()

	found := findServos()
	if len(found) == 0 {
		fmt.Println("No feetech servos found.")
		fmt.Println("Make sure the servo is connected and powered on.")
		os.Exit(1)
	}

	choice := 0
	if len(found) > 1 {
		options := make([]huh.Option[int], 0, len(found))
		for i, f := range found {
			options = append(options, huh.NewOption(fmt.Sprintf("ID %d on %s", f.servo.ID, f.port), i))
		}
		runForm(huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[int]().
					Title("Which servo turns the sensor?").
					Options(options...).
					Value(&choice),
			),
		))
	}

	cal, err := calibrateAim(found[choice])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error calibrating servo: %v\n", err)
		os.Exit(1)
	}
	cfg.Aim.Port = found[choice].port
	cfg.Aim.Calibration = cal
}

func findServos() []aimServo {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Printf("Error listing ports: %v\n", err)
		return nil
	}

	var found []aimServo
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if strings.Contains(port, "Bluetooth") {
			continue
		}

		bus, err := robot.OpenBus(port)
		if err != nil {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		servos, err := bus.Scan(ctx, 1, maxScanID)
		cancel()
		bus.Close()
		if err != nil {
			continue
		}

		for _, s := range servos {
			fmt.Printf("  Found servo %d on %s\n", s.ID, port)
			found = append(found, aimServo{port: port, servo: s})
		}
	}
	return found
}

func calibrateAim(s aimServo) (robot.AimCalibration, error) {
	bus, err := robot.OpenBus(s.port)
	if err != nil {
		return robot.AimCalibration{}, err
	}
	defer bus.Close()

	servo := feetech.NewServo(bus, s.servo.ID, s.servo.Model)

	// Disable torque so the sensor can be turned by hand
	servo.Disable(context.Background())

	fmt.Println("Turn the sensor by hand and press Enter at each position.")
	fmt.Println()

	p := tea.NewProgram(newCalibrationModel(servo))
	final, err := p.Run()
	if err != nil {
		return robot.AimCalibration{}, err
	}
	cm := final.(calibrationModel)
	if cm.aborted {
		os.Exit(0)
	}

	cal := cm.calibration(s.servo.ID)
	if err := cal.Validate(); err != nil {
		return robot.AimCalibration{}, err
	}
	return cal, nil
}

// Calibration TUI model
type calibrationModel struct {
	servo    *feetech.Servo
	current  int
	recorded map[robot.Aim]int
	step     int
	aborted  bool
	quitting bool
}

type tickMsg time.Time

func newCalibrationModel(servo *feetech.Servo) calibrationModel {
	return calibrationModel{
		servo:    servo,
		recorded: make(map[robot.Aim]int),
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m calibrationModel) Init() tea.Cmd {
	return tick()
}

func (m calibrationModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			m = m.record(m.current)
			if m.done() {
				m.quitting = true
				return m, tea.Quit
			}
		case "q", "ctrl+c":
			m.aborted = true
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		if m.servo != nil {
			if pos, err := m.servo.Position(context.Background()); err == nil {
				m.current = pos
			}
		}
		return m, tick()
	}

	return m, nil
}

// record stores pos for the aim being calibrated and moves to the next one.
func (m calibrationModel) record(pos int) calibrationModel {
	aims := robot.AllAims()
	if m.step >= len(aims) {
		return m
	}
	m.recorded[aims[m.step]] = pos
	m.step++
	return m
}

func (m calibrationModel) done() bool {
	return m.step >= len(robot.AllAims())
}

func (m calibrationModel) calibration(id int) robot.AimCalibration {
	return robot.AimCalibration{
		ID:     id,
		Centre: m.recorded[robot.AimCentre],
		Left:   m.recorded[robot.AimLeft],
		Right:  m.recorded[robot.AimRight],
	}
}

func (m calibrationModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder

	tableHeaderStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableAimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	tableCellStyle := lipgloss.NewStyle().Padding(0, 1)
	tableActiveStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Padding(0, 1)

	aims := robot.AllAims()
	rows := make([][]string, 0, len(aims))
	for i, a := range aims {
		recorded := "-"
		if pos, ok := m.recorded[a]; ok {
			recorded = strconv.Itoa(pos)
		} else if i == m.step {
			recorded = strconv.Itoa(m.current) + " <"
		}
		rows = append(rows, []string{a.String(), recorded})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Aim", "Position").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if row == m.step {
				return tableActiveStyle
			}
			if col == 0 {
				return tableAimStyle
			}
			return tableCellStyle
		})

	sb.WriteString(t.Render())
	sb.WriteString("\n\n")
	if !m.done() {
		sb.WriteString(fmt.Sprintf("Point the sensor %s and press Enter", aimDirection(aims[m.step])))
		sb.WriteString("\n")
	}
	sb.WriteString(dimStyle.Render("Press q to abort"))

	return sb.String()
}

func aimDirection(a robot.Aim) string {
	if a == robot.AimCentre {
		return "straight ahead"
	}
	return a.String()
}

func summaryRows(cfg *robot.Config) [][]string {
	rows := [][]string{
		{"Left motor", cfg.Pins.LeftMotor},
		{"Right motor", cfg.Pins.RightMotor},
		{"Trigger", cfg.Pins.Trigger},
		{"Echo", cfg.Pins.Echo},
	}
	switch cfg.Aim.Backend {
	case robot.AimBackendFeetech:
		cal := cfg.Aim.Calibration
		rows = append(rows,
			[]string{"Aim servo", fmt.Sprintf("feetech ID %d on %s", cal.ID, cfg.Aim.Port)},
			[]string{"Aim positions", fmt.Sprintf("L %d / C %d / R %d", cal.Left, cal.Centre, cal.Right)},
		)
	default:
		d := cfg.Aim.Duty
		rows = append(rows,
			[]string{"Aim servo", "pwm pin " + cfg.Pins.Servo},
			[]string{"Aim duty", fmt.Sprintf("L %s%% / C %s%% / R %s%%", formatDuty(d.Left), formatDuty(d.Centre), formatDuty(d.Right))},
		)
	}
	for _, opt := range []struct{ name, pin string }{
		{"Buzzer", cfg.Pins.Buzzer},
		{"Start button", cfg.Pins.StartButton},
		{"Stop button", cfg.Pins.StopButton},
	} {
		if opt.pin != "" {
			rows = append(rows, []string{opt.name, opt.pin})
		}
	}
	rows = append(rows,
		[]string{"Threshold", fmt.Sprintf("%d mm", cfg.Motion.ClearanceThresholdMM)},
		[]string{"Forward duty", fmt.Sprintf("%s%% (right +%s%%)", formatDuty(cfg.Motion.ForwardDuty), formatDuty(cfg.Motion.RightTrim))},
	)
	return rows
}

func renderSummary(cfg *robot.Config) string {
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Padding(0, 1)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Rows(summaryRows(cfg)...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return labelStyle
			}
			return cellStyle
		}).
		Render()
}
