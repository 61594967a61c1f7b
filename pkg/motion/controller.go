// Package motion provides the obstacle-avoidance state machine.
//
// The controller looks ahead, drives forward while the way is clear, and
// when blocked looks left then right before pivoting towards the clear
// side. If neither side is clear it stops.
package motion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gwillem/rover/internal/log"
	"github.com/gwillem/rover/pkg/clock"
	"github.com/gwillem/rover/pkg/rangesensor"
	"github.com/gwillem/rover/pkg/robot"
)

// ErrRunning is returned by RunOnce while another run is in progress.
var ErrRunning = errors.New("motion: already running")

// Ranger takes distance readings. *rangesensor.Sensor implements it.
type Ranger interface {
	Measure(ctx context.Context) (rangesensor.Distance, error)
}

// Display shows controller status. Calls are fire and forget.
type Display interface {
	ShowDistance(d rangesensor.Distance)
	ShowState(name string)
}

type nopDisplay struct{}

func (nopDisplay) ShowDistance(rangesensor.Distance) {}
func (nopDisplay) ShowState(string)                  {}

// Config holds the controller set points and timings.
type Config struct {
	ClearanceThresholdMM int
	ForwardDuty          float64
	RightTrim            float64 // added to the right motor to cancel drift
	LookAheadSettle      time.Duration
	LookSideSettle       time.Duration
	TurnDuration         time.Duration
	PollInterval         time.Duration
	ToneHz               int
	ToneDuration         time.Duration
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		ClearanceThresholdMM: 220,
		ForwardDuty:          70,
		RightTrim:            5,
		LookAheadSettle:      300 * time.Millisecond,
		LookSideSettle:       2 * time.Second,
		TurnDuration:         500 * time.Millisecond,
		PollInterval:         50 * time.Millisecond,
		ToneHz:               200,
		ToneDuration:         20 * time.Millisecond,
	}
}

func (c Config) validate() error {
	if c.ClearanceThresholdMM <= 0 {
		return fmt.Errorf("clearance threshold must be positive, got %d", c.ClearanceThresholdMM)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", c.PollInterval)
	}
	if c.LookAheadSettle < 0 || c.LookSideSettle < 0 || c.TurnDuration < 0 {
		return fmt.Errorf("negative settle or turn duration")
	}
	return nil
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the time source used for every delay.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithDisplay sets the status sink.
func WithDisplay(d Display) Option {
	return func(c *Controller) { c.display = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithToner sets the output for the start-up acknowledgment tone.
func WithToner(t robot.Toner) Option {
	return func(c *Controller) { c.toner = t }
}

// Controller runs the motion state machine on a single control goroutine.
// Start and Stop may be called from any goroutine.
type Controller struct {
	cfg     Config
	drive   robot.Drive
	sensor  Ranger
	clock   clock.Clock
	display Display
	log     *slog.Logger
	toner   robot.Toner
	table   Table

	// startCh carries the stop generation current when Start was called.
	// Every Stop bumps stopGen, so a run ends once the two differ.
	startCh chan uint64
	stopGen atomic.Uint64
	runGen  uint64 // owned by the control goroutine
	running atomic.Bool

	mu    sync.RWMutex
	state State
	last  rangesensor.Distance
	err   error
}

// NewController creates a controller driving drive from sensor readings.
// It plays the acknowledgment tone once if a Toner is configured.
func NewController(cfg Config, drive robot.Drive, sensor Ranger, opts ...Option) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if drive.Left == nil || drive.Right == nil || drive.Aim == nil {
		return nil, errors.New("drive needs left, right and aim outputs")
	}
	if sensor == nil {
		return nil, errors.New("sensor is required")
	}

	c := &Controller{
		cfg:     cfg,
		drive:   drive,
		sensor:  sensor,
		clock:   clock.Real{},
		display: nopDisplay{},
		log:     log.L(),
		table:   DefaultTable(),
		startCh: make(chan uint64, 1),
		state:   Stop,
		last:    rangesensor.OutOfRange,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.table.Validate(); err != nil {
		return nil, err
	}

	if c.toner != nil {
		if err := c.toner.Tone(cfg.ToneHz, cfg.ToneDuration); err != nil {
			c.log.Debug("acknowledgment tone failed", "err", err)
		}
	}
	return c, nil
}

// Start requests a new run beginning at LookAhead. It is a no-op while a
// run is in progress.
func (c *Controller) Start() {
	if c.running.Load() {
		return
	}
	select {
	case c.startCh <- c.stopGen.Load():
	default:
	}
}

// Stop requests the current run to end. The request takes effect at the
// next state boundary, and the next actuation commanded is the halt. It
// also ends a run whose Start was accepted but which has not begun yet.
// Calling Stop on an idle controller is harmless.
func (c *Controller) Stop() {
	c.stopGen.Add(1)
	select {
	case <-c.startCh:
	default:
	}
}

// Running reports whether a run is in progress.
func (c *Controller) Running() bool {
	return c.running.Load()
}

// CurrentStateName returns the name of the current state.
func (c *Controller) CurrentStateName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.String()
}

// LastDistance returns the most recent reading.
func (c *Controller) LastDistance() rangesensor.Distance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Err returns the error that ended the last run, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

// Run serves start requests until ctx is done. A failed run is logged and
// the controller waits for the next Start; it never retries on its own.
func (c *Controller) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case gen := <-c.startCh:
			err := c.runOnce(ctx, gen)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err != nil {
				c.log.Error("run aborted", "err", err)
			}
		}
	}
}

// RunOnce executes one run from LookAhead until Stop and returns the
// fatal error that ended it, if any. The motors are halted before it
// returns. Only a Stop issued after RunOnce is called ends the run early.
func (c *Controller) RunOnce(ctx context.Context) error {
	return c.runOnce(ctx, c.stopGen.Load())
}

// runOnce runs until a Stop newer than gen, the Stop state or an error.
func (c *Controller) runOnce(ctx context.Context, gen uint64) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer c.running.Store(false)
	c.runGen = gen

	err := c.run(ctx)

	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	return err
}

func (c *Controller) stopRequested() bool {
	return c.stopGen.Load() != c.runGen
}

func (c *Controller) run(ctx context.Context) error {
	c.log.Info("run started")
	state := LookAhead
	for state != Stop {
		if c.stopRequested() {
			c.log.Info("stop requested", "state", state)
			break
		}
		if err := ctx.Err(); err != nil {
			return c.abort(ctx, state, err)
		}

		c.enter(state)
		next, err := c.visit(ctx, state)
		if err != nil {
			return c.abort(ctx, state, err)
		}
		c.log.Debug("transition", "from", state, "to", next)
		state = next
	}

	c.enter(Stop)
	if err := c.drive.Halt(ctx); err != nil {
		return c.abort(ctx, Stop, fmt.Errorf("halt: %w", err))
	}
	c.log.Info("run finished", "distance", c.LastDistance())
	return nil
}

// abort forces the halt actuation, then reports err.
func (c *Controller) abort(ctx context.Context, state State, err error) error {
	if herr := c.drive.Halt(context.WithoutCancel(ctx)); herr != nil {
		c.log.Error("halt after failure", "err", herr)
		err = errors.Join(err, fmt.Errorf("halt: %w", herr))
	}
	c.enter(Stop)
	c.display.ShowDistance(c.LastDistance())
	return fmt.Errorf("%s: %w", state, err)
}

func (c *Controller) enter(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.display.ShowState(s.String())
}

func (c *Controller) visit(ctx context.Context, s State) (State, error) {
	rule, ok := c.table[s]
	if !ok {
		return Stop, fmt.Errorf("%w: no rule for %s", ErrInvalidTransition, s)
	}
	act := Plan(s, c.cfg)

	switch rule.Behavior {
	case Look:
		if err := c.drive.Aim.Aim(ctx, act.Aim); err != nil {
			return Stop, fmt.Errorf("aim %s: %w", act.Aim, err)
		}
		if err := c.clock.Sleep(ctx, act.Hold); err != nil {
			return Stop, err
		}
		clear, err := c.clearance(ctx)
		if err != nil {
			return Stop, err
		}
		return c.table.Next(s, clear)

	case Advance:
		return c.advance(ctx, s, act)

	case Pivot:
		if err := c.drive.SetDuty(act.Left, act.Right); err != nil {
			return Stop, err
		}
		if err := c.clock.Sleep(ctx, act.Hold); err != nil {
			return Stop, err
		}
		if err := c.drive.Halt(ctx); err != nil {
			return Stop, fmt.Errorf("halt: %w", err)
		}
		return c.table.Next(s, true)

	case Halt:
		return Stop, nil
	}
	return Stop, fmt.Errorf("%w: %s has unknown behavior %d", ErrInvalidTransition, s, rule.Behavior)
}

// advance drives forward, polling every PollInterval for as long as the way
// ahead is clear. It halts the motors once blocked.
func (c *Controller) advance(ctx context.Context, s State, act Actuation) (State, error) {
	if err := c.drive.SetDuty(act.Left, act.Right); err != nil {
		return Stop, err
	}

	polls := 0
	for {
		clear, err := c.clearance(ctx)
		if err != nil {
			return Stop, err
		}
		polls++
		if !clear {
			break
		}
		if c.stopRequested() {
			return Stop, nil
		}
		if err := c.clock.Sleep(ctx, act.Hold); err != nil {
			return Stop, err
		}
	}

	if err := c.drive.Halt(ctx); err != nil {
		return Stop, fmt.Errorf("halt: %w", err)
	}
	c.log.Info("blocked", "distance", c.LastDistance(), "polls", polls)
	return c.table.Next(s, false)
}

// clearance takes one reading. A timeout counts as clear; any other sensor
// error is returned.
func (c *Controller) clearance(ctx context.Context) (bool, error) {
	d, err := c.sensor.Measure(ctx)
	switch {
	case errors.Is(err, rangesensor.ErrOutOfRange):
		d = rangesensor.OutOfRange
	case err != nil:
		return false, fmt.Errorf("measure: %w", err)
	}

	c.mu.Lock()
	c.last = d
	c.mu.Unlock()
	c.display.ShowDistance(d)

	return Clear(d, c.cfg.ClearanceThresholdMM), nil
}
