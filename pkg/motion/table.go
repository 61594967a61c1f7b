package motion

import (
	"errors"
	"fmt"
	"time"

	"github.com/gwillem/rover/pkg/rangesensor"
	"github.com/gwillem/rover/pkg/robot"
)

// ErrInvalidTransition reports a successor missing from the state table.
var ErrInvalidTransition = errors.New("motion: invalid transition")

// Behavior selects how a state visit is executed.
type Behavior uint8

const (
	// Look aims the sensor, waits for it to settle and takes one reading.
	Look Behavior = iota
	// Advance drives forward and polls until the way is blocked.
	Advance
	// Pivot runs the motors for a fixed time, then halts.
	Pivot
	// Halt stops the motors and centres the sensor.
	Halt
)

// Rule is one row of the state table.
type Rule struct {
	Behavior  Behavior
	OnClear   State
	OnBlocked State
}

// Table maps each state to its rule.
type Table map[State]Rule

// DefaultTable is the look-before-turning table: left is tried before
// right, and when neither side is clear the robot stops.
func DefaultTable() Table {
	return Table{
		LookAhead:   {Behavior: Look, OnClear: MoveForward, OnBlocked: Stop},
		MoveForward: {Behavior: Advance, OnClear: LookLeft, OnBlocked: LookLeft},
		LookLeft:    {Behavior: Look, OnClear: TurnLeft, OnBlocked: LookRight},
		LookRight:   {Behavior: Look, OnClear: TurnRight, OnBlocked: Stop},
		TurnLeft:    {Behavior: Pivot, OnClear: LookAhead, OnBlocked: LookAhead},
		TurnRight:   {Behavior: Pivot, OnClear: LookAhead, OnBlocked: LookAhead},
		Stop:        {Behavior: Halt, OnClear: Stop, OnBlocked: Stop},
	}
}

// Validate checks that every state has a rule and every successor is a
// known state.
func (t Table) Validate() error {
	for _, s := range AllStates() {
		r, ok := t[s]
		if !ok {
			return fmt.Errorf("%w: no rule for %s", ErrInvalidTransition, s)
		}
		for _, next := range []State{r.OnClear, r.OnBlocked} {
			if _, ok := t[next]; !ok || !next.Valid() {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
			}
		}
	}
	return nil
}

// Next returns the successor of s given the clearance decision.
func (t Table) Next(s State, clear bool) (State, error) {
	r, ok := t[s]
	if !ok {
		return Stop, fmt.Errorf("%w: no rule for %s", ErrInvalidTransition, s)
	}
	next := r.OnBlocked
	if clear {
		next = r.OnClear
	}
	if _, ok := t[next]; !ok || !next.Valid() {
		return Stop, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}

// Next is DefaultTable().Next.
func Next(s State, clear bool) (State, error) {
	return defaultTable.Next(s, clear)
}

var defaultTable = DefaultTable()

// Clear reports whether a reading leaves room to proceed. Nothing in range
// counts as clear.
func Clear(d rangesensor.Distance, thresholdMM int) bool {
	return !d.InRange() || d.Millimeters() > thresholdMM
}

// Actuation is what a state commands on entry. Look states set Aim and
// leave the motors alone; Advance and Pivot states set the motor duties
// and keep the aim where the preceding halt left it.
type Actuation struct {
	Left  float64
	Right float64
	Aim   robot.Aim
	// Hold is the settle time for looks, the poll interval for advancing
	// and the run time for pivots.
	Hold time.Duration
}

// Plan returns the entry actuation of s under cfg.
func Plan(s State, cfg Config) Actuation {
	fwd, trimmed := cfg.ForwardDuty, cfg.ForwardDuty+cfg.RightTrim
	switch s {
	case LookAhead:
		return Actuation{Aim: robot.AimCentre, Hold: cfg.LookAheadSettle}
	case LookLeft:
		return Actuation{Aim: robot.AimLeft, Hold: cfg.LookSideSettle}
	case LookRight:
		return Actuation{Aim: robot.AimRight, Hold: cfg.LookSideSettle}
	case MoveForward:
		return Actuation{Left: fwd, Right: trimmed, Hold: cfg.PollInterval}
	case TurnLeft:
		return Actuation{Left: 0, Right: trimmed, Hold: cfg.TurnDuration}
	case TurnRight:
		return Actuation{Left: fwd, Right: 0, Hold: cfg.TurnDuration}
	default:
		return Actuation{}
	}
}
