// Package robot provides the hardware bindings and configuration of a
// two-motor rover with a rotatable rangefinder.
package robot

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Aim is a sensor-aim set point.
type Aim int

// Aim positions for the rangefinder servo.
const (
	AimCentre Aim = iota
	AimLeft
	AimRight
)

// AllAims returns every aim position.
func AllAims() []Aim {
	return []Aim{AimCentre, AimLeft, AimRight}
}

func (a Aim) String() string {
	switch a {
	case AimCentre:
		return "centre"
	case AimLeft:
		return "left"
	case AimRight:
		return "right"
	default:
		return fmt.Sprintf("aim(%d)", int(a))
	}
}

// Motor is a drive motor output taking a duty cycle in percent (0-100).
type Motor interface {
	SetDuty(percent float64) error
}

// Aimer points the rangefinder.
type Aimer interface {
	Aim(ctx context.Context, a Aim) error
}

// Toner plays an acknowledgment tone.
type Toner interface {
	Tone(hz int, d time.Duration) error
}

// Drive bundles the outputs owned by the motion controller.
type Drive struct {
	Left  Motor
	Right Motor
	Aim   Aimer
}

// SetDuty sets both motor duties, left first.
func (d Drive) SetDuty(left, right float64) error {
	if err := d.Left.SetDuty(left); err != nil {
		return fmt.Errorf("left motor: %w", err)
	}
	if err := d.Right.SetDuty(right); err != nil {
		return fmt.Errorf("right motor: %w", err)
	}
	return nil
}

// Halt turns both motors off and re-centres the sensor. Every output is
// attempted even if an earlier one fails.
func (d Drive) Halt(ctx context.Context) error {
	var errs []error
	if err := d.Left.SetDuty(0); err != nil {
		errs = append(errs, fmt.Errorf("left motor: %w", err))
	}
	if err := d.Right.SetDuty(0); err != nil {
		errs = append(errs, fmt.Errorf("right motor: %w", err))
	}
	if err := d.Aim.Aim(ctx, AimCentre); err != nil {
		errs = append(errs, fmt.Errorf("aim: %w", err))
	}
	return errors.Join(errs...)
}
