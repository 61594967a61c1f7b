package robot

import (
	"fmt"
)

// AimCalibration holds the raw servo positions of a serial-bus aim servo.
type AimCalibration struct {
	ID     int `json:"id"`
	Centre int `json:"centre"`
	Left   int `json:"left"`
	Right  int `json:"right"`
}

// IsCalibrated returns true if positions have been recorded.
func (c AimCalibration) IsCalibrated() bool {
	return c.ID > 0 && c.Left != c.Right
}

// Position returns the raw servo position for an aim.
func (c AimCalibration) Position(a Aim) int {
	switch a {
	case AimLeft:
		return c.Left
	case AimRight:
		return c.Right
	default:
		return c.Centre
	}
}

// Validate checks that the centre lies between the left and right stops.
func (c AimCalibration) Validate() error {
	if c.ID <= 0 {
		return fmt.Errorf("invalid servo id %d", c.ID)
	}
	lo, hi := c.Left, c.Right
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == hi {
		return fmt.Errorf("left and right positions are both %d", lo)
	}
	if c.Centre <= lo || c.Centre >= hi {
		return fmt.Errorf("centre %d not between %d and %d", c.Centre, lo, hi)
	}
	return nil
}

// AimDuty holds hobby-servo PWM duty cycles in percent at 50Hz.
type AimDuty struct {
	Centre float64 `json:"centre"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// Duty returns the duty cycle for an aim.
func (d AimDuty) Duty(a Aim) float64 {
	switch a {
	case AimLeft:
		return d.Left
	case AimRight:
		return d.Right
	default:
		return d.Centre
	}
}
