package robot

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// Servo PWM frequency for hobby servos.
const ServoFrequency = 50 * physic.Hertz

// PWMPin is the subset of gpio.PinIO used by the PWM outputs.
type PWMPin interface {
	Out(l gpio.Level) error
	PWM(duty gpio.Duty, f physic.Frequency) error
}

// DutyFromPercent converts a percentage to a gpio.Duty, clamped to 0-100%.
func DutyFromPercent(percent float64) gpio.Duty {
	switch {
	case percent <= 0:
		return 0
	case percent >= 100:
		return gpio.DutyMax
	}
	return gpio.Duty(float64(gpio.DutyMax) * percent / 100)
}

// PWMMotor drives a motor through a PWM pin.
type PWMMotor struct {
	pin  PWMPin
	freq physic.Frequency
}

// NewPWMMotor returns a motor on pin at freq, initially off.
func NewPWMMotor(pin PWMPin, freq physic.Frequency) (*PWMMotor, error) {
	m := &PWMMotor{pin: pin, freq: freq}
	if err := m.SetDuty(0); err != nil {
		return nil, err
	}
	return m, nil
}

// SetDuty sets the motor duty cycle. Zero drives the pin low.
func (m *PWMMotor) SetDuty(percent float64) error {
	duty := DutyFromPercent(percent)
	if duty == 0 {
		return m.pin.Out(gpio.Low)
	}
	return m.pin.PWM(duty, m.freq)
}

// PWMAim aims a hobby servo through a 50Hz PWM pin.
type PWMAim struct {
	pin  PWMPin
	duty AimDuty
}

// NewPWMAim returns a servo aimer on pin.
func NewPWMAim(pin PWMPin, duty AimDuty) *PWMAim {
	return &PWMAim{pin: pin, duty: duty}
}

// Aim moves the servo. It does not wait for the horn to arrive; callers
// hold a settle delay.
func (a *PWMAim) Aim(ctx context.Context, aim Aim) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.pin.PWM(DutyFromPercent(a.duty.Duty(aim)), ServoFrequency)
}

// Buzzer plays tones on a piezo buzzer pin.
type Buzzer struct {
	pin PWMPin
}

// NewBuzzer returns a buzzer on pin.
func NewBuzzer(pin PWMPin) *Buzzer {
	return &Buzzer{pin: pin}
}

// Tone plays a square wave at hz for d, then silences the pin.
func (b *Buzzer) Tone(hz int, d time.Duration) error {
	if hz <= 0 {
		return fmt.Errorf("invalid tone frequency %d", hz)
	}
	if err := b.pin.PWM(gpio.DutyHalf, physic.Frequency(hz)*physic.Hertz); err != nil {
		return err
	}
	time.Sleep(d)
	return b.pin.Out(gpio.Low)
}
