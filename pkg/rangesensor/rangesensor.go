// Package rangesensor drives an HC-SR04 style ultrasonic rangefinder.
//
// A measurement pulses the trigger pin and times how long the echo pin is
// held high. The round trip is converted to a one-way distance using the
// speed of sound at room temperature (343.2 m/s).
package rangesensor

import (
	"context"
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/gwillem/rover/pkg/clock"
)

// Timing of the trigger pulse.
const (
	StabilizeDelay = 5 * time.Microsecond
	TriggerPulse   = 10 * time.Microsecond
)

// DefaultTimeout covers the sensor's 4m range: 400cm * 2 * 30µs/cm.
const DefaultTimeout = 500 * 2 * 30 * time.Microsecond

// Trigger is the output pin that starts a measurement.
// A periph gpio.PinIO satisfies it.
type Trigger interface {
	Out(l gpio.Level) error
}

// Echo is the input pin the sensor holds high for the round-trip time.
// A periph gpio.PinIO satisfies it.
type Echo interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	WaitForEdge(timeout time.Duration) bool
}

// Pins binds the sensor to its trigger and echo lines.
type Pins struct {
	Trigger Trigger
	Echo    Echo
}

// Sensor measures distance. It keeps no state between calls beyond its pin
// bindings, so Measure may be called repeatedly in a loop.
type Sensor struct {
	pins    Pins
	timeout time.Duration
	clock   clock.Clock
}

// New returns a Sensor on pins. A timeout <= 0 selects DefaultTimeout and a
// nil clock selects the wall clock.
func New(pins Pins, timeout time.Duration, clk clock.Clock) (*Sensor, error) {
	if pins.Trigger == nil || pins.Echo == nil {
		return nil, errors.New("rangesensor: trigger and echo pins are required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if err := pins.Trigger.Out(gpio.Low); err != nil {
		return nil, fault("init trigger", err)
	}
	return &Sensor{pins: pins, timeout: timeout, clock: clk}, nil
}

// Timeout returns the echo timeout.
func (s *Sensor) Timeout() time.Duration {
	return s.timeout
}

// Measure triggers one ping and returns the measured distance.
// It returns OutOfRange and ErrOutOfRange when the echo does not complete
// within the timeout, and a *FaultError when a pin operation fails.
func (s *Sensor) Measure(ctx context.Context) (Distance, error) {
	if err := ctx.Err(); err != nil {
		return OutOfRange, err
	}
	pulse, err := s.sendPulseAndWait(ctx)
	if err != nil {
		return OutOfRange, err
	}
	return FromPulse(pulse), nil
}

// MeasureMillimeters returns the distance in millimetres without floating
// point operations.
func (s *Sensor) MeasureMillimeters(ctx context.Context) (int, error) {
	d, err := s.Measure(ctx)
	if err != nil {
		return 0, err
	}
	return d.Millimeters(), nil
}

// MeasureCentimeters returns the distance in centimetres.
func (s *Sensor) MeasureCentimeters(ctx context.Context) (float64, error) {
	d, err := s.Measure(ctx)
	if err != nil {
		return 0, err
	}
	return d.Centimeters(), nil
}

func (s *Sensor) sendPulseAndWait(ctx context.Context) (time.Duration, error) {
	trig, echo := s.pins.Trigger, s.pins.Echo

	if err := trig.Out(gpio.Low); err != nil {
		return 0, fault("trigger low", err)
	}
	if err := s.clock.Sleep(ctx, StabilizeDelay); err != nil {
		return 0, err
	}

	// Arm both edges once, before the pulse. Re-arming between the edges
	// would miss the fall of a short echo from a near obstacle.
	if err := echo.In(gpio.PullDown, gpio.BothEdges); err != nil {
		return 0, fault("arm echo", err)
	}

	if err := trig.Out(gpio.High); err != nil {
		return 0, fault("trigger high", err)
	}
	if err := s.clock.Sleep(ctx, TriggerPulse); err != nil {
		return 0, err
	}
	if err := trig.Out(gpio.Low); err != nil {
		return 0, fault("trigger low", err)
	}

	if !echo.WaitForEdge(s.timeout) {
		return 0, ErrOutOfRange
	}
	start := s.clock.Now()

	if !echo.WaitForEdge(s.timeout) {
		return 0, ErrOutOfRange
	}

	pulse := s.clock.Now().Sub(start)
	if pulse > s.timeout {
		return 0, ErrOutOfRange
	}
	return pulse, nil
}
