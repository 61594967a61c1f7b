package robot

import (
	"context"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/gwillem/rover/pkg/rangesensor"
)

// Hardware owns every resource the controller touches. The sensor pins go
// to the range sensor and the drive outputs to the motion controller; the
// two sets never overlap.
type Hardware struct {
	sensor  rangesensor.Pins
	drive   Drive
	buzzer  Toner
	buttons ButtonPins
	closers []func() error
}

// ButtonPins holds the optional start/stop button inputs.
type ButtonPins struct {
	Start gpio.PinIn
	Stop  gpio.PinIn
}

// NewHardware assembles a Hardware from already opened resources.
// buzzer may be nil.
func NewHardware(sensor rangesensor.Pins, drive Drive, buzzer Toner) *Hardware {
	return &Hardware{sensor: sensor, drive: drive, buzzer: buzzer}
}

// Open initializes the host drivers and binds the pins named in cfg.
func Open(ctx context.Context, cfg *Config) (*Hardware, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}

	h := &Hardware{}

	trigger, err := lookupPin("trigger", cfg.Pins.Trigger)
	if err != nil {
		return nil, err
	}
	echo, err := lookupPin("echo", cfg.Pins.Echo)
	if err != nil {
		return nil, err
	}
	if err := echo.In(gpio.PullDown, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("configure echo pin: %w", err)
	}
	h.sensor = rangesensor.Pins{Trigger: trigger, Echo: echo}

	freq := physic.Frequency(cfg.Motion.MotorFrequencyHz) * physic.Hertz
	left, err := openMotor("left motor", cfg.Pins.LeftMotor, freq)
	if err != nil {
		return nil, err
	}
	right, err := openMotor("right motor", cfg.Pins.RightMotor, freq)
	if err != nil {
		return nil, err
	}
	h.drive = Drive{Left: left, Right: right}

	switch cfg.Aim.Backend {
	case AimBackendFeetech:
		aim, err := NewFeetechAim(ctx, cfg.Aim.Port, cfg.Aim.Calibration)
		if err != nil {
			return nil, err
		}
		h.drive.Aim = aim
		h.closers = append(h.closers, aim.Close)
	default:
		servo, err := lookupPin("servo", cfg.Pins.Servo)
		if err != nil {
			return nil, err
		}
		h.drive.Aim = NewPWMAim(servo, cfg.Aim.Duty)
	}

	if cfg.Pins.Buzzer != "" {
		pin, err := lookupPin("buzzer", cfg.Pins.Buzzer)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.buzzer = NewBuzzer(pin)
	}

	if h.buttons.Start, err = optionalPin("start button", cfg.Pins.StartButton); err != nil {
		h.Close()
		return nil, err
	}
	if h.buttons.Stop, err = optionalPin("stop button", cfg.Pins.StopButton); err != nil {
		h.Close()
		return nil, err
	}

	return h, nil
}

func lookupPin(role, name string) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("no GPIO %s pin named: %s", role, name)
	}
	return p, nil
}

func optionalPin(role, name string) (gpio.PinIn, error) {
	if name == "" {
		return nil, nil
	}
	return lookupPin(role, name)
}

func openMotor(role, name string, freq physic.Frequency) (*PWMMotor, error) {
	pin, err := lookupPin(role, name)
	if err != nil {
		return nil, err
	}
	m, err := NewPWMMotor(pin, freq)
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", role, err)
	}
	return m, nil
}

// SensorPins returns the trigger and echo bindings for the range sensor.
func (h *Hardware) SensorPins() rangesensor.Pins {
	return h.sensor
}

// Drive returns the motor and aim outputs for the motion controller.
func (h *Hardware) Drive() Drive {
	return h.drive
}

// Buzzer returns the acknowledgment tone output, or nil.
func (h *Hardware) Buzzer() Toner {
	return h.buzzer
}

// Buttons returns the optional button inputs.
func (h *Hardware) Buttons() ButtonPins {
	return h.buttons
}

// Close halts the drive and releases resources.
func (h *Hardware) Close() error {
	var errs []error
	if h.drive.Left != nil && h.drive.Right != nil && h.drive.Aim != nil {
		if err := h.drive.Halt(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range h.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	h.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}
