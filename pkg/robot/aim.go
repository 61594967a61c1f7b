package robot

import (
	"context"
	"fmt"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// FeetechAim aims the rangefinder with a feetech serial-bus servo.
type FeetechAim struct {
	bus         *feetech.Bus
	servo       *feetech.Servo
	calibration AimCalibration
}

// OpenBus opens a feetech STS bus on port.
func OpenBus(port string) (*feetech.Bus, error) {
	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: 1_000_000,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}
	return bus, nil
}

// FindServo scans the bus for a single servo ID and returns a handle to it.
func FindServo(ctx context.Context, bus *feetech.Bus, id int) (*feetech.Servo, error) {
	found, err := bus.Scan(ctx, id, id)
	if err != nil {
		return nil, fmt.Errorf("scan for servo %d: %w", id, err)
	}
	for _, s := range found {
		if s.ID == id {
			return feetech.NewServo(bus, s.ID, s.Model), nil
		}
	}
	return nil, fmt.Errorf("servo %d not found", id)
}

// NewFeetechAim connects to the calibrated servo on port and enables torque.
func NewFeetechAim(ctx context.Context, port string, cal AimCalibration) (*FeetechAim, error) {
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("aim calibration: %w", err)
	}

	bus, err := OpenBus(port)
	if err != nil {
		return nil, err
	}

	scanCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	servo, err := FindServo(scanCtx, bus, cal.ID)
	if err != nil {
		bus.Close()
		return nil, err
	}

	if err := servo.Enable(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable servo %d: %w", cal.ID, err)
	}

	return &FeetechAim{
		bus:         bus,
		servo:       servo,
		calibration: cal,
	}, nil
}

// Aim writes the calibrated position for a.
func (f *FeetechAim) Aim(ctx context.Context, a Aim) error {
	if err := f.servo.SetPosition(ctx, f.calibration.Position(a)); err != nil {
		return fmt.Errorf("set position: %w", err)
	}
	return nil
}

// Close disables torque and closes the bus.
func (f *FeetechAim) Close() error {
	f.servo.Disable(context.Background())
	return f.bus.Close()
}
