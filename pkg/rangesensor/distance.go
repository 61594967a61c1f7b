package rangesensor

import (
	"fmt"
	"time"
)

// Sound covers 1mm every 2.91µs, so the round trip takes 5.82µs per mm.
const roundTripMicrosPer100mm = 582

// Distance is a one-way distance derived from an echo pulse, or the
// OutOfRange marker when no echo completed within the timeout.
type Distance struct {
	pulse time.Duration
	valid bool
}

// OutOfRange is the reading reported when nothing echoed back in time.
var OutOfRange = Distance{}

// FromPulse converts a round-trip echo duration into a Distance.
func FromPulse(pulse time.Duration) Distance {
	if pulse < 0 {
		pulse = 0
	}
	return Distance{pulse: pulse, valid: true}
}

// FromMillimeters returns the Distance whose integer millimetre reading is mm.
// The pulse is rounded up so Millimeters() reports mm exactly.
func FromMillimeters(mm int) Distance {
	if mm < 0 {
		mm = 0
	}
	us := (int64(mm)*roundTripMicrosPer100mm + 99) / 100
	return FromPulse(time.Duration(us) * time.Microsecond)
}

// InRange reports whether the reading holds a numeric value.
func (d Distance) InRange() bool {
	return d.valid
}

// Pulse returns the round-trip echo duration.
func (d Distance) Pulse() time.Duration {
	return d.pulse
}

// Millimeters returns the distance in millimetres using integer arithmetic:
// pulse_us / 2 / 2.91 == pulse_us * 100 / 582.
func (d Distance) Millimeters() int {
	return int(d.pulse.Microseconds() * 100 / roundTripMicrosPer100mm)
}

// Centimeters returns the distance in centimetres using floating point.
// Sound travels 1cm every 29.1µs.
func (d Distance) Centimeters() float64 {
	return float64(d.pulse.Microseconds()) / 2 / 29.1
}

func (d Distance) String() string {
	if !d.valid {
		return "out of range"
	}
	return fmt.Sprintf("%dmm", d.Millimeters())
}
