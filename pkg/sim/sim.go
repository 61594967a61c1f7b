// Package sim simulates the rover's hardware: a differential-drive robot
// in a walled rectangular room, seen through the same motor, aim and
// trigger/echo interfaces as the real robot.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/gwillem/rover/pkg/clock"
	"github.com/gwillem/rover/pkg/rangesensor"
	"github.com/gwillem/rover/pkg/robot"
)

// Pose is the robot position in millimetres and heading in radians,
// counter-clockwise from the +X axis.
type Pose struct {
	X, Y    float64
	Heading float64
}

// Config describes the room and the robot.
type Config struct {
	RoomWidth     float64 // mm along X
	RoomDepth     float64 // mm along Y
	Start         Pose
	MaxWheelSpeed float64 // mm/s at 100% duty
	WheelBase     float64 // mm
	AimAngle      float64 // radians the sensor turns for left/right
	MaxRangeMM    int
}

// DefaultConfig returns a 3m x 2m room with the robot in the middle
// facing +X.
func DefaultConfig() Config {
	return Config{
		RoomWidth:     3000,
		RoomDepth:     2000,
		Start:         Pose{X: 1500, Y: 1000},
		MaxWheelSpeed: 400,
		WheelBase:     120,
		AimAngle:      math.Pi / 3,
		MaxRangeMM:    4000,
	}
}

// World is the simulated robot and room.
type World struct {
	cfg   Config
	clock clock.Clock

	mu         sync.Mutex
	pose       Pose
	left       float64
	right      float64
	aim        robot.Aim
	updated    time.Time
	collisions int
	trigHigh   bool
	pinged     bool
	echoHigh   bool
	edge       gpio.Edge
}

// New returns a World driven by clk.
func New(cfg Config, clk clock.Clock) *World {
	if clk == nil {
		clk = clock.Real{}
	}
	return &World{
		cfg:     cfg,
		clock:   clk,
		pose:    cfg.Start,
		updated: clk.Now(),
	}
}

// Hardware returns a hardware handle bound to the simulation.
func (w *World) Hardware() *robot.Hardware {
	return robot.NewHardware(
		rangesensor.Pins{Trigger: trigger{w}, Echo: echo{w}},
		robot.Drive{Left: motor{w, &w.left}, Right: motor{w, &w.right}, Aim: w},
		nil,
	)
}

// Pose returns the current robot pose.
func (w *World) Pose() Pose {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.integrate()
	return w.pose
}

// Collisions returns how many times the robot was pushed back from a wall.
func (w *World) Collisions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.integrate()
	return w.collisions
}

// Aim points the simulated sensor.
func (w *World) Aim(ctx context.Context, a robot.Aim) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.integrate()
	w.aim = a
	return nil
}

// RangeMM returns the distance from the robot to the wall along the
// current aim.
func (w *World) RangeMM() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.integrate()
	return w.rangeMM()
}

func (w *World) rangeMM() int {
	theta := w.pose.Heading
	switch w.aim {
	case robot.AimLeft:
		theta += w.cfg.AimAngle
	case robot.AimRight:
		theta -= w.cfg.AimAngle
	}
	return int(rayToWall(w.pose.X, w.pose.Y, theta, w.cfg.RoomWidth, w.cfg.RoomDepth))
}

// rayToWall returns the distance from (x, y) along theta to the edge of
// the [0,width] x [0,depth] rectangle.
func rayToWall(x, y, theta, width, depth float64) float64 {
	dx, dy := math.Cos(theta), math.Sin(theta)
	best := math.Inf(1)
	if dx > 1e-12 {
		best = math.Min(best, (width-x)/dx)
	} else if dx < -1e-12 {
		best = math.Min(best, -x/dx)
	}
	if dy > 1e-12 {
		best = math.Min(best, (depth-y)/dy)
	} else if dy < -1e-12 {
		best = math.Min(best, -y/dy)
	}
	return math.Max(best, 0)
}

// integrate advances the pose to the clock's current time. Caller holds mu.
func (w *World) integrate() {
	now := w.clock.Now()
	dt := now.Sub(w.updated).Seconds()
	w.updated = now
	if dt <= 0 || (w.left == 0 && w.right == 0) {
		return
	}

	vl := w.left / 100 * w.cfg.MaxWheelSpeed
	vr := w.right / 100 * w.cfg.MaxWheelSpeed
	v := (vl + vr) / 2
	omega := (vr - vl) / w.cfg.WheelBase

	p := w.pose
	if math.Abs(omega) < 1e-9 {
		p.X += v * dt * math.Cos(p.Heading)
		p.Y += v * dt * math.Sin(p.Heading)
	} else {
		r := v / omega
		h := p.Heading + omega*dt
		p.X += r * (math.Sin(h) - math.Sin(p.Heading))
		p.Y -= r * (math.Cos(h) - math.Cos(p.Heading))
		p.Heading = math.Mod(h, 2*math.Pi)
	}

	if p.X < 0 || p.X > w.cfg.RoomWidth || p.Y < 0 || p.Y > w.cfg.RoomDepth {
		w.collisions++
		p.X = math.Min(math.Max(p.X, 0), w.cfg.RoomWidth)
		p.Y = math.Min(math.Max(p.Y, 0), w.cfg.RoomDepth)
	}
	w.pose = p
}

type motor struct {
	w    *World
	duty *float64
}

func (m motor) SetDuty(percent float64) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	m.w.integrate()
	*m.duty = math.Min(math.Max(percent, 0), 100)
	return nil
}

type trigger struct {
	w *World
}

// Out arms a ping on the falling edge of the trigger pulse.
func (t trigger) Out(l gpio.Level) error {
	t.w.mu.Lock()
	defer t.w.mu.Unlock()
	if l == gpio.High {
		t.w.trigHigh = true
		return nil
	}
	if t.w.trigHigh {
		t.w.pinged = true
	}
	t.w.trigHigh = false
	return nil
}

type echo struct {
	w *World
}

func (e echo) In(pull gpio.Pull, edge gpio.Edge) error {
	e.w.mu.Lock()
	defer e.w.mu.Unlock()
	e.w.edge = edge
	e.w.echoHigh = false
	return nil
}

// WaitForEdge rises as soon as a ping was sent and falls after the round
// trip time to the wall, blocking on the world's clock like the real pin.
// Only edges of the armed kind are reported.
func (e echo) WaitForEdge(timeout time.Duration) bool {
	w := e.w
	w.mu.Lock()
	rising := w.pinged && !w.echoHigh && armed(w.edge, gpio.RisingEdge)
	falling := w.echoHigh && armed(w.edge, gpio.FallingEdge)
	switch {
	case rising:
		w.echoHigh = true
	case falling:
		w.echoHigh = false
		w.pinged = false
	}
	w.integrate()
	mm := w.rangeMM()
	w.mu.Unlock()

	ctx := context.Background()
	switch {
	case rising:
		return true
	case falling:
		pulse := rangesensor.FromMillimeters(mm).Pulse()
		if mm > w.cfg.MaxRangeMM || pulse > timeout {
			w.clock.Sleep(ctx, timeout)
			return false
		}
		w.clock.Sleep(ctx, pulse)
		return true
	}
	w.clock.Sleep(ctx, timeout)
	return false
}

// armed reports whether a line armed for edge reports edges of kind want.
func armed(edge, want gpio.Edge) bool {
	return edge == want || edge == gpio.BothEdges
}
