// Package rover drives a two-motor robot around obstacles using a single
// ultrasonic rangefinder on a servo.
//
// The robot looks ahead, drives forward while the way is clear, and when
// blocked looks left and then right before pivoting towards the open side.
// If both sides are blocked it stops.
//
// # Installation
//
//	go install github.com/gwillem/rover/cmd/rover@latest
//
// # Usage
//
// First, run setup to name the pins and calibrate the sensor servo:
//
//	rover setup
//
// Check the rangefinder:
//
//	rover probe
//
// Then start the controller (press s to start, x to stop, q to quit):
//
//	rover run
//
// Without a robot, add --sim to drive a simulated one around a room.
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/rover: CLI with run, probe and setup commands
//   - pkg/motion: Obstacle-avoidance state machine
//   - pkg/rangesensor: HC-SR04 ultrasonic rangefinder driver
//   - pkg/robot: Hardware bindings, aim calibration, and configuration
//   - pkg/sim: Simulated robot and room
//   - pkg/clock: Time source for delays
package rover
