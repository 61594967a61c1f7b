package robot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

const DefaultConfigFile = "rover.json"

// Aim backends.
const (
	AimBackendPWM     = "pwm"
	AimBackendFeetech = "feetech"
)

// Config holds the robot configuration
type Config struct {
	Pins   PinConfig    `json:"pins"`
	Aim    AimConfig    `json:"aim"`
	Motion MotionConfig `json:"motion"`
	Sensor SensorConfig `json:"sensor"`
}

// PinConfig names the GPIO lines, in the format accepted by gpioreg.ByName.
// Empty optional pins are not used.
type PinConfig struct {
	LeftMotor   string `json:"left_motor"`
	RightMotor  string `json:"right_motor"`
	Servo       string `json:"servo,omitempty"`
	Trigger     string `json:"trigger"`
	Echo        string `json:"echo"`
	Buzzer      string `json:"buzzer,omitempty"`
	StartButton string `json:"start_button,omitempty"`
	StopButton  string `json:"stop_button,omitempty"`
}

// AimConfig selects and configures the rangefinder servo.
type AimConfig struct {
	Backend     string         `json:"backend"`
	Duty        AimDuty        `json:"duty"`
	Port        string         `json:"port,omitempty"`
	Calibration AimCalibration `json:"calibration,omitempty"`
}

// MotionConfig holds the controller set points and timings.
type MotionConfig struct {
	ClearanceThresholdMM int     `json:"clearance_threshold_mm"`
	ForwardDuty          float64 `json:"forward_duty"`
	RightTrim            float64 `json:"right_trim"`
	MotorFrequencyHz     int     `json:"motor_frequency_hz"`
	LookAheadSettleMs    int     `json:"look_ahead_settle_ms"`
	LookSideSettleMs     int     `json:"look_side_settle_ms"`
	TurnMs               int     `json:"turn_ms"`
	PollMs               int     `json:"poll_ms"`
}

// SensorConfig configures the rangefinder.
type SensorConfig struct {
	EchoTimeoutUs int `json:"echo_timeout_us"`
}

// DefaultConfig returns the configuration of the reference build.
func DefaultConfig() *Config {
	return &Config{
		Pins: PinConfig{
			LeftMotor:  "26",
			RightMotor: "5",
			Servo:      "17",
			Trigger:    "21",
			Echo:       "22",
		},
		Aim: AimConfig{
			Backend: AimBackendPWM,
			Duty:    AimDuty{Centre: 6.5, Left: 11, Right: 4},
		},
		Motion: MotionConfig{
			ClearanceThresholdMM: 220,
			ForwardDuty:          70,
			RightTrim:            5,
			MotorFrequencyHz:     1000,
			LookAheadSettleMs:    300,
			LookSideSettleMs:     2000,
			TurnMs:               500,
			PollMs:               50,
		},
		Sensor: SensorConfig{
			EchoTimeoutUs: 30000,
		},
	}
}

// Validate checks the configuration for values the hardware cannot use.
func (c *Config) Validate() error {
	if c.Pins.LeftMotor == "" || c.Pins.RightMotor == "" {
		return fmt.Errorf("motor pins are required")
	}
	if c.Pins.Trigger == "" || c.Pins.Echo == "" {
		return fmt.Errorf("trigger and echo pins are required")
	}
	switch c.Aim.Backend {
	case AimBackendPWM:
		if c.Pins.Servo == "" {
			return fmt.Errorf("servo pin is required for the pwm aim backend")
		}
	case AimBackendFeetech:
		if c.Aim.Port == "" {
			return fmt.Errorf("serial port is required for the feetech aim backend")
		}
		if err := c.Aim.Calibration.Validate(); err != nil {
			return fmt.Errorf("aim calibration: %w", err)
		}
	default:
		return fmt.Errorf("unknown aim backend %q", c.Aim.Backend)
	}
	if c.Motion.ClearanceThresholdMM <= 0 {
		return fmt.Errorf("clearance threshold must be positive")
	}
	if d := c.Motion.ForwardDuty + c.Motion.RightTrim; c.Motion.ForwardDuty < 0 || d > 100 {
		return fmt.Errorf("forward duty %.1f%% + trim %.1f%% outside 0-100%%", c.Motion.ForwardDuty, c.Motion.RightTrim)
	}
	return nil
}

// EchoTimeout returns the echo timeout as a duration.
func (s SensorConfig) EchoTimeout() time.Duration {
	return time.Duration(s.EchoTimeoutUs) * time.Microsecond
}

// LoadConfig loads configuration from the default config file
func LoadConfig() (*Config, error) {
	return LoadConfigFrom(DefaultConfigFile)
}

// LoadConfigFrom loads configuration from a specific file. Fields missing
// from the file keep their default values.
func LoadConfigFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file
func (c *Config) SaveTo(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ConfigExists returns true if the default config file exists
func ConfigExists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}
