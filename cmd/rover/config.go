package main

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/gwillem/rover/pkg/motion"
	"github.com/gwillem/rover/pkg/robot"
)

// loadConfig reads the configuration file. With allowDefault a missing
// file yields the default configuration.
func loadConfig(allowDefault bool) (*robot.Config, error) {
	cfg, err := robot.LoadConfigFrom(opts.Config)
	if errors.Is(err, fs.ErrNotExist) {
		if allowDefault {
			return robot.DefaultConfig(), nil
		}
		return nil, fmt.Errorf("no configuration found at %s, run 'rover setup' first", opts.Config)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func motionConfig(cfg *robot.Config) motion.Config {
	m := cfg.Motion
	mc := motion.DefaultConfig()
	mc.ClearanceThresholdMM = m.ClearanceThresholdMM
	mc.ForwardDuty = m.ForwardDuty
	mc.RightTrim = m.RightTrim
	mc.LookAheadSettle = time.Duration(m.LookAheadSettleMs) * time.Millisecond
	mc.LookSideSettle = time.Duration(m.LookSideSettleMs) * time.Millisecond
	mc.TurnDuration = time.Duration(m.TurnMs) * time.Millisecond
	mc.PollInterval = time.Duration(m.PollMs) * time.Millisecond
	return mc
}
