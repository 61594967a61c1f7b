package main

import (
	"context"

	"github.com/gwillem/rover/internal/log"
	"github.com/gwillem/rover/pkg/clock"
	"github.com/gwillem/rover/pkg/robot"
	"github.com/gwillem/rover/pkg/sim"
)

// openHardware binds the real robot, or a simulated room when simulate is set.
func openHardware(ctx context.Context, cfg *robot.Config, simulate bool) (*robot.Hardware, error) {
	if simulate {
		log.Info("using simulated hardware")
		return sim.New(sim.DefaultConfig(), clock.Real{}).Hardware(), nil
	}
	return robot.Open(ctx, cfg)
}

// watchButtons maps the optional GPIO buttons to start and stop.
func watchButtons(ctx context.Context, hw *robot.Hardware, start, stop func()) {
	buttons := hw.Buttons()
	if buttons.Start != nil {
		go func() {
			if err := robot.WatchButton(ctx, buttons.Start, start); err != nil && ctx.Err() == nil {
				log.Warn("start button", "err", err)
			}
		}()
	}
	if buttons.Stop != nil {
		go func() {
			if err := robot.WatchButton(ctx, buttons.Stop, stop); err != nil && ctx.Err() == nil {
				log.Warn("stop button", "err", err)
			}
		}()
	}
}
