package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gwillem/rover/internal/log"
	"github.com/gwillem/rover/pkg/clock"
	"github.com/gwillem/rover/pkg/rangesensor"
	"github.com/gwillem/rover/pkg/robot"
)

type ProbeCommand struct {
	Count    int    `short:"n" long:"count" default:"0" description:"Number of readings, 0 for until interrupted"`
	Interval int    `long:"interval" default:"250" description:"Milliseconds between readings"`
	Sim      bool   `long:"sim" description:"Read from a simulated robot"`
	Aim      string `long:"aim" default:"centre" choice:"centre" choice:"left" choice:"right" description:"Sensor direction"`
}

func (c *ProbeCommand) Execute(args []string) error {
	log.Init(opts.LogLevel, os.Stderr)

	cfg, err := loadConfig(c.Sim)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hw, err := openHardware(ctx, cfg, c.Sim)
	if err != nil {
		return fmt.Errorf("open hardware: %w", err)
	}
	defer hw.Close()

	if err := hw.Drive().Aim.Aim(ctx, parseAim(c.Aim)); err != nil {
		return fmt.Errorf("aim sensor: %w", err)
	}

	sensor, err := rangesensor.New(hw.SensorPins(), cfg.Sensor.EchoTimeout(), nil)
	if err != nil {
		return fmt.Errorf("init range sensor: %w", err)
	}

	return probe(ctx, sensor, clock.Real{}, c.Count, time.Duration(c.Interval)*time.Millisecond)
}

func probe(ctx context.Context, sensor *rangesensor.Sensor, clk clock.Clock, count int, interval time.Duration) error {
	for i := 0; count == 0 || i < count; i++ {
		if i > 0 {
			if err := clk.Sleep(ctx, interval); err != nil {
				return nil
			}
		}
		d, err := sensor.Measure(ctx)
		switch {
		case errors.Is(err, rangesensor.ErrOutOfRange):
			fmt.Println("out of range")
		case errors.Is(err, context.Canceled):
			return nil
		case err != nil:
			return err
		default:
			fmt.Printf("%5d mm  %6.1f cm  (%v)\n", d.Millimeters(), d.Centimeters(), d.Pulse())
		}
	}
	return nil
}

func parseAim(name string) robot.Aim {
	for _, a := range robot.AllAims() {
		if a.String() == name {
			return a
		}
	}
	return robot.AimCentre
}
