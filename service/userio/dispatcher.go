package userio

import (
	"context"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dnmnsmith/Grbl-Esp32/service/planner"
)

// Dispatcher is the command boundary of the auxiliary I/O subsystem.
// Every command first crosses the planner synchronization barrier, so
// output changes are observed in program order relative to motion.
// The barrier blocks only the calling command context; the sync task
// keeps ticking.
type Dispatcher struct {
	log      zerolog.Logger
	registry *Registry
	motion   planner.Motion
}

// NewDispatcher creates a dispatcher routing commands to the given
// registry after synchronizing with the given motion barrier.
func NewDispatcher(registry *Registry, motion planner.Motion, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		log:      log.With().Str("component", "userio-dispatcher").Logger(),
		registry: registry,
		motion:   motion,
	}
}

// SetAuxiliaryOutput turns the given channel on or off once all queued
// motion has been executed. A nonzero duration (milliseconds) arms
// auto-off.
func (d *Dispatcher) SetAuxiliaryOutput(ctx context.Context, channel int, turnOn bool, durationMs uint32) error {
	if err := d.motion.WaitComplete(ctx); err != nil {
		return maskAny(err)
	}
	plannerBarrierWaitsTotal.Inc()
	channelRequestsTotal.WithLabelValues(strconv.Itoa(channel)).Inc()
	d.log.Debug().
		Int("channel", channel).
		Bool("on", turnOn).
		Uint32("duration-ms", durationMs).
		Msg("got command")
	return maskAny(d.registry.Dispatch(channel, turnOn, durationMs))
}

// IOControl is the mask-addressed command surface (M62/M63 semantics):
// bit n of the mask selects channel n, lowest configured bit wins.
// Like SetAuxiliaryOutput it waits for queued motion first.
func (d *Dispatcher) IOControl(ctx context.Context, mask uint8, turnOn bool, durationMs uint32) error {
	if err := d.motion.WaitComplete(ctx); err != nil {
		return maskAny(err)
	}
	plannerBarrierWaitsTotal.Inc()
	d.log.Debug().
		Uint8("mask", mask).
		Bool("on", turnOn).
		Uint32("duration-ms", durationMs).
		Msg("got masked command")
	return maskAny(d.registry.DispatchMask(mask, turnOn, durationMs))
}
