package userio

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTickInterval is the cadence of the sync task when none is
// configured. It bounds the timing resolution of spike/hold
// transitions; durations shorter than one tick may fire late by up to
// one period.
const DefaultTickInterval = time.Millisecond * 50

// SyncScheduler is the periodic background task that advances the timed
// phases of all configured channels. The service starts it only when at
// least one channel's mode requires timer updates.
type SyncScheduler struct {
	log      zerolog.Logger
	registry *Registry
	interval time.Duration
}

// NewSyncScheduler creates a scheduler ticking at the given interval
// (DefaultTickInterval when zero).
func NewSyncScheduler(registry *Registry, interval time.Duration, log zerolog.Logger) *SyncScheduler {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &SyncScheduler{
		log:      log.With().Str("component", "userio-sync").Logger(),
		registry: registry,
		interval: interval,
	}
}

// Run ticks every configured controller in ascending channel order at a
// fixed cadence, until the given context is canceled.
func (s *SyncScheduler) Run(ctx context.Context) error {
	s.log.Debug().Dur("interval", s.interval).Msg("sync task started")
	defer s.log.Debug().Msg("sync task terminated")
	for {
		for _, c := range s.registry.Controllers() {
			if err := c.Tick(); err != nil {
				s.log.Warn().Err(err).Int("channel", c.Channel()).Msg("tick failed")
			}
		}
		select {
		case <-time.After(s.interval):
			// Continue
		case <-ctx.Done():
			return nil
		}
	}
}
