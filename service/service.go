package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dnmnsmith/Grbl-Esp32/model"
	"github.com/dnmnsmith/Grbl-Esp32/pkg/util"
	"github.com/dnmnsmith/Grbl-Esp32/service/hal"
	"github.com/dnmnsmith/Grbl-Esp32/service/mqtt"
	"github.com/dnmnsmith/Grbl-Esp32/service/planner"
	"github.com/dnmnsmith/Grbl-Esp32/service/userio"
)

// Service is the auxiliary I/O worker: the channel registry, its
// command dispatcher, and the background activities around them.
type Service interface {
	// Run the service until the given context is canceled.
	Run(ctx context.Context) error
	// Dispatcher returns the command boundary of the subsystem.
	Dispatcher() *userio.Dispatcher
	// Registry returns the set of configured channels.
	Registry() *userio.Registry
}

// Config holds runtime settings of the service.
type Config struct {
	// Cadence of the phase sync task (userio.DefaultTickInterval when zero).
	TickInterval time.Duration
}

// Dependencies holds the external collaborators of the service.
type Dependencies struct {
	Log zerolog.Logger
	// Bridge to the pin/PWM hardware.
	Bridge hal.API
	// Motion planner barrier; commands wait on it before touching pins.
	Motion planner.Motion
	// Publisher for channel state changes. Optional.
	Publisher mqtt.Publisher
}

type service struct {
	Config
	Dependencies
	log        zerolog.Logger
	actuals    *ChannelActuals
	registry   *userio.Registry
	dispatcher *userio.Dispatcher
	scheduler  *userio.SyncScheduler
	queue      chan model.ChannelActual
}

// NewService builds the channel registry from the given configuration
// and wires the dispatcher and sync task around it.
func NewService(conf Config, channels model.Config, deps Dependencies) (Service, error) {
	log := deps.Log.With().Str("component", "service").Logger()
	actuals := NewChannelActuals(deps.Log)
	registry := userio.NewRegistry(channels, deps.Bridge, actuals, deps.Log)
	return &service{
		Config:       conf,
		Dependencies: deps,
		log:          log,
		actuals:      actuals,
		registry:     registry,
		dispatcher:   userio.NewDispatcher(registry, deps.Motion, deps.Log),
		scheduler:    userio.NewSyncScheduler(registry, conf.TickInterval, deps.Log),
		queue:        make(chan model.ChannelActual, 64),
	}, nil
}

// Dispatcher returns the command boundary of the subsystem.
func (s *service) Dispatcher() *userio.Dispatcher {
	return s.dispatcher
}

// Registry returns the set of configured channels.
func (s *service) Registry() *userio.Registry {
	return s.registry
}

// Run initializes all channels and runs the sync task and the state
// publisher until the given context is canceled.
func (s *service) Run(ctx context.Context) error {
	needsTimer, err := s.registry.InitAll()
	if err != nil {
		// Channels that failed to initialize stay off; the rest keep working.
		s.log.Error().Err(err).Msg("one or more channels failed to initialize")
	}

	// Channel state changes flow into a small queue; when it overflows
	// the oldest state is dropped in favor of the newest.
	cancelReceiver := s.actuals.RegisterChannelActualReceiver(func(x model.ChannelActual) error {
		select {
		case s.queue <- x:
			// Ok, queued
		default:
			// Queue full; drop oldest
			<-s.queue
			s.queue <- x
		}
		return nil
	})
	defer cancelReceiver()

	g, ctx := errgroup.WithContext(ctx)
	if needsTimer {
		g.Go(func() error { return s.scheduler.Run(ctx) })
	} else {
		s.log.Debug().Msg("no channel needs timer updates; sync task not started")
	}
	if s.Publisher != nil {
		g.Go(func() error {
			return util.UntilCanceled(ctx, s.log, "publish channel actual", func() error {
				select {
				case x := <-s.queue:
					return s.Publisher.PublishChannelActual(x)
				case <-ctx.Done():
					return nil
				}
			})
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}
