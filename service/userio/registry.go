package userio

import (
	"sort"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dnmnsmith/Grbl-Esp32/model"
	"github.com/dnmnsmith/Grbl-Esp32/service/hal"
)

// Registry holds the fixed set of configured channel controllers,
// addressed by logical channel number (1..model.MaxChannel, sparse).
// It is populated once at startup and never changes afterwards.
type Registry struct {
	log         zerolog.Logger
	controllers []*Controller // ascending channel order
	byChannel   map[int]*Controller
}

// NewRegistry builds controllers for all valid channels in the given
// configuration. Invalid channel entries are logged and skipped; bad
// configuration never brings the process down.
func NewRegistry(conf model.Config, hw hal.API, actuals ActualSink, log zerolog.Logger) *Registry {
	r := &Registry{
		log:       log.With().Str("component", "userio-registry").Logger(),
		byChannel: make(map[int]*Controller),
	}
	for _, cc := range conf.Channels {
		cc.SetDefaults()
		if err := cc.Validate(); err != nil {
			r.log.Error().Err(err).Int("channel", cc.Channel).Msg("invalid channel configuration; skipping channel")
			continue
		}
		if _, found := r.byChannel[cc.Channel]; found {
			r.log.Error().Int("channel", cc.Channel).Msg("channel configured more than once; skipping duplicate")
			continue
		}
		r.byChannel[cc.Channel] = NewController(cc, hw, actuals, r.log)
	}
	for _, c := range r.byChannel {
		r.controllers = append(r.controllers, c)
	}
	sort.Slice(r.controllers, func(i, j int) bool {
		return r.controllers[i].Channel() < r.controllers[j].Channel()
	})
	r.log.Debug().Msgf("created %d channel controllers", len(r.controllers))
	return r
}

// InitAll initializes every configured controller.
// Returns whether any controller requires timer updates, plus an
// aggregate of all initialization errors.
func (r *Registry) InitAll() (bool, error) {
	var ae aerr.AggregateError
	needsTimer := false
	for _, c := range r.controllers {
		if err := c.Init(); err != nil {
			r.log.Error().Err(err).Int("channel", c.Channel()).Msg("failed to initialize channel")
			ae.Add(maskAny(err))
			continue
		}
		if c.NeedsTimerUpdates() {
			needsTimer = true
		}
	}
	return needsTimer, ae.AsError()
}

// NeedsTimerUpdates returns true when any configured controller has a
// mode with timed phases.
func (r *Registry) NeedsTimerUpdates() bool {
	for _, c := range r.controllers {
		if c.NeedsTimerUpdates() {
			return true
		}
	}
	return false
}

// ControllerByChannel returns the controller with the given logical
// channel number.
// Returns false if not configured.
func (r *Registry) ControllerByChannel(nr int) (*Controller, bool) {
	c, found := r.byChannel[nr]
	return c, found
}

// Controllers returns all configured controllers in ascending channel
// order.
func (r *Registry) Controllers() []*Controller {
	return r.controllers
}

// Actuals returns the current state of all configured channels in
// ascending channel order.
func (r *Registry) Actuals() []model.ChannelActual {
	result := make([]model.ChannelActual, 0, len(r.controllers))
	for _, c := range r.controllers {
		result = append(result, c.Actual())
	}
	return result
}

// Dispatch routes an on/off command to the given channel.
// Addressing an unconfigured channel returns a validation error and
// alters no state.
func (r *Registry) Dispatch(channel int, turnOn bool, durationMs uint32) error {
	c, found := r.byChannel[channel]
	if !found {
		return errors.Wrapf(model.ValidationError, "channel %d is not configured", channel)
	}
	if turnOn {
		return maskAny(c.Activate(durationMs))
	}
	return maskAny(c.Deactivate())
}

// DispatchMask routes an on/off command to the channel selected by a
// one-hot mask (bit n addresses channel n). With multiple bits set,
// the lowest configured channel wins; exactly one channel is addressed
// per call.
func (r *Registry) DispatchMask(mask uint8, turnOn bool, durationMs uint32) error {
	for nr := 1; nr <= model.MaxChannel; nr++ {
		if mask&(1<<uint(nr)) == 0 {
			continue
		}
		if _, found := r.byChannel[nr]; !found {
			continue
		}
		return maskAny(r.Dispatch(nr, turnOn, durationMs))
	}
	return errors.Wrapf(model.ValidationError, "mask %#02x selects no configured channel", mask)
}
