package service

import (
	"context"

	"github.com/mattn/go-pubsub"
	"github.com/rs/zerolog"

	"github.com/dnmnsmith/Grbl-Esp32/model"
)

// ChannelActuals fans out channel state changes to interested
// subscribers (MQTT publisher, status surfaces).
type ChannelActuals struct {
	log     zerolog.Logger
	actuals *pubsub.PubSub
}

// NewChannelActuals creates an empty fan-out.
func NewChannelActuals(log zerolog.Logger) *ChannelActuals {
	return &ChannelActuals{
		log:     log.With().Str("component", "channel-actuals").Logger(),
		actuals: pubsub.New(),
	}
}

// PublishChannelActual records a channel state change.
func (s *ChannelActuals) PublishChannelActual(actual model.ChannelActual) {
	s.actuals.Pub(actual)
}

// RegisterChannelActualReceiver subscribes to channel state changes.
// The returned CancelFunc removes the subscription.
func (s *ChannelActuals) RegisterChannelActualReceiver(cb func(model.ChannelActual) error) context.CancelFunc {
	wcb := func(x model.ChannelActual) {
		if err := cb(x); err != nil {
			s.log.Warn().Err(err).Msg("Channel actual processing error")
		}
	}
	s.actuals.Sub(wcb)
	return func() {
		s.actuals.Leave(wcb)
	}
}
