// Package mqtt publishes channel state changes to an MQTT broker, so
// external automation can follow what the machine's auxiliary outputs
// are doing.
package mqtt

import (
	"github.com/dnmnsmith/Grbl-Esp32/model"
)

// DefaultTopicPrefix is used when no prefix is configured.
// State of channel n is published under <prefix>/channel/<n>.
const DefaultTopicPrefix = "grbl/aux-io"

// Publisher sends channel state changes to a broker.
type Publisher interface {
	// PublishChannelActual sends the state of a single channel.
	PublishChannelActual(actual model.ChannelActual) error
	// Close disconnects from the broker.
	Close() error
}
