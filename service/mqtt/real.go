package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dnmnsmith/Grbl-Esp32/model"
)

const (
	connectTimeout = time.Second * 10
	publishTimeout = time.Second * 5
)

type publisher struct {
	log         zerolog.Logger
	client      paho.Client
	topicPrefix string
}

// NewPublisher connects to the given broker (e.g. "tcp://host:1883")
// and returns a publisher for channel state changes.
func NewPublisher(broker, clientID, topicPrefix string, log zerolog.Logger) (Publisher, error) {
	if topicPrefix == "" {
		topicPrefix = DefaultTopicPrefix
	}
	log = log.With().Str("component", "mqtt").Logger()
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("MQTT connection lost")
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("connection to broker '%s' timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "failed to connect to broker '%s'", broker)
	}

	return &publisher{
		log:         log,
		client:      client,
		topicPrefix: topicPrefix,
	}, nil
}

// PublishChannelActual sends the state of a single channel.
// QoS 0; consumers that care about the latest state only.
func (p *publisher) PublishChannelActual(actual model.ChannelActual) error {
	payload, err := json.Marshal(actual)
	if err != nil {
		return errors.Wrap(err, "failed to encode channel actual")
	}
	topic := fmt.Sprintf("%s/channel/%d", p.topicPrefix, actual.Channel)
	token := p.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publish to '%s' timed out", topic)
	}
	if err := token.Error(); err != nil {
		return errors.Wrapf(err, "publish to '%s' failed", topic)
	}
	return nil
}

// Close disconnects from the broker.
func (p *publisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
