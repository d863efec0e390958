package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	terminate "github.com/pulcy/go-terminate"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dnmnsmith/Grbl-Esp32/model"
	"github.com/dnmnsmith/Grbl-Esp32/server"
	"github.com/dnmnsmith/Grbl-Esp32/service"
	"github.com/dnmnsmith/Grbl-Esp32/service/hal"
	"github.com/dnmnsmith/Grbl-Esp32/service/mqtt"
	"github.com/dnmnsmith/Grbl-Esp32/service/planner"
)

const (
	projectName       = "Grbl Aux I/O Worker"
	defaultServerPort = 7130
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
)

func main() {
	var levelFlag string
	var bridgeType string
	var gpioChip string
	var configPath string
	var serverHost string
	var serverPort int
	var tickInterval time.Duration
	var mqttBroker string
	var mqttTopicPrefix string

	pflag.StringVarP(&levelFlag, "level", "l", "debug", "Set log level")
	pflag.StringVarP(&bridgeType, "bridge", "b", "virtual", "Type of hardware bridge to use (virtual|sysfs|chardev)")
	pflag.StringVar(&gpioChip, "gpio-chip", "gpiochip0", "GPIO chip used by the chardev bridge")
	pflag.StringVarP(&configPath, "config", "c", "", "Path of the channel configuration file")
	pflag.StringVar(&serverHost, "host", "0.0.0.0", "Host address the HTTP server will listen on")
	pflag.IntVar(&serverPort, "port", defaultServerPort, "Port the HTTP server will listen on")
	pflag.DurationVar(&tickInterval, "tick", 0, "Cadence of the phase sync task (default 50ms)")
	pflag.StringVar(&mqttBroker, "mqtt-broker", "", "MQTT broker to publish channel state to (empty = disabled)")
	pflag.StringVar(&mqttTopicPrefix, "mqtt-topic-prefix", mqtt.DefaultTopicPrefix, "Topic prefix for channel state messages")
	pflag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if level, err := zerolog.ParseLevel(levelFlag); err == nil {
		logger = logger.Level(level)
	}

	channels, err := loadChannelConfig(configPath)
	if err != nil {
		Exitf("Failed to load channel configuration: %v\n", err)
	}

	var bridge hal.API
	switch bridgeType {
	case "virtual":
		bridge = hal.NewVirtual()
	case "sysfs":
		bridge, err = hal.NewSysfs()
		if err != nil {
			Exitf("Failed to initialize sysfs bridge: %v\n", err)
		}
	case "chardev":
		bridge, err = hal.NewChardev(gpioChip)
		if err != nil {
			Exitf("Failed to initialize chardev bridge: %v\n", err)
		}
	default:
		Exitf("Unknown bridge type '%s' (virtual|sysfs|chardev)\n", bridgeType)
	}
	defer bridge.Close()

	var publisher mqtt.Publisher
	if mqttBroker != "" {
		publisher, err = mqtt.NewPublisher(mqttBroker, "grbl-aux-io", mqttTopicPrefix, logger)
		if err != nil {
			Exitf("Failed to connect to MQTT broker: %v\n", err)
		}
		defer publisher.Close()
	}

	svc, err := service.NewService(service.Config{
		TickInterval: tickInterval,
	}, channels, service.Dependencies{
		Log:    logger,
		Bridge: bridge,
		// The worker has no motion planner attached when running
		// standalone; an embedding host wires a planner.Tracker here.
		Motion:    planner.Noop(),
		Publisher: publisher,
	})
	if err != nil {
		Exitf("Failed to initialize Service: %v\n", err)
	}

	httpServer, err := server.NewServer(server.Config{
		Host: serverHost,
		Port: serverPort,
	}, svc.Dispatcher(), svc.Registry(), logger)
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	fmt.Printf("Starting %s (version %s build %s)\n", projectName, projectVersion, projectBuild)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if err := g.Wait(); err != nil {
		Exitf("Service run failed: %#v", err)
	}
}

// loadChannelConfig reads the channel configuration from the given
// path, or returns a small virtual demo configuration when no path is
// given.
func loadChannelConfig(path string) (model.Config, error) {
	if path == "" {
		return defaultChannelConfig(), nil
	}
	var conf model.Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return conf, err
	}
	if err := json.Unmarshal(raw, &conf); err != nil {
		return conf, err
	}
	return conf, nil
}

// defaultChannelConfig covers the common relay + solenoid pair, so the
// worker does something sensible against the virtual bridge.
func defaultChannelConfig() model.Config {
	return model.Config{
		Channels: []model.ChannelConfig{
			{Channel: 1, Pin: 25, Mode: model.IOModeOnOff},
			{Channel: 2, Pin: 26, PWMChannel: 0, Mode: model.IOModeSpikeHoldOff},
		},
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}
