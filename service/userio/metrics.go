package userio

import (
	"github.com/dnmnsmith/Grbl-Esp32/pkg/metrics"
)

const (
	subSystem = "userio"
)

var (
	// Number of on/off requests per channel
	channelRequestsTotal = metrics.MustRegisterCounterVec(subSystem,
		"channel_requests_total",
		"Number of channel on/off requests",
		"channel")

	// Last commanded state per channel
	channelOnGauge = metrics.MustRegisterGaugeVec(subSystem,
		"channel_on",
		"Last commanded state of channel (0=OFF, 1=ON)",
		"channel")

	// Spike to hold transitions per channel
	phaseTransitionsTotal = metrics.MustRegisterCounterVec(subSystem,
		"phase_transitions_total",
		"Number of spike to hold phase transitions",
		"channel")

	// Automatic hold expirations per channel
	autoOffTotal = metrics.MustRegisterCounterVec(subSystem,
		"auto_off_total",
		"Number of automatic hold expirations",
		"channel")

	// Commands that crossed the planner barrier
	plannerBarrierWaitsTotal = metrics.MustRegisterCounter(subSystem,
		"planner_barrier_waits_total",
		"Number of commands that passed the planner synchronization barrier")
)
