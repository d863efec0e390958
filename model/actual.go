package model

// ChannelActual is the last observed state of an auxiliary output channel.
type ChannelActual struct {
	// Logical channel number
	Channel int `json:"channel"`
	// Last commanded logical state
	On bool `json:"on"`
	// Current phase (only meaningful for timed modes)
	Phase Phase `json:"phase"`
	// Last written raw PWM duty (0 for on-off mode)
	Duty uint32 `json:"duty"`
}
