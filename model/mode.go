package model

import "github.com/pkg/errors"

// IOMode selects the state machine variant that governs an auxiliary
// output channel.
type IOMode string

const (
	// IOModeOnOff drives the pin as a plain digital output.
	// M62 turns it fully on, M63 fully off. Suited for relays.
	IOModeOnOff IOMode = "on-off"
	// IOModeSpikeHoldOff starts with a strong PWM spike, then drops to a
	// lower hold level, optionally turning off after a duration.
	// Suited for solenoids that need a pull-in burst but overheat at
	// full power.
	IOModeSpikeHoldOff IOMode = "spike-hold-off"
	// IOModePwmLowHigh toggles between a low and a high PWM duty.
	// Suited for hobby servos where low/high map to travel points.
	IOModePwmLowHigh IOMode = "pwm-low-high"
)

// Validate the given mode, returning nil on ok,
// or an error upon validation issues.
func (m IOMode) Validate() error {
	switch m {
	case IOModeOnOff, IOModeSpikeHoldOff, IOModePwmLowHigh:
		return nil
	default:
		return errors.Wrapf(ValidationError, "invalid I/O mode '%s'", string(m))
	}
}

// NeedsTimerUpdates returns true when the mode has timed phases that
// must be advanced by the periodic sync task.
func (m IOMode) NeedsTimerUpdates() bool {
	return m == IOModeSpikeHoldOff || m == IOModePwmLowHigh
}

// Phase of a channel with timed behavior.
// Only meaningful for modes with timer updates.
type Phase string

const (
	PhaseIdle  Phase = "idle"
	PhaseSpike Phase = "spike"
	PhaseHold  Phase = "hold"
)
