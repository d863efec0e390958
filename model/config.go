package model

import (
	"github.com/pkg/errors"
)

const (
	// MaxChannel is the highest logical channel number that can be
	// addressed from gcode (M62 P1 ... M62 P6).
	MaxChannel = 6

	// PWM peripheral limits.
	MinPWMFrequency      = 50
	MaxPWMFrequency      = 10000
	MinPWMResolutionBits = 8
	MaxPWMResolutionBits = 16
)

// Defaults applied to channel configurations that leave fields zero.
// The servo values follow 50Hz/16-bit pulse math (1ms..2ms pulse on a
// 65535 count cycle).
const (
	DefaultSpikeLength  = 500 // ms
	DefaultSpikePercent = 100
	DefaultHoldPercent  = 20
	DefaultDutyLow      = 3276
	DefaultDutyHigh     = 6553

	defaultSpikeHoldFrequency      = 1000
	defaultSpikeHoldResolutionBits = 10
	defaultServoFrequency          = 50
	defaultServoResolutionBits     = 16
)

// ChannelConfig configures a single auxiliary output channel.
type ChannelConfig struct {
	// Logical channel number (1...MaxChannel), used for routing.
	Channel int `json:"channel"`
	// Physical output pin.
	Pin int `json:"pin"`
	// Hardware PWM channel, used by all modes except on-off.
	PWMChannel int `json:"pwm-channel,omitempty"`
	// Mode of operation.
	Mode IOMode `json:"mode"`
	// PWM base frequency in Hz (MinPWMFrequency...MaxPWMFrequency).
	PWMFrequency uint32 `json:"pwm-frequency,omitempty"`
	// PWM resolution in bits (MinPWMResolutionBits...MaxPWMResolutionBits).
	PWMResolutionBits uint8 `json:"pwm-resolution-bits,omitempty"`
	// Length of the spike phase in milliseconds (spike-hold-off only).
	SpikeLength uint32 `json:"spike-length,omitempty"`
	// Default hold length in milliseconds (0 = hold until turned off).
	HoldLength uint32 `json:"hold-length,omitempty"`
	// Duty during the spike phase as a percentage (0...100).
	SpikePercent uint8 `json:"spike-percent,omitempty"`
	// Duty during the hold phase as a percentage (0...100).
	HoldPercent uint8 `json:"hold-percent,omitempty"`
	// Raw duty written in the "off" state (pwm-low-high only).
	DutyLow uint32 `json:"duty-low,omitempty"`
	// Raw duty written in the "on" state (pwm-low-high only).
	DutyHigh uint32 `json:"duty-high,omitempty"`
}

// SetDefaults fills unset fields with mode-appropriate defaults.
func (c *ChannelConfig) SetDefaults() {
	if c.Mode == IOModeOnOff {
		return
	}
	if c.PWMFrequency == 0 {
		if c.Mode == IOModePwmLowHigh {
			c.PWMFrequency = defaultServoFrequency
		} else {
			c.PWMFrequency = defaultSpikeHoldFrequency
		}
	}
	if c.PWMResolutionBits == 0 {
		if c.Mode == IOModePwmLowHigh {
			c.PWMResolutionBits = defaultServoResolutionBits
		} else {
			c.PWMResolutionBits = defaultSpikeHoldResolutionBits
		}
	}
	if c.Mode == IOModeSpikeHoldOff {
		if c.SpikeLength == 0 {
			c.SpikeLength = DefaultSpikeLength
		}
		if c.SpikePercent == 0 {
			c.SpikePercent = DefaultSpikePercent
		}
		if c.HoldPercent == 0 {
			c.HoldPercent = DefaultHoldPercent
		}
	}
	if c.Mode == IOModePwmLowHigh {
		if c.DutyLow == 0 {
			c.DutyLow = DefaultDutyLow
		}
		if c.DutyHigh == 0 {
			c.DutyHigh = DefaultDutyHigh
		}
	}
}

// MaxDuty returns the highest raw duty value for the configured
// PWM resolution.
func (c ChannelConfig) MaxDuty() uint32 {
	return (uint32(1) << c.PWMResolutionBits) - 1
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (c ChannelConfig) Validate() error {
	if c.Channel < 1 || c.Channel > MaxChannel {
		return errors.Wrapf(ValidationError, "channel %d out of range [1..%d]", c.Channel, MaxChannel)
	}
	if err := c.Mode.Validate(); err != nil {
		return errors.Wrapf(ValidationError, "error in mode of channel %d: %s", c.Channel, err.Error())
	}
	if c.Mode == IOModeOnOff {
		return nil
	}
	if c.PWMFrequency < MinPWMFrequency || c.PWMFrequency > MaxPWMFrequency {
		return errors.Wrapf(ValidationError, "PWM frequency %d of channel %d out of range [%d..%d]", c.PWMFrequency, c.Channel, MinPWMFrequency, MaxPWMFrequency)
	}
	if c.PWMResolutionBits < MinPWMResolutionBits || c.PWMResolutionBits > MaxPWMResolutionBits {
		return errors.Wrapf(ValidationError, "PWM resolution %d of channel %d out of range [%d..%d]", c.PWMResolutionBits, c.Channel, MinPWMResolutionBits, MaxPWMResolutionBits)
	}
	if c.SpikePercent > 100 {
		return errors.Wrapf(ValidationError, "spike percent %d of channel %d out of range [0..100]", c.SpikePercent, c.Channel)
	}
	if c.HoldPercent > 100 {
		return errors.Wrapf(ValidationError, "hold percent %d of channel %d out of range [0..100]", c.HoldPercent, c.Channel)
	}
	if max := c.MaxDuty(); c.DutyLow > max || c.DutyHigh > max {
		return errors.Wrapf(ValidationError, "duty low/high %d/%d of channel %d exceeds %d-bit range", c.DutyLow, c.DutyHigh, c.Channel, c.PWMResolutionBits)
	}
	return nil
}

// Config holds the configuration of all auxiliary output channels of
// a single machine.
type Config struct {
	// List of configured channels. Channel numbers are sparse;
	// only listed channels exist.
	Channels []ChannelConfig `json:"channels"`
}

// ChannelByNumber returns the configuration of the channel with the
// given logical number.
// Returns false if not found.
func (c Config) ChannelByNumber(nr int) (ChannelConfig, bool) {
	for _, ch := range c.Channels {
		if ch.Channel == nr {
			return ch, true
		}
	}
	return ChannelConfig{}, false
}

// SetDefaults fills unset fields of all channels.
func (c *Config) SetDefaults() {
	for i := range c.Channels {
		c.Channels[i].SetDefaults()
	}
}

// Validate the given configuration, returning nil on ok,
// or an error upon validation issues.
func (c Config) Validate() error {
	seen := make(map[int]struct{})
	for _, ch := range c.Channels {
		if err := ch.Validate(); err != nil {
			return maskAny(err)
		}
		if _, found := seen[ch.Channel]; found {
			return errors.Wrapf(ValidationError, "channel %d configured more than once", ch.Channel)
		}
		seen[ch.Channel] = struct{}{}
	}
	return nil
}
