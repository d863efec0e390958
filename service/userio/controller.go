package userio

import (
	"strconv"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dnmnsmith/Grbl-Esp32/model"
	"github.com/dnmnsmith/Grbl-Esp32/pkg/util"
	"github.com/dnmnsmith/Grbl-Esp32/service/hal"
)

// ActualSink receives channel state changes.
type ActualSink interface {
	PublishChannelActual(actual model.ChannelActual)
}

// Controller owns the state of a single auxiliary output channel:
// its mode, timed phase, deadlines, and duty parameters.
//
// Two execution contexts touch a controller: the command path calls
// Activate/Deactivate, the sync task calls Tick. A spinlock guards the
// state transition; no cross-channel lock exists.
type Controller struct {
	lock util.SpinLock
	log  zerolog.Logger
	hw   hal.API

	channel    int
	pin        int
	pwmChannel int

	mode  model.IOMode
	phase model.Phase
	on    bool
	// Absolute deadlines in monotonic microseconds; 0 means no expiry.
	spikeEnd uint64
	holdEnd  uint64

	spikeLength       uint32 // ms
	holdLength        uint32 // ms; TODO use as default duration when a command omits one
	spikePercent      uint8
	holdPercent       uint8
	dutyLow           uint32
	dutyHigh          uint32
	pwmFrequency      uint32
	pwmResolutionBits uint8
	lastDuty          uint32

	actuals ActualSink
}

// NewController creates a controller for the given channel
// configuration. The configuration must have defaults applied and be
// validated; Init must be called before the first command.
func NewController(cfg model.ChannelConfig, hw hal.API, actuals ActualSink, log zerolog.Logger) *Controller {
	return &Controller{
		log: log.With().
			Int("channel", cfg.Channel).
			Str("mode", string(cfg.Mode)).
			Logger(),
		hw:                hw,
		channel:           cfg.Channel,
		pin:               cfg.Pin,
		pwmChannel:        cfg.PWMChannel,
		mode:              cfg.Mode,
		phase:             model.PhaseIdle,
		spikeLength:       cfg.SpikeLength,
		holdLength:        cfg.HoldLength,
		spikePercent:      cfg.SpikePercent,
		holdPercent:       cfg.HoldPercent,
		dutyLow:           cfg.DutyLow,
		dutyHigh:          cfg.DutyHigh,
		pwmFrequency:      cfg.PWMFrequency,
		pwmResolutionBits: cfg.PWMResolutionBits,
		actuals:           actuals,
	}
}

// Channel returns the logical channel number.
func (c *Controller) Channel() int {
	return c.channel
}

// Init programs the hardware for the configured mode and drives it to
// the mode's rest state. Must be called again after changing the PWM
// frequency or resolution.
func (c *Controller) Init() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.log.Debug().Int("pin", c.pin).Int("pwm-channel", c.pwmChannel).Msg("initializing channel")
	switch c.mode {
	case model.IOModeOnOff:
		if err := c.hw.SetDigital(c.pin, false); err != nil {
			return maskAny(err)
		}
	default:
		if err := c.hw.ConfigurePWM(c.pwmChannel, c.pin, c.pwmFrequency, c.pwmResolutionBits); err != nil {
			return maskAny(err)
		}
		rest := uint32(0)
		if c.mode == model.IOModePwmLowHigh {
			rest = c.dutyLow
		}
		if err := c.writeDuty(rest); err != nil {
			return maskAny(err)
		}
	}
	c.phase = model.PhaseIdle
	c.on = false
	c.spikeEnd = 0
	c.holdEnd = 0
	channelOnGauge.WithLabelValues(c.label()).Set(0)
	return nil
}

// Activate begins the "on" behavior of the channel.
// A nonzero duration (milliseconds) arms auto-off after that long;
// zero keeps the channel on until an explicit Deactivate. The duration
// is ignored in on-off mode, which has no timed phase.
func (c *Controller) Activate(durationMs uint32) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	switch c.mode {
	case model.IOModeOnOff:
		if err := c.hw.SetDigital(c.pin, true); err != nil {
			return maskAny(err)
		}
	case model.IOModeSpikeHoldOff:
		now := c.hw.Now()
		c.phase = model.PhaseSpike
		c.spikeEnd = now + uint64(c.spikeLength)*1000
		c.holdEnd = holdDeadline(now, durationMs)
		if err := c.writePercent(c.spikePercent); err != nil {
			return maskAny(err)
		}
	case model.IOModePwmLowHigh:
		now := c.hw.Now()
		c.phase = model.PhaseHold
		c.holdEnd = holdDeadline(now, durationMs)
		if err := c.writeDuty(c.dutyHigh); err != nil {
			return maskAny(err)
		}
	}
	c.on = true
	channelOnGauge.WithLabelValues(c.label()).Set(1)
	c.publishActual()
	return nil
}

// Deactivate writes the mode's off representation and clears the
// commanded state, regardless of the current phase.
func (c *Controller) Deactivate() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.writeOff(); err != nil {
		return maskAny(err)
	}
	c.on = false
	c.phase = model.PhaseIdle
	c.spikeEnd = 0
	c.holdEnd = 0
	channelOnGauge.WithLabelValues(c.label()).Set(0)
	c.publishActual()
	return nil
}

// writeOff drives the hardware to the mode's off representation.
// Caller must hold the lock.
func (c *Controller) writeOff() error {
	switch c.mode {
	case model.IOModeOnOff:
		return maskAny(c.hw.SetDigital(c.pin, false))
	case model.IOModePwmLowHigh:
		return maskAny(c.writeDuty(c.dutyLow))
	default:
		return maskAny(c.writeDuty(0))
	}
}

// Tick advances time-based phases. Called by the sync task on a fixed
// cadence. At most one phase transition happens per call; a spike that
// expires and a hold that expires are handled on separate ticks.
func (c *Controller) Tick() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.on || c.mode == model.IOModeOnOff {
		return nil
	}
	now := c.hw.Now()
	if c.mode == model.IOModeSpikeHoldOff && c.phase == model.PhaseSpike {
		if now > c.spikeEnd {
			c.phase = model.PhaseHold
			if err := c.writePercent(c.holdPercent); err != nil {
				return maskAny(err)
			}
			phaseTransitionsTotal.WithLabelValues(c.label()).Inc()
			c.publishActual()
		}
		return nil
	}
	if c.phase == model.PhaseHold {
		if c.holdEnd == 0 {
			// Indefinite hold; only an explicit deactivate ends it.
			return nil
		}
		if now > c.holdEnd {
			if err := c.writeOff(); err != nil {
				return maskAny(err)
			}
			c.on = false
			c.phase = model.PhaseIdle
			c.holdEnd = 0
			autoOffTotal.WithLabelValues(c.label()).Inc()
			channelOnGauge.WithLabelValues(c.label()).Set(0)
			c.publishActual()
		}
	}
	return nil
}

// IsOn returns the last commanded logical state.
func (c *Controller) IsOn() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.on
}

// Actual returns the current observable state of the channel.
func (c *Controller) Actual() model.ChannelActual {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.actualLocked()
}

func (c *Controller) actualLocked() model.ChannelActual {
	return model.ChannelActual{
		Channel: c.channel,
		On:      c.on,
		Phase:   c.phase,
		Duty:    c.lastDuty,
	}
}

func (c *Controller) publishActual() {
	if c.actuals != nil {
		c.actuals.PublishChannelActual(c.actualLocked())
	}
}

// NeedsTimerUpdates returns true when the channel's mode has timed
// phases that require the periodic sync task.
func (c *Controller) NeedsTimerUpdates() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.mode.NeedsTimerUpdates()
}

// SetMode changes the mode of operation. Only the timed modes can be
// selected at runtime; on-off is a construction-time choice.
// An in-flight phase is not reinterpreted.
func (c *Controller) SetMode(mode model.IOMode) error {
	if !mode.NeedsTimerUpdates() {
		return errors.Wrapf(model.ValidationError, "cannot switch channel %d to mode '%s' at runtime", c.channel, string(mode))
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.mode = mode
	return nil
}

// SetPWMFreqBits changes the PWM base frequency and resolution.
// Takes effect at the next Init.
func (c *Controller) SetPWMFreqBits(frequencyHz uint32, resolutionBits uint8) error {
	if frequencyHz < model.MinPWMFrequency || frequencyHz > model.MaxPWMFrequency {
		return errors.Wrapf(model.ValidationError, "PWM frequency %d out of range [%d..%d]", frequencyHz, model.MinPWMFrequency, model.MaxPWMFrequency)
	}
	if resolutionBits < model.MinPWMResolutionBits || resolutionBits > model.MaxPWMResolutionBits {
		return errors.Wrapf(model.ValidationError, "PWM resolution %d out of range [%d..%d]", resolutionBits, model.MinPWMResolutionBits, model.MaxPWMResolutionBits)
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.pwmFrequency = frequencyHz
	c.pwmResolutionBits = resolutionBits
	return nil
}

// SetSpikeHoldPercent changes the spike and hold duty percentages.
func (c *Controller) SetSpikeHoldPercent(spikePercent, holdPercent uint8) error {
	if spikePercent > 100 || holdPercent > 100 {
		return errors.Wrapf(model.ValidationError, "spike/hold percent %d/%d out of range [0..100]", spikePercent, holdPercent)
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.spikePercent = spikePercent
	c.holdPercent = holdPercent
	return nil
}

// SetPWMLowHigh changes the raw duties of the low and high states.
func (c *Controller) SetPWMLowHigh(dutyLow, dutyHigh uint32) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if max := c.maxDuty(); dutyLow > max || dutyHigh > max {
		return errors.Wrapf(model.ValidationError, "duty low/high %d/%d exceeds %d-bit range", dutyLow, dutyHigh, c.pwmResolutionBits)
	}
	c.dutyLow = dutyLow
	c.dutyHigh = dutyHigh
	return nil
}

// SetSpikeLength changes the length of the spike phase in milliseconds.
func (c *Controller) SetSpikeLength(lengthMs uint32) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.spikeLength = lengthMs
	return nil
}

// SetHoldLength changes the default hold length in milliseconds.
func (c *Controller) SetHoldLength(lengthMs uint32) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.holdLength = lengthMs
	return nil
}

func (c *Controller) maxDuty() uint32 {
	return (uint32(1) << c.pwmResolutionBits) - 1
}

// writeDuty writes a raw duty to the channel's PWM peripheral.
// Writes are filtered: nothing is written when the hardware already
// carries the requested duty. Caller must hold the lock.
func (c *Controller) writeDuty(duty uint32) error {
	current, err := c.hw.ReadDuty(c.pwmChannel)
	if err != nil {
		return maskAny(err)
	}
	if current != duty {
		if _, err := c.hw.WriteDuty(c.pwmChannel, duty); err != nil {
			return maskAny(err)
		}
	}
	c.lastDuty = duty
	return nil
}

// writePercent maps a percentage linearly onto the duty range
// (truncating) and writes it. Caller must hold the lock.
func (c *Controller) writePercent(percent uint8) error {
	duty := uint32(uint64(percent) * uint64(c.maxDuty()) / 100)
	return c.writeDuty(duty)
}

func (c *Controller) label() string {
	return strconv.Itoa(c.channel)
}

// holdDeadline computes the auto-off deadline for a command duration.
// Zero duration means no expiry.
func holdDeadline(now uint64, durationMs uint32) uint64 {
	if durationMs == 0 {
		return 0
	}
	return now + uint64(durationMs)*1000
}
