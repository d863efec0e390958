package hal

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

// Chardev drives pins through the Linux GPIO character device.
// Preferred over sysfs on current kernels. PWM channels are rendered
// in software, as with the sysfs backend.
type Chardev struct {
	mutex    sync.Mutex
	start    time.Time
	chipName string
	chip     *gpiocdev.Chip
	lines    map[int]*gpiocdev.Line
	channels map[int]*softChannel
}

// NewChardev creates a character-device GPIO backend on the given chip
// (e.g. "gpiochip0"). Lines are claimed lazily on first use.
func NewChardev(chipName string) (*Chardev, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open gpio chip '%s'", chipName)
	}
	return &Chardev{
		start:    time.Now(),
		chipName: chipName,
		chip:     chip,
		lines:    make(map[int]*gpiocdev.Line),
		channels: make(map[int]*softChannel),
	}, nil
}

func (c *Chardev) outputLine(pin int) (*gpiocdev.Line, error) {
	if l, found := c.lines[pin]; found {
		return l, nil
	}
	l, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to request line %d on '%s'", pin, c.chipName)
	}
	c.lines[pin] = l
	return l, nil
}

func levelValue(on bool) int {
	if on {
		return 1
	}
	return 0
}

// SetDigital drives the given pin as a plain digital output.
func (c *Chardev) SetDigital(pin int, on bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	l, err := c.outputLine(pin)
	if err != nil {
		return maskAny(err)
	}
	if err := l.SetValue(levelValue(on)); err != nil {
		return errors.Wrapf(err, "write to line %d failed", pin)
	}
	return nil
}

// ConfigurePWM programs a PWM channel and attaches it to the given pin.
func (c *Chardev) ConfigurePWM(channel, pin int, frequencyHz uint32, resolutionBits uint8) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	l, err := c.outputLine(pin)
	if err != nil {
		return maskAny(err)
	}
	if ch, found := c.channels[channel]; found {
		ch.frequencyHz = frequencyHz
		ch.resolutionBits = resolutionBits
		ch.duty = 0
		ch.pwm.program(frequencyHz, 0, ch.maxDuty())
		return nil
	}
	set := func(on bool) error {
		return l.SetValue(levelValue(on))
	}
	c.channels[channel] = &softChannel{
		pwm:            newSoftPWM(set),
		frequencyHz:    frequencyHz,
		resolutionBits: resolutionBits,
	}
	return nil
}

// WriteDuty sets the raw duty of a PWM channel, returning the previous duty.
func (c *Chardev) WriteDuty(channel int, duty uint32) (uint32, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ch, found := c.channels[channel]
	if !found {
		return 0, errors.Errorf("PWM channel %d is not configured", channel)
	}
	prev := ch.duty
	ch.duty = duty
	ch.pwm.program(ch.frequencyHz, duty, ch.maxDuty())
	return prev, nil
}

// ReadDuty returns the currently active raw duty of a PWM channel.
func (c *Chardev) ReadDuty(channel int) (uint32, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	ch, found := c.channels[channel]
	if !found {
		return 0, errors.Errorf("PWM channel %d is not configured", channel)
	}
	return ch.duty, nil
}

// Now returns monotonic time in microseconds.
func (c *Chardev) Now() uint64 {
	return uint64(time.Since(c.start) / time.Microsecond)
}

// Close stops all PWM generators and releases every claimed line.
func (c *Chardev) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	for _, ch := range c.channels {
		ch.pwm.close()
	}
	c.channels = make(map[int]*softChannel)
	var lastErr error
	for nr, l := range c.lines {
		if err := l.SetValue(0); err != nil {
			lastErr = errors.Wrapf(err, "failed to drive line %d low", nr)
		}
		if err := l.Close(); err != nil {
			lastErr = errors.Wrapf(err, "failed to release line %d", nr)
		}
	}
	c.lines = make(map[int]*gpiocdev.Line)
	if err := c.chip.Close(); err != nil {
		lastErr = maskAny(err)
	}
	return lastErr
}
