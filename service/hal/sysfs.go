package hal

import (
	"sync"
	"time"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
)

// Sysfs drives pins through the kernel sysfs GPIO interface.
// PWM channels are rendered in software; plain GPIO headers have no
// per-pin PWM peripheral to program.
type Sysfs struct {
	mutex    sync.Mutex
	start    time.Time
	pins     map[int]gpio.OutputPin
	channels map[int]*softChannel
}

// NewSysfs creates a sysfs GPIO backend.
// Pins are claimed lazily on first use.
func NewSysfs() (*Sysfs, error) {
	return &Sysfs{
		start:    time.Now(),
		pins:     make(map[int]gpio.OutputPin),
		channels: make(map[int]*softChannel),
	}, nil
}

func (s *Sysfs) outputPin(pin int) (gpio.OutputPin, error) {
	if p, found := s.pins[pin]; found {
		return p, nil
	}
	p, err := gpio.Output(pin, false, false)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to claim output pin %d", pin)
	}
	s.pins[pin] = p
	return p, nil
}

// SetDigital drives the given pin as a plain digital output.
func (s *Sysfs) SetDigital(pin int, on bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	p, err := s.outputPin(pin)
	if err != nil {
		return maskAny(err)
	}
	if err := p.Write(on); err != nil {
		return errors.Wrapf(err, "write to pin %d failed", pin)
	}
	return nil
}

// ConfigurePWM programs a PWM channel and attaches it to the given pin.
func (s *Sysfs) ConfigurePWM(channel, pin int, frequencyHz uint32, resolutionBits uint8) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	p, err := s.outputPin(pin)
	if err != nil {
		return maskAny(err)
	}
	if ch, found := s.channels[channel]; found {
		// Reprogram in place; duty resets to 0.
		ch.frequencyHz = frequencyHz
		ch.resolutionBits = resolutionBits
		ch.duty = 0
		ch.pwm.program(frequencyHz, 0, ch.maxDuty())
		return nil
	}
	s.channels[channel] = &softChannel{
		pwm:            newSoftPWM(p.Write),
		frequencyHz:    frequencyHz,
		resolutionBits: resolutionBits,
	}
	return nil
}

// WriteDuty sets the raw duty of a PWM channel, returning the previous duty.
func (s *Sysfs) WriteDuty(channel int, duty uint32) (uint32, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ch, found := s.channels[channel]
	if !found {
		return 0, errors.Errorf("PWM channel %d is not configured", channel)
	}
	prev := ch.duty
	ch.duty = duty
	ch.pwm.program(ch.frequencyHz, duty, ch.maxDuty())
	return prev, nil
}

// ReadDuty returns the currently active raw duty of a PWM channel.
func (s *Sysfs) ReadDuty(channel int) (uint32, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	ch, found := s.channels[channel]
	if !found {
		return 0, errors.Errorf("PWM channel %d is not configured", channel)
	}
	return ch.duty, nil
}

// Now returns monotonic time in microseconds.
func (s *Sysfs) Now() uint64 {
	return uint64(time.Since(s.start) / time.Microsecond)
}

// Close stops all PWM generators and drives every claimed pin low.
func (s *Sysfs) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, ch := range s.channels {
		ch.pwm.close()
	}
	s.channels = make(map[int]*softChannel)
	var lastErr error
	for nr, p := range s.pins {
		if err := p.Write(false); err != nil {
			lastErr = errors.Wrapf(err, "failed to drive pin %d low", nr)
		}
	}
	s.pins = make(map[int]gpio.OutputPin)
	return lastErr
}
