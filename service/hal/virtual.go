package hal

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Virtual is an in-memory implementation of the hardware API.
// It is used when running without hardware and by tests.
// With a manual clock, tests control the passage of time through Advance.
type Virtual struct {
	mutex       sync.Mutex
	start       time.Time
	manualClock bool
	now         uint64
	pins        map[int]bool
	channels    map[int]*virtualChannel
	dutyWrites  int
}

type virtualChannel struct {
	pin            int
	frequencyHz    uint32
	resolutionBits uint8
	duty           uint32
}

// NewVirtual creates a virtual bridge with a real monotonic clock.
func NewVirtual() *Virtual {
	return &Virtual{
		start:    time.Now(),
		pins:     make(map[int]bool),
		channels: make(map[int]*virtualChannel),
	}
}

// NewVirtualManualClock creates a virtual bridge whose clock only moves
// when Advance is called.
func NewVirtualManualClock() *Virtual {
	v := NewVirtual()
	v.manualClock = true
	return v
}

// Advance moves the manual clock forward.
func (v *Virtual) Advance(d time.Duration) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.now += uint64(d / time.Microsecond)
}

// SetDigital drives the given pin as a plain digital output.
func (v *Virtual) SetDigital(pin int, on bool) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.pins[pin] = on
	return nil
}

// ConfigurePWM programs a PWM channel and attaches it to the given pin.
func (v *Virtual) ConfigurePWM(channel, pin int, frequencyHz uint32, resolutionBits uint8) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	v.channels[channel] = &virtualChannel{
		pin:            pin,
		frequencyHz:    frequencyHz,
		resolutionBits: resolutionBits,
	}
	return nil
}

// WriteDuty sets the raw duty of a PWM channel, returning the previous duty.
func (v *Virtual) WriteDuty(channel int, duty uint32) (uint32, error) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	ch, found := v.channels[channel]
	if !found {
		return 0, errors.Errorf("PWM channel %d is not configured", channel)
	}
	prev := ch.duty
	ch.duty = duty
	v.dutyWrites++
	return prev, nil
}

// ReadDuty returns the currently active raw duty of a PWM channel.
func (v *Virtual) ReadDuty(channel int) (uint32, error) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	ch, found := v.channels[channel]
	if !found {
		return 0, errors.Errorf("PWM channel %d is not configured", channel)
	}
	return ch.duty, nil
}

// Now returns monotonic time in microseconds.
func (v *Virtual) Now() uint64 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if v.manualClock {
		return v.now
	}
	return uint64(time.Since(v.start) / time.Microsecond)
}

// Close releases all claimed pins and channels.
func (v *Virtual) Close() error {
	return nil
}

// Digital returns the last written level of a digital pin.
// Returns false if the pin was never written.
func (v *Virtual) Digital(pin int) (bool, bool) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	level, found := v.pins[pin]
	return level, found
}

// Duty returns the current duty of a PWM channel (0 if not configured).
func (v *Virtual) Duty(channel int) uint32 {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if ch, found := v.channels[channel]; found {
		return ch.duty
	}
	return 0
}

// PWMConfig returns the frequency and resolution a channel was
// configured with. Returns false if the channel was never configured.
func (v *Virtual) PWMConfig(channel int) (uint32, uint8, bool) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	if ch, found := v.channels[channel]; found {
		return ch.frequencyHz, ch.resolutionBits, true
	}
	return 0, 0, false
}

// DutyWrites returns the number of duty writes that reached the bridge.
// Used by tests to verify write filtering.
func (v *Virtual) DutyWrites() int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.dutyWrites
}
