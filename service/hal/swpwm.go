package hal

import (
	"time"
)

// softPWM generates a PWM signal on a digital pin from a goroutine.
// Hosts without a hardware PWM peripheral (plain GPIO headers) get their
// duty writes rendered this way. Timing precision is what the OS
// scheduler allows; good enough for solenoids and relays, marginal for
// servos on a loaded system.
type softPWM struct {
	set func(bool) error
	c   chan softPWMMsg
}

type softPWMMsg struct {
	period  time.Duration
	on      time.Duration
	stopped chan struct{}
}

// newSoftPWM creates a software PWM driver for a pin and starts its
// generator goroutine. The signal stays low until the first configure.
func newSoftPWM(set func(bool) error) *softPWM {
	p := &softPWM{
		set: set,
		c:   make(chan softPWMMsg, 1),
	}
	go p.run()
	return p
}

// program sets the cycle period and on-time.
// Takes effect at the end of the current cycle.
func (p *softPWM) program(frequencyHz uint32, duty, maxDuty uint32) {
	period := time.Second / time.Duration(frequencyHz)
	on := period * time.Duration(duty) / time.Duration(maxDuty)
	p.c <- softPWMMsg{period: period, on: on}
}

// close stops the generator and leaves the pin low.
func (p *softPWM) close() {
	stopped := make(chan struct{})
	p.c <- softPWMMsg{stopped: stopped}
	<-stopped
}

// softChannel is one software-rendered PWM channel of a GPIO backend.
type softChannel struct {
	pwm            *softPWM
	frequencyHz    uint32
	resolutionBits uint8
	duty           uint32
}

func (c *softChannel) maxDuty() uint32 {
	return (uint32(1) << c.resolutionBits) - 1
}

func (p *softPWM) run() {
	var period, on time.Duration
	current := false
	p.set(false)
	for {
		if on > 0 {
			if !current {
				p.set(true)
				current = true
			}
			time.Sleep(on)
		}
		if off := period - on; off > 0 || period == 0 {
			if current {
				p.set(false)
				current = false
			}
			if off > 0 {
				time.Sleep(off)
			} else {
				// Not programmed yet; idle until a message arrives.
				m := <-p.c
				if m.stopped != nil {
					p.set(false)
					close(m.stopped)
					return
				}
				period, on = m.period, m.on
				continue
			}
		}
		// Pick up new parameters after each cycle.
		select {
		case m := <-p.c:
			if m.stopped != nil {
				p.set(false)
				close(m.stopped)
				return
			}
			period, on = m.period, m.on
		default:
		}
	}
}
