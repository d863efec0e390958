package userio

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dnmnsmith/Grbl-Esp32/model"
	"github.com/dnmnsmith/Grbl-Esp32/service/hal"
)

func newTestController(t *testing.T, cfg model.ChannelConfig) (*Controller, *hal.Virtual) {
	t.Helper()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test configuration: %v", err)
	}
	hw := hal.NewVirtualManualClock()
	ctrl := NewController(cfg, hw, nil, zerolog.Nop())
	if err := ctrl.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return ctrl, hw
}

func mustTick(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.Tick(); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
}

func TestOnOffMode(t *testing.T) {
	ctrl, hw := newTestController(t, model.ChannelConfig{
		Channel: 1, Pin: 25, Mode: model.IOModeOnOff,
	})

	if err := ctrl.Activate(0); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if level, found := hw.Digital(25); !found || !level {
		t.Errorf("expected pin 25 high, got level=%v found=%v", level, found)
	}
	if !ctrl.IsOn() {
		t.Error("expected IsOn true")
	}

	// Duration is ignored; on-off has no timed phase.
	if err := ctrl.Activate(100); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	hw.Advance(time.Second)
	for i := 0; i < 5; i++ {
		mustTick(t, ctrl)
	}
	if !ctrl.IsOn() {
		t.Error("tick must have no effect in on-off mode")
	}
	if level, _ := hw.Digital(25); !level {
		t.Error("pin must stay high in on-off mode")
	}
	if hw.DutyWrites() != 0 {
		t.Errorf("on-off mode must not touch PWM, got %d duty writes", hw.DutyWrites())
	}

	if err := ctrl.Deactivate(); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if level, _ := hw.Digital(25); level {
		t.Error("expected pin 25 low after deactivate")
	}
	if ctrl.IsOn() {
		t.Error("expected IsOn false after deactivate")
	}
}

func TestSpikeHoldTransition(t *testing.T) {
	ctrl, hw := newTestController(t, model.ChannelConfig{
		Channel: 2, Pin: 26, PWMChannel: 0, Mode: model.IOModeSpikeHoldOff,
		PWMFrequency: 1000, PWMResolutionBits: 16,
		SpikeLength: 200, SpikePercent: 80, HoldPercent: 20,
	})

	if err := ctrl.Activate(0); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	spikeDuty := uint32(80) * 65535 / 100
	if got := hw.Duty(0); got != spikeDuty {
		t.Errorf("expected spike duty %d, got %d", spikeDuty, got)
	}

	// t=100ms: still in spike phase.
	hw.Advance(100 * time.Millisecond)
	mustTick(t, ctrl)
	if got := ctrl.Actual().Phase; got != model.PhaseSpike {
		t.Errorf("expected spike phase at t=100ms, got %s", got)
	}
	if got := hw.Duty(0); got != spikeDuty {
		t.Errorf("duty must be unchanged at t=100ms, got %d", got)
	}

	// t=250ms: spike expired, transition to hold.
	hw.Advance(150 * time.Millisecond)
	mustTick(t, ctrl)
	holdDuty := uint32(20) * 65535 / 100
	if got := hw.Duty(0); got != holdDuty {
		t.Errorf("expected hold duty %d, got %d", holdDuty, got)
	}
	if got := ctrl.Actual().Phase; got != model.PhaseHold {
		t.Errorf("expected hold phase, got %s", got)
	}

	// The transition happens exactly once; no further writes, no
	// reverting to spike.
	writes := hw.DutyWrites()
	hw.Advance(time.Second)
	for i := 0; i < 10; i++ {
		mustTick(t, ctrl)
	}
	if got := hw.DutyWrites(); got != writes {
		t.Errorf("expected no further duty writes, got %d extra", got-writes)
	}
	if got := ctrl.Actual().Phase; got != model.PhaseHold {
		t.Errorf("phase must stay hold, got %s", got)
	}
	if !ctrl.IsOn() {
		t.Error("indefinite hold must stay on without deactivate")
	}

	// t=500ms: explicit off.
	if err := ctrl.Deactivate(); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if got := hw.Duty(0); got != 0 {
		t.Errorf("expected duty 0 after deactivate, got %d", got)
	}
	if ctrl.IsOn() {
		t.Error("expected IsOn false after deactivate")
	}
}

func TestSpikeHoldAutoOff(t *testing.T) {
	ctrl, hw := newTestController(t, model.ChannelConfig{
		Channel: 2, Pin: 26, PWMChannel: 0, Mode: model.IOModeSpikeHoldOff,
		PWMFrequency: 1000, PWMResolutionBits: 16,
		SpikeLength: 200, SpikePercent: 80, HoldPercent: 20,
	})

	if err := ctrl.Activate(1000); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	hw.Advance(250 * time.Millisecond)
	mustTick(t, ctrl)
	if got := ctrl.Actual().Phase; got != model.PhaseHold {
		t.Fatalf("expected hold phase, got %s", got)
	}

	// t=1100ms: hold expired.
	hw.Advance(850 * time.Millisecond)
	mustTick(t, ctrl)
	if got := hw.Duty(0); got != 0 {
		t.Errorf("expected duty 0 after auto-off, got %d", got)
	}
	if ctrl.IsOn() {
		t.Error("expected IsOn false after auto-off")
	}

	// Expiry is idempotent; further ticks are no-ops.
	writes := hw.DutyWrites()
	hw.Advance(time.Second)
	for i := 0; i < 10; i++ {
		mustTick(t, ctrl)
	}
	if got := hw.DutyWrites(); got != writes {
		t.Errorf("expected no duty writes after auto-off, got %d extra", got-writes)
	}
}

func TestSpikeAndHoldExpiryOnSeparateTicks(t *testing.T) {
	// Hold deadline before the spike deadline: one tick may advance at
	// most one phase.
	ctrl, hw := newTestController(t, model.ChannelConfig{
		Channel: 2, Pin: 26, PWMChannel: 0, Mode: model.IOModeSpikeHoldOff,
		PWMFrequency: 1000, PWMResolutionBits: 16,
		SpikeLength: 200, SpikePercent: 80, HoldPercent: 20,
	})

	if err := ctrl.Activate(100); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	hw.Advance(300 * time.Millisecond)
	mustTick(t, ctrl)
	if got := ctrl.Actual().Phase; got != model.PhaseHold {
		t.Fatalf("expected hold phase after first tick, got %s", got)
	}
	if !ctrl.IsOn() {
		t.Fatal("channel must still be on after the spike transition tick")
	}
	mustTick(t, ctrl)
	if ctrl.IsOn() {
		t.Error("expected auto-off on the second tick")
	}
}

func TestIndefiniteHold(t *testing.T) {
	ctrl, hw := newTestController(t, model.ChannelConfig{
		Channel: 2, Pin: 26, PWMChannel: 0, Mode: model.IOModeSpikeHoldOff,
		PWMFrequency: 1000, PWMResolutionBits: 16,
		SpikeLength: 200, SpikePercent: 80, HoldPercent: 20,
	})

	if err := ctrl.Activate(0); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	for i := 0; i < 100; i++ {
		hw.Advance(time.Minute)
		mustTick(t, ctrl)
	}
	if !ctrl.IsOn() {
		t.Error("duration 0 must hold until an explicit deactivate")
	}
}

func TestPwmLowHigh(t *testing.T) {
	ctrl, hw := newTestController(t, model.ChannelConfig{
		Channel: 4, Pin: 27, PWMChannel: 1, Mode: model.IOModePwmLowHigh,
		PWMFrequency: 50, PWMResolutionBits: 16,
		DutyLow: 3276, DutyHigh: 6553,
	})

	// Rest state is the low duty.
	if got := hw.Duty(1); got != 3276 {
		t.Errorf("expected rest duty 3276, got %d", got)
	}

	// No spike phase; high duty written immediately.
	if err := ctrl.Activate(1000); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if got := hw.Duty(1); got != 6553 {
		t.Errorf("expected duty 6553 after activate, got %d", got)
	}
	if got := ctrl.Actual().Phase; got != model.PhaseHold {
		t.Errorf("expected hold phase, got %s", got)
	}

	// t=1500ms: hold expired, back to low duty.
	hw.Advance(1500 * time.Millisecond)
	mustTick(t, ctrl)
	if got := hw.Duty(1); got != 3276 {
		t.Errorf("expected duty 3276 after auto-off, got %d", got)
	}
	if ctrl.IsOn() {
		t.Error("expected IsOn false after auto-off")
	}
}

func TestDutyWriteFiltering(t *testing.T) {
	ctrl, hw := newTestController(t, model.ChannelConfig{
		Channel: 2, Pin: 26, PWMChannel: 0, Mode: model.IOModeSpikeHoldOff,
		PWMFrequency: 1000, PWMResolutionBits: 16,
		SpikeLength: 200, SpikePercent: 1, HoldPercent: 20,
	})
	// Init writes the off duty, which the hardware already carries.
	if got := hw.DutyWrites(); got != 0 {
		t.Errorf("expected 0 duty writes after init, got %d", got)
	}

	// A spike percent mapping to the current duty issues no write.
	if err := ctrl.SetSpikeHoldPercent(0, 20); err != nil {
		t.Fatalf("SetSpikeHoldPercent failed: %v", err)
	}
	if err := ctrl.Activate(0); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if got := hw.DutyWrites(); got != 0 {
		t.Errorf("expected duty write to be filtered, got %d writes", got)
	}
}

func TestPercentMapping(t *testing.T) {
	tests := []struct {
		percent uint8
		want    uint32
	}{
		{0, 0},
		{50, 32767}, // truncating
		{100, 65535},
	}
	for _, test := range tests {
		ctrl, hw := newTestController(t, model.ChannelConfig{
			Channel: 2, Pin: 26, PWMChannel: 0, Mode: model.IOModeSpikeHoldOff,
			PWMFrequency: 1000, PWMResolutionBits: 16,
			SpikeLength: 200, SpikePercent: 100, HoldPercent: 20,
		})
		if err := ctrl.SetSpikeHoldPercent(test.percent, 20); err != nil {
			t.Fatalf("SetSpikeHoldPercent(%d) failed: %v", test.percent, err)
		}
		if err := ctrl.Activate(0); err != nil {
			t.Fatalf("Activate failed: %v", err)
		}
		if got := hw.Duty(0); got != test.want {
			t.Errorf("percent %d: expected duty %d, got %d", test.percent, test.want, got)
		}
	}
}

func TestSetterValidation(t *testing.T) {
	ctrl, _ := newTestController(t, model.ChannelConfig{
		Channel: 2, Pin: 26, PWMChannel: 0, Mode: model.IOModeSpikeHoldOff,
		PWMFrequency: 1000, PWMResolutionBits: 16,
	})

	if err := ctrl.SetMode(model.IOModeOnOff); errors.Cause(err) != model.ValidationError {
		t.Errorf("expected validation error for on-off mode, got %v", err)
	}
	if err := ctrl.SetMode(model.IOModePwmLowHigh); err != nil {
		t.Errorf("expected pwm-low-high mode to be accepted, got %v", err)
	}
	if err := ctrl.SetPWMFreqBits(49, 16); errors.Cause(err) != model.ValidationError {
		t.Errorf("expected validation error for frequency 49, got %v", err)
	}
	if err := ctrl.SetPWMFreqBits(10001, 16); errors.Cause(err) != model.ValidationError {
		t.Errorf("expected validation error for frequency 10001, got %v", err)
	}
	if err := ctrl.SetPWMFreqBits(1000, 7); errors.Cause(err) != model.ValidationError {
		t.Errorf("expected validation error for 7 bits, got %v", err)
	}
	if err := ctrl.SetPWMFreqBits(1000, 17); errors.Cause(err) != model.ValidationError {
		t.Errorf("expected validation error for 17 bits, got %v", err)
	}
	if err := ctrl.SetPWMFreqBits(50, 8); err != nil {
		t.Errorf("expected 50Hz/8bits to be accepted, got %v", err)
	}
	if err := ctrl.SetSpikeHoldPercent(101, 20); errors.Cause(err) != model.ValidationError {
		t.Errorf("expected validation error for 101 percent, got %v", err)
	}
	// 8 bits now; max duty is 255.
	if err := ctrl.SetPWMLowHigh(100, 256); errors.Cause(err) != model.ValidationError {
		t.Errorf("expected validation error for duty beyond 8-bit range, got %v", err)
	}
	if err := ctrl.SetPWMLowHigh(10, 200); err != nil {
		t.Errorf("expected valid duties to be accepted, got %v", err)
	}
}

func TestReInitAfterFreqChange(t *testing.T) {
	ctrl, hw := newTestController(t, model.ChannelConfig{
		Channel: 2, Pin: 26, PWMChannel: 0, Mode: model.IOModeSpikeHoldOff,
		PWMFrequency: 1000, PWMResolutionBits: 16,
	})

	if err := ctrl.SetPWMFreqBits(5000, 10); err != nil {
		t.Fatalf("SetPWMFreqBits failed: %v", err)
	}
	// Not applied until re-init.
	if freq, bits, _ := hw.PWMConfig(0); freq != 1000 || bits != 16 {
		t.Errorf("expected unchanged hardware config before init, got %d/%d", freq, bits)
	}
	if err := ctrl.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if freq, bits, _ := hw.PWMConfig(0); freq != 5000 || bits != 10 {
		t.Errorf("expected 5000Hz/10bits after re-init, got %d/%d", freq, bits)
	}
}
