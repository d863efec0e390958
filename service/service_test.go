package service

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dnmnsmith/Grbl-Esp32/model"
	"github.com/dnmnsmith/Grbl-Esp32/service/hal"
	"github.com/dnmnsmith/Grbl-Esp32/service/mqtt"
	"github.com/dnmnsmith/Grbl-Esp32/service/planner"
)

func TestServicePublishesChannelState(t *testing.T) {
	fake := mqtt.NewFake()
	svc, err := NewService(Config{}, model.Config{
		Channels: []model.ChannelConfig{
			{Channel: 1, Pin: 25, Mode: model.IOModeOnOff},
		},
	}, Dependencies{
		Log:       zerolog.Nop(),
		Bridge:    hal.NewVirtual(),
		Motion:    planner.Noop(),
		Publisher: fake,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	// Give Run a moment to register the state receiver.
	time.Sleep(50 * time.Millisecond)

	if err := svc.Dispatcher().SetAuxiliaryOutput(ctx, 1, true, 0); err != nil {
		t.Fatalf("SetAuxiliaryOutput failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		published := fake.Published()
		if len(published) > 0 {
			if published[0].Channel != 1 || !published[0].On {
				t.Errorf("unexpected published state: %+v", published[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for the channel state to be published")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Error("service did not stop after cancel")
	}
}

func TestServiceAutoOffEndToEnd(t *testing.T) {
	svc, err := NewService(Config{
		TickInterval: 5 * time.Millisecond,
	}, model.Config{
		Channels: []model.ChannelConfig{
			{Channel: 2, Pin: 26, PWMChannel: 0, Mode: model.IOModeSpikeHoldOff, SpikeLength: 10},
		},
	}, Dependencies{
		Log:    zerolog.Nop(),
		Bridge: hal.NewVirtual(),
		Motion: planner.Noop(),
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	// Give Run a moment to initialize the channels.
	time.Sleep(50 * time.Millisecond)

	if err := svc.Dispatcher().SetAuxiliaryOutput(ctx, 2, true, 30); err != nil {
		t.Fatalf("SetAuxiliaryOutput failed: %v", err)
	}
	ctrl, found := svc.Registry().ControllerByChannel(2)
	if !found {
		t.Fatal("channel 2 not configured")
	}
	if !ctrl.IsOn() {
		t.Fatal("expected channel 2 to be on")
	}

	deadline := time.Now().Add(2 * time.Second)
	for ctrl.IsOn() {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for auto-off")
		}
		time.Sleep(time.Millisecond)
	}
	if got := ctrl.Actual().Duty; got != 0 {
		t.Errorf("expected duty 0 after auto-off, got %d", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Error("service did not stop after cancel")
	}
}
