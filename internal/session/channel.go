package session

import (
	"context"

	"wablast/internal/eventbus"
	"wablast/pkg/logx"
)

// BusChannel forwards handshake signals to the event bus, where a UI
// or CLI subscriber can pick them up (e.g. to display the QR URL).
type BusChannel struct {
	Bus eventbus.Bus
}

func (c BusChannel) Signal(ctx context.Context, kind SignalKind, payload string) error {
	_ = ctx
	typ := eventbus.TypeSessionPending
	if kind == SignalConnected {
		typ = eventbus.TypeSessionConnected
	}
	c.Bus.Publish(eventbus.Event{Type: typ, Data: payload})
	return nil
}

// LogChannel writes handshake signals to the log. Handy for headless
// runs and tests.
type LogChannel struct {
	Log logx.Logger
}

func (c LogChannel) Signal(ctx context.Context, kind SignalKind, payload string) error {
	_ = ctx
	c.Log.Info("session signal", logx.String("kind", string(kind)), logx.String("payload", payload))
	return nil
}
