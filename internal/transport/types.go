// Package transport defines the delivery-client contract the dispatcher
// depends on, shared by all concrete senders.
package transport

import "context"

// Sender attempts delivery of one rendered message to one recipient.
//
// address is a transport-specific destination (a phone-like string for
// the deep-link sender, a chat id for Telegram). attachment is an
// optional path to content the sender may resolve; empty means none.
// The returned error is a human-readable description of the failure;
// the dispatcher captures it per recipient and carries on.
//
// If concurrent batches must share a downstream resource, that
// discipline (rate limits, mutual exclusion) belongs to the Sender.
type Sender interface {
	Send(ctx context.Context, address, text, attachment string) error
}

// ConnectionTester is an optional interface for senders that can probe
// whether the downstream application is reachable at all.
type ConnectionTester interface {
	TestConnection(ctx context.Context) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, address, text, attachment string) error

func (f SenderFunc) Send(ctx context.Context, address, text, attachment string) error {
	return f(ctx, address, text, attachment)
}
