// Package session owns the messaging-surface session state.
//
// The store is the dispatcher's precondition: a batch may only run
// against a connected session. The handshake here is a stand-in for a
// real pairing flow (the pending signal carries a QR-style URL that a
// frontend can display); it is not authentication with any real
// service.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"wablast/pkg/logx"
)

// SignalKind identifies a handshake notification.
type SignalKind string

const (
	SignalPending   SignalKind = "pending"
	SignalConnected SignalKind = "connected"
)

// Channel receives handshake signals. Implementations may forward them
// to a UI, an event bus, or just the log.
type Channel interface {
	Signal(ctx context.Context, kind SignalKind, payload string) error
}

// Session is a read-only snapshot of the store state.
// ID is non-empty if and only if Connected is true.
type Session struct {
	Connected bool
	ID        string
}

type Config struct {
	// SettlePeriod is how long Connect waits between emitting the
	// pending signal and committing the session. Default 3s.
	SettlePeriod time.Duration
}

// Store holds the session state. All transitions are serialized: a
// Connect that arrives while another Connect is settling blocks and
// then observes the already-connected session.
type Store struct {
	mu sync.Mutex

	connected bool
	id        string

	settle time.Duration
	ch     Channel
	log    logx.Logger
}

func NewStore(cfg Config, ch Channel, log logx.Logger) *Store {
	settle := cfg.SettlePeriod
	if settle <= 0 {
		settle = 3 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{settle: settle, ch: ch, log: log}
}

// Connect transitions the store to connected and returns the session.
//
// Already connected: returns the current session unchanged. Otherwise
// it emits a pending signal with a QR-style payload, waits the settle
// period, commits a fresh session id, and emits a connected signal.
// On any channel error the store is left fully disconnected.
func (s *Store) Connect(ctx context.Context) (Session, error) {
	// The lock is held across the whole handshake: at most one
	// transition is in flight, and concurrent callers end up with the
	// same session id.
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return Session{Connected: true, ID: s.id}, nil
	}

	if s.ch == nil {
		return Session{}, errors.New("session: no notification channel")
	}

	pending := "https://web.whatsapp.com/qr/" + uuid.NewString()
	if err := s.ch.Signal(ctx, SignalPending, pending); err != nil {
		return Session{}, err
	}
	s.log.Debug("session pending", logx.String("qr", pending))

	tmr := time.NewTimer(s.settle)
	select {
	case <-ctx.Done():
		if !tmr.Stop() {
			<-tmr.C
		}
		return Session{}, ctx.Err()
	case <-tmr.C:
	}

	id := uuid.NewString()
	if err := s.ch.Signal(ctx, SignalConnected, id); err != nil {
		// Not half-connected: the id is only committed below.
		return Session{}, err
	}

	s.connected = true
	s.id = id
	s.log.Info("session connected", logx.String("session", id))
	return Session{Connected: true, ID: id}, nil
}

// Disconnect unconditionally clears the session. No error conditions.
func (s *Store) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		s.log.Info("session disconnected", logx.String("session", s.id))
	}
	s.connected = false
	s.id = ""
}

// IsConnected is a pure read.
func (s *Store) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// Current returns the current session snapshot.
func (s *Store) Current() Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Session{Connected: s.connected, ID: s.id}
}
