package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wablast/pkg/logx"
)

type recordChannel struct {
	mu      sync.Mutex
	signals []SignalKind
	failOn  SignalKind
}

func (c *recordChannel) Signal(ctx context.Context, kind SignalKind, payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failOn == kind {
		return errors.New("channel down")
	}
	c.signals = append(c.signals, kind)
	return nil
}

func newTestStore(ch Channel) *Store {
	return NewStore(Config{SettlePeriod: time.Millisecond}, ch, logx.Nop())
}

func TestConnectTransitions(t *testing.T) {
	ch := &recordChannel{}
	s := newTestStore(ch)

	if s.IsConnected() {
		t.Fatal("new store must start disconnected")
	}

	sess, err := s.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if !sess.Connected || sess.ID == "" {
		t.Fatalf("unexpected session after connect: %+v", sess)
	}
	if !s.IsConnected() {
		t.Fatal("store must report connected")
	}
	if len(ch.signals) != 2 || ch.signals[0] != SignalPending || ch.signals[1] != SignalConnected {
		t.Fatalf("unexpected signal order: %v", ch.signals)
	}
}

func TestConnectIdempotent(t *testing.T) {
	ch := &recordChannel{}
	s := newTestStore(ch)

	first, err := s.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	second, err := s.Connect(context.Background())
	if err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("connect on connected store must return same session: %q vs %q", first.ID, second.ID)
	}
	if len(ch.signals) != 2 {
		t.Fatalf("second connect must not re-signal, got %v", ch.signals)
	}
}

func TestDisconnectClearsSession(t *testing.T) {
	s := newTestStore(&recordChannel{})

	if _, err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	s.Disconnect()
	if s.IsConnected() {
		t.Fatal("store must be disconnected")
	}
	if cur := s.Current(); cur.Connected || cur.ID != "" {
		t.Fatalf("lingering session after disconnect: %+v", cur)
	}

	// Disconnect on a disconnected store is a no-op.
	s.Disconnect()
}

func TestChannelFailureLeavesDisconnected(t *testing.T) {
	for _, failOn := range []SignalKind{SignalPending, SignalConnected} {
		s := newTestStore(&recordChannel{failOn: failOn})
		if _, err := s.Connect(context.Background()); err == nil {
			t.Fatalf("failOn=%s: expected error", failOn)
		}
		if s.IsConnected() {
			t.Fatalf("failOn=%s: store must not be half-connected", failOn)
		}
		if cur := s.Current(); cur.ID != "" {
			t.Fatalf("failOn=%s: session id must be empty, got %q", failOn, cur.ID)
		}
	}
}

func TestConnectCancelled(t *testing.T) {
	s := NewStore(Config{SettlePeriod: time.Minute}, &recordChannel{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()
	if _, err := s.Connect(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if s.IsConnected() {
		t.Fatal("cancelled connect must leave the store disconnected")
	}
}

func TestConcurrentConnectSingleID(t *testing.T) {
	s := newTestStore(&recordChannel{})

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			sess, err := s.Connect(context.Background())
			if err != nil {
				t.Errorf("Connect: %v", err)
				return
			}
			ids[i] = sess.ID
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("concurrent connects produced distinct ids: %q vs %q", ids[0], ids[i])
		}
	}
}
