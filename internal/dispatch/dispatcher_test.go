package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"wablast/internal/session"
	"wablast/pkg/logx"
)

type sentCall struct {
	address    string
	text       string
	attachment string
}

type fakeSender struct {
	calls  []sentCall
	failAt map[int]error // 0-based call index -> error
}

func (f *fakeSender) Send(ctx context.Context, address, text, attachment string) error {
	idx := len(f.calls)
	f.calls = append(f.calls, sentCall{address: address, text: text, attachment: attachment})
	if err, ok := f.failAt[idx]; ok {
		return err
	}
	return nil
}

type recordSink struct {
	events    []ProgressEvent
	completed int

	failProgressAt int // 1-based Processed value to fail on; 0 = never
	failComplete   bool
}

func (r *recordSink) Progress(ev ProgressEvent) error {
	if r.failProgressAt != 0 && ev.Processed == r.failProgressAt {
		return errors.New("sink rejected event")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordSink) Complete() error {
	if r.failComplete {
		return errors.New("sink rejected completion")
	}
	r.completed++
	return nil
}

func connectedSession() session.Session {
	return session.Session{Connected: true, ID: "test-session"}
}

func recipients(n int) []Recipient {
	out := make([]Recipient, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Recipient{
			ID:    fmt.Sprintf("r%d", i+1),
			Name:  fmt.Sprintf("Name%d", i+1),
			Phone: fmt.Sprintf("62812%04d", i+1),
		})
	}
	return out
}

func TestDispatchHappyPath(t *testing.T) {
	sender := &fakeSender{}
	sink := &recordSink{}
	d := New(sender, logx.Nop())

	req := BatchRequest{
		Recipients: []Recipient{
			{ID: "s1", Name: "Ana", Phone: "111", Tokens: map[string]string{"name": "Ana", "amount": "50"}},
			{ID: "s2", Name: "Bob", Phone: "222", Tokens: map[string]string{"name": "Bob"}},
			{ID: "s3", Name: "Cig", Phone: "333", Tokens: map[string]string{"name": "Cig", "amount": "75"}},
		},
		Template: "Hi {name}, total due {amount}",
	}

	if err := d.Dispatch(context.Background(), req, connectedSession(), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(sink.events) != 3 {
		t.Fatalf("expected 3 progress events, got %d", len(sink.events))
	}
	if sink.completed != 1 {
		t.Fatalf("expected 1 completion event, got %d", sink.completed)
	}

	wantTexts := []string{
		"Hi Ana, total due 50",
		"Hi Bob, total due {amount}",
		"Hi Cig, total due 75",
	}
	for i, ev := range sink.events {
		if ev.Processed != i+1 || ev.Total != 3 {
			t.Fatalf("event %d: processed=%d total=%d", i, ev.Processed, ev.Total)
		}
		if ev.Status != StatusSent || ev.Error != "" {
			t.Fatalf("event %d: unexpected status %q (%q)", i, ev.Status, ev.Error)
		}
		if sender.calls[i].text != wantTexts[i] {
			t.Fatalf("call %d: text %q, want %q", i, sender.calls[i].text, wantTexts[i])
		}
	}
	if sink.events[1].RecipientID != "s2" || sink.events[1].Phone != "222" {
		t.Fatalf("event order broken: %+v", sink.events[1])
	}
}

func TestDispatchNotConnected(t *testing.T) {
	sender := &fakeSender{}
	sink := &recordSink{}
	d := New(sender, logx.Nop())

	req := BatchRequest{Recipients: recipients(2), Template: "hi"}
	err := d.Dispatch(context.Background(), req, session.Session{}, sink)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if len(sender.calls) != 0 {
		t.Fatalf("no deliveries must be attempted, got %d", len(sender.calls))
	}
	if len(sink.events) != 0 || sink.completed != 0 {
		t.Fatalf("no events must be emitted: %d progress, %d complete", len(sink.events), sink.completed)
	}
}

func TestDispatchFailureIsolation(t *testing.T) {
	sender := &fakeSender{failAt: map[int]error{1: errors.New("channel refused")}}
	sink := &recordSink{}
	d := New(sender, logx.Nop())

	req := BatchRequest{Recipients: recipients(4), Template: "hi {name}"}
	if err := d.Dispatch(context.Background(), req, connectedSession(), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if len(sink.events) != 4 || sink.completed != 1 {
		t.Fatalf("failure must not stop the batch: %d events, %d complete", len(sink.events), sink.completed)
	}
	if sink.events[1].Status != StatusFailed || sink.events[1].Error != "channel refused" {
		t.Fatalf("failed event not captured: %+v", sink.events[1])
	}
	for _, i := range []int{0, 2, 3} {
		if sink.events[i].Status != StatusSent {
			t.Fatalf("event %d: expected sent, got %+v", i, sink.events[i])
		}
	}
	// Counts stay correct past the failure.
	if sink.events[3].Processed != 4 || sink.events[3].Total != 4 {
		t.Fatalf("counts wrong after failure: %+v", sink.events[3])
	}
	// Exactly one delivery attempt per recipient, no retry.
	if len(sender.calls) != 4 {
		t.Fatalf("expected 4 send attempts, got %d", len(sender.calls))
	}
}

func TestDispatchSinkErrorAborts(t *testing.T) {
	sender := &fakeSender{}
	sink := &recordSink{failProgressAt: 2}
	d := New(sender, logx.Nop())

	req := BatchRequest{Recipients: recipients(5), Template: "hi"}
	err := d.Dispatch(context.Background(), req, connectedSession(), sink)

	var se *SinkError
	if !errors.As(err, &se) {
		t.Fatalf("expected SinkError, got %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("only the first event should have been accepted, got %d", len(sink.events))
	}
	// The third recipient onward must never be attempted.
	if len(sender.calls) != 2 {
		t.Fatalf("expected 2 send attempts before abort, got %d", len(sender.calls))
	}
	if sink.completed != 0 {
		t.Fatal("no completion event after sink failure")
	}
}

func TestDispatchCompletionSinkError(t *testing.T) {
	sender := &fakeSender{}
	sink := &recordSink{failComplete: true}
	d := New(sender, logx.Nop())

	req := BatchRequest{Recipients: recipients(1), Template: "hi"}
	err := d.Dispatch(context.Background(), req, connectedSession(), sink)
	var se *SinkError
	if !errors.As(err, &se) {
		t.Fatalf("expected SinkError, got %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("progress event should still have been emitted, got %d", len(sink.events))
	}
}

func TestDispatchEmptyBatch(t *testing.T) {
	sender := &fakeSender{}
	sink := &recordSink{}
	d := New(sender, logx.Nop())

	if err := d.Dispatch(context.Background(), BatchRequest{Template: "hi"}, connectedSession(), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("empty batch must emit no progress events, got %d", len(sink.events))
	}
	if sink.completed != 1 {
		t.Fatalf("completion event still expected, got %d", sink.completed)
	}
}

func TestDispatchDuplicateIDsAccepted(t *testing.T) {
	sender := &fakeSender{}
	sink := &recordSink{}
	d := New(sender, logx.Nop())

	req := BatchRequest{
		Recipients: []Recipient{
			{ID: "dup", Phone: "111"},
			{ID: "dup", Phone: "222"},
		},
		Template: "hi",
	}
	if err := d.Dispatch(context.Background(), req, connectedSession(), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sink.events) != 2 {
		t.Fatalf("duplicate ids must be accepted, got %d events", len(sink.events))
	}
	// Consumers reconcile by position.
	if sink.events[0].Processed != 1 || sink.events[1].Processed != 2 {
		t.Fatalf("positions wrong: %+v", sink.events)
	}
}

func TestDispatchAttachment(t *testing.T) {
	sender := &fakeSender{}
	sink := &recordSink{}
	d := New(sender, logx.Nop())

	recs := []Recipient{{ID: "r1", Phone: "111", Receipt: "/tmp/receipt.pdf"}}

	req := BatchRequest{Recipients: recs, Template: "hi", AttachReceipt: true}
	if err := d.Dispatch(context.Background(), req, connectedSession(), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := sender.calls[0].attachment; got != "/tmp/receipt.pdf" {
		t.Fatalf("attachment not passed: %q", got)
	}

	// AttachReceipt off: the receipt path must not reach the sender.
	sender.calls = nil
	req.AttachReceipt = false
	if err := d.Dispatch(context.Background(), req, connectedSession(), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got := sender.calls[0].attachment; got != "" {
		t.Fatalf("attachment leaked with AttachReceipt=false: %q", got)
	}
}

func TestDispatchZeroIntervalIsImmediate(t *testing.T) {
	sender := &fakeSender{}
	sink := &recordSink{}
	d := New(sender, logx.Nop())

	req := BatchRequest{Recipients: recipients(50), Template: "hi", Interval: 0}
	start := time.Now()
	if err := d.Dispatch(context.Background(), req, connectedSession(), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("zero interval should dispatch back-to-back, took %v", took)
	}
	if len(sink.events) != 50 || sink.completed != 1 {
		t.Fatalf("got %d events, %d complete", len(sink.events), sink.completed)
	}
}

func TestDispatchPacingBetweenRecipients(t *testing.T) {
	sender := &fakeSender{failAt: map[int]error{0: errors.New("boom")}}
	sink := &recordSink{}
	d := New(sender, logx.Nop())

	// Failure of the first recipient must not skip the pacing delay.
	req := BatchRequest{Recipients: recipients(3), Template: "hi", Interval: 30 * time.Millisecond}
	start := time.Now()
	if err := d.Dispatch(context.Background(), req, connectedSession(), sink); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	// Two gaps for three recipients, none after the last.
	if took := time.Since(start); took < 60*time.Millisecond {
		t.Fatalf("expected at least two pacing gaps, took %v", took)
	}
}

func TestDispatchCancelDuringPacing(t *testing.T) {
	sender := &fakeSender{}
	sink := &recordSink{}
	d := New(sender, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	req := BatchRequest{Recipients: recipients(3), Template: "hi", Interval: time.Minute}
	err := d.Dispatch(ctx, req, connectedSession(), sink)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if sink.completed != 0 {
		t.Fatal("cancelled batch must not emit completion")
	}
}
