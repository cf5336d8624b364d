package deeplink

import (
	"context"
	"net/url"
	"os/exec"
	"strings"
	"testing"

	"wablast/pkg/logx"
)

func TestFormatPhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+62 812-3456-789", "628123456789"},
		{"(555) 010-9999", "5550109999"},
		{"628123456789", "628123456789"},
		{"no digits", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := FormatPhone(tc.in); got != tc.want {
			t.Fatalf("FormatPhone(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLink(t *testing.T) {
	link := Link("628123456789", "Hi Ana, total due 50")
	if !strings.HasPrefix(link, "whatsapp://send?") {
		t.Fatalf("unexpected link prefix: %q", link)
	}

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	q := u.Query()
	if got := q.Get("phone"); got != "628123456789" {
		t.Fatalf("phone = %q", got)
	}
	if got := q.Get("text"); got != "Hi Ana, total due 50" {
		t.Fatalf("text = %q", got)
	}
}

type fakeOpener struct {
	links []string
}

func (f *fakeOpener) cmd(ctx context.Context, link string) *exec.Cmd {
	f.links = append(f.links, link)
	return exec.CommandContext(ctx, "true")
}

func newTestSender(f *fakeOpener) *Sender {
	s := New(Config{}, logx.Nop())
	s.openCmd = f.cmd
	return s
}

func TestSendOpensPrefilledLink(t *testing.T) {
	f := &fakeOpener{}
	s := newTestSender(f)

	if err := s.Send(context.Background(), "+62 812-0001", "hi there", ""); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(f.links) != 1 {
		t.Fatalf("expected 1 opener invocation, got %d", len(f.links))
	}
	if want := Link("628120001", "hi there"); f.links[0] != want {
		t.Fatalf("opened %q, want %q", f.links[0], want)
	}
}

func TestSendRejectsDigitlessAddress(t *testing.T) {
	f := &fakeOpener{}
	s := newTestSender(f)

	if err := s.Send(context.Background(), "no digits here", "hi", ""); err == nil {
		t.Fatal("expected error for address without digits")
	}
	if len(f.links) != 0 {
		t.Fatalf("opener must not run for a bad address: %v", f.links)
	}
}

func TestSendIgnoresAttachment(t *testing.T) {
	f := &fakeOpener{}
	s := newTestSender(f)

	// Deep links cannot carry files; the text still goes out.
	if err := s.Send(context.Background(), "628120001", "hi", "./receipt.pdf"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(f.links) != 1 || f.links[0] != Link("628120001", "hi") {
		t.Fatalf("opened links: %v", f.links)
	}
}

func TestTestConnectionOpensBareURL(t *testing.T) {
	f := &fakeOpener{}
	s := newTestSender(f)

	if err := s.TestConnection(context.Background()); err != nil {
		t.Fatalf("TestConnection: %v", err)
	}
	if len(f.links) != 1 || f.links[0] != "whatsapp://" {
		t.Fatalf("opened links: %v", f.links)
	}
}

func TestSendUnsupportedPlatform(t *testing.T) {
	s := New(Config{}, logx.Nop())
	s.openCmd = func(ctx context.Context, link string) *exec.Cmd { return nil }

	err := s.Send(context.Background(), "628120001", "hi", "")
	if err == nil || !strings.Contains(err.Error(), "unsupported platform") {
		t.Fatalf("expected unsupported-platform error, got %v", err)
	}
}
