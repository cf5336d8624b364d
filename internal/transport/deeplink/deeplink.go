// Package deeplink delivers messages by handing a whatsapp:// URL to
// the platform opener. It is a thin OS shim: the desktop app composes
// and actually transmits the message, we only open the prefilled link.
package deeplink

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"wablast/pkg/logx"
)

const scheme = "whatsapp://"

type Config struct {
	// OpenTimeout bounds each opener invocation. Default 10s.
	OpenTimeout time.Duration
	// RatePerSec throttles link opens across all batches sharing this
	// sender. <= 0 disables throttling.
	RatePerSec int
}

type Sender struct {
	cfg     Config
	log     logx.Logger
	limiter *rate.Limiter

	// openCmd is swappable for tests.
	openCmd func(ctx context.Context, url string) *exec.Cmd
}

func New(cfg Config, log logx.Logger) *Sender {
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Sender{cfg: cfg, log: log, openCmd: platformOpenCmd}
	if cfg.RatePerSec > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	return s
}

// Send opens a prefilled chat link for the given phone and text.
// Attachments cannot ride a deep link; a non-empty attachment is
// reported in the log and otherwise ignored.
func (s *Sender) Send(ctx context.Context, address, text, attachment string) error {
	phone := FormatPhone(address)
	if phone == "" {
		return fmt.Errorf("address %q has no digits", address)
	}
	if attachment != "" {
		s.log.Warn("deep links cannot carry attachments; sending text only", logx.String("attachment", attachment))
	}
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return s.open(ctx, Link(phone, text))
}

// TestConnection opens the bare app URL, mirroring a manual "does the
// app even launch" check.
func (s *Sender) TestConnection(ctx context.Context) error {
	return s.open(ctx, scheme)
}

func (s *Sender) open(ctx context.Context, link string) error {
	octx, cancel := context.WithTimeout(ctx, s.cfg.OpenTimeout)
	defer cancel()

	cmd := s.openCmd(octx, link)
	if cmd == nil {
		return errors.New("unsupported platform: " + runtime.GOOS)
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("open %s: %w", scheme, err)
	}
	s.log.Debug("deep link opened", logx.String("url", truncateLink(link)))
	return nil
}

// Link builds the whatsapp send deep link for a digits-only phone.
func Link(phone, text string) string {
	v := url.Values{}
	v.Set("phone", phone)
	v.Set("text", text)
	return scheme + "send?" + v.Encode()
}

// FormatPhone strips a phone-like string down to its ASCII digits
// ("+62 812-3456" -> "628123456").
func FormatPhone(address string) string {
	var b strings.Builder
	for _, r := range address {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func platformOpenCmd(ctx context.Context, link string) *exec.Cmd {
	switch runtime.GOOS {
	case "windows":
		return exec.CommandContext(ctx, "cmd", "/C", "start", link)
	case "darwin":
		return exec.CommandContext(ctx, "open", link)
	case "linux":
		return exec.CommandContext(ctx, "xdg-open", link)
	default:
		return nil
	}
}

func truncateLink(s string) string {
	if len(s) <= 120 {
		return s
	}
	return s[:117] + "..."
}
