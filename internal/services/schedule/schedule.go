// Package schedule runs recurring batches from config.
//
// Each entry is a cron spec plus a roster file and a template. On
// every tick the roster and template are re-read, so edits take effect
// without a restart. An optional dedup window skips recipients this
// schedule already messaged recently; marks are written at submit
// time, so a failed delivery is not retried within the window.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"wablast/internal/config"
	"wablast/internal/dispatch"
	"wablast/internal/roster"
	"wablast/internal/services/blast"
	"wablast/internal/session"
	"wablast/internal/storage"
	"wablast/pkg/logx"
)

// Entry is one resolved recurring batch.
type Entry struct {
	Name          string
	Spec          string
	Roster        string
	Template      string // inline template, or
	TemplateFile  string // path re-read on every run
	AttachReceipt bool
	Interval      time.Duration
	DedupWindow   time.Duration
}

// Resolve converts config schedules into entries, validating specs and
// durations up front so a bad config is rejected before commit.
func Resolve(parser cron.Parser, cfgs []config.ScheduleConfig) ([]Entry, error) {
	entries := make([]Entry, 0, len(cfgs))
	for i, c := range cfgs {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("schedules[%d]: name is required", i)
		}
		if strings.TrimSpace(c.Recipients) == "" {
			return nil, fmt.Errorf("schedule %q: recipients file is required", name)
		}
		if c.Template == "" && c.TemplateFile == "" {
			return nil, fmt.Errorf("schedule %q: template or template_file is required", name)
		}
		if _, err := parser.Parse(c.Spec); err != nil {
			return nil, fmt.Errorf("schedule %q: bad spec %q: %w", name, c.Spec, err)
		}
		interval, err := config.ParseDurationField("schedules."+name+".interval", c.Interval)
		if err != nil {
			return nil, err
		}
		window, err := config.ParseDurationField("schedules."+name+".dedup_window", c.DedupWindow)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{
			Name:          name,
			Spec:          c.Spec,
			Roster:        c.Recipients,
			Template:      c.Template,
			TemplateFile:  c.TemplateFile,
			AttachReceipt: c.AttachReceipt,
			Interval:      interval,
			DedupWindow:   window,
		})
	}
	return entries, nil
}

type Service struct {
	mu sync.Mutex

	log      logx.Logger
	parser   cron.Parser
	c        *cron.Cron
	entries  []Entry
	blaster  *blast.Service
	sessions *session.Store
	store    storage.Store // may be nil; dedup windows need it

	runCtx    context.Context
	runCancel context.CancelFunc
}

// Parser returns the cron parser used for schedule specs: standard
// five fields plus descriptors like "@daily" and "@every 12h".
func Parser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func New(entries []Entry, blaster *blast.Service, sessions *session.Store, store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:      log,
		parser:   Parser(),
		entries:  entries,
		blaster:  blaster,
		sessions: sessions,
		store:    store,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	return s.startLocked()
}

func (s *Service) startLocked() error {
	c := cron.New(cron.WithParser(s.parser))
	for _, e := range s.entries {
		entry := e
		if _, err := c.AddFunc(entry.Spec, func() { s.run(entry) }); err != nil {
			return fmt.Errorf("schedule %q: %w", entry.Name, err)
		}
	}
	c.Start()
	s.c = c
	s.log.Info("schedules started", logx.Int("count", len(s.entries)))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	stopCtx := s.c.Stop()
	s.c = nil
	// Wait briefly for in-flight ticks; batches themselves keep running
	// inside the blast service.
	select {
	case <-stopCtx.Done():
	case <-time.After(2 * time.Second):
	}
	s.log.Info("schedules stopped")
}

// Apply swaps the schedule set; the cron runner restarts if active.
func (s *Service) Apply(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
	if s.c == nil {
		return nil
	}
	s.c.Stop()
	s.c = nil
	return s.startLocked()
}

func (s *Service) run(e Entry) {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	log := s.log.With(logx.String("schedule", e.Name))

	if _, err := s.sessions.Connect(ctx); err != nil {
		log.Error("session connect failed; skipping run", logx.Err(err))
		return
	}

	recipients, warnings, err := roster.Load(e.Roster)
	if err != nil {
		log.Error("roster load failed; skipping run", logx.String("path", e.Roster), logx.Err(err))
		return
	}
	for _, w := range warnings {
		log.Warn("roster warning", logx.String("warning", w))
	}

	tmpl, err := s.templateFor(e)
	if err != nil {
		log.Error("template load failed; skipping run", logx.Err(err))
		return
	}

	if e.DedupWindow > 0 {
		recipients = s.filterRecent(ctx, e, recipients, log)
	}
	if len(recipients) == 0 {
		log.Debug("nothing to send")
		return
	}

	id, accepted := s.blaster.Submit("schedule:"+e.Name, dispatch.BatchRequest{
		Recipients:    recipients,
		Template:      tmpl,
		AttachReceipt: e.AttachReceipt,
		Interval:      e.Interval,
	})
	if !accepted {
		// Dropped batches must not mark anyone as messaged; the next
		// tick retries the full roster.
		log.Warn("batch dropped by full queue; send marks not written", logx.String("batch", id))
		return
	}
	log.Info("batch submitted", logx.String("batch", id), logx.Int("total", len(recipients)))

	if e.DedupWindow > 0 && s.store != nil {
		until := time.Now().Add(e.DedupWindow)
		for _, r := range recipients {
			key := storage.SendMarkKey(e.Name, r.ID, r.Phone)
			if err := s.store.PutSendMark(ctx, key, until); err != nil {
				log.Warn("send mark write failed", logx.String("recipient", r.ID), logx.Err(err))
			}
		}
	}
}

func (s *Service) templateFor(e Entry) (string, error) {
	if e.TemplateFile != "" {
		b, err := os.ReadFile(e.TemplateFile)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(b), "\n"), nil
	}
	if e.Template == "" {
		return "", errors.New("empty template")
	}
	return e.Template, nil
}

func (s *Service) filterRecent(ctx context.Context, e Entry, in []dispatch.Recipient, log logx.Logger) []dispatch.Recipient {
	if s.store == nil {
		log.Warn("dedup window configured but storage is disabled; sending to all")
		return in
	}
	out := in[:0:0]
	for _, r := range in {
		key := storage.SendMarkKey(e.Name, r.ID, r.Phone)
		_, seen, err := s.store.GetSendMark(ctx, key)
		if err != nil {
			log.Warn("send mark read failed; including recipient", logx.String("recipient", r.ID), logx.Err(err))
			seen = false
		}
		if !seen {
			out = append(out, r)
		}
	}
	if skipped := len(in) - len(out); skipped > 0 {
		log.Debug("recipients skipped by dedup window", logx.Int("skipped", skipped))
	}
	return out
}
