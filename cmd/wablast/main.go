package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	sdnotify "github.com/coreos/go-systemd/v22/daemon"

	"wablast/internal/config"
	"wablast/internal/dispatch"
	"wablast/internal/eventbus"
	"wablast/internal/roster"
	"wablast/internal/services/blast"
	"wablast/internal/services/schedule"
	"wablast/internal/session"
	"wablast/internal/storage"
	"wablast/internal/transport"
	"wablast/internal/transport/deeplink"
	"wablast/internal/transport/telegram"
	"wablast/pkg/logx"
)

func main() {
	var (
		cfgPath    string
		rosterPath string
		msgPath    string
		msgText    string
		attach     bool
		interval   time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.StringVar(&rosterPath, "recipients", "", "recipients yaml; runs one batch and exits")
	flag.StringVar(&msgPath, "message", "", "message template file (one-shot mode)")
	flag.StringVar(&msgText, "text", "", "inline message template (one-shot mode)")
	flag.BoolVar(&attach, "attach", false, "attach each recipient's receipt (one-shot mode)")
	flag.DurationVar(&interval, "interval", 0, "pacing delay between recipients (one-shot mode)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath, oneShot{
		roster:   rosterPath,
		msgPath:  msgPath,
		msgText:  msgText,
		attach:   attach,
		interval: interval,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

type oneShot struct {
	roster   string
	msgPath  string
	msgText  string
	attach   bool
	interval time.Duration
}

func (o oneShot) active() bool { return o.roster != "" }

func run(ctx context.Context, cfgPath string, once oneShot) error {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		// One-shot runs work without a config file; the daemon needs one.
		if !(os.IsNotExist(err) && once.active()) {
			return err
		}
		cfg = &config.Config{}
		mgr.Commit(cfg)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || !cfg.Logging.File.Enabled,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	defer logSvc.Close()
	mgr.SetLogger(log)

	store, err := openStorage(cfg, log)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	sender, err := buildSender(cfg, log)
	if err != nil {
		return err
	}

	settle, err := config.ParseDurationField("session.settle_period", cfg.Session.SettlePeriod)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	sessions := session.NewStore(session.Config{SettlePeriod: settle}, session.BusChannel{Bus: bus}, log)
	dispatcher := dispatch.New(sender, log)

	blastCfg, err := blastConfig(cfg)
	if err != nil {
		return err
	}
	blaster := blast.New(blastCfg, dispatcher, sessions, bus, store, log)
	blaster.Start(ctx)
	defer blaster.Stop(context.Background())

	go logBusEvents(ctx, bus, log)

	if once.active() {
		if ct, ok := sender.(transport.ConnectionTester); ok {
			if err := ct.TestConnection(ctx); err != nil {
				log.Warn("connection test failed; attempting dispatch anyway", logx.Err(err))
			}
		}
		return runOnce(ctx, once, sessions, blaster, bus, log)
	}
	return runDaemon(ctx, mgr, cfg, logSvc, blaster, sessions, store, log)
}

func openStorage(cfg *config.Config, log logx.Logger) (storage.Store, error) {
	if cfg.Storage == nil {
		return nil, nil
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log)
}

func buildSender(cfg *config.Config, log logx.Logger) (transport.Sender, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Transport.Kind))
	switch kind {
	case "", "deeplink":
		openTimeout, err := config.ParseDurationField("transport.deeplink.open_timeout", cfg.Transport.Deeplink.OpenTimeout)
		if err != nil {
			return nil, err
		}
		return deeplink.New(deeplink.Config{
			OpenTimeout: openTimeout,
			RatePerSec:  cfg.Transport.Deeplink.RatePerSec,
		}, log), nil
	case "telegram":
		if cfg.Transport.Telegram == nil {
			return nil, errors.New("transport.telegram config is required for kind=telegram")
		}
		sendTimeout, err := config.ParseDurationField("transport.telegram.send_timeout", cfg.Transport.Telegram.SendTimeout)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{
			Token:       cfg.Transport.Telegram.Token,
			RatePerSec:  cfg.Transport.Telegram.RatePerSec,
			SendTimeout: sendTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}

func blastConfig(cfg *config.Config) (blast.Config, error) {
	ttl, err := config.ParseDurationField("blast.status_ttl", cfg.Blast.StatusTTL)
	if err != nil {
		return blast.Config{}, err
	}
	return blast.Config{
		Workers:   cfg.Blast.Workers,
		QueueSize: cfg.Blast.QueueSize,
		StatusTTL: ttl,
	}, nil
}

// logBusEvents surfaces session and progress events on the log so a
// headless run still shows the QR URL and per-recipient outcomes.
func logBusEvents(ctx context.Context, bus eventbus.Bus, log logx.Logger) {
	events, unsub := bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case eventbus.TypeSessionPending:
				payload, _ := ev.Data.(string)
				log.Info("scan to pair", logx.String("qr", payload))
			case eventbus.TypeBlastProgress:
				p, ok := ev.Data.(blast.BusProgress)
				if !ok {
					continue
				}
				f := []logx.Field{
					logx.String("recipient", p.Event.RecipientID),
					logx.String("phone", p.Event.Phone),
					logx.Int("processed", p.Event.Processed),
					logx.Int("total", p.Event.Total),
				}
				if p.Event.Status == dispatch.StatusFailed {
					log.Warn("failed "+p.Event.Name, append(f, logx.String("err", p.Event.Error))...)
				} else {
					log.Info("sent "+p.Event.Name, f...)
				}
			}
		}
	}
}

func runOnce(ctx context.Context, once oneShot, sessions *session.Store, blaster *blast.Service, bus eventbus.Bus, log logx.Logger) error {
	tmpl := once.msgText
	if once.msgPath != "" {
		b, err := os.ReadFile(once.msgPath)
		if err != nil {
			return err
		}
		tmpl = strings.TrimRight(string(b), "\n")
	}
	if tmpl == "" {
		return errors.New("one-shot mode needs -message or -text")
	}

	recipients, warnings, err := roster.Load(once.roster)
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Warn("roster warning", logx.String("warning", w))
	}

	if _, err := sessions.Connect(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	events, unsub := bus.Subscribe(16)
	defer unsub()

	id, accepted := blaster.Submit("cli", dispatch.BatchRequest{
		Recipients:    recipients,
		Template:      tmpl,
		AttachReceipt: once.attach,
		Interval:      once.interval,
	})
	if !accepted {
		return errors.New("blast queue full")
	}

	go func() {
		defer close(done)
		tick := time.NewTicker(100 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if ev.Type != eventbus.TypeBlastComplete {
					continue
				}
				if c, ok := ev.Data.(blast.BusComplete); ok && c.BatchID == id {
					return
				}
			case <-tick.C:
				// The bus may drop events under load; the batch status
				// is the source of truth.
				if st, ok := blaster.Status(id); ok && !st.Running && !st.DoneAt.IsZero() {
					return
				}
			}
		}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	st, ok := blaster.Status(id)
	if !ok {
		return errors.New("batch status lost")
	}
	if st.Error != "" {
		return errors.New(st.Error)
	}
	if st.Failed > 0 {
		return fmt.Errorf("%d of %d deliveries failed", st.Failed, st.Total)
	}
	log.Info("all deliveries sent", logx.Int("total", st.Total))
	return nil
}

func runDaemon(ctx context.Context, mgr *config.Manager, cfg *config.Config, logSvc *logx.Service, blaster *blast.Service, sessions *session.Store, store storage.Store, log logx.Logger) error {
	entries, err := schedule.Resolve(schedule.Parser(), cfg.Schedules)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return errors.New("daemon mode needs at least one schedule (or pass -recipients for a one-shot run)")
	}

	sched := schedule.New(entries, blaster, sessions, store, log)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	mgr.SetValidator(func(_ context.Context, c *config.Config) error {
		_, err := schedule.Resolve(schedule.Parser(), c.Schedules)
		return err
	})
	go func() {
		_ = mgr.Watch(ctx)
	}()

	updates := mgr.Subscribe(1)
	defer mgr.Unsubscribe(updates)

	if sent, err := sdnotify.SdNotify(false, sdnotify.SdNotifyReady); err != nil {
		log.Debug("sd_notify failed", logx.Err(err))
	} else if sent {
		log.Debug("sd_notify ready sent")
	}
	log.Info("daemon running", logx.Int("schedules", len(entries)))

	for {
		select {
		case <-ctx.Done():
			return nil
		case next := <-updates:
			if next == nil {
				continue
			}
			applyConfig(next, logSvc, blaster, sched, log)
		}
	}
}

func applyConfig(cfg *config.Config, logSvc *logx.Service, blaster *blast.Service, sched *schedule.Service, log logx.Logger) {
	logSvc.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || !cfg.Logging.File.Enabled,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})

	if bc, err := blastConfig(cfg); err != nil {
		log.Warn("blast config not applied", logx.Err(err))
	} else {
		blaster.Apply(bc)
	}

	entries, err := schedule.Resolve(schedule.Parser(), cfg.Schedules)
	if err != nil {
		// The watch validator should have caught this; keep running on
		// the previous schedule set.
		log.Warn("schedules not applied", logx.Err(err))
		return
	}
	if err := sched.Apply(entries); err != nil {
		log.Warn("schedules not applied", logx.Err(err))
		return
	}
	log.Info("config applied", logx.Int("schedules", len(entries)))
}
