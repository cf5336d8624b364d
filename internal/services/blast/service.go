package blast

import (
	"context"
	"runtime/debug"
	"time"

	"wablast/internal/dispatch"
	"wablast/internal/eventbus"
	"wablast/internal/session"
	"wablast/internal/storage"
	"wablast/pkg/logx"
)

func New(cfg Config, d *dispatch.Dispatcher, sessions *session.Store, bus eventbus.Bus, store storage.Store, log logx.Logger) *Service {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = time.Hour
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:        cfg,
		dispatcher: d,
		sessions:   sessions,
		bus:        bus,
		store:      store,
		log:        log,
		queue:      make(chan job, cfg.QueueSize),
		status:     map[string]*BatchStatus{},
	}
}

// Apply updates runtime-tunable settings. Worker count takes effect
// on the next Start; queue capacity is fixed at construction.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = s.cfg.QueueSize
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = s.cfg.StatusTTL
	}
	s.cfg = cfg
}

func (s *Service) Start(ctx context.Context) {
	// If a Stop() is in progress, wait for it to complete (prevents
	// double worker pools).
	for {
		s.mu.Lock()
		if s.stopCh == nil {
			break
		}
		done := s.stopDone
		if done == nil {
			// already running
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}
	defer s.mu.Unlock()

	s.stopCh = make(chan struct{})
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	// Queue carries across restarts (pending batches remain pending).
	queue := s.queue
	stopCh := s.stopCh
	runCtx := s.runCtx

	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in blast worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue, idx)
		}()
	}

	s.log.Info("blast service started", logx.Int("workers", workers), logx.Int("queue_cap", cap(queue)))
}

func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	// If a stop is already in progress, just wait for it.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}

	done := make(chan struct{})
	s.stopDone = done
	stopCh := s.stopCh
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}

	go func() {
		s.workerWG.Wait()
		s.mu.Lock()
		s.stopCh = nil
		s.runCtx = nil
		s.stopDone = nil
		s.mu.Unlock()
		close(done)
		s.log.Info("blast service stopped", logx.Duration("took", time.Since(start)))
	}()

	select {
	case <-done:
	case <-ctx.Done():
		// stop continues in background
	}
}
