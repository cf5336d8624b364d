package blast

import (
	"context"
	"sync"
	"time"

	"wablast/internal/dispatch"
	"wablast/internal/eventbus"
	"wablast/internal/session"
	"wablast/internal/storage"
	"wablast/pkg/logx"
)

type Config struct {
	Workers   int
	QueueSize int
	// StatusTTL is how long finished batch statuses are retained.
	StatusTTL time.Duration
}

type job struct {
	id   string
	name string
	req  dispatch.BatchRequest
}

// BatchStatus is a caller-visible snapshot of one batch.
type BatchStatus struct {
	ID       string
	Name     string
	Total    int
	Done     int
	Failed   int
	Failures []string // recipient ids, capped
	// Error is set when the batch aborted (no session, sink failure).
	Error     string
	CreatedAt time.Time
	StartedAt time.Time
	DoneAt    time.Time
	Running   bool
}

type Service struct {
	mu sync.Mutex

	cfg        Config
	dispatcher *dispatch.Dispatcher
	sessions   *session.Store
	bus        eventbus.Bus
	store      storage.Store // may be nil
	log        logx.Logger

	queue  chan job
	stopCh chan struct{}
	// stopDone is non-nil while a Stop() is in progress; closed when
	// the workers fully exit.
	stopDone chan struct{}

	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup

	statusMu sync.RWMutex
	status   map[string]*BatchStatus
}
