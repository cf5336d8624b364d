package blast

import (
	"time"

	"github.com/google/uuid"

	"wablast/internal/dispatch"
	"wablast/internal/eventbus"
	"wablast/pkg/logx"
)

// Submit queues a batch and returns its id. Queueing never blocks: if
// the queue is full the batch is marked failed immediately, accepted
// is false, and the terminal bus event is published right away.
func (s *Service) Submit(name string, req dispatch.BatchRequest) (id string, accepted bool) {
	now := time.Now()
	id = uuid.NewString()
	s.pruneStatus(now)

	st := &BatchStatus{ID: id, Name: name, Total: len(req.Recipients), CreatedAt: now}
	s.statusMu.Lock()
	s.status[id] = st
	s.statusMu.Unlock()

	select {
	case s.queue <- job{id: id, name: name, req: req}:
		s.log.Debug("batch enqueued",
			logx.String("batch", id),
			logx.String("name", name),
			logx.Int("total", len(req.Recipients)),
			logx.Int("queue_len", len(s.queue)))
		return id, true
	default:
		s.log.Warn("blast queue full; dropping batch",
			logx.String("batch", id),
			logx.String("name", name),
			logx.Int("queue_cap", cap(s.queue)))
		s.statusMu.Lock()
		if st := s.status[id]; st != nil {
			st.DoneAt = time.Now()
			st.Error = "queue full"
		}
		s.statusMu.Unlock()
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeBlastComplete, Data: BusComplete{BatchID: id, Error: "queue full"}})
		return id, false
	}
}

// Status returns a copy of the batch status.
func (s *Service) Status(id string) (BatchStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[id]
	if !ok || st == nil {
		return BatchStatus{}, false
	}
	cp := *st
	if len(st.Failures) > 0 {
		cp.Failures = append([]string(nil), st.Failures...)
	}
	return cp, true
}

// pruneStatus drops finished statuses older than the TTL. Called
// opportunistically from Submit; running batches are never pruned.
func (s *Service) pruneStatus(now time.Time) {
	s.mu.Lock()
	ttl := s.cfg.StatusTTL
	s.mu.Unlock()

	cutoff := now.Add(-ttl)
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	for id, st := range s.status {
		if st == nil {
			delete(s.status, id)
			continue
		}
		if st.Running || st.DoneAt.IsZero() {
			continue
		}
		if st.DoneAt.Before(cutoff) {
			delete(s.status, id)
		}
	}
}
