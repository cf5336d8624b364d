package blast

import (
	"context"
	"time"

	"wablast/internal/dispatch"
	"wablast/internal/eventbus"
	"wablast/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job, idx int) {
	for {
		// fast-exit so stop wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.runBatch(ctx, j)
		}
	}
}

func (s *Service) runBatch(ctx context.Context, j job) {
	start := time.Now()
	s.setRunning(j.id)
	s.log.Info("batch started", logx.String("batch", j.id), logx.String("name", j.name), logx.Int("total", len(j.req.Recipients)))

	sink := dispatch.MultiSink{
		&statusSink{svc: s, batchID: j.id},
		&busSink{bus: s.bus, batchID: j.id},
	}
	if s.store != nil {
		sink = append(sink, &storeSink{store: s.store, batchID: j.id, ctx: ctx})
	}

	err := s.dispatcher.Dispatch(ctx, j.req, s.sessions.Current(), sink)
	s.finish(j.id, err)

	// The dispatcher never reaches sink.Complete() on abort; the
	// terminal event must still go out so waiters unblock.
	if err != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeBlastComplete, Data: BusComplete{BatchID: j.id, Error: err.Error()}})
	}

	st, _ := s.Status(j.id)
	fields := []logx.Field{
		logx.String("batch", j.id),
		logx.String("name", j.name),
		logx.Int("total", st.Total),
		logx.Int("failed", st.Failed),
		logx.Duration("dur", time.Since(start)),
	}
	switch {
	case err != nil:
		s.log.Error("batch aborted", append(fields, logx.Err(err))...)
	case st.Failed > 0:
		s.log.Warn("batch finished with failures", fields...)
	default:
		s.log.Info("batch finished", fields...)
	}
}

func (s *Service) setRunning(id string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		st.StartedAt = time.Now()
		st.Running = true
	}
}

func (s *Service) applyEvent(id string, ev dispatch.ProgressEvent) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	st := s.status[id]
	if st == nil {
		return
	}
	st.Done++
	if ev.Status == dispatch.StatusFailed {
		st.Failed++
		if len(st.Failures) < 200 {
			st.Failures = append(st.Failures, ev.RecipientID)
		}
	}
}

func (s *Service) finish(id string, err error) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		st.DoneAt = time.Now()
		st.Running = false
		if err != nil {
			st.Error = err.Error()
		}
	}
}
