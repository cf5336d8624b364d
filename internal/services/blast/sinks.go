package blast

import (
	"context"

	"wablast/internal/dispatch"
	"wablast/internal/eventbus"
	"wablast/internal/storage"
)

// BusProgress is the bus payload for per-recipient progress events.
type BusProgress struct {
	BatchID string
	Event   dispatch.ProgressEvent
}

// BusComplete is the bus payload for the terminal event of a batch.
// Exactly one is published per submitted batch, whether it finished,
// aborted, or was dropped at the queue.
type BusComplete struct {
	BatchID string
	// Error is non-empty when the batch did not finish cleanly.
	Error string
}

// statusSink folds events into the service's in-memory batch status.
// It never fails.
type statusSink struct {
	svc     *Service
	batchID string
}

func (s *statusSink) Progress(ev dispatch.ProgressEvent) error {
	s.svc.applyEvent(s.batchID, ev)
	return nil
}

func (s *statusSink) Complete() error { return nil }

// busSink publishes events to the in-memory bus, where CLI or UI
// subscribers pick them up. Publish is non-blocking and never fails.
type busSink struct {
	bus     eventbus.Bus
	batchID string
}

func (s *busSink) Progress(ev dispatch.ProgressEvent) error {
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeBlastProgress, Data: BusProgress{BatchID: s.batchID, Event: ev}})
	return nil
}

func (s *busSink) Complete() error {
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeBlastComplete, Data: BusComplete{BatchID: s.batchID}})
	return nil
}

// storeSink appends every outcome to the delivery log. A storage
// failure is a real sink failure: when outcomes can't be recorded the
// batch must not silently continue.
type storeSink struct {
	store   storage.Store
	batchID string
	ctx     context.Context
}

func (s *storeSink) Progress(ev dispatch.ProgressEvent) error {
	return s.store.AppendDelivery(s.ctx, storage.DeliveryRecord{
		BatchID:     s.batchID,
		RecipientID: ev.RecipientID,
		Name:        ev.Name,
		Phone:       ev.Phone,
		Status:      string(ev.Status),
		Error:       ev.Error,
		Processed:   ev.Processed,
		Total:       ev.Total,
	})
}

func (s *storeSink) Complete() error { return nil }
