package dispatch

// Sink receives the ordered progress stream of one batch: one Progress
// call per recipient, then exactly one Complete call. Implementations
// must not reorder; ownership of the event passes to the sink.
type Sink interface {
	Progress(ev ProgressEvent) error
	Complete() error
}

// MultiSink fans events out to several sinks in order. The first
// failing sink aborts the emission (and thus the batch).
type MultiSink []Sink

func (m MultiSink) Progress(ev ProgressEvent) error {
	for _, s := range m {
		if err := s.Progress(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m MultiSink) Complete() error {
	for _, s := range m {
		if err := s.Complete(); err != nil {
			return err
		}
	}
	return nil
}
