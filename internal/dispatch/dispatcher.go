// Package dispatch drives a batch of personalized messages to
// completion: render, deliver, report, pace, repeat.
//
// One recipient failing never stops the batch; the failure is captured
// in that recipient's progress event and the loop moves on. Only a
// sink failure (progress can no longer be communicated) or a missing
// session aborts a batch.
package dispatch

import (
	"context"
	"time"

	"wablast/internal/session"
	"wablast/internal/template"
	"wablast/internal/transport"
	"wablast/pkg/logx"
)

type Dispatcher struct {
	sender transport.Sender
	log    logx.Logger
}

func New(sender transport.Sender, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{sender: sender, log: log}
}

// Dispatch processes req strictly in order, one recipient at a time.
//
// Per recipient: the template is rendered with that recipient's
// tokens, the sender is invoked (receipt attached only when
// req.AttachReceipt), and the outcome goes to the sink as a progress
// event. Between recipients (not after the last) the configured
// interval elapses, regardless of the previous outcome.
//
// Returns ErrNotConnected before any work if sess is not connected,
// *SinkError if the sink rejects an event, ctx.Err() on cancellation.
// Delivery failures are not dispatch errors.
func (d *Dispatcher) Dispatch(ctx context.Context, req BatchRequest, sess session.Session, sink Sink) error {
	if !sess.Connected {
		return ErrNotConnected
	}

	total := len(req.Recipients)
	d.log.Info("batch started", logx.Int("total", total), logx.Duration("interval", req.Interval))

	for i, rec := range req.Recipients {
		if err := ctx.Err(); err != nil {
			return err
		}

		text := template.Render(req.Template, rec.Tokens)

		attachment := ""
		if req.AttachReceipt {
			attachment = rec.Receipt
		}

		ev := ProgressEvent{
			RecipientID: rec.ID,
			Name:        rec.Name,
			Phone:       rec.Phone,
			Status:      StatusSent,
			Processed:   i + 1,
			Total:       total,
		}
		if err := d.sender.Send(ctx, rec.Phone, text, attachment); err != nil {
			ev.Status = StatusFailed
			ev.Error = err.Error()
			d.log.Warn("delivery failed",
				logx.String("recipient", rec.ID),
				logx.String("phone", rec.Phone),
				logx.Err(err))
		}

		if err := sink.Progress(ev); err != nil {
			return &SinkError{Err: err}
		}

		if i < total-1 && req.Interval > 0 {
			if err := pace(ctx, req.Interval); err != nil {
				return err
			}
		}
	}

	if err := sink.Complete(); err != nil {
		return &SinkError{Err: err}
	}
	d.log.Info("batch complete", logx.Int("total", total))
	return nil
}

func pace(ctx context.Context, d time.Duration) error {
	tmr := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !tmr.Stop() {
			<-tmr.C
		}
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
