package flows

import (
	"context"
	"errors"
	"fmt"

	"nightbot/internal/media"
	"nightbot/internal/records"
	"nightbot/internal/task/engine"
	"nightbot/internal/task/scheduler"
	"nightbot/internal/transport"
	logx "nightbot/pkg/logx"
)

// Dispatcher executes fired jobs by payload kind. It satisfies
// scheduler.Dispatcher.
type Dispatcher struct {
	records Records
	sched   Scheduler
	tr      transport.MediaSender
	log     logx.Logger
}

func NewDispatcher(rec Records, sched Scheduler, tr transport.MediaSender, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{records: rec, sched: sched, tr: tr, log: log.With(logx.Comp("dispatcher"))}
}

func (d *Dispatcher) Dispatch(ctx context.Context, job scheduler.Job) error {
	switch p := job.Payload.(type) {
	case media.DeleteMessage:
		return d.deleteMessage(ctx, job.ID, p)
	case media.SendMedia:
		return d.sendMedia(ctx, job.ID, p)
	default:
		d.log.Error("unknown job payload", logx.JobID(job.ID), logx.String("payload", fmt.Sprintf("%T", job.Payload)))
		return engine.NoRetry(fmt.Errorf("unknown payload %T", job.Payload))
	}
}

func (d *Dispatcher) deleteMessage(ctx context.Context, jobID string, p media.DeleteMessage) error {
	err := d.tr.DeleteMessage(ctx, transport.MessageRef{ChatID: p.ChatID, MessageID: p.MessageID})
	switch {
	case err == nil:
		d.log.Debug("message deleted", logx.JobID(jobID), logx.ChatID(p.ChatID), logx.Int("message_id", p.MessageID))
		return nil
	case errors.Is(err, transport.ErrMessageGone):
		d.log.Info("message already gone or not deletable", logx.JobID(jobID), logx.ChatID(p.ChatID), logx.Int("message_id", p.MessageID), logx.Err(err))
		return nil
	default:
		d.log.Warn("delete message failed", logx.JobID(jobID), logx.ChatID(p.ChatID), logx.Int("message_id", p.MessageID), logx.Err(err))
		return retryPolicy(err)
	}
}

func (d *Dispatcher) sendMedia(ctx context.Context, jobID string, p media.SendMedia) error {
	_, err := d.records.GetScheduledMedia(ctx, p.UserID, p.ItemID)
	if errors.Is(err, records.ErrNotFound) {
		// Job outlived its record: stop it instead of firing every day.
		d.sched.RemoveJob(jobID)
		d.log.Warn("scheduled item missing, job removed", logx.JobID(jobID), logx.UserID(p.UserID), logx.ItemID(p.ItemID))
		return nil
	}
	if err != nil {
		// An unreachable store does not suppress the send.
		d.log.Warn("could not confirm scheduled item", logx.JobID(jobID), logx.ItemID(p.ItemID), logx.Err(err))
	}

	_, err = d.tr.SendMedia(ctx, transport.ChatTarget{ChatID: p.ChatID}, p.FileID, p.Type)
	if err != nil {
		d.log.Warn("send scheduled media failed", logx.JobID(jobID), logx.UserID(p.UserID), logx.ChatID(p.ChatID), logx.ItemID(p.ItemID), logx.Err(err))
		return retryPolicy(err)
	}
	d.log.Info("scheduled media sent", logx.JobID(jobID), logx.UserID(p.UserID), logx.ChatID(p.ChatID), logx.ItemID(p.ItemID))
	return nil
}

// retryPolicy maps transport failures onto engine retry semantics.
func retryPolicy(err error) error {
	var rl *transport.RateLimitError
	switch {
	case errors.As(err, &rl):
		return engine.RetryAfter(err, rl.RetryAfter)
	case errors.Is(err, transport.ErrUnsupportedMedia), errors.Is(err, transport.ErrPermanent):
		return engine.NoRetry(err)
	default:
		return err
	}
}
