// Package flows turns user commands and inbound media into durable records
// and scheduler jobs, and back again.
//
// Three flows share one pending-input table:
//   - deletion arms a per-chat timer; each media message gets its own
//     one-shot delete job
//   - scheduling stores a media item and registers a daily send job
//   - cancellation removes a stored item and its job
//
// Reconcile rebuilds the daily jobs from the store at startup and Dispatcher
// executes fired jobs.
package flows

import (
	"context"
	"iter"
	"time"

	"nightbot/internal/media"
	"nightbot/internal/records"
	"nightbot/internal/task/scheduler"
	"nightbot/internal/transport"
	logx "nightbot/pkg/logx"
)

// Records is the part of the record store adapter the flows use.
// *records.Store satisfies it.
type Records interface {
	GetUserSettings(ctx context.Context, uid int64) (records.UserSettings, error)
	SetDeleteTimer(ctx context.Context, uid int64, minutes int, chatID int64) error
	ClearDeleteTimer(ctx context.Context, uid int64) (bool, error)
	AddScheduledMedia(ctx context.Context, in records.NewScheduledMedia) (string, error)
	ListScheduledMedia(ctx context.Context, uid int64) ([]records.ScheduledMediaItem, error)
	GetScheduledMedia(ctx context.Context, uid int64, id string) (records.ScheduledMediaItem, error)
	DeleteScheduledMedia(ctx context.Context, uid int64, id string) error
	ScanAllScheduledMedia(ctx context.Context) iter.Seq2[records.ScanEntry, error]
}

// Scheduler is the job table. *scheduler.Service satisfies it.
type Scheduler interface {
	AddOneShot(id string, runAt time.Time, payload media.Payload) error
	AddDailyCron(id string, hour, minute int, payload media.Payload, replace bool) error
	GetJob(id string) (scheduler.JobInfo, bool)
	RemoveJob(id string) bool
}

// Clock is the time source for deletion due times.
type Clock interface {
	Now() time.Time
}

type Service struct {
	records Records
	sched   Scheduler
	clock   Clock
	pending *PendingStore
	log     logx.Logger
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func New(rec Records, sched Scheduler, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		records: rec,
		sched:   sched,
		clock:   scheduler.WallClock(),
		pending: NewPendingStore(),
		log:     log.With(logx.Comp("flows")),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// State returns the pending input of a user.
func (s *Service) State(uid int64) State { return s.pending.Get(uid) }

// Reset drops any pending input of a user.
func (s *Service) Reset(uid int64) { s.pending.Reset(uid) }

// Outcome describes what a routed media message did.
type Outcome struct {
	// Handled is false when the message was not consumed by any flow.
	Handled bool

	Deletion  *DeletionScheduled
	Scheduled *records.ScheduledMediaItem
}

// Route hands an inbound media message to the flow selected by the user's
// pending state. Messages without supported media are left to the caller
// unless a flow is waiting for media.
func (s *Service) Route(ctx context.Context, msg *transport.Message) (Outcome, error) {
	if msg == nil {
		return Outcome{}, nil
	}
	st := s.pending.Get(msg.FromID)
	switch st.Kind {
	case AwaitingScheduledMedia:
		item, err := s.HandleScheduledMedia(ctx, msg, st.Time)
		if err != nil {
			return Outcome{Handled: true}, err
		}
		return Outcome{Handled: true, Scheduled: &item}, nil
	case AwaitingDeleteMedia:
		if _, _, ok := transport.ExtractMedia(msg); !ok {
			return Outcome{}, nil
		}
		d, err := s.HandleDeletionMedia(ctx, msg)
		if err != nil {
			return Outcome{Handled: true}, err
		}
		return Outcome{Handled: true, Deletion: &d}, nil
	default:
		d, ok, err := s.resumeDeletion(ctx, msg)
		if err != nil || !ok {
			return Outcome{}, err
		}
		return Outcome{Handled: true, Deletion: &d}, nil
	}
}
