package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"nightbot/internal/eventbus"
	"nightbot/internal/media"
	"nightbot/internal/task/engine"
	logx "nightbot/pkg/logx"
)

// Config controls how fired jobs are handed to the runner.
type Config struct {
	// JobTimeout bounds one attempt of a fired job. 0 uses the engine default.
	JobTimeout time.Duration
	// RetryMax overrides the engine retry budget for fired jobs. 0 keeps the
	// engine default, negative disables retries.
	RetryMax int
}

var (
	ErrJobExists = errors.New("scheduler: job already exists")
	ErrNoPayload = errors.New("scheduler: payload required")
)

// ValidationError reports a rejected job definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scheduler: invalid %s: %s", e.Field, e.Reason)
}

type Kind int

const (
	OneShot Kind = iota + 1
	Daily
)

func (k Kind) String() string {
	switch k {
	case OneShot:
		return "one_shot"
	case Daily:
		return "daily"
	default:
		return "unknown"
	}
}

// Job is the immutable definition of a scheduled unit of work.
type Job struct {
	ID      string
	Kind    Kind
	RunAt   time.Time       // OneShot
	At      media.TimeOfDay // Daily, UTC
	Payload media.Payload
}

// JobInfo is a point-in-time view of a job for callers and ops endpoints.
type JobInfo struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Payload string    `json:"payload"`
	At      string    `json:"at,omitempty"`
	Next    time.Time `json:"next"`
	Prev    time.Time `json:"prev,omitzero"`
	Fired   uint64    `json:"fired"`

	Job Job `json:"-"`
}

// JobEvent is the Data of job.* bus events.
type JobEvent struct {
	ID   string    `json:"id"`
	Kind string    `json:"kind"`
	Next time.Time `json:"next,omitzero"`
}

// Runner executes fired jobs. *engine.Service satisfies it.
type Runner interface {
	Enqueue(t engine.Task) error
}

// Dispatcher interprets a fired job's payload.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, job Job) error

func (f DispatchFunc) Dispatch(ctx context.Context, job Job) error { return f(ctx, job) }

type entry struct {
	job   Job
	sched cron.Schedule
	next  time.Time
	prev  time.Time
	fired uint64

	// ver identifies the armed timer; a callback carrying an older version is stale.
	ver  uint64
	stop func() bool
}

func (e *entry) info() JobInfo {
	it := JobInfo{
		ID:    e.job.ID,
		Kind:  e.job.Kind.String(),
		Next:  e.next,
		Prev:  e.prev,
		Fired: e.fired,
		Job:   e.job,
	}
	if e.job.Payload != nil {
		it.Payload = e.job.Payload.Kind()
	}
	if e.job.Kind == Daily {
		it.At = e.job.At.String()
	}
	return it
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	bus    eventbus.Bus
	clock  Clock
	runner Runner
	parser cron.Parser

	dispatcher Dispatcher
	running    bool
	seq        uint64
	jobs       map[string]*entry

	// Enqueue error throttling: key is job id.
	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time
}

type Option func(*Service)

// WithClock replaces the wall clock, used by tests to simulate days.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithDispatcher sets the payload interpreter at construction time.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}
