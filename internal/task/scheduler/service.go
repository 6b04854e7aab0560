package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"nightbot/internal/eventbus"
	"nightbot/internal/task/engine"
	logx "nightbot/pkg/logx"
)

func New(cfg Config, runner Runner, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:    cfg,
		log:    log.With(logx.Comp("scheduler")),
		bus:    bus,
		runner: runner,
		clock:  WallClock(),
		// Daily jobs are built as "M H * * *" with a CRON_TZ=UTC prefix.
		parser:      cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		jobs:        map[string]*entry{},
		lastEnqWarn: map[string]time.Time{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetDispatcher installs the payload interpreter. The dispatcher usually
// needs the scheduler itself, so it is set after New and before Start.
func (s *Service) SetDispatcher(d Dispatcher) {
	s.mu.Lock()
	s.dispatcher = d
	s.mu.Unlock()
}

// Start arms every registered job. Jobs added before Start wait in the
// table; a daily job whose next run has passed skips to the next day, a
// one-shot job in the past fires immediately.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	now := s.clock.Now()
	for _, e := range s.jobs {
		if e.job.Kind == Daily && !e.next.After(now) {
			e.next = e.sched.Next(now)
		}
		s.armLocked(e, now)
	}
	s.log.Info("service started", logx.Int("jobs", len(s.jobs)))
}

// Stop disarms all timers. The table is kept so a later Start resumes it.
func (s *Service) Stop(ctx context.Context) {
	_ = ctx
	start := time.Now()

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	for _, e := range s.jobs {
		s.disarmLocked(e)
	}
	n := len(s.jobs)
	s.mu.Unlock()

	s.log.Info("service stopped", logx.Int("jobs", n), logx.Duration("took", time.Since(start)))
}

func (s *Service) armLocked(e *entry, now time.Time) {
	if !s.running {
		return
	}
	s.disarmLocked(e)
	s.seq++
	e.ver = s.seq
	id, ver := e.job.ID, e.ver
	delay := max(e.next.Sub(now), 0)
	e.stop = s.clock.AfterFunc(delay, func() { s.fire(id, ver) })
}

func (s *Service) disarmLocked(e *entry) {
	if e.stop != nil {
		_ = e.stop()
		e.stop = nil
	}
	// Any callback already waiting on s.mu sees a version mismatch.
	s.seq++
	e.ver = s.seq
}

func (s *Service) fire(id string, ver uint64) {
	s.mu.Lock()
	e := s.jobs[id]
	if e == nil || e.ver != ver || !s.running {
		s.mu.Unlock()
		return
	}
	due := e.next
	job := e.job
	e.stop = nil
	e.fired++
	e.prev = due

	ev := JobEvent{ID: id, Kind: job.Kind.String()}
	if job.Kind == OneShot {
		// Leave the table before dispatch so a fired one-shot never runs twice.
		delete(s.jobs, id)
	} else {
		e.next = e.sched.Next(due)
		ev.Next = e.next
		s.armLocked(e, s.clock.Now())
	}
	d := s.dispatcher
	cfg := s.cfg
	s.mu.Unlock()

	s.publish(eventbus.JobFired, ev)
	s.log.Debug("job fired", logx.JobID(id), logx.String("kind", job.Kind.String()), logx.Time("due", due))

	if d == nil {
		s.log.Error("job fired without dispatcher", logx.JobID(id))
		return
	}
	if s.runner == nil {
		s.log.Error("job fired without runner", logx.JobID(id))
		return
	}
	opt := engine.TaskOptions{RetryMax: cfg.RetryMax}
	if job.Kind == Daily {
		// A send still retrying from the previous day wins over a new firing.
		opt.Overlap = engine.OverlapSkipIfRunning
	}
	err := s.runner.Enqueue(engine.Task{
		Name:    id,
		Kind:    job.Payload.Kind(),
		Timeout: cfg.JobTimeout,
		Opt:     opt,
		Run: func(ctx context.Context) error {
			return d.Dispatch(ctx, job)
		},
	})
	s.reportEnqueueError(id, err)
}

func (s *Service) publish(typ string, ev JobEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: ev})
	}
}
