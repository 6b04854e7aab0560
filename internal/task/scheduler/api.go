package scheduler

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"nightbot/internal/eventbus"
	"nightbot/internal/media"
	logx "nightbot/pkg/logx"
)

// AddOneShot registers a job that fires once at runAt. A runAt in the past
// fires as soon as the scheduler runs. An existing job with the same id is
// replaced.
func (s *Service) AddOneShot(id string, runAt time.Time, payload media.Payload) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if payload == nil {
		return ErrNoPayload
	}
	if runAt.IsZero() {
		return &ValidationError{Field: "run_at", Reason: "required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	typ := eventbus.JobAdded
	if old := s.jobs[id]; old != nil {
		s.disarmLocked(old)
		typ = eventbus.JobReplaced
	}
	e := &entry{
		job:  Job{ID: id, Kind: OneShot, RunAt: runAt.UTC(), Payload: payload},
		next: runAt.UTC(),
	}
	s.jobs[id] = e
	s.armLocked(e, s.clock.Now())

	s.publish(typ, JobEvent{ID: id, Kind: OneShot.String(), Next: e.next})
	s.log.Debug("one-shot job registered", logx.JobID(id), logx.String("payload", payload.Kind()), logx.Time("run_at", e.next))
	return nil
}

// AddDailyCron registers a job that fires every day at hour:minute UTC.
// With replace=false an existing id fails with ErrJobExists. With
// replace=true the old definition is swapped out atomically: exactly one
// of them is armed at any moment and a due time is never fired twice.
func (s *Service) AddDailyCron(id string, hour, minute int, payload media.Payload, replace bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	if payload == nil {
		return ErrNoPayload
	}
	if hour < 0 || hour > 23 {
		return &ValidationError{Field: "hour", Reason: fmt.Sprintf("%d out of range 0-23", hour)}
	}
	if minute < 0 || minute > 59 {
		return &ValidationError{Field: "minute", Reason: fmt.Sprintf("%d out of range 0-59", minute)}
	}
	sched, err := s.parser.Parse(dailySpec(hour, minute))
	if err != nil {
		return fmt.Errorf("scheduler: parse daily %02d:%02d: %w", hour, minute, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	at := media.TimeOfDay{Hour: hour, Minute: minute}
	e := &entry{
		job:   Job{ID: id, Kind: Daily, At: at, Payload: payload},
		sched: sched,
		next:  sched.Next(now),
	}

	typ := eventbus.JobAdded
	if old := s.jobs[id]; old != nil {
		if !replace {
			return fmt.Errorf("%w: %s", ErrJobExists, id)
		}
		s.disarmLocked(old)
		// A due time the old timer has not delivered yet carries over.
		if old.job.Kind == Daily && old.job.At == at && !old.next.After(now) && s.running {
			e.next = old.next
		}
		e.prev, e.fired = old.prev, old.fired
		typ = eventbus.JobReplaced
	}
	s.jobs[id] = e
	s.armLocked(e, now)

	s.publish(typ, JobEvent{ID: id, Kind: Daily.String(), Next: e.next})
	s.log.Debug("daily job registered", logx.JobID(id), logx.String("at", at.String()), logx.Time("next", e.next), logx.Bool("replaced", typ == eventbus.JobReplaced))
	return nil
}

// GetJob returns the job with the given id.
func (s *Service) GetJob(id string) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.jobs[id]
	if e == nil {
		return JobInfo{}, false
	}
	return e.info(), true
}

// RemoveJob disarms and forgets a job. It reports whether the job existed.
func (s *Service) RemoveJob(id string) bool {
	s.mu.Lock()
	e := s.jobs[id]
	if e == nil {
		s.mu.Unlock()
		return false
	}
	s.disarmLocked(e)
	delete(s.jobs, id)
	kind := e.job.Kind.String()
	s.mu.Unlock()

	s.publish(eventbus.JobRemoved, JobEvent{ID: id, Kind: kind})
	s.log.Debug("job removed", logx.JobID(id))
	return true
}

// Jobs lists every job ordered by next run time.
func (s *Service) Jobs() []JobInfo {
	s.mu.Lock()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.info())
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b JobInfo) int {
		if c := a.Next.Compare(b.Next); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Len returns the number of registered jobs.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func dailySpec(hour, minute int) string {
	return fmt.Sprintf("CRON_TZ=UTC %d %d * * *", minute, hour)
}
