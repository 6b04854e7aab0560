package scheduler

import (
	"errors"
	"time"

	"nightbot/internal/task/engine"
	logx "nightbot/pkg/logx"
)

const enqueueWarnThrottle = 5 * time.Second

func (s *Service) reportEnqueueError(id string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("fired job skipped", logx.JobID(id), logx.Err(err))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[id]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[id] = now
	// One-shot ids are unique, so drop entries that can no longer throttle anything.
	for k, t := range s.lastEnqWarn {
		if now.Sub(t) >= enqueueWarnThrottle {
			delete(s.lastEnqWarn, k)
		}
	}
	s.enqMu.Unlock()

	// Queue full / stopping are important but can be bursty.
	s.log.Warn("fired job failed to enqueue", logx.JobID(id), logx.Err(err))
}
