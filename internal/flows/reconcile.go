package flows

import (
	"context"
	"time"

	"nightbot/internal/media"
	logx "nightbot/pkg/logx"
)

// ReconcileResult counts what a reconciliation pass did.
type ReconcileResult struct {
	Scheduled int           `json:"scheduled"`
	Skipped   int           `json:"skipped"`
	Took      time.Duration `json:"took"`
}

// Reconcile re-registers a daily job for every stored item of every user in
// one pass. Job ids derive from item ids and replace existing jobs, so
// running it again never duplicates firings. Invalid records are skipped. A
// failing scan stops early and returns the partial result with the error.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	start := time.Now()
	var res ReconcileResult
	for e, err := range s.records.ScanAllScheduledMedia(ctx) {
		if err != nil {
			res.Took = time.Since(start)
			s.log.Error("reconcile scan failed", logx.Int("scheduled", res.Scheduled), logx.Int("skipped", res.Skipped), logx.Err(err))
			return res, storeErr("scan scheduled media", err)
		}
		if e.Err != nil {
			res.Skipped++
			s.log.Warn("skipping invalid scheduled item", logx.String("path", e.Path), logx.UserID(e.OwnerID), logx.ItemID(e.Item.ID), logx.Err(e.Err))
			continue
		}
		at, err := media.ParseTimeOfDay(e.Item.ScheduleTime)
		if err != nil {
			res.Skipped++
			s.log.Warn("skipping item with bad time", logx.UserID(e.OwnerID), logx.ItemID(e.Item.ID), logx.String("schedule_time", e.Item.ScheduleTime))
			continue
		}
		jobID := media.SendJobID(e.Item.ID)
		if err := s.sched.AddDailyCron(jobID, at.Hour, at.Minute, sendPayload(e.Item), true); err != nil {
			res.Skipped++
			s.log.Warn("reschedule failed", logx.UserID(e.OwnerID), logx.ItemID(e.Item.ID), logx.JobID(jobID), logx.Err(err))
			continue
		}
		res.Scheduled++
	}
	res.Took = time.Since(start)
	s.log.Info("reconcile done", logx.Int("scheduled", res.Scheduled), logx.Int("skipped", res.Skipped), logx.Duration("took", res.Took))
	return res, nil
}
