package flows

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"nightbot/internal/media"
	"nightbot/internal/records"
	logx "nightbot/pkg/logx"
)

// ListSchedules returns the user's items ordered by time of day, then id.
func (s *Service) ListSchedules(ctx context.Context, uid int64) ([]records.ScheduledMediaItem, error) {
	items, err := s.records.ListScheduledMedia(ctx, uid)
	if err != nil {
		s.log.Error("list scheduled media failed", logx.UserID(uid), logx.Op("list_schedules"), logx.Err(err))
		return nil, storeErr("list scheduled media", err)
	}
	slices.SortFunc(items, func(a, b records.ScheduledMediaItem) int {
		return cmp.Or(strings.Compare(a.ScheduleTime, b.ScheduleTime), strings.Compare(a.ID, b.ID))
	})
	return items, nil
}

// CancelSchedule deletes one of the user's items and its daily job. An id
// the user does not own is reported exactly like an absent one. A missing
// job is not an error.
func (s *Service) CancelSchedule(ctx context.Context, uid int64, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return &ValidationError{Field: "id", Reason: "required"}
	}
	items, err := s.records.ListScheduledMedia(ctx, uid)
	if err != nil {
		s.log.Error("list scheduled media failed", logx.UserID(uid), logx.ItemID(id), logx.Op("cancel_schedule"), logx.Err(err))
		return storeErr("list scheduled media", err)
	}
	if !slices.ContainsFunc(items, func(it records.ScheduledMediaItem) bool { return it.ID == id }) {
		return ErrNotFound
	}

	if err := s.records.DeleteScheduledMedia(ctx, uid, id); err != nil {
		s.log.Error("delete scheduled media failed", logx.UserID(uid), logx.ItemID(id), logx.Op("cancel_schedule"), logx.Err(err))
		return storeErr("delete scheduled media", err)
	}

	jobID := media.SendJobID(id)
	if _, ok := s.sched.GetJob(jobID); ok {
		s.sched.RemoveJob(jobID)
	} else {
		s.log.Debug("no job for cancelled item", logx.UserID(uid), logx.ItemID(id), logx.JobID(jobID))
	}
	s.log.Info("schedule cancelled", logx.UserID(uid), logx.ItemID(id))
	return nil
}
