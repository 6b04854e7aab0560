package flows

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"nightbot/internal/media"
	"nightbot/internal/transport"
	logx "nightbot/pkg/logx"
)

// DeletionScheduled is the result of arming one media message.
type DeletionScheduled struct {
	JobID     string
	ChatID    int64
	MessageID int
	Minutes   int
	RunAt     time.Time
}

// ParseMinutes accepts a positive decimal integer.
func ParseMinutes(arg string) (int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &ValidationError{Field: "minutes", Reason: "required"}
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return 0, &ValidationError{Field: "minutes", Reason: fmt.Sprintf("%q is not a whole number", arg)}
	}
	if n <= 0 {
		return 0, &ValidationError{Field: "minutes", Reason: "must be positive"}
	}
	return n, nil
}

// SetDeleteTimer arms the delete timer for uid in chatID. Invalid input
// leaves both the settings and the pending state untouched.
func (s *Service) SetDeleteTimer(ctx context.Context, uid, chatID int64, arg string) (int, error) {
	minutes, err := ParseMinutes(arg)
	if err != nil {
		return 0, err
	}
	if err := s.records.SetDeleteTimer(ctx, uid, minutes, chatID); err != nil {
		s.log.Error("set delete timer failed", logx.UserID(uid), logx.ChatID(chatID), logx.Op("set_delete_timer"), logx.Err(err))
		return 0, storeErr("set delete timer", err)
	}
	s.pending.Set(uid, AwaitingDelete())
	s.log.Info("delete timer armed", logx.UserID(uid), logx.ChatID(chatID), logx.Int("minutes", minutes))
	return minutes, nil
}

// CancelDeleteTimer clears both timer fields. Without an active timer it
// returns ErrNothingToCancel.
func (s *Service) CancelDeleteTimer(ctx context.Context, uid int64) error {
	had, err := s.records.ClearDeleteTimer(ctx, uid)
	if err != nil {
		s.log.Error("cancel delete timer failed", logx.UserID(uid), logx.Op("cancel_delete_timer"), logx.Err(err))
		return storeErr("cancel delete timer", err)
	}
	if st := s.pending.Get(uid); st.Kind == AwaitingDeleteMedia {
		s.pending.Reset(uid)
	}
	if !had {
		return ErrNothingToCancel
	}
	s.log.Info("delete timer cancelled", logx.UserID(uid))
	return nil
}

// HandleDeletionMedia schedules the deletion of one media message for a
// user whose timer is armed. The state stays armed.
func (s *Service) HandleDeletionMedia(ctx context.Context, msg *transport.Message) (DeletionScheduled, error) {
	uid := msg.FromID
	set, err := s.records.GetUserSettings(ctx, uid)
	if err != nil {
		s.log.Error("read settings failed", logx.UserID(uid), logx.ChatID(msg.ChatID), logx.Op("delete_media"), logx.Err(err))
		return DeletionScheduled{}, storeErr("read settings", err)
	}
	if !set.TimerActive() || set.DeleteTimerActiveChatID != msg.ChatID {
		s.pending.Reset(uid)
		s.log.Warn("stale delete timer state",
			logx.UserID(uid),
			logx.ChatID(msg.ChatID),
			logx.Int64("active_chat_id", set.DeleteTimerActiveChatID),
			logx.Int("minutes", set.DeleteTimerMinutes),
		)
		return DeletionScheduled{}, ErrStaleTimer
	}
	return s.armDeletion(msg, set.DeleteTimerMinutes)
}

// resumeDeletion re-arms an idle user whose persisted settings still hold an
// active timer for the message's chat, e.g. after a restart.
func (s *Service) resumeDeletion(ctx context.Context, msg *transport.Message) (DeletionScheduled, bool, error) {
	if _, _, ok := transport.ExtractMedia(msg); !ok {
		return DeletionScheduled{}, false, nil
	}
	set, err := s.records.GetUserSettings(ctx, msg.FromID)
	if err != nil {
		s.log.Warn("read settings failed", logx.UserID(msg.FromID), logx.Op("resume_delete"), logx.Err(err))
		return DeletionScheduled{}, false, nil
	}
	if !set.TimerActive() || set.DeleteTimerActiveChatID != msg.ChatID {
		return DeletionScheduled{}, false, nil
	}
	s.pending.Set(msg.FromID, AwaitingDelete())
	d, err := s.armDeletion(msg, set.DeleteTimerMinutes)
	if err != nil {
		return DeletionScheduled{}, true, err
	}
	return d, true, nil
}

func (s *Service) armDeletion(msg *transport.Message, minutes int) (DeletionScheduled, error) {
	now := s.clock.Now()
	d := DeletionScheduled{
		JobID:     media.DeleteJobID(msg.ChatID, msg.ID, now),
		ChatID:    msg.ChatID,
		MessageID: msg.ID,
		Minutes:   minutes,
		RunAt:     now.Add(time.Duration(minutes) * time.Minute).UTC(),
	}
	err := s.sched.AddOneShot(d.JobID, d.RunAt, media.DeleteMessage{ChatID: msg.ChatID, MessageID: msg.ID})
	if err != nil {
		s.log.Error("schedule deletion failed", logx.UserID(msg.FromID), logx.ChatID(msg.ChatID), logx.JobID(d.JobID), logx.Err(err))
		return DeletionScheduled{}, fmt.Errorf("schedule deletion: %w", err)
	}
	s.log.Debug("deletion scheduled", logx.UserID(msg.FromID), logx.ChatID(msg.ChatID), logx.JobID(d.JobID), logx.Time("run_at", d.RunAt))
	return d, nil
}
