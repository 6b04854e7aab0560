package flows

import (
	"context"
	"errors"

	"nightbot/internal/media"
	"nightbot/internal/records"
	"nightbot/internal/transport"
	logx "nightbot/pkg/logx"
)

// BeginSchedule validates the HH:MM argument and waits for the user's next
// media message. Invalid input leaves the state unchanged.
func (s *Service) BeginSchedule(uid int64, arg string) (media.TimeOfDay, error) {
	at, err := media.ParseTimeOfDay(arg)
	if err != nil {
		return media.TimeOfDay{}, &ValidationError{Field: "time", Reason: "use HH:MM in 24-hour UTC, e.g. 08:30"}
	}
	s.pending.Set(uid, AwaitingSchedule(at))
	s.log.Debug("awaiting media to schedule", logx.UserID(uid), logx.String("at", at.String()))
	return at, nil
}

// HandleScheduledMedia stores the media of msg and registers its daily
// send job. Unsupported media keeps the user waiting; a failed store write
// returns the user to idle without side effects.
func (s *Service) HandleScheduledMedia(ctx context.Context, msg *transport.Message, at media.TimeOfDay) (records.ScheduledMediaItem, error) {
	uid := msg.FromID
	fileID, typ, ok := transport.ExtractMedia(msg)
	if !ok {
		return records.ScheduledMediaItem{}, ErrUnsupportedMedia
	}

	in := records.NewScheduledMedia{
		UserID:          uid,
		ChatID:          msg.ChatID,
		SourceMessageID: msg.ID,
		MediaFileID:     fileID,
		MediaType:       typ,
		ScheduleTime:    at,
	}
	id, err := s.records.AddScheduledMedia(ctx, in)
	if err != nil || id == "" {
		s.pending.Reset(uid)
		if err == nil {
			err = errors.New("store returned an empty id")
		}
		s.log.Error("store scheduled media failed", logx.UserID(uid), logx.ChatID(msg.ChatID), logx.Op("schedule_media"), logx.Err(err))
		return records.ScheduledMediaItem{}, storeErr("add scheduled media", err)
	}
	s.pending.Reset(uid)

	item := records.ScheduledMediaItem{
		ID:              id,
		UserID:          uid,
		ChatID:          msg.ChatID,
		SourceMessageID: msg.ID,
		MediaFileID:     fileID,
		MediaType:       typ,
		ScheduleTime:    at.String(),
	}
	jobID := media.SendJobID(id)
	if err := s.sched.AddDailyCron(jobID, at.Hour, at.Minute, sendPayload(item), true); err != nil {
		// The record is durable; the next reconciliation registers the job.
		s.log.Error("register daily job failed", logx.UserID(uid), logx.ItemID(id), logx.JobID(jobID), logx.Err(err))
	} else {
		s.log.Info("media scheduled", logx.UserID(uid), logx.ChatID(msg.ChatID), logx.ItemID(id), logx.String("at", at.String()), logx.String("type", string(typ)))
	}
	return item, nil
}

func sendPayload(it records.ScheduledMediaItem) media.SendMedia {
	return media.SendMedia{
		UserID: it.UserID,
		ItemID: it.ID,
		ChatID: it.ChatID,
		FileID: it.MediaFileID,
		Type:   it.MediaType,
	}
}
