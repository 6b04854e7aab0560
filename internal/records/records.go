// Package records is the typed adapter over the document store for user
// settings and scheduled media items.
//
// Layout, namespaced by application id:
//
//	artifacts/{app}/users/{uid}/settings/night_mode
//	artifacts/{app}/users/{uid}/scheduled_media/{id}
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"time"

	"nightbot/internal/media"
	"nightbot/internal/storage"
	"nightbot/pkg/keyedmutex"
	logx "nightbot/pkg/logx"
)

var (
	ErrNotFound    = errors.New("record not found")
	ErrUnavailable = errors.New("record store unavailable")
)

const (
	settingsCollection = "settings"
	settingsDoc        = "night_mode"
	mediaCollection    = "scheduled_media"
)

// Persisted field names.
const (
	fDeleteTimerMinutes = "delete_timer_minutes"
	fDeleteTimerChatID  = "delete_timer_active_chat_id"
	fLastActive         = "last_active"

	fChatID       = "chat_id"
	fMessageID    = "message_id"
	fMediaFileID  = "media_file_id"
	fMediaType    = "media_type"
	fScheduleTime = "schedule_time"
	fUserID       = "user_id"
	fCreatedAt    = "created_at"
)

type UserSettings struct {
	DeleteTimerMinutes      int
	DeleteTimerActiveChatID int64
	LastActive              time.Time
}

// TimerActive reports whether both delete-timer fields are set.
func (s UserSettings) TimerActive() bool {
	return s.DeleteTimerMinutes > 0 && s.DeleteTimerActiveChatID != 0
}

// SettingsPatch is a partial update; nil fields are left untouched.
type SettingsPatch struct {
	DeleteTimerMinutes      *int
	DeleteTimerActiveChatID *int64
	TouchLastActive         bool
}

type ScheduledMediaItem struct {
	ID              string
	UserID          int64
	ChatID          int64
	SourceMessageID int
	MediaFileID     string
	MediaType       media.Type
	ScheduleTime    string
	CreatedAt       time.Time
}

// NewScheduledMedia is the input of AddScheduledMedia.
type NewScheduledMedia struct {
	UserID          int64
	ChatID          int64
	SourceMessageID int
	MediaFileID     string
	MediaType       media.Type
	ScheduleTime    media.TimeOfDay
}

// ScanEntry is one result of ScanAllScheduledMedia. Err is set when the
// record failed validation; Item then holds whatever could be decoded.
type ScanEntry struct {
	Item    ScheduledMediaItem
	OwnerID int64
	Path    string
	Err     error
}

// Store is the Record Store Adapter.
type Store struct {
	docs  storage.Store
	appID string
	log   logx.Logger
	users keyedmutex.Mutex[int64]
}

func New(docs storage.Store, appID string, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{docs: docs, appID: appID, log: log.With(logx.Comp("records"))}
}

func (s *Store) userPath(uid int64) string {
	return storage.Join("artifacts", s.appID, "users", strconv.FormatInt(uid, 10))
}

func (s *Store) settingsPath(uid int64) string {
	return storage.Join(s.userPath(uid), settingsCollection, settingsDoc)
}

func (s *Store) mediaPath(uid int64) string {
	return storage.Join(s.userPath(uid), mediaCollection)
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// GetUserSettings returns the zero value when the user has no settings yet.
func (s *Store) GetUserSettings(ctx context.Context, uid int64) (UserSettings, error) {
	snap, err := s.docs.Get(ctx, s.settingsPath(uid))
	if errors.Is(err, storage.ErrNotFound) {
		return UserSettings{}, nil
	}
	if err != nil {
		return UserSettings{}, unavailable("get settings", err)
	}
	return decodeSettings(snap.Data), nil
}

// UpdateUserSettings merge-upserts patch. Unspecified fields keep their value.
func (s *Store) UpdateUserSettings(ctx context.Context, uid int64, patch SettingsPatch) error {
	doc := storage.Doc{}
	if patch.DeleteTimerMinutes != nil {
		doc[fDeleteTimerMinutes] = *patch.DeleteTimerMinutes
	}
	if patch.DeleteTimerActiveChatID != nil {
		doc[fDeleteTimerChatID] = *patch.DeleteTimerActiveChatID
	}
	if patch.TouchLastActive {
		doc[fLastActive] = storage.ServerTimestamp
	}
	if len(doc) == 0 {
		return nil
	}

	s.users.Lock(uid)
	defer s.users.Unlock(uid)
	if err := s.docs.Set(ctx, s.settingsPath(uid), doc, storage.Merge()); err != nil {
		return unavailable("update settings", err)
	}
	return nil
}

// SetDeleteTimer writes both timer fields in one merge.
func (s *Store) SetDeleteTimer(ctx context.Context, uid int64, minutes int, chatID int64) error {
	return s.UpdateUserSettings(ctx, uid, SettingsPatch{
		DeleteTimerMinutes:      &minutes,
		DeleteTimerActiveChatID: &chatID,
	})
}

// ClearDeleteTimer removes both timer fields and reports whether a timer was set.
// The read and the write happen under the user's lock.
func (s *Store) ClearDeleteTimer(ctx context.Context, uid int64) (bool, error) {
	s.users.Lock(uid)
	defer s.users.Unlock(uid)

	snap, err := s.docs.Get(ctx, s.settingsPath(uid))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("get settings", err)
	}
	_, hasMinutes := snap.Data[fDeleteTimerMinutes]
	_, hasChat := snap.Data[fDeleteTimerChatID]
	if !hasMinutes && !hasChat {
		return false, nil
	}
	err = s.docs.Set(ctx, s.settingsPath(uid), storage.Doc{
		fDeleteTimerMinutes: storage.DeleteField,
		fDeleteTimerChatID:  storage.DeleteField,
	}, storage.Merge())
	if err != nil {
		return false, unavailable("clear delete timer", err)
	}
	return decodeSettings(snap.Data).TimerActive(), nil
}

func (s *Store) TouchLastActive(ctx context.Context, uid int64) error {
	return s.UpdateUserSettings(ctx, uid, SettingsPatch{TouchLastActive: true})
}

// AddScheduledMedia persists a new item and returns the store-assigned id.
// On failure the id is empty.
func (s *Store) AddScheduledMedia(ctx context.Context, in NewScheduledMedia) (string, error) {
	if !in.MediaType.Valid() {
		return "", fmt.Errorf("add scheduled media: invalid media type %q", in.MediaType)
	}
	if !in.ScheduleTime.Valid() {
		return "", fmt.Errorf("add scheduled media: invalid time %v", in.ScheduleTime)
	}
	id, err := s.docs.Add(ctx, s.mediaPath(in.UserID), storage.Doc{
		fChatID:       in.ChatID,
		fMessageID:    in.SourceMessageID,
		fMediaFileID:  in.MediaFileID,
		fMediaType:    string(in.MediaType),
		fScheduleTime: in.ScheduleTime.String(),
		fUserID:       in.UserID,
		fCreatedAt:    storage.ServerTimestamp,
	})
	if err != nil {
		return "", unavailable("add scheduled media", err)
	}
	return id, nil
}

// ListScheduledMedia returns the user's items. Records that fail to decode are
// logged and left out.
func (s *Store) ListScheduledMedia(ctx context.Context, uid int64) ([]ScheduledMediaItem, error) {
	snaps, err := s.docs.List(ctx, s.mediaPath(uid))
	if err != nil {
		return nil, unavailable("list scheduled media", err)
	}
	out := make([]ScheduledMediaItem, 0, len(snaps))
	for _, snap := range snaps {
		item, err := itemFromSnapshot(snap, uid)
		if err != nil {
			s.log.Warn("skipping invalid scheduled media record",
				logx.UserID(uid), logx.ItemID(snap.ID), logx.Err(err))
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *Store) GetScheduledMedia(ctx context.Context, uid int64, id string) (ScheduledMediaItem, error) {
	snap, err := s.docs.Get(ctx, storage.Join(s.mediaPath(uid), id))
	if errors.Is(err, storage.ErrNotFound) {
		return ScheduledMediaItem{}, ErrNotFound
	}
	if err != nil {
		return ScheduledMediaItem{}, unavailable("get scheduled media", err)
	}
	return decodeItem(snap.ID, uid, snap.Data)
}

func (s *Store) DeleteScheduledMedia(ctx context.Context, uid int64, id string) error {
	if err := s.docs.Delete(ctx, storage.Join(s.mediaPath(uid), id)); err != nil {
		return unavailable("delete scheduled media", err)
	}
	return nil
}

// ScanAllScheduledMedia yields every scheduled item of every user in one
// collection-group pass. A record that fails validation is yielded with Err
// set and a nil error so the caller can skip it and continue; a non-nil
// error means the scan itself failed.
func (s *Store) ScanAllScheduledMedia(ctx context.Context) iter.Seq2[ScanEntry, error] {
	prefix := storage.Join("artifacts", s.appID, "users") + "/"
	return func(yield func(ScanEntry, error) bool) {
		for snap, err := range s.docs.CollectionGroup(ctx, mediaCollection) {
			if err != nil {
				yield(ScanEntry{}, unavailable("scan scheduled media", err))
				return
			}
			owner, ok := ownerFromCollection(prefix, snap.Collection)
			if !ok {
				// Another application's data, or a collection with the same name elsewhere.
				continue
			}
			e := ScanEntry{OwnerID: owner, Path: snap.Path}
			e.Item, e.Err = itemFromSnapshot(snap, owner)
			if !yield(e, nil) {
				return
			}
		}
	}
}

// itemFromSnapshot decodes one scheduled item. A document the store could
// not decode keeps its id so it can still be reported.
func itemFromSnapshot(snap storage.Snapshot, owner int64) (ScheduledMediaItem, error) {
	if snap.Err != nil {
		return ScheduledMediaItem{ID: snap.ID, UserID: owner}, snap.Err
	}
	return decodeItem(snap.ID, owner, snap.Data)
}

// ownerFromCollection extracts uid from "artifacts/{app}/users/{uid}/scheduled_media".
func ownerFromCollection(prefix, collection string) (int64, bool) {
	rest, ok := strings.CutPrefix(collection, prefix)
	if !ok {
		return 0, false
	}
	uidPart, tail, found := strings.Cut(rest, "/")
	if !found || tail != mediaCollection {
		return 0, false
	}
	uid, err := strconv.ParseInt(uidPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return uid, true
}

func decodeSettings(d storage.Doc) UserSettings {
	var out UserSettings
	if v, ok := asInt64(d[fDeleteTimerMinutes]); ok {
		out.DeleteTimerMinutes = int(v)
	}
	if v, ok := asInt64(d[fDeleteTimerChatID]); ok {
		out.DeleteTimerActiveChatID = v
	}
	if v, ok := d[fLastActive].(string); ok {
		out.LastActive, _ = time.Parse(time.RFC3339Nano, v)
	}
	return out
}

// decodeItem validates the required fields of a stored item.
func decodeItem(id string, owner int64, d storage.Doc) (ScheduledMediaItem, error) {
	item := ScheduledMediaItem{ID: id, UserID: owner}
	var missing []string

	if id == "" {
		missing = append(missing, "id")
	}
	if v, ok := asInt64(d[fChatID]); ok && v != 0 {
		item.ChatID = v
	} else {
		missing = append(missing, fChatID)
	}
	if v, ok := asInt64(d[fMessageID]); ok {
		item.SourceMessageID = int(v)
	}
	if v, ok := d[fMediaFileID].(string); ok && v != "" {
		item.MediaFileID = v
	} else {
		missing = append(missing, fMediaFileID)
	}
	var typeErr error
	if v, ok := d[fMediaType].(string); ok && v != "" {
		item.MediaType, typeErr = media.ParseType(v)
	} else {
		missing = append(missing, fMediaType)
	}
	if v, ok := d[fScheduleTime].(string); ok && v != "" {
		item.ScheduleTime = v
	} else {
		missing = append(missing, fScheduleTime)
	}
	if v, ok := d[fCreatedAt].(string); ok {
		item.CreatedAt, _ = time.Parse(time.RFC3339Nano, v)
	}
	if len(missing) > 0 {
		return item, fmt.Errorf("missing required fields: %v", missing)
	}
	if typeErr != nil {
		return item, typeErr
	}
	if _, err := media.ParseTimeOfDay(item.ScheduleTime); err != nil {
		return item, err
	}
	return item, nil
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	}
	return 0, false
}
