package records

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"testing"

	"nightbot/internal/media"
	"nightbot/internal/storage"
	logx "nightbot/pkg/logx"
)

func newTestStore(t *testing.T) (*Store, storage.Store) {
	t.Helper()
	docs := storage.NewMemory()
	t.Cleanup(func() { _ = docs.Close() })
	return New(docs, "test-app", logx.Nop()), docs
}

func TestSettingsMergeAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, _ := newTestStore(t)

	got, err := st.GetUserSettings(ctx, 1)
	if err != nil || got.TimerActive() {
		t.Fatalf("fresh settings=%+v err=%v", got, err)
	}

	if err := st.TouchLastActive(ctx, 1); err != nil {
		t.Fatalf("TouchLastActive: %v", err)
	}
	if err := st.SetDeleteTimer(ctx, 1, 5, -100); err != nil {
		t.Fatalf("SetDeleteTimer: %v", err)
	}
	got, _ = st.GetUserSettings(ctx, 1)
	if got.DeleteTimerMinutes != 5 || got.DeleteTimerActiveChatID != -100 {
		t.Fatalf("settings=%+v", got)
	}
	if got.LastActive.IsZero() {
		t.Fatalf("merge erased last_active")
	}

	had, err := st.ClearDeleteTimer(ctx, 1)
	if err != nil || !had {
		t.Fatalf("ClearDeleteTimer=%v,%v", had, err)
	}
	got, _ = st.GetUserSettings(ctx, 1)
	if got.DeleteTimerMinutes != 0 || got.DeleteTimerActiveChatID != 0 {
		t.Fatalf("timer fields not cleared together: %+v", got)
	}
	if got.LastActive.IsZero() {
		t.Fatalf("clear erased last_active")
	}

	had, err = st.ClearDeleteTimer(ctx, 1)
	if err != nil || had {
		t.Fatalf("second clear=%v,%v want false,nil", had, err)
	}
	had, err = st.ClearDeleteTimer(ctx, 99)
	if err != nil || had {
		t.Fatalf("clear for unknown user=%v,%v", had, err)
	}
}

func TestConcurrentSetAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, _ := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = st.SetDeleteTimer(ctx, 7, 3, 42)
		}()
		go func() {
			defer wg.Done()
			_, _ = st.ClearDeleteTimer(ctx, 7)
		}()
	}
	wg.Wait()

	// Whatever interleaving happened, the two fields are never split.
	got, _ := st.GetUserSettings(ctx, 7)
	if (got.DeleteTimerMinutes == 0) != (got.DeleteTimerActiveChatID == 0) {
		t.Fatalf("split timer fields: %+v", got)
	}
}

func TestScheduledMediaCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, _ := newTestStore(t)

	id, err := st.AddScheduledMedia(ctx, NewScheduledMedia{
		UserID:          1,
		ChatID:          -100,
		SourceMessageID: 55,
		MediaFileID:     "file-1",
		MediaType:       media.Sticker,
		ScheduleTime:    media.TimeOfDay{Hour: 8},
	})
	if err != nil || id == "" {
		t.Fatalf("Add=%q,%v", id, err)
	}

	items, err := st.ListScheduledMedia(ctx, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("List=%v,%v", items, err)
	}
	it := items[0]
	if it.ID != id || it.ChatID != -100 || it.SourceMessageID != 55 || it.MediaFileID != "file-1" ||
		it.MediaType != media.Sticker || it.ScheduleTime != "08:00" || it.UserID != 1 || it.CreatedAt.IsZero() {
		t.Fatalf("item=%+v", it)
	}

	if got, err := st.GetScheduledMedia(ctx, 1, id); err != nil || got.ID != id {
		t.Fatalf("Get=%+v,%v", got, err)
	}
	if _, err := st.GetScheduledMedia(ctx, 2, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get for other user: %v", err)
	}
	if other, _ := st.ListScheduledMedia(ctx, 2); len(other) != 0 {
		t.Fatalf("other user sees items: %v", other)
	}

	if err := st.DeleteScheduledMedia(ctx, 1, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if items, _ := st.ListScheduledMedia(ctx, 1); len(items) != 0 {
		t.Fatalf("List after delete=%v", items)
	}
}

func TestAddScheduledMediaRejectsInvalid(t *testing.T) {
	t.Parallel()
	st, _ := newTestStore(t)

	_, err := st.AddScheduledMedia(context.Background(), NewScheduledMedia{UserID: 1, ChatID: 1, MediaFileID: "f", MediaType: "audio"})
	if err == nil {
		t.Fatalf("expected error for unknown type")
	}
	_, err = st.AddScheduledMedia(context.Background(), NewScheduledMedia{UserID: 1, ChatID: 1, MediaFileID: "f", MediaType: media.Photo, ScheduleTime: media.TimeOfDay{Hour: 24}})
	if err == nil {
		t.Fatalf("expected error for invalid time")
	}
}

func TestScanAllScheduledMedia(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, docs := newTestStore(t)

	for _, uid := range []int64{1, 2, 3} {
		if _, err := st.AddScheduledMedia(ctx, NewScheduledMedia{
			UserID: uid, ChatID: uid * 10, MediaFileID: "f", MediaType: media.Video, ScheduleTime: media.TimeOfDay{Hour: 9, Minute: 15},
		}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	// Broken record: missing file id, bad time.
	if err := docs.Set(ctx, "artifacts/test-app/users/4/scheduled_media/broken", storage.Doc{"chat_id": 1, "schedule_time": "9:15"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// Another deployment's data is not ours.
	other := New(docs, "other-app", logx.Nop())
	if _, err := other.AddScheduledMedia(ctx, NewScheduledMedia{UserID: 9, ChatID: 1, MediaFileID: "f", MediaType: media.GIF}); err != nil {
		t.Fatalf("Add other: %v", err)
	}

	valid, invalid := 0, 0
	for e, err := range st.ScanAllScheduledMedia(ctx) {
		if err != nil {
			t.Fatalf("scan error: %v", err)
		}
		if e.Err != nil {
			invalid++
			if e.OwnerID != 4 {
				t.Fatalf("broken record owner=%d", e.OwnerID)
			}
			continue
		}
		valid++
		if e.Item.ChatID != e.OwnerID*10 || e.Item.UserID != e.OwnerID {
			t.Fatalf("owner mismatch: %+v", e)
		}
	}
	if valid != 3 || invalid != 1 {
		t.Fatalf("valid=%d invalid=%d", valid, invalid)
	}
}

type brokenStore struct{ storage.Store }

var errDown = errors.New("connection refused")

func (brokenStore) Get(context.Context, string) (storage.Snapshot, error) {
	return storage.Snapshot{}, errDown
}
func (brokenStore) Add(context.Context, string, storage.Doc) (string, error) { return "", errDown }
func (brokenStore) List(context.Context, string) ([]storage.Snapshot, error) {
	return nil, errDown
}
func (brokenStore) CollectionGroup(context.Context, string) iter.Seq2[storage.Snapshot, error] {
	return func(yield func(storage.Snapshot, error) bool) { yield(storage.Snapshot{}, errDown) }
}

func TestStoreUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := New(brokenStore{}, "app", logx.Nop())

	if _, err := st.GetUserSettings(ctx, 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("GetUserSettings: %v", err)
	}
	id, err := st.AddScheduledMedia(ctx, NewScheduledMedia{UserID: 1, ChatID: 1, MediaFileID: "f", MediaType: media.Photo})
	if id != "" || !errors.Is(err, ErrUnavailable) {
		t.Fatalf("Add=%q,%v", id, err)
	}
	if _, err := st.ListScheduledMedia(ctx, 1); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("List: %v", err)
	}
	for _, err := range st.ScanAllScheduledMedia(ctx) {
		if !errors.Is(err, ErrUnavailable) {
			t.Fatalf("scan: %v", err)
		}
	}
}

// corruptSibling adds one undecodable document next to whatever the wrapped
// store lists or scans.
type corruptSibling struct{ storage.Store }

func (c corruptSibling) bad(collection string) storage.Snapshot {
	path := storage.Join(collection, "bad")
	return storage.Snapshot{
		Path:       path,
		ID:         "bad",
		Collection: collection,
		Err:        fmt.Errorf("%w: %s: invalid character", storage.ErrCorrupt, path),
	}
}

func (c corruptSibling) List(ctx context.Context, collection string) ([]storage.Snapshot, error) {
	out, err := c.Store.List(ctx, collection)
	if err != nil {
		return nil, err
	}
	return append(out, c.bad(collection)), nil
}

func (c corruptSibling) CollectionGroup(ctx context.Context, group string) iter.Seq2[storage.Snapshot, error] {
	return func(yield func(storage.Snapshot, error) bool) {
		for snap, err := range c.Store.CollectionGroup(ctx, group) {
			if !yield(snap, err) || err != nil {
				return
			}
		}
		yield(c.bad("artifacts/test-app/users/1/"+group), nil)
	}
}

func TestCorruptRecordsAreSkipped(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	docs := storage.NewMemory()
	t.Cleanup(func() { _ = docs.Close() })
	st := New(corruptSibling{Store: docs}, "test-app", logx.Nop())

	id, err := st.AddScheduledMedia(ctx, NewScheduledMedia{
		UserID: 1, ChatID: 10, MediaFileID: "f", MediaType: media.Sticker, ScheduleTime: media.TimeOfDay{Hour: 7},
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	items, err := st.ListScheduledMedia(ctx, 1)
	if err != nil || len(items) != 1 || items[0].ID != id {
		t.Fatalf("List=%v,%v", items, err)
	}

	var valid, invalid []string
	for e, err := range st.ScanAllScheduledMedia(ctx) {
		if err != nil {
			t.Fatalf("scan aborted: %v", err)
		}
		if e.Err != nil {
			if !errors.Is(e.Err, storage.ErrCorrupt) || e.OwnerID != 1 {
				t.Fatalf("corrupt entry=%+v", e)
			}
			invalid = append(invalid, e.Item.ID)
			continue
		}
		valid = append(valid, e.Item.ID)
	}
	if len(valid) != 1 || valid[0] != id || len(invalid) != 1 || invalid[0] != "bad" {
		t.Fatalf("valid=%v invalid=%v", valid, invalid)
	}
}

func TestDecodeItemMediaType(t *testing.T) {
	t.Parallel()
	base := func(typ string) storage.Doc {
		return storage.Doc{"chat_id": 10, "media_file_id": "f", "media_type": typ, "schedule_time": "08:00"}
	}
	cases := []struct {
		raw  string
		want media.Type
		ok   bool
	}{
		{"photo", media.Photo, true},
		{" GIF ", media.GIF, true},
		{"audio", "", false},
	}
	for _, tc := range cases {
		item, err := decodeItem("x", 1, base(tc.raw))
		if (err == nil) != tc.ok {
			t.Fatalf("%q: err=%v", tc.raw, err)
		}
		if tc.ok && item.MediaType != tc.want {
			t.Fatalf("%q: type=%q want %q", tc.raw, item.MediaType, tc.want)
		}
	}
}
