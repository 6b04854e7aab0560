package flows_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"nightbot/internal/flows"
	"nightbot/internal/media"
	"nightbot/internal/records"
	"nightbot/internal/storage"
	"nightbot/internal/task/scheduler"
	"nightbot/internal/task/scheduler/schedtest"
	"nightbot/internal/transport"
	logx "nightbot/pkg/logx"

	_ "modernc.org/sqlite"
)

var t0 = time.Date(2026, 3, 10, 7, 0, 0, 0, time.UTC)

type sentMedia struct {
	chatID int64
	fileID string
	typ    media.Type
	at     time.Time
}

type fakeTransport struct {
	clock *schedtest.Clock

	mu        sync.Mutex
	sent      []sentMedia
	deleted   []transport.MessageRef
	deleteErr error
}

func (f *fakeTransport) SendMedia(_ context.Context, to transport.ChatTarget, fileID string, typ media.Type) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMedia{chatID: to.ChatID, fileID: fileID, typ: typ, at: f.clock.Now()})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeTransport) DeleteMessage(_ context.Context, ref transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeTransport) sentSnapshot() []sentMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMedia(nil), f.sent...)
}

func (f *fakeTransport) deletedSnapshot() []transport.MessageRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transport.MessageRef(nil), f.deleted...)
}

type env struct {
	clock  *schedtest.Clock
	runner *schedtest.Runner
	sched  *scheduler.Service
	docs   storage.Store
	rec    *records.Store
	tr     *fakeTransport
	svc    *flows.Service
}

func newEnv(t *testing.T) *env {
	t.Helper()
	docs := storage.NewMemory()
	t.Cleanup(func() { _ = docs.Close() })
	return newEnvWithDocs(t, docs)
}

func newEnvWithDocs(t *testing.T, docs storage.Store) *env {
	t.Helper()
	e := &env{
		clock:  schedtest.NewClock(t0),
		runner: &schedtest.Runner{},
		docs:   docs,
	}
	e.rec = records.New(docs, "test-app", logx.Nop())
	e.tr = &fakeTransport{clock: e.clock}
	e.sched = scheduler.New(scheduler.Config{}, e.runner, logx.Nop(), nil, scheduler.WithClock(e.clock))
	e.sched.SetDispatcher(flows.NewDispatcher(e.rec, e.sched, e.tr, logx.Nop()))
	e.sched.Start(context.Background())
	t.Cleanup(func() { e.sched.Stop(context.Background()) })
	e.svc = flows.New(e.rec, e.sched, logx.Nop(), flows.WithClock(e.clock))
	return e
}

func sticker(uid, chat int64, msgID int) *transport.Message {
	return &transport.Message{
		ID:     msgID,
		ChatID: chat,
		FromID: uid,
		Media:  &transport.Media{FileID: fmt.Sprintf("file-%d", msgID), Type: media.Sticker},
	}
}

func jobIDs(s *scheduler.Service) []string {
	var out []string
	for _, j := range s.Jobs() {
		out = append(out, j.ID)
	}
	slices.Sort(out)
	return out
}

func TestDeletionSchedulesOneJobPerMessage(t *testing.T) {
	t.Parallel()
	for _, m := range []int{1, 5, 60, 1440} {
		t.Run(fmt.Sprint(m), func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			e := newEnv(t)

			if _, err := e.svc.SetDeleteTimer(ctx, 1, -100, fmt.Sprint(m)); err != nil {
				t.Fatalf("SetDeleteTimer: %v", err)
			}
			if st := e.svc.State(1); st.Kind != flows.AwaitingDeleteMedia {
				t.Fatalf("state=%v", st.Kind)
			}
			out, err := e.svc.Route(ctx, sticker(1, -100, 42))
			if err != nil || !out.Handled || out.Deletion == nil {
				t.Fatalf("Route=%+v,%v", out, err)
			}
			jobs := e.sched.Jobs()
			if len(jobs) != 1 {
				t.Fatalf("jobs=%d want 1", len(jobs))
			}
			want := t0.Add(time.Duration(m) * time.Minute)
			if !jobs[0].Next.Equal(want) || jobs[0].ID != out.Deletion.JobID {
				t.Fatalf("job=%+v want next %s", jobs[0], want)
			}
			if st := e.svc.State(1); st.Kind != flows.AwaitingDeleteMedia {
				t.Fatalf("deletion arming must persist, state=%v", st.Kind)
			}
		})
	}
}

func TestDeletionScenarioTwoStickers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	const chat = int64(-500)

	if _, err := e.svc.SetDeleteTimer(ctx, 7, chat, "5"); err != nil {
		t.Fatalf("SetDeleteTimer: %v", err)
	}
	first, err := e.svc.Route(ctx, sticker(7, chat, 10))
	if err != nil {
		t.Fatalf("first sticker: %v", err)
	}
	e.clock.Advance(time.Minute)
	second, err := e.svc.Route(ctx, sticker(7, chat, 11))
	if err != nil {
		t.Fatalf("second sticker: %v", err)
	}

	if !first.Deletion.RunAt.Equal(t0.Add(5*time.Minute)) || !second.Deletion.RunAt.Equal(t0.Add(6*time.Minute)) {
		t.Fatalf("run times %s / %s", first.Deletion.RunAt, second.Deletion.RunAt)
	}
	if first.Deletion.JobID == second.Deletion.JobID {
		t.Fatalf("job ids collide: %s", first.Deletion.JobID)
	}

	e.clock.Advance(4 * time.Minute) // t0+5m
	if got := e.tr.deletedSnapshot(); len(got) != 1 || got[0] != (transport.MessageRef{ChatID: chat, MessageID: 10}) {
		t.Fatalf("deleted at +5m: %+v", got)
	}
	e.clock.Advance(time.Minute) // t0+6m
	got := e.tr.deletedSnapshot()
	if len(got) != 2 || got[1] != (transport.MessageRef{ChatID: chat, MessageID: 11}) {
		t.Fatalf("deleted at +6m: %+v", got)
	}
	if n := e.sched.Len(); n != 0 {
		t.Fatalf("one-shot jobs left: %d", n)
	}
}

func TestSetDeleteTimerValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	for _, arg := range []string{"", "0", "-3", "abc", "1.5", "5m"} {
		_, err := e.svc.SetDeleteTimer(ctx, 1, 1, arg)
		var ve *flows.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("arg %q: err=%v", arg, err)
		}
	}
	if st := e.svc.State(1); st.Kind != flows.Idle {
		t.Fatalf("state changed: %v", st.Kind)
	}
	set, _ := e.rec.GetUserSettings(ctx, 1)
	if set.TimerActive() {
		t.Fatalf("settings written: %+v", set)
	}
}

func TestCancelDeleteTimer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	if err := e.svc.CancelDeleteTimer(ctx, 1); !errors.Is(err, flows.ErrNothingToCancel) {
		t.Fatalf("cancel without timer: %v", err)
	}
	_, _ = e.svc.SetDeleteTimer(ctx, 1, 9, "3")
	if err := e.svc.CancelDeleteTimer(ctx, 1); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if st := e.svc.State(1); st.Kind != flows.Idle {
		t.Fatalf("state=%v", st.Kind)
	}
	set, _ := e.rec.GetUserSettings(ctx, 1)
	if set.DeleteTimerMinutes != 0 || set.DeleteTimerActiveChatID != 0 {
		t.Fatalf("fields not cleared: %+v", set)
	}
	out, err := e.svc.Route(ctx, sticker(1, 9, 5))
	if err != nil || out.Handled {
		t.Fatalf("media after cancel: %+v,%v", out, err)
	}
	if e.sched.Len() != 0 {
		t.Fatalf("job scheduled after cancel")
	}
}

func TestStaleTimerResetsToIdle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	_, _ = e.svc.SetDeleteTimer(ctx, 1, 100, "5")
	_, err := e.svc.Route(ctx, sticker(1, 200, 5))
	if !errors.Is(err, flows.ErrStaleTimer) {
		t.Fatalf("media in other chat: %v", err)
	}
	if st := e.svc.State(1); st.Kind != flows.Idle {
		t.Fatalf("state=%v want idle", st.Kind)
	}
	if e.sched.Len() != 0 {
		t.Fatalf("job scheduled for stale state")
	}
}

func TestDeletionResumesAfterRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)
	_, _ = e.svc.SetDeleteTimer(ctx, 1, 100, "5")

	// Fresh process: pending state is empty, settings persist.
	restarted := flows.New(e.rec, e.sched, logx.Nop(), flows.WithClock(e.clock))
	if st := restarted.State(1); st.Kind != flows.Idle {
		t.Fatalf("state=%v", st.Kind)
	}
	out, err := restarted.Route(ctx, sticker(1, 100, 8))
	if err != nil || out.Deletion == nil {
		t.Fatalf("Route=%+v,%v", out, err)
	}
	if st := restarted.State(1); st.Kind != flows.AwaitingDeleteMedia {
		t.Fatalf("state=%v", st.Kind)
	}
	// Armed again, so a media message in another chat is stale.
	out, err = restarted.Route(ctx, sticker(1, 300, 9))
	if !errors.Is(err, flows.ErrStaleTimer) || out.Deletion != nil {
		t.Fatalf("other chat: %+v,%v", out, err)
	}
}

func TestBeginScheduleRejectsMalformedTime(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	for _, arg := range []string{"25:00", "9:30", "abc", "", "12:60", "24:00", "08:00:00", " 08:00x"} {
		_, err := e.svc.BeginSchedule(1, arg)
		var ve *flows.ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("arg %q: err=%v", arg, err)
		}
		if st := e.svc.State(1); st.Kind != flows.Idle {
			t.Fatalf("arg %q changed state to %v", arg, st.Kind)
		}
	}
	if e.sched.Len() != 0 {
		t.Fatalf("jobs registered for malformed input")
	}
}

func TestScheduleScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	at, err := e.svc.BeginSchedule(3, "08:00")
	if err != nil || at != (media.TimeOfDay{Hour: 8}) {
		t.Fatalf("BeginSchedule=%v,%v", at, err)
	}
	msg := &transport.Message{ID: 77, ChatID: -42, FromID: 3, Media: &transport.Media{FileID: "gif-1", Type: media.GIF}}
	out, err := e.svc.Route(ctx, msg)
	if err != nil || out.Scheduled == nil {
		t.Fatalf("Route=%+v,%v", out, err)
	}
	item := *out.Scheduled
	if item.ID == "" || item.ScheduleTime != "08:00" {
		t.Fatalf("item=%+v", item)
	}
	if st := e.svc.State(3); st.Kind != flows.Idle {
		t.Fatalf("state=%v", st.Kind)
	}

	jobID := media.SendJobID(item.ID)
	info, ok := e.sched.GetJob(jobID)
	if !ok || info.At != "08:00" {
		t.Fatalf("job %s: %+v %v", jobID, info, ok)
	}

	e.clock.Set(time.Date(2026, 3, 10, 7, 59, 59, 0, time.UTC))
	if len(e.tr.sentSnapshot()) != 0 {
		t.Fatalf("sent early")
	}
	e.clock.Set(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	sent := e.tr.sentSnapshot()
	if len(sent) != 1 {
		t.Fatalf("sent %d times at 08:00", len(sent))
	}
	got := sent[0]
	if got.chatID != -42 || got.fileID != "gif-1" || got.typ != media.GIF || !got.at.Equal(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("sent=%+v", got)
	}
	e.clock.Advance(time.Hour)
	if len(e.tr.sentSnapshot()) != 1 {
		t.Fatalf("fired again within the day")
	}
}

func TestScheduleUnsupportedMediaKeepsWaiting(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	_, _ = e.svc.BeginSchedule(3, "10:15")
	_, err := e.svc.Route(ctx, &transport.Message{ID: 1, ChatID: 1, FromID: 3, Text: "hello"})
	if !errors.Is(err, flows.ErrUnsupportedMedia) {
		t.Fatalf("text while awaiting media: %v", err)
	}
	st := e.svc.State(3)
	if st.Kind != flows.AwaitingScheduledMedia || st.Time != (media.TimeOfDay{Hour: 10, Minute: 15}) {
		t.Fatalf("state=%+v", st)
	}
}

type failingDocs struct {
	storage.Store
	failAdd bool
}

func (f failingDocs) Add(ctx context.Context, collection string, data storage.Doc) (string, error) {
	if f.failAdd {
		return "", errors.New("deadline exceeded")
	}
	return f.Store.Add(ctx, collection, data)
}

func TestScheduleStoreFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mem := storage.NewMemory()
	t.Cleanup(func() { _ = mem.Close() })
	e := newEnvWithDocs(t, failingDocs{Store: mem, failAdd: true})

	_, _ = e.svc.BeginSchedule(3, "10:15")
	_, err := e.svc.Route(ctx, sticker(3, 1, 1))
	if !errors.Is(err, flows.ErrStoreUnavailable) {
		t.Fatalf("err=%v", err)
	}
	if st := e.svc.State(3); st.Kind != flows.Idle {
		t.Fatalf("state=%v want idle", st.Kind)
	}
	if e.sched.Len() != 0 {
		t.Fatalf("job registered without record")
	}
}

func addItem(t *testing.T, e *env, uid int64, at media.TimeOfDay) string {
	t.Helper()
	id, err := e.rec.AddScheduledMedia(context.Background(), records.NewScheduledMedia{
		UserID:       uid,
		ChatID:       uid * 10,
		MediaFileID:  fmt.Sprintf("file-%d", uid),
		MediaType:    media.Photo,
		ScheduleTime: at,
	})
	if err != nil {
		t.Fatalf("AddScheduledMedia: %v", err)
	}
	return id
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	a := addItem(t, e, 1, media.TimeOfDay{Hour: 8})
	b := addItem(t, e, 2, media.TimeOfDay{Hour: 20, Minute: 30})
	if err := e.docs.Set(ctx, "artifacts/test-app/users/3/scheduled_media/broken", storage.Doc{"schedule_time": "8pm"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	for i := range 2 {
		res, err := e.svc.Reconcile(ctx)
		if err != nil || res.Scheduled != 2 || res.Skipped != 1 {
			t.Fatalf("pass %d: %+v,%v", i, res, err)
		}
	}
	want := []string{media.SendJobID(a), media.SendJobID(b)}
	slices.Sort(want)
	if got := jobIDs(e.sched); !slices.Equal(got, want) {
		t.Fatalf("jobs=%v want %v", got, want)
	}

	e.clock.Advance(24 * time.Hour)
	sent := e.tr.sentSnapshot()
	if len(sent) != 2 {
		t.Fatalf("sent %d over one day, want 2", len(sent))
	}
}

func openSQLiteEnv(t *testing.T) (*env, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nightbot.db")
	docs, err := storage.Open(storage.Config{Driver: "sqlite", Path: dbPath}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = docs.Close() })
	return newEnvWithDocs(t, docs), dbPath
}

// writeRawRow stores body at docPath without going through the store, the way
// a damaged or hand-edited database would look.
func writeRawRow(t *testing.T, dbPath, docPath, body string) {
	t.Helper()
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	defer db.Close()
	collection, id := path.Split(docPath)
	collection = strings.TrimSuffix(collection, "/")
	_, err = db.Exec(
		`INSERT INTO documents(path, collection, group_name, doc_id, data, created_at, updated_at) VALUES(?,?,?,?,?,?,?)`,
		docPath, collection, path.Base(collection), id, body, "", "")
	if err != nil {
		t.Fatalf("insert raw row: %v", err)
	}
}

func TestReconcileSkipsUndecodableRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, dbPath := openSQLiteEnv(t)

	var want []string
	for _, uid := range []int64{1, 2, 3} {
		want = append(want, media.SendJobID(addItem(t, e, uid, media.TimeOfDay{Hour: 8})))
	}
	// Sorts before the valid rows, so a scan that stops on it registers nothing.
	writeRawRow(t, dbPath, "artifacts/test-app/users/0/scheduled_media/bad", "{not json")

	res, err := e.svc.Reconcile(ctx)
	if err != nil || res.Scheduled != 3 || res.Skipped != 1 {
		t.Fatalf("Reconcile=%+v,%v", res, err)
	}
	slices.Sort(want)
	if got := jobIDs(e.sched); !slices.Equal(got, want) {
		t.Fatalf("jobs=%v want %v", got, want)
	}
}

func TestCancelNextToUndecodableSibling(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e, dbPath := openSQLiteEnv(t)

	id := addItem(t, e, 1, media.TimeOfDay{Hour: 8})
	writeRawRow(t, dbPath, "artifacts/test-app/users/1/scheduled_media/bad", "{not json")
	if _, err := e.svc.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	items, err := e.svc.ListSchedules(ctx, 1)
	if err != nil || len(items) != 1 || items[0].ID != id {
		t.Fatalf("ListSchedules=%v,%v", items, err)
	}
	if err := e.svc.CancelSchedule(ctx, 1, id); err != nil {
		t.Fatalf("CancelSchedule: %v", err)
	}
	if _, ok := e.sched.GetJob(media.SendJobID(id)); ok {
		t.Fatalf("job kept after cancel")
	}
	if err := e.svc.CancelSchedule(ctx, 1, "bad"); !errors.Is(err, flows.ErrNotFound) {
		t.Fatalf("cancel corrupt id: %v", err)
	}
}

type scanFailDocs struct{ storage.Store }

func (scanFailDocs) CollectionGroup(context.Context, string) iter.Seq2[storage.Snapshot, error] {
	return func(yield func(storage.Snapshot, error) bool) {
		yield(storage.Snapshot{}, errors.New("connection reset"))
	}
}

func TestReconcileScanFailure(t *testing.T) {
	t.Parallel()
	e := newEnvWithDocs(t, scanFailDocs{Store: storage.NewMemory()})
	res, err := e.svc.Reconcile(context.Background())
	if !errors.Is(err, flows.ErrStoreUnavailable) || res.Scheduled != 0 {
		t.Fatalf("Reconcile=%+v,%v", res, err)
	}
}

func TestCancelAfterCrash(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	// Record written, job never registered.
	orphan := addItem(t, e, 1, media.TimeOfDay{Hour: 8})
	_, _ = e.svc.BeginSchedule(1, "09:00")
	out, err := e.svc.Route(ctx, sticker(1, 10, 3))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	other := media.SendJobID(out.Scheduled.ID)

	if err := e.svc.CancelSchedule(ctx, 1, orphan); err != nil {
		t.Fatalf("CancelSchedule: %v", err)
	}
	if _, ok := e.sched.GetJob(other); !ok {
		t.Fatalf("unrelated job removed")
	}
	if _, err := e.rec.GetScheduledMedia(ctx, 1, orphan); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("record still present: %v", err)
	}
}

func TestCancelByOtherUserIsNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	_, _ = e.svc.BeginSchedule(1, "08:00")
	out, err := e.svc.Route(ctx, sticker(1, 10, 3))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	id := out.Scheduled.ID

	if err := e.svc.CancelSchedule(ctx, 2, id); !errors.Is(err, flows.ErrNotFound) {
		t.Fatalf("cancel by other user: %v", err)
	}
	if err := e.svc.CancelSchedule(ctx, 1, "does-not-exist"); !errors.Is(err, flows.ErrNotFound) {
		t.Fatalf("cancel unknown id: %v", err)
	}
	if _, ok := e.sched.GetJob(media.SendJobID(id)); !ok {
		t.Fatalf("owner's job removed")
	}
	if _, err := e.rec.GetScheduledMedia(ctx, 1, id); err != nil {
		t.Fatalf("owner's record removed: %v", err)
	}

	if err := e.svc.CancelSchedule(ctx, 1, id); err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if _, ok := e.sched.GetJob(media.SendJobID(id)); ok {
		t.Fatalf("job kept after cancel")
	}
}

func TestListSchedulesSorted(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newEnv(t)

	addItem(t, e, 1, media.TimeOfDay{Hour: 21})
	addItem(t, e, 1, media.TimeOfDay{Hour: 6, Minute: 5})
	addItem(t, e, 2, media.TimeOfDay{Hour: 1})

	items, err := e.svc.ListSchedules(ctx, 1)
	if err != nil || len(items) != 2 {
		t.Fatalf("ListSchedules=%v,%v", items, err)
	}
	if items[0].ScheduleTime != "06:05" || items[1].ScheduleTime != "21:00" {
		t.Fatalf("order=%s,%s", items[0].ScheduleTime, items[1].ScheduleTime)
	}
}

func TestDispatcherRemovesOrphanJob(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	// Job without record.
	p := media.SendMedia{UserID: 1, ItemID: "gone", ChatID: 10, FileID: "f", Type: media.Video}
	if err := e.sched.AddDailyCron(media.SendJobID("gone"), 8, 0, p, false); err != nil {
		t.Fatalf("AddDailyCron: %v", err)
	}
	e.clock.Advance(2 * time.Hour)
	if len(e.tr.sentSnapshot()) != 0 {
		t.Fatalf("sent media for missing record")
	}
	if _, ok := e.sched.GetJob(media.SendJobID("gone")); ok {
		t.Fatalf("orphan job still registered")
	}
}

func TestDispatcherDeleteGoneMessage(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	e.tr.deleteErr = fmt.Errorf("telegram: %w", transport.ErrMessageGone)

	d := flows.NewDispatcher(e.rec, e.sched, e.tr, logx.Nop())
	err := d.Dispatch(context.Background(), scheduler.Job{ID: "x", Kind: scheduler.OneShot, Payload: media.DeleteMessage{ChatID: 1, MessageID: 2}})
	if err != nil {
		t.Fatalf("gone message must not fail the job: %v", err)
	}

	e.tr.deleteErr = errors.New("timeout")
	if err := d.Dispatch(context.Background(), scheduler.Job{ID: "x", Kind: scheduler.OneShot, Payload: media.DeleteMessage{ChatID: 1, MessageID: 2}}); err == nil {
		t.Fatalf("transient failure swallowed")
	}
}
