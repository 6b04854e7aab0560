package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nightbot/internal/eventbus"
	"nightbot/internal/media"
	"nightbot/internal/task/engine"
	"nightbot/internal/task/scheduler"
	"nightbot/internal/task/scheduler/schedtest"
	logx "nightbot/pkg/logx"
)

var t0 = time.Date(2026, 1, 1, 7, 0, 0, 0, time.UTC)

type fired struct {
	id string
	at time.Time
}

type harness struct {
	clock  *schedtest.Clock
	runner *schedtest.Runner
	sched  *scheduler.Service

	mu    sync.Mutex
	fired []fired
}

func newHarness(t *testing.T, bus eventbus.Bus) *harness {
	t.Helper()
	h := &harness{clock: schedtest.NewClock(t0), runner: &schedtest.Runner{}}
	h.sched = scheduler.New(scheduler.Config{}, h.runner, logx.Nop(), bus, scheduler.WithClock(h.clock))
	h.sched.SetDispatcher(scheduler.DispatchFunc(func(ctx context.Context, job scheduler.Job) error {
		h.mu.Lock()
		h.fired = append(h.fired, fired{id: job.ID, at: h.clock.Now()})
		h.mu.Unlock()
		return nil
	}))
	t.Cleanup(func() { h.sched.Stop(context.Background()) })
	return h
}

func (h *harness) firedIDs() []fired {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]fired(nil), h.fired...)
}

func sendPayload(item string) media.SendMedia {
	return media.SendMedia{UserID: 1, ItemID: item, ChatID: 10, FileID: "f", Type: media.Sticker}
}

func TestDailyFiresOncePerDay(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	if err := h.sched.AddDailyCron("send_sch_a", 8, 0, sendPayload("a"), false); err != nil {
		t.Fatalf("AddDailyCron: %v", err)
	}
	h.sched.Start(context.Background())

	h.clock.Advance(72 * time.Hour)

	got := h.firedIDs()
	if len(got) != 3 {
		t.Fatalf("fired %d times, want 3: %+v", len(got), got)
	}
	for i, f := range got {
		want := time.Date(2026, 1, 1+i, 8, 0, 0, 0, time.UTC)
		if !f.at.Equal(want) {
			t.Fatalf("firing %d at %s, want %s", i, f.at, want)
		}
	}
	info, ok := h.sched.GetJob("send_sch_a")
	if !ok {
		t.Fatalf("daily job left the table")
	}
	if info.Fired != 3 || !info.Next.Equal(time.Date(2026, 1, 4, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("info=%+v", info)
	}
}

func TestDailyReplaceIsIdempotent(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	h := newHarness(t, bus)
	h.sched.Start(context.Background())
	for range 3 {
		if err := h.sched.AddDailyCron("send_sch_a", 8, 0, sendPayload("a"), true); err != nil {
			t.Fatalf("AddDailyCron: %v", err)
		}
	}
	if n := h.sched.Len(); n != 1 {
		t.Fatalf("jobs=%d want 1", n)
	}
	if p := h.clock.Pending(); len(p) != 1 {
		t.Fatalf("armed timers=%d want 1", len(p))
	}

	err := h.sched.AddDailyCron("send_sch_a", 9, 0, sendPayload("a"), false)
	if !errors.Is(err, scheduler.ErrJobExists) {
		t.Fatalf("duplicate without replace: %v", err)
	}

	h.clock.Advance(24 * time.Hour)
	if got := h.firedIDs(); len(got) != 1 {
		t.Fatalf("fired %d times, want 1", len(got))
	}

	var added, replaced int
	for len(events) > 0 {
		switch (<-events).Type {
		case eventbus.JobAdded:
			added++
		case eventbus.JobReplaced:
			replaced++
		}
	}
	if added != 1 || replaced != 2 {
		t.Fatalf("added=%d replaced=%d", added, replaced)
	}
}

func TestReplaceChangesTime(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.sched.Start(context.Background())
	_ = h.sched.AddDailyCron("send_sch_a", 8, 0, sendPayload("a"), false)
	if err := h.sched.AddDailyCron("send_sch_a", 9, 30, sendPayload("a"), true); err != nil {
		t.Fatalf("replace: %v", err)
	}
	h.clock.Advance(5 * time.Hour)
	got := h.firedIDs()
	if len(got) != 1 || !got[0].at.Equal(time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("fired=%+v", got)
	}
}

func TestOneShotRemovesItself(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.sched.Start(context.Background())

	id := media.DeleteJobID(10, 5, h.clock.Now())
	if err := h.sched.AddOneShot(id, h.clock.Now().Add(10*time.Minute), media.DeleteMessage{ChatID: 10, MessageID: 5}); err != nil {
		t.Fatalf("AddOneShot: %v", err)
	}
	if _, ok := h.sched.GetJob(id); !ok {
		t.Fatalf("job not registered")
	}

	h.clock.Advance(9 * time.Minute)
	if len(h.firedIDs()) != 0 {
		t.Fatalf("fired early")
	}
	h.clock.Advance(time.Hour)
	got := h.firedIDs()
	if len(got) != 1 || got[0].id != id || !got[0].at.Equal(t0.Add(10*time.Minute)) {
		t.Fatalf("fired=%+v", got)
	}
	if _, ok := h.sched.GetJob(id); ok {
		t.Fatalf("one-shot still present after firing")
	}
}

func TestOneShotInPastFiresImmediately(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.sched.Start(context.Background())

	if err := h.sched.AddOneShot("late", t0.Add(-time.Hour), media.DeleteMessage{ChatID: 1, MessageID: 2}); err != nil {
		t.Fatalf("AddOneShot: %v", err)
	}
	h.clock.Advance(0)
	got := h.firedIDs()
	if len(got) != 1 || !got[0].at.Equal(t0) {
		t.Fatalf("fired=%+v", got)
	}
}

func TestAddDailyCronValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)

	tests := []struct {
		name   string
		id     string
		hour   int
		minute int
		field  string
	}{
		{name: "hour too big", id: "x", hour: 24, field: "hour"},
		{name: "hour negative", id: "x", hour: -1, field: "hour"},
		{name: "minute too big", id: "x", hour: 8, minute: 60, field: "minute"},
		{name: "empty id", id: " ", hour: 8, field: "id"},
	}
	for _, tt := range tests {
		err := h.sched.AddDailyCron(tt.id, tt.hour, tt.minute, sendPayload("a"), false)
		var ve *scheduler.ValidationError
		if !errors.As(err, &ve) || ve.Field != tt.field {
			t.Fatalf("%s: err=%v", tt.name, err)
		}
	}
	if err := h.sched.AddDailyCron("x", 8, 0, nil, false); !errors.Is(err, scheduler.ErrNoPayload) {
		t.Fatalf("nil payload: %v", err)
	}
	if h.sched.Len() != 0 {
		t.Fatalf("invalid jobs registered")
	}
}

func TestRemoveJob(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.sched.Start(context.Background())
	_ = h.sched.AddDailyCron("send_sch_a", 8, 0, sendPayload("a"), false)

	if !h.sched.RemoveJob("send_sch_a") {
		t.Fatalf("RemoveJob=false")
	}
	if h.sched.RemoveJob("send_sch_a") {
		t.Fatalf("second RemoveJob=true")
	}
	h.clock.Advance(48 * time.Hour)
	if len(h.firedIDs()) != 0 {
		t.Fatalf("removed job fired")
	}
}

func TestStartAndStop(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	_ = h.sched.AddDailyCron("send_sch_a", 8, 0, sendPayload("a"), false)
	_ = h.sched.AddOneShot("once", t0.Add(30*time.Minute), media.DeleteMessage{ChatID: 1, MessageID: 1})

	h.clock.Advance(2 * time.Hour)
	if len(h.firedIDs()) != 0 {
		t.Fatalf("fired before Start")
	}

	// 09:00: the 08:00 run was missed while stopped and is skipped, the
	// overdue one-shot fires right away.
	h.sched.Start(context.Background())
	h.clock.Advance(0)
	got := h.firedIDs()
	if len(got) != 1 || got[0].id != "once" {
		t.Fatalf("fired=%+v", got)
	}
	info, _ := h.sched.GetJob("send_sch_a")
	if !info.Next.Equal(time.Date(2026, 1, 2, 8, 0, 0, 0, time.UTC)) {
		t.Fatalf("next=%s", info.Next)
	}

	h.sched.Stop(context.Background())
	if p := h.clock.Pending(); len(p) != 0 {
		t.Fatalf("timers still armed after Stop: %v", p)
	}
	h.clock.Advance(48 * time.Hour)
	if len(h.firedIDs()) != 1 {
		t.Fatalf("fired after Stop")
	}
	if h.sched.Len() != 1 {
		t.Fatalf("Stop dropped the table")
	}
}

func TestEnqueueFailureStillConsumesOneShot(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	h.runner.Err = errors.New("queue full")
	h.sched.Start(context.Background())

	_ = h.sched.AddOneShot("once", t0.Add(time.Minute), media.DeleteMessage{ChatID: 1, MessageID: 1})
	h.clock.Advance(time.Minute)
	if _, ok := h.sched.GetJob("once"); ok {
		t.Fatalf("one-shot kept after failed enqueue")
	}
	if len(h.firedIDs()) != 0 {
		t.Fatalf("dispatched despite enqueue error")
	}
}

func TestJobsOrderedByNext(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	_ = h.sched.AddDailyCron("send_sch_b", 10, 0, sendPayload("b"), false)
	_ = h.sched.AddDailyCron("send_sch_a", 8, 0, sendPayload("a"), false)
	_ = h.sched.AddOneShot("once", t0.Add(time.Minute), media.DeleteMessage{ChatID: 1, MessageID: 1})

	jobs := h.sched.Jobs()
	if len(jobs) != 3 {
		t.Fatalf("jobs=%d", len(jobs))
	}
	want := []string{"once", "send_sch_a", "send_sch_b"}
	for i, j := range jobs {
		if j.ID != want[i] {
			t.Fatalf("jobs[%d]=%s want %s", i, j.ID, want[i])
		}
	}
	if jobs[1].At != "08:00" || jobs[1].Kind != "daily" || jobs[1].Payload != media.KindSendMedia {
		t.Fatalf("info=%+v", jobs[1])
	}
}

func TestDailyFiringsDoNotOverlap(t *testing.T) {
	t.Parallel()
	h := newHarness(t, nil)
	if err := h.sched.AddDailyCron("send_sch_a", 8, 0, sendPayload("a"), false); err != nil {
		t.Fatalf("AddDailyCron: %v", err)
	}
	if err := h.sched.AddOneShot("delete_msg_1_2_3", t0.Add(time.Minute), media.DeleteMessage{ChatID: 1, MessageID: 2}); err != nil {
		t.Fatalf("AddOneShot: %v", err)
	}
	h.sched.Start(context.Background())
	h.clock.Advance(2 * time.Hour)

	want := map[string]engine.OverlapPolicy{
		"send_sch_a":       engine.OverlapSkipIfRunning,
		"delete_msg_1_2_3": engine.OverlapAllow,
	}
	tasks := h.runner.Tasks()
	if len(tasks) != len(want) {
		t.Fatalf("ran %d tasks, want %d", len(tasks), len(want))
	}
	for _, task := range tasks {
		if task.Opt.Overlap != want[task.Name] {
			t.Fatalf("%s: overlap=%v want %v", task.Name, task.Opt.Overlap, want[task.Name])
		}
	}
}
