package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"nightbot/internal/eventbus"
	"nightbot/internal/task/engine"
	"nightbot/internal/task/scheduler"
	logx "nightbot/pkg/logx"
)

type fixedJobs int

func (f fixedJobs) Len() int { return int(f) }

type fixedEngine engine.Snapshot

func (f fixedEngine) Snapshot() engine.Snapshot { return engine.Snapshot(f) }

func TestObserveEvents(t *testing.T) {
	t.Parallel()

	m := New(Sources{}, logx.Nop())
	m.Observe(eventbus.Event{Type: eventbus.TaskFinished, Data: engine.TaskEvent{Kind: "send", Duration: time.Second}})
	m.Observe(eventbus.Event{Type: eventbus.TaskFailed, Data: engine.TaskEvent{Kind: "send"}})
	m.Observe(eventbus.Event{Type: eventbus.TaskDropped, Data: engine.TaskEvent{}})
	m.Observe(eventbus.Event{Type: eventbus.JobAdded, Data: scheduler.JobEvent{ID: "send_sch_1", Kind: "daily"}})
	m.Observe(eventbus.Event{Type: eventbus.JobFired, Data: scheduler.JobEvent{ID: "send_sch_1", Kind: "daily"}})
	m.Observe(eventbus.Event{Type: "unrelated", Data: 42})

	cases := []struct {
		name string
		got  float64
		want float64
	}{
		{"send ok", testutil.ToFloat64(m.tasks.WithLabelValues("send", "ok")), 1},
		{"send failed", testutil.ToFloat64(m.tasks.WithLabelValues("send", "failed")), 1},
		{"dropped unknown", testutil.ToFloat64(m.tasks.WithLabelValues("unknown", "dropped")), 1},
		{"job added", testutil.ToFloat64(m.jobEvents.WithLabelValues("added", "daily")), 1},
		{"job fired", testutil.ToFloat64(m.jobEvents.WithLabelValues("fired", "daily")), 1},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("%s = %v, want %v", tc.name, tc.got, tc.want)
		}
	}
}

func TestRunConsumesBus(t *testing.T) {
	t.Parallel()

	bus := eventbus.New()
	m := New(Sources{}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(ctx, bus)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for testutil.ToFloat64(m.jobEvents.WithLabelValues("removed", "one_shot")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("event never observed")
		}
		// Publishing before the subscription exists is lost, so repeat.
		bus.Publish(eventbus.Event{Type: eventbus.JobRemoved, Data: scheduler.JobEvent{Kind: "one_shot"}})
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}

func TestHandlerExposesGauges(t *testing.T) {
	t.Parallel()

	m := New(Sources{Jobs: fixedJobs(3), Engine: fixedEngine{QueueLen: 2, InFlight: 1}}, logx.Nop())
	m.ObserveUpdate("media")
	m.ObserveReconcile(5, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		"nightbot_scheduled_jobs 3",
		"nightbot_engine_queue_length 2",
		"nightbot_engine_in_flight 1",
		`nightbot_updates_total{kind="media"} 1`,
		`nightbot_reconciled_items_total{result="scheduled"} 5`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
