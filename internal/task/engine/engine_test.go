package engine

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"nightbot/internal/eventbus"
	logx "nightbot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) (*Service, eventbus.Bus) {
	t.Helper()
	bus := eventbus.New()
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s, bus
}

func waitEvent(t *testing.T, ch <-chan eventbus.Event, typ string) TaskEvent {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == typ {
				return e.Data.(TaskEvent)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", typ)
		}
	}
}

func TestRetriesUntilSuccess(t *testing.T) {
	t.Parallel()

	s, bus := startEngine(t, Config{Workers: 1, RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond})
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	var calls atomic.Int32
	err := s.Enqueue(Task{Name: "send", Kind: "send_media", Run: func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		return nil
	}})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	ev := waitEvent(t, ch, eventbus.TaskFinished)
	if ev.Attempts != 3 || ev.Kind != "send_media" {
		t.Fatalf("event=%+v", ev)
	}
}

func TestNoRetryStopsImmediately(t *testing.T) {
	t.Parallel()

	s, bus := startEngine(t, Config{Workers: 1, RetryMax: 5, RetryBase: time.Millisecond})
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	var calls atomic.Int32
	_ = s.Enqueue(Task{Name: "delete", Run: func(context.Context) error {
		calls.Add(1)
		return NoRetry(errors.New("message not found"))
	}})
	ev := waitEvent(t, ch, eventbus.TaskFailed)
	if calls.Load() != 1 || ev.Attempts != 1 || ev.Error != "message not found" {
		t.Fatalf("calls=%d event=%+v", calls.Load(), ev)
	}
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	s, bus := startEngine(t, Config{Workers: 1, RetryMax: -1})
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	_ = s.Enqueue(Task{Name: "boom", Run: func(context.Context) error { panic("bad payload") }})
	ev := waitEvent(t, ch, eventbus.TaskFailed)
	if ev.Error != "panic: bad payload" {
		t.Fatalf("event=%+v", ev)
	}
	// The worker survives and keeps serving.
	_ = s.Enqueue(Task{Name: "ok", Run: func(context.Context) error { return nil }})
	waitEvent(t, ch, eventbus.TaskFinished)
}

func TestTimeoutBoundsAttempt(t *testing.T) {
	t.Parallel()

	s, bus := startEngine(t, Config{Workers: 1, RetryMax: -1, DefaultTimeout: 20 * time.Millisecond})
	ch, unsub := bus.Subscribe(16)
	defer unsub()

	_ = s.Enqueue(Task{Name: "stuck", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	ev := waitEvent(t, ch, eventbus.TaskFailed)
	if ev.Error != context.DeadlineExceeded.Error() {
		t.Fatalf("event=%+v", ev)
	}
}

func TestEnqueueValidationAndStopped(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	if err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("before start: %v", err)
	}
	if err := s.Enqueue(Task{Name: "x"}); err == nil {
		t.Fatalf("nil Run should fail")
	}
	if err := s.Enqueue(Task{Run: func(context.Context) error { return nil }}); err == nil {
		t.Fatalf("empty name should fail")
	}
}

func TestOverlapSkip(t *testing.T) {
	t.Parallel()

	s, _ := startEngine(t, Config{Workers: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	opt := TaskOptions{Overlap: OverlapSkipIfRunning}
	_ = s.Enqueue(Task{Name: "job", Opt: opt, Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}})
	<-started
	if err := s.Enqueue(Task{Name: "job", Opt: opt, Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("err=%v want ErrOverlapSkip", err)
	}
	close(release)
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	opt := TaskOptions{RetryBase: time.Second, RetryMaxDelay: 5 * time.Second}
	cases := []struct {
		retry int
		want  time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tc := range cases {
		if got := backoffDelay(opt, tc.retry, nil); got != tc.want {
			t.Fatalf("retry %d: got %v want %v", tc.retry, got, tc.want)
		}
	}

	rng := rand.New(rand.NewSource(1))
	opt.RetryJitter = 0.2
	for i := 0; i < 100; i++ {
		d := backoffDelayWithHint(opt, 1, RetryAfter(errors.New("429"), 3*time.Second), rng)
		if d < 2400*time.Millisecond || d > 3600*time.Millisecond {
			t.Fatalf("retry-after with jitter out of range: %v", d)
		}
	}
}
