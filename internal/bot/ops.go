package bot

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"nightbot/internal/media"
	"nightbot/internal/task/engine"
	"nightbot/internal/task/scheduler"
	"nightbot/internal/transport/telegram/router"
	"nightbot/pkg/tgui"
)

// JobLister is the read side of the scheduler.
type JobLister interface {
	Jobs() []scheduler.JobInfo
}

// EngineStats reports the task engine state.
type EngineStats interface {
	Snapshot() engine.Snapshot
}

// Ops are owner-only operational commands.
type Ops struct {
	startedAt time.Time
	jobs      JobLister
	engine    EngineStats
	now       func() time.Time
}

func NewOps(jobs JobLister, eng EngineStats) *Ops {
	return &Ops{startedAt: time.Now(), jobs: jobs, engine: eng, now: time.Now}
}

func (o *Ops) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "ping",
			Description: "health check",
			Usage:       "/ping",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "pong")
			},
		},
		{
			Name:        "uptime",
			Description: "process uptime",
			Usage:       "/uptime",
			Access:      router.AccessOwnerOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "uptime: "+durRel(o.now().Sub(o.startedAt)))
			},
		},
		{
			Name:        "sysinfo",
			Description: "runtime info",
			Usage:       "/sysinfo",
			Access:      router.AccessOwnerOnly,
			Handle:      o.cmdSysinfo,
		},
		{
			Name:        "jobs",
			Description: "list scheduler jobs",
			Usage:       "/jobs",
			Access:      router.AccessOwnerOnly,
			Handle:      o.cmdJobs,
		},
	}
}

func (o *Ops) cmdSysinfo(ctx context.Context, req *router.Request) error {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mod := ""
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		mod = bi.Main.Path + " " + bi.Main.Version
	}

	b := tgui.New().Title("🧠", "sysinfo").
		KV("go", runtime.Version()).
		KV("module", mod).
		KV("goroutines", fmt.Sprint(runtime.NumGoroutine())).
		KV("mem_alloc", fmtBytes(m.Alloc)).
		KV("mem_sys", fmtBytes(m.Sys))
	if o.engine != nil {
		s := o.engine.Snapshot()
		b.KV("workers", fmt.Sprint(s.Workers)).
			KV("queue", fmt.Sprintf("%d/%d", s.QueueLen, s.QueueCap))
	}
	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func (o *Ops) cmdJobs(ctx context.Context, req *router.Request) error {
	if o.jobs == nil {
		return req.Reply(ctx, "scheduler is not running")
	}
	jobs := o.jobs.Jobs()
	if len(jobs) == 0 {
		return req.Reply(ctx, "no scheduled jobs")
	}

	now := o.now()
	lines := make([]string, 0, min(len(jobs), 30)+2)
	lines = append(lines, fmt.Sprintf("⏱ %d jobs (UTC), soonest first:", len(jobs)))
	for i, j := range jobs {
		if i == 30 {
			lines = append(lines, fmt.Sprintf("… %d more", len(jobs)-i))
			break
		}
		next := "-"
		if !j.Next.IsZero() {
			next = j.Next.UTC().Format("2006-01-02 15:04")
			if j.Next.After(now) {
				next += " (in " + durRel(j.Next.Sub(now)) + ")"
			}
		}
		line := fmt.Sprintf("- %s [%s %s] next=%s fired=%d", j.ID, j.Kind, j.Payload, next, j.Fired)
		if item, ok := media.ItemIDFromJob(j.ID); ok {
			line += " item=" + item
		}
		lines = append(lines, line)
	}
	_, err := tgui.New().Line(strings.Join(lines, "\n")).Build().Send(ctx, req.Adapter, req.Chat)
	return err
}

func fmtBytes(n uint64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case n >= GB:
		return fmt.Sprintf("%.1fGB", float64(n)/GB)
	case n >= MB:
		return fmt.Sprintf("%.1fMB", float64(n)/MB)
	case n >= KB:
		return fmt.Sprintf("%.1fKB", float64(n)/KB)
	default:
		return fmt.Sprintf("%dB", n)
	}
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
