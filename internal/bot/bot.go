// Package bot holds the Telegram commands, callbacks and the media message
// handler. It renders flow results and errors as chat replies.
package bot

import (
	"context"
	"errors"
	"strings"

	"nightbot/internal/flows"
	"nightbot/internal/media"
	"nightbot/internal/records"
	"nightbot/internal/transport"
	"nightbot/internal/transport/telegram/router"
	logx "nightbot/pkg/logx"
)

// Flows is the part of *flows.Service the handlers drive.
type Flows interface {
	State(uid int64) flows.State
	Reset(uid int64)
	Route(ctx context.Context, msg *transport.Message) (flows.Outcome, error)
	SetDeleteTimer(ctx context.Context, uid, chatID int64, arg string) (int, error)
	CancelDeleteTimer(ctx context.Context, uid int64) error
	BeginSchedule(uid int64, arg string) (media.TimeOfDay, error)
	ListSchedules(ctx context.Context, uid int64) ([]records.ScheduledMediaItem, error)
	CancelSchedule(ctx context.Context, uid int64, id string) error
}

// Activity records that a user interacted with the bot.
type Activity interface {
	TouchLastActive(ctx context.Context, uid int64) error
}

type Handlers struct {
	flows    Flows
	activity Activity
	log      logx.Logger
	pageSize int
}

func New(f Flows, act Activity, log logx.Logger) *Handlers {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{flows: f, activity: act, log: log.With(logx.Comp("bot")), pageSize: 8}
}

// Register installs the commands, callbacks and media handler on m.
func (h *Handlers) Register(m *router.CommandManager, extra ...router.Command) {
	cmds := append(h.Commands(), extra...)
	m.SetRegistry(cmds, h.Callbacks())
	m.SetHelpFooter(helpFooter)
	m.SetMessageHandler(h.HandleMessage)
	if h.activity != nil {
		m.Use(router.MWActivity(h.activity.TouchLastActive))
	}
}

func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "Introduction and your user ID",
			Usage:       "/start",
			Handle:      h.cmdStart,
		},
		{
			Name:        "set_delete_timer",
			Description: "Auto-delete media in this chat after N minutes",
			Usage:       "/set_delete_timer <minutes>",
			Handle:      h.cmdSetDeleteTimer,
		},
		{
			Name:        "cancel_delete_timer",
			Description: "Stop auto-deleting media",
			Usage:       "/cancel_delete_timer",
			Handle:      h.cmdCancelDeleteTimer,
		},
		{
			Name:        "schedule_media",
			Description: "Send a media item here every day at HH:MM UTC",
			Usage:       "/schedule_media <HH:MM>",
			Handle:      h.cmdScheduleMedia,
		},
		{
			Name:        "cancel_schedule",
			Aliases:     []string{"schedules"},
			Description: "List or cancel your scheduled media",
			Usage:       "/cancel_schedule [id]",
			Handle:      h.cmdCancelSchedule,
		},
	}
}

func (h *Handlers) cmdStart(ctx context.Context, req *router.Request) error {
	h.flows.Reset(req.FromID)
	name := ""
	if m := req.Message(); m != nil {
		name = m.FromUsername
	}
	return req.Reply(ctx, textStart(name, req.FromID))
}

func (h *Handlers) cmdSetDeleteTimer(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, textUsageDeleteTimer)
	}
	minutes, err := h.flows.SetDeleteTimer(ctx, req.FromID, req.Chat.ChatID, argLine(req))
	var verr *flows.ValidationError
	switch {
	case err == nil:
		return req.Reply(ctx, textTimerArmed(minutes))
	case errors.As(err, &verr):
		return req.Reply(ctx, textBadMinutes)
	default:
		return errors.Join(err, req.Reply(ctx, textGenericDBError))
	}
}

func (h *Handlers) cmdCancelDeleteTimer(ctx context.Context, req *router.Request) error {
	err := h.flows.CancelDeleteTimer(ctx, req.FromID)
	switch {
	case err == nil:
		return req.Reply(ctx, textTimerCancelled)
	case errors.Is(err, flows.ErrNothingToCancel):
		return req.Reply(ctx, textNoTimer)
	default:
		return errors.Join(err, req.Reply(ctx, textGenericDBError))
	}
}

func (h *Handlers) cmdScheduleMedia(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return req.Reply(ctx, textUsageSchedule)
	}
	at, err := h.flows.BeginSchedule(req.FromID, argLine(req))
	if err != nil {
		return req.Reply(ctx, textBadTime)
	}
	return req.Reply(ctx, textAwaitMedia(at.String()))
}

func (h *Handlers) cmdCancelSchedule(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		items, err := h.flows.ListSchedules(ctx, req.FromID)
		if err != nil {
			return errors.Join(err, req.Reply(ctx, textGenericDBError))
		}
		if len(items) == 0 {
			return req.Reply(ctx, textNoSchedules)
		}
		_, err = h.renderList(items, 0, "").Reply(ctx, req.Adapter, req.Chat, req.Message().ID)
		return err
	}

	id := argLine(req)
	err := h.flows.CancelSchedule(ctx, req.FromID, id)
	switch {
	case err == nil:
		return req.Reply(ctx, textCancelled(id))
	case errors.Is(err, flows.ErrNotFound):
		return req.Reply(ctx, textNotFound(id))
	default:
		return errors.Join(err, req.Reply(ctx, textGenericDBError))
	}
}

// HandleMessage routes a non-command message to the flow the sender is in.
func (h *Handlers) HandleMessage(ctx context.Context, req *router.Request) error {
	msg := req.Message()
	if msg == nil {
		return nil
	}
	st := h.flows.State(msg.FromID)
	out, err := h.flows.Route(ctx, msg)
	if err == nil && !out.Handled {
		return nil
	}

	switch {
	case err == nil && out.Deletion != nil:
		return req.Reply(ctx, textWillDelete(out.Deletion.Minutes))
	case err == nil && out.Scheduled != nil:
		return req.Reply(ctx, textScheduled(out.Scheduled.ID, out.Scheduled.ScheduleTime))
	case err == nil:
		return nil
	case errors.Is(err, flows.ErrUnsupportedMedia):
		return req.Reply(ctx, textUnsupported)
	case errors.Is(err, flows.ErrStaleTimer):
		return req.Reply(ctx, textStaleTimer)
	case st.Kind == flows.AwaitingScheduledMedia:
		return errors.Join(err, req.Reply(ctx, textScheduleDBError))
	default:
		return errors.Join(err, req.Reply(ctx, textDeleteDBError))
	}
}

// argLine is everything after the command name. Extra tokens stay part of the
// argument, so "/set_delete_timer 5 extra" is rejected rather than read as 5.
func argLine(req *router.Request) string {
	return strings.TrimSpace(strings.Join(req.Args, " "))
}
