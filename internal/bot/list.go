package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"nightbot/internal/flows"
	"nightbot/internal/records"
	"nightbot/internal/transport"
	"nightbot/internal/transport/telegram/router"
	logx "nightbot/pkg/logx"
	"nightbot/pkg/tgui"

	tele "gopkg.in/telebot.v4"
)

const cbGroup = "sched"

func (h *Handlers) Callbacks() []router.CallbackRoute {
	return []router.CallbackRoute{
		{Group: cbGroup, Action: "cancel", Handle: h.cbCancel},
		{Group: cbGroup, Action: "page", Handle: h.cbPage},
	}
}

// renderList shows one page of items with a cancel button per item. note is
// an optional escaped HTML line above the list.
func (h *Handlers) renderList(items []records.ScheduledMediaItem, page int, note string) tgui.Message {
	p := tgui.Paginate(items, page, h.pageSize)

	b := tgui.New()
	if note != "" {
		b.HTML(tgui.H(note)).Blank()
	}
	b.Title("🗓", "Your scheduled media")
	kb := tgui.NewInline()
	for _, it := range p.Items {
		b.Blank().
			KV("ID", it.ID).
			KV("Type", string(it.MediaType)).
			KV("Time", it.ScheduleTime+" UTC").
			KV("Chat ID", strconv.FormatInt(it.ChatID, 10))
		if data, err := tgui.Data(cbGroup, "cancel", it.ID); err == nil {
			kb.Row(tgui.Btn(fmt.Sprintf("✖ %s %s", it.ScheduleTime, it.MediaType), data))
		} else {
			h.log.Warn("cancel button skipped", logx.ItemID(it.ID), logx.Err(err))
		}
	}
	b.Blank().HTML(tgui.H("To cancel, use <code>/cancel_schedule &lt;id&gt;</code> or tap a button below."))

	var nav []tele.Btn
	if p.HasPrev {
		nav = append(nav, tgui.Btn("« Prev", mustData("page", strconv.Itoa(p.Index-1))))
	}
	if p.HasNext {
		nav = append(nav, tgui.Btn("Next »", mustData("page", strconv.Itoa(p.Index+1))))
	}
	if len(nav) > 0 {
		b.Line(p.Label())
		kb.Row(nav...)
	}
	return b.Inline(kb).Build()
}

func mustData(action, payload string) string {
	d, _ := tgui.Data(cbGroup, action, payload)
	return d
}

func callbackRef(req *router.Request) transport.MessageRef {
	cb := req.Update.Callback
	return transport.MessageRef{ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID, MessageID: cb.MessageID}
}

func (h *Handlers) cbPage(ctx context.Context, req *router.Request, payload string) error {
	page, _ := strconv.Atoi(payload)
	items, err := h.flows.ListSchedules(ctx, req.FromID)
	if err != nil {
		_ = req.Adapter.AnswerCallback(ctx, req.Update.Callback.ID, "Database error, try again later")
		return err
	}
	if len(items) == 0 {
		return tgui.New().Line(textNoSchedules).Build().Edit(ctx, req.Adapter, callbackRef(req))
	}
	return h.renderList(items, page, "").Edit(ctx, req.Adapter, callbackRef(req))
}

func (h *Handlers) cbCancel(ctx context.Context, req *router.Request, id string) error {
	err := h.flows.CancelSchedule(ctx, req.FromID, id)
	var note string
	switch {
	case err == nil:
		note = textCancelled(id)
		_ = req.Adapter.AnswerCallback(ctx, req.Update.Callback.ID, "Cancelled")
	case errors.Is(err, flows.ErrNotFound):
		note = textNotFound(id)
		_ = req.Adapter.AnswerCallback(ctx, req.Update.Callback.ID, "Not found")
	default:
		_ = req.Adapter.AnswerCallback(ctx, req.Update.Callback.ID, "Database error, try again later")
		return err
	}

	items, err := h.flows.ListSchedules(ctx, req.FromID)
	if err != nil {
		return tgui.New().HTML(tgui.H(note)).Build().Edit(ctx, req.Adapter, callbackRef(req))
	}
	if len(items) == 0 {
		return tgui.New().HTML(tgui.H(note)).Blank().Line(textNoSchedules).Build().Edit(ctx, req.Adapter, callbackRef(req))
	}
	return h.renderList(items, 0, note).Edit(ctx, req.Adapter, callbackRef(req))
}
