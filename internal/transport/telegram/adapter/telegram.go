// Package adapter is the Telegram transport built on telebot. It long-polls
// updates into transport.Update values and sends, edits and deletes
// messages under a shared outbound rate limit.
package adapter

import (
	"cmp"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"nightbot/internal/media"
	rtsup "nightbot/internal/runtime/supervisor"
	kit "nightbot/internal/transport"
	logx "nightbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// SendRate caps outbound API calls per second; SendBurst is the bucket size.
	SendRate  float64
	SendBurst int
	// APIURL overrides the Bot API endpoint (local Bot API servers).
	APIURL string
}

type Adapter struct {
	cfg     Config
	log     logx.Logger
	limiter *rate.Limiter

	bot     *tele.Bot
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool

	// sup owns the poll loop, the drop reporter and the stop watcher.
	sup *rtsup.Supervisor

	// droppedUpdates counts updates dropped because the consumer was slower
	// than the poll loop. Logged periodically.
	droppedUpdates atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Comp("telegram"))
	timeout := cmp.Or(cfg.PollTimeout, 10*time.Second)
	b, err := tele.NewBot(tele.Settings{
		URL:    strings.TrimSpace(cfg.APIURL),
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			log.Warn("telebot handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{
		cfg:     cfg,
		log:     log,
		bot:     b,
		limiter: rate.NewLimiter(rate.Limit(cmp.Or(cfg.SendRate, 25)), max(cfg.SendBurst, 1)),
	}
	// atomic.Value needs a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Supervisor returns the adapter's internal supervisor (nil if not started).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func (a *Adapter) registerHandlers() {
	forward := func(c tele.Context) error {
		if msg := messageFromTele(c.Message()); msg != nil {
			a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: msg})
		}
		return nil
	}
	for _, ev := range []string{tele.OnText, tele.OnSticker, tele.OnAnimation, tele.OnPhoto, tele.OnVideo} {
		a.bot.Handle(ev, forward)
	}

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil || m.Chat == nil {
			return nil
		}
		var from int64
		if cb.Sender != nil {
			from = cb.Sender.ID
		}
		a.sendUpdate(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				ThreadID:  m.ThreadID,
				FromID:    from,
				MessageID: m.ID,
				Data:      cb.Data,
			},
		})
		return nil
	})
}

// messageFromTele converts a telebot message, filling Media for the
// supported kinds. Photo carries the largest size.
func messageFromTele(m *tele.Message) *kit.Message {
	if m == nil || m.Chat == nil {
		return nil
	}
	out := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ThreadID: m.ThreadID,
		Text:     m.Text,
		IsGroup:  m.Chat.Type == tele.ChatGroup || m.Chat.Type == tele.ChatSuperGroup,
	}
	if m.Sender != nil {
		out.FromID = m.Sender.ID
		out.FromUsername = m.Sender.Username
		if out.FromUsername == "" {
			out.FromUsername = m.Sender.FirstName
		}
	}
	switch {
	case m.Sticker != nil:
		out.Media = &kit.Media{FileID: m.Sticker.FileID, Type: media.Sticker}
	case m.Animation != nil:
		out.Media = &kit.Media{FileID: m.Animation.FileID, Type: media.GIF}
	case m.Photo != nil:
		out.Media = &kit.Media{FileID: m.Photo.FileID, Type: media.Photo}
	case m.Video != nil:
		out.Media = &kit.Media{FileID: m.Video.FileID, Type: media.Video}
	}
	if out.Media != nil && out.Text == "" {
		out.Text = m.Caption
	}
	return out
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log),
		// adapter errors must not take down the app
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	report := func() {
		if n := a.droppedUpdates.Swap(0); n > 0 {
			a.log.Warn("incoming updates dropped (channel full)", logx.Int64("count", int64(n)), logx.Int("chan_cap", cap(out)))
		}
	}
	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-c.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// bot.Start blocks until Stop. An early return while the context is
	// alive is treated as a failure and restarted.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited unexpectedly")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Int64("dropped_updates_pending", int64(a.droppedUpdates.Load())))
	sup.Cancel()

	// Keep shutdown snappy even if getUpdates is still long-polling.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) wait(ctx context.Context) error {
	if a.limiter == nil {
		return ctx.Err()
	}
	return a.limiter.Wait(ctx)
}

func sendOptions(opt *kit.SendOptions, threadID int, withMarkup bool) *tele.SendOptions {
	so := &tele.SendOptions{
		ParseMode:             opt.ParseMode,
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              threadID,
	}
	if opt.ReplyToMessageID != 0 {
		so.ReplyTo = &tele.Message{ID: opt.ReplyToMessageID}
		so.AllowWithoutReply = true
	}
	if withMarkup && opt.ReplyMarkupAdapter != nil {
		if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok && rm != nil {
			so.ReplyMarkup = rm
		}
	}
	return so
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit, opt.ParseMode) {
		if err := a.wait(ctx); err != nil {
			return first, err
		}
		// markup and reply only on the first chunk
		so := sendOptions(opt, to.ThreadID, i == 0)
		if i > 0 {
			so.ReplyTo = nil
		}
		msg, err := a.bot.Send(chat, chunk, so)
		if err != nil {
			return first, mapSendError(err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)

	if err := a.wait(ctx); err != nil {
		return err
	}
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	so := sendOptions(&kit.SendOptions{ParseMode: opt.ParseMode, DisablePreview: opt.DisablePreview, ReplyMarkupAdapter: opt.ReplyMarkupAdapter}, 0, true)
	if _, err := a.bot.Edit(m, chunks[0], so); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "message is not modified") {
			return nil
		}
		return mapSendError(err)
	}

	// Telegram cannot grow an edited message; the rest goes out as new ones.
	for _, chunk := range chunks[1:] {
		if err := a.wait(ctx); err != nil {
			return err
		}
		so := sendOptions(&kit.SendOptions{ParseMode: opt.ParseMode, DisablePreview: opt.DisablePreview}, ref.ThreadID, false)
		if _, err := a.bot.Send(&tele.Chat{ID: ref.ChatID}, chunk, so); err != nil {
			return mapSendError(err)
		}
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}
