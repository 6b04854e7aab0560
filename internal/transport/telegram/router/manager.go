package router

import (
	"cmp"
	"context"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"nightbot/internal/runtime/supervisor"
	kit "nightbot/internal/transport"
	logx "nightbot/pkg/logx"
)

type Config struct {
	// Workers is the number of serial queues. Updates of one user always land
	// on the same queue, so they are handled in arrival order.
	Workers int
	// QueueSize bounds each worker queue.
	QueueSize int
	// Timeout applies to requests whose command sets none.
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 64
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

type CommandManager struct {
	mu      sync.RWMutex
	byName  map[string]Command
	ordered []Command
	footer  string
	mws     []Middleware
	onOther HandlerFunc

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute // group -> action -> route

	owners []int64

	log     logx.Logger
	adapter kit.Adapter
	cfg     Config

	runMu   sync.Mutex
	running bool
	sup     *supervisor.Supervisor

	queues []chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, cfg Config) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	queues := make([]chan func(), cfg.Workers)
	for i := range queues {
		queues[i] = make(chan func(), cfg.QueueSize)
	}
	return &CommandManager{
		byName:    map[string]Command{},
		callbacks: map[string]map[string]CallbackRoute{},
		log:       log.With(logx.Comp("telegram.router")),
		adapter:   adapter,
		cfg:       cfg,
		queues:    queues,
	}
}

// Supervisor returns the worker supervisor (nil if not running).
func (m *CommandManager) Supervisor() *supervisor.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *supervisor.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// SetOwners updates the owner list used for AccessOwnerOnly checks.
// Safe to call during hot-reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *CommandManager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.owners, id)
}

// Use appends middlewares that wrap every command, callback and message
// handler, inside panic recovery and request logging.
func (m *CommandManager) Use(mw ...Middleware) {
	m.mu.Lock()
	m.mws = append(m.mws, mw...)
	m.mu.Unlock()
}

// SetHelpFooter sets HTML appended to the /help output.
func (m *CommandManager) SetHelpFooter(html string) {
	m.mu.Lock()
	m.footer = strings.TrimSpace(html)
	m.mu.Unlock()
}

// SetMessageHandler sets the handler for messages that are not commands.
func (m *CommandManager) SetMessageHandler(h HandlerFunc) {
	m.mu.Lock()
	m.onOther = h
	m.mu.Unlock()
}

func (m *CommandManager) SetRegistry(cmds []Command, cbs []CallbackRoute) {
	// always inject help
	helper := Command{
		Name:        "help",
		Description: "Show this help",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, m.helpText())
		},
	}
	if !hasCommand(cmds, "help") {
		cmds = append(cmds, helper)
	}

	byName := map[string]Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		if _, dup := byName[name]; dup {
			m.log.Warn("duplicate command ignored", logx.String("cmd", name))
			continue
		}
		byName[name] = c
		ordered = append(ordered, c)
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := byName[a]; !exists {
				byName[a] = c
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, r := range cbs {
		g := strings.TrimSpace(r.Group)
		a := strings.TrimSpace(r.Action)
		if g == "" || a == "" || r.Handle == nil {
			continue
		}
		if cb[g] == nil {
			cb[g] = map[string]CallbackRoute{}
		}
		cb[g][a] = r
	}

	m.mu.Lock()
	m.byName = byName
	m.ordered = ordered
	m.mu.Unlock()

	m.cbMu.Lock()
	m.callbacks = cb
	m.cbMu.Unlock()
}

func hasCommand(cmds []Command, name string) bool {
	for _, c := range cmds {
		if strings.EqualFold(strings.TrimSpace(c.Name), name) {
			return true
		}
	}
	return false
}

// SyncMenu pushes the visible commands to the platform menu when the adapter
// supports it.
func (m *CommandManager) SyncMenu(ctx context.Context) error {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return nil
	}
	m.mu.RLock()
	menu := buildTelegramMenuCommands(m.ordered)
	m.mu.RUnlock()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return up.UpdateMenuCommands(ctx, menu)
}

// tryEnqueue is a panic-safe enqueue helper (handles a closed queue).
func (m *CommandManager) tryEnqueue(key int64, fn func()) (ok bool) {
	if fn == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	q := m.queues[int(uint64(key)%uint64(len(m.queues)))]
	select {
	case q <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := supervisor.NewSupervisor(ctx,
		supervisor.WithLogger(m.log),
		supervisor.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", len(m.queues)), logx.Int("queue_cap", m.cfg.QueueSize))

	for i, q := range m.queues {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			return m.worker(c, idx, q)
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
		)
	}

	defer func() {
		// Mark as not running before closing so enqueue degrades gracefully.
		m.setSupervisor(sup, false)
		for _, q := range m.queues {
			close(q)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				m.log.Info("updates channel closed")
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) worker(ctx context.Context, idx int, q <-chan func()) error {
	m.log.Debug("command worker started", logx.Int("worker", idx))
	defer m.log.Debug("command worker stopped", logx.Int("worker", idx))
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-q:
			if !ok {
				return nil
			}
			if job == nil {
				continue
			}
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
					}
				}()
				job()
			}()
		}
	}
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(root, up)
	case kit.UpdateCallback:
		m.routeCallback(root, up)
	}
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	if msg.Media == nil {
		if word, args, ok := commandWord(msg.Text); ok {
			m.mu.RLock()
			cmd, found := m.byName[word]
			m.mu.RUnlock()
			if !found {
				// Commands addressed to other bots in a group are common.
				m.log.Debug("unknown command ignored", logx.String("cmd", word), logx.ChatID(msg.ChatID))
				return
			}
			m.enqueueCommand(root, up, cmd, args)
			return
		}
	}

	m.mu.RLock()
	h := m.onOther
	m.mu.RUnlock()
	if h == nil {
		return
	}
	req := m.newRequest(up, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, msg.FromID, "message")
	final := m.wrap(h, m.cfg.Timeout)
	if !m.tryEnqueue(msg.FromID, func() { _ = final(root, req) }) {
		m.log.Warn("message dropped, queue full", logx.UserID(msg.FromID), logx.ChatID(msg.ChatID))
	}
}

func (m *CommandManager) enqueueCommand(root context.Context, up kit.Update, cmd Command, args []string) {
	msg := up.Message
	if cmd.Access == AccessOwnerOnly && !m.isOwner(msg.FromID) {
		m.log.Info("owner-only command refused", logx.String("cmd", cmd.Name), logx.UserID(msg.FromID))
		return
	}
	req := m.newRequest(up, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, msg.FromID, cmd.Name)
	req.Args = args

	final := m.wrap(cmd.Handle, cmp.Or(cmd.Timeout, m.cfg.Timeout))
	if !m.tryEnqueue(msg.FromID, func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, req.Chat, "Busy, please try again in a moment.", nil)
	}
}

func (m *CommandManager) routeCallback(root context.Context, up kit.Update) {
	if up.Callback == nil {
		return
	}
	cb := up.Callback
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)
	if len(parts) < 2 {
		return
	}
	group, action, payload := parts[0], parts[1], ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	m.cbMu.RLock()
	route, ok := m.callbacks[group][action]
	m.cbMu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
		return
	}

	req := m.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, "cb:"+group+":"+action)
	req.Payload = payload
	h := func(ctx context.Context, r *Request) error { return route.Handle(ctx, r, payload) }
	final := m.wrap(h, cmp.Or(route.Timeout, m.cfg.Timeout))

	if !m.tryEnqueue(cb.FromID, func() {
		_ = final(root, req)
		// stops the client's loading indicator; a handler may have answered already
		_ = m.adapter.AnswerCallback(root, cb.ID, "")
	}) {
		_ = m.adapter.AnswerCallback(root, cb.ID, "Busy, try again")
	}
}

func (m *CommandManager) newRequest(up kit.Update, chat kit.ChatTarget, from int64, name string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: name,
		ReqID:   rid,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.ChatID(chat.ChatID),
			logx.UserID(from),
			logx.String("cmd", name),
		),
	}
}

func (m *CommandManager) wrap(h HandlerFunc, timeout time.Duration) HandlerFunc {
	m.mu.RLock()
	extra := m.mws
	m.mu.RUnlock()
	mws := make([]Middleware, 0, len(extra)+3)
	mws = append(mws, MWPanicRecover(m.log), MWRequestLog(m.log), MWTimeout(timeout))
	mws = append(mws, extra...)
	return Chain(h, mws...)
}
