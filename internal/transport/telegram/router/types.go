package router

import (
	"context"
	"time"

	kit "nightbot/internal/transport"
	logx "nightbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	// Hidden commands are routable but left out of help and the menu.
	Hidden bool

	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles inline-button data of the form "group:action:payload".
type CallbackRoute struct {
	Group   string
	Action  string
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string // command name or "cb:group:action"
	Args    []string
	Payload string // callback payload (raw string)
	ReqID   string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Message returns the inbound message, or nil for callbacks.
func (r *Request) Message() *kit.Message {
	if r == nil {
		return nil
	}
	return r.Update.Message
}

// Reply sends an HTML text to the request chat, quoting the inbound message
// when there is one.
func (r *Request) Reply(ctx context.Context, text string) error {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if m := r.Message(); m != nil {
		opt.ReplyToMessageID = m.ID
	}
	_, err := r.Adapter.SendText(ctx, r.Chat, text, opt)
	return err
}
