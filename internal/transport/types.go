package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nightbot/internal/media"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool

	// Media is set for the supported media kinds only.
	Media *Media
}

// Media identifies an inbound media asset. FileID is only meaningful to the
// transport that produced it.
type Media struct {
	FileID string
	Type   media.Type
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyToMessageID   int
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

var (
	// ErrMessageGone means the message to delete no longer exists or the bot
	// lacks the rights to delete it. Retrying cannot help.
	ErrMessageGone = errors.New("transport: message cannot be deleted")
	// ErrUnsupportedMedia is returned by SendMedia for an unknown media type.
	ErrUnsupportedMedia = errors.New("transport: unsupported media type")
	// ErrPermanent marks failures a retry cannot fix: unknown chat, bot
	// blocked, invalid file id.
	ErrPermanent = errors.New("transport: permanent failure")
)

// RateLimitError is returned when the platform asks to slow down.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	MediaSender
}

// MediaSender delivers and removes media messages. Job payloads only need this.
type MediaSender interface {
	SendMedia(ctx context.Context, to ChatTarget, fileID string, typ media.Type) (MessageRef, error)
	DeleteMessage(ctx context.Context, ref MessageRef) error
}

// ExtractMedia returns the media asset of a message, if it carries one of
// the supported kinds.
func ExtractMedia(m *Message) (fileID string, typ media.Type, ok bool) {
	if m == nil || m.Media == nil || m.Media.FileID == "" || !m.Media.Type.Valid() {
		return "", "", false
	}
	return m.Media.FileID, m.Media.Type, true
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
