package adapter

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v4"

	"nightbot/internal/media"
	kit "nightbot/internal/transport"
)

// sendable builds the telebot value that re-sends an existing file id.
func sendable(fileID string, typ media.Type) (tele.Sendable, error) {
	f := tele.File{FileID: fileID}
	switch typ {
	case media.Sticker:
		return &tele.Sticker{File: f}, nil
	case media.GIF:
		return &tele.Animation{File: f}, nil
	case media.Photo:
		return &tele.Photo{File: f}, nil
	case media.Video:
		return &tele.Video{File: f}, nil
	default:
		return nil, fmt.Errorf("%w: %q", kit.ErrUnsupportedMedia, typ)
	}
}

func (a *Adapter) SendMedia(ctx context.Context, to kit.ChatTarget, fileID string, typ media.Type) (kit.MessageRef, error) {
	what, err := sendable(fileID, typ)
	if err != nil {
		return kit.MessageRef{}, err
	}
	if err := a.wait(ctx); err != nil {
		return kit.MessageRef{}, err
	}
	msg, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, what, &tele.SendOptions{ThreadID: to.ThreadID})
	if err != nil {
		return kit.MessageRef{}, mapSendError(err)
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	if err := a.wait(ctx); err != nil {
		return err
	}
	return mapDeleteError(a.bot.Delete(&tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}))
}
