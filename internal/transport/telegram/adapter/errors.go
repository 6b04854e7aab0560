package adapter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "nightbot/internal/transport"
)

// mapSendError converts telebot errors into transport errors.
func mapSendError(err error) error {
	if err == nil {
		return nil
	}
	if d, ok := floodWait(err); ok {
		return &kit.RateLimitError{RetryAfter: d, Err: err}
	}
	if errors.Is(err, tele.ErrChatNotFound) || errors.Is(err, tele.ErrBlockedByUser) {
		return fmt.Errorf("%w: %w", kit.ErrPermanent, err)
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"wrong file identifier", "chat not found", "bot was blocked", "bot was kicked", "not enough rights to send"} {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", kit.ErrPermanent, err)
		}
	}
	return err
}

// mapDeleteError treats a message that is gone or not deletable as
// kit.ErrMessageGone.
func mapDeleteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tele.ErrNotFoundToDelete) || errors.Is(err, tele.ErrNoRightsToDelete) {
		return fmt.Errorf("%w: %w", kit.ErrMessageGone, err)
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"message to delete not found", "message can't be deleted", "message_id_invalid"} {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", kit.ErrMessageGone, err)
		}
	}
	return mapSendError(err)
}

func floodWait(err error) (time.Duration, bool) {
	var fe tele.FloodError
	if errors.As(err, &fe) {
		return time.Duration(fe.RetryAfter) * time.Second, true
	}
	var pfe *tele.FloodError
	if errors.As(err, &pfe) && pfe != nil {
		return time.Duration(pfe.RetryAfter) * time.Second, true
	}
	return 0, false
}
