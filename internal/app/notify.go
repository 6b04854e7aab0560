package app

import (
	"context"

	"github.com/coreos/go-systemd/v22/daemon"

	"nightbot/internal/transport"
	"nightbot/internal/transport/telegram/adapter"
	logx "nightbot/pkg/logx"
)

// sdNotify reports state to systemd. Outside a notify unit it is a no-op.
func (a *App) sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		a.log.Warn("systemd notify failed", logx.String("state", state), logx.Err(err))
	case sent:
		a.log.Debug("systemd notified", logx.String("state", state))
	}
}

// alertSender lets logx deliver alert lines through the telegram adapter.
type alertSender struct{ ad *adapter.Adapter }

func (s alertSender) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := s.ad.SendText(ctx, transport.ChatTarget{ChatID: chatID}, text, &transport.SendOptions{DisablePreview: true})
	return err
}
