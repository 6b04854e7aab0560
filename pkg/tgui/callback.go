package tgui

import (
	"fmt"
	"strings"
)

// Data formats inline callback data as "group:action:payload". Payload is
// kept as-is and must fit Telegram's limit together with the prefix.
func Data(group, action, payload string) (string, error) {
	group = strings.TrimSpace(group)
	action = strings.TrimSpace(action)
	out := group + ":" + action
	if payload != "" {
		out += ":" + payload
	}
	if len(out) > MaxCallbackDataLen {
		return "", fmt.Errorf("%w: %d bytes", ErrCallbackDataTooLong, len(out))
	}
	return out, nil
}
