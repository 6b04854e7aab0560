package media

import (
	"fmt"
	"strings"
	"time"
)

// Payload is what a scheduler job carries. The set is closed: DeleteMessage
// or SendMedia.
type Payload interface {
	Kind() string
	isPayload()
}

// DeleteMessage removes one message when its job fires.
type DeleteMessage struct {
	ChatID    int64
	MessageID int
}

// SendMedia re-sends a stored item when its job fires.
type SendMedia struct {
	UserID int64
	ItemID string
	ChatID int64
	FileID string
	Type   Type
}

const (
	KindDeleteMessage = "delete_message"
	KindSendMedia     = "send_media"
)

func (DeleteMessage) Kind() string { return KindDeleteMessage }
func (SendMedia) Kind() string     { return KindSendMedia }
func (DeleteMessage) isPayload()   {}
func (SendMedia) isPayload()       {}

const sendJobPrefix = "send_sch_"

// SendJobID is the stable job id for a scheduled item.
func SendJobID(itemID string) string { return sendJobPrefix + itemID }

// ItemIDFromJob reverses SendJobID.
func ItemIDFromJob(jobID string) (string, bool) {
	id, ok := strings.CutPrefix(jobID, sendJobPrefix)
	return id, ok && id != ""
}

// DeleteJobID includes the submission time so two deletions of the same
// message never collide.
func DeleteJobID(chatID int64, messageID int, at time.Time) string {
	return fmt.Sprintf("delete_msg_%d_%d_%d", chatID, messageID, at.UnixNano())
}
