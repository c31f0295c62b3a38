package domain

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// SystemSenderID marks a message that was produced by the client or hub rather than a player.
const SystemSenderID = "system"

// ChatMessage is a single chat line as it travels over the hub and the local channel.
type ChatMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	// Timestamp is milliseconds since the Unix epoch, assigned by the sender.
	Timestamp int64 `json:"timestamp"`
	IsSystem  bool  `json:"isSystem,omitempty"`
}

// NewChatMessage builds a message stamped with a fresh id and the current time.
func NewChatMessage(senderID, senderName, text string) ChatMessage {
	return ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		Timestamp:  time.Now().UnixMilli(),
	}
}

// NewSystemMessage builds a synthetic status message such as the local mode notice.
func NewSystemMessage(text string) ChatMessage {
	now := time.Now().UnixMilli()
	return ChatMessage{
		ID:         "sys_" + strconv.FormatInt(now, 10) + "_" + uuid.NewString()[:8],
		SenderID:   SystemSenderID,
		SenderName: "System",
		Text:       text,
		Timestamp:  now,
		IsSystem:   true,
	}
}

// FromSystem reports whether the message originates from the system sender.
func (m ChatMessage) FromSystem() bool {
	return m.SenderID == SystemSenderID || m.IsSystem
}

// Time converts the millisecond timestamp to a time.Time.
func (m ChatMessage) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}
