// Package chat implements the core of the chat server: message validation,
// the connection registry with its admission gates, the heartbeat scanner,
// the per-connection session handler, and the message processor.
package chat

import (
	"time"

	"github.com/bhieu79/Torilab-backend-test/internal/media"
)

// MessageType classifies an inbound message.
type MessageType string

// Recognized message types. System covers both system and heartbeat frames;
// it is a sentinel that never reaches the processing pipeline.
const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageVideo  MessageType = "video"
	MessageVoice  MessageType = "voice"
	MessageSystem MessageType = "system"
)

// ParseMessageType maps a wire string to a MessageType.
// The second return is false for unrecognized values.
func ParseMessageType(s string) (MessageType, bool) {
	switch MessageType(s) {
	case MessageText, MessageImage, MessageVideo, MessageVoice:
		return MessageType(s), true
	}
	return "", false
}

// IsMedia reports whether the type carries a binary payload.
func (t MessageType) IsMedia() bool {
	return t == MessageImage || t == MessageVideo || t == MessageVoice
}

// ReplyType classifies an outbound reply.
type ReplyType string

const (
	ReplyText  ReplyType = "text"
	ReplyImage ReplyType = "image"
	ReplyVoice ReplyType = "voice"
)

// Message is a validated inbound message. It is immutable once built by the
// validator; a rejected message still flows through the pipeline with
// IsAccepted false and StatusMessage set.
type Message struct {
	ClientID        string
	Type            MessageType
	Content         string
	ClientTimestamp time.Time
	Timezone        string
	Filename        string

	// Payload holds the media bytes: either the raw binary frame that
	// preceded the metadata, or the base64 text carried in the content
	// field. Empty for text messages.
	Payload media.Payload

	IsAccepted    bool
	StatusMessage string
	IsSystem      bool
}
