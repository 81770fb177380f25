package chat

import "time"

// Wire frame type tags. Text frames are UTF-8 JSON envelopes with a type
// tag and a data object.
const (
	FrameMessage   = "message"
	FrameError     = "error"
	FrameSystem    = "system"
	FrameHeartbeat = "heartbeat"
)

// Envelope is the outbound frame shape shared by reply, error, system and
// heartbeat frames.
type Envelope struct {
	Type     string `json:"type"`
	Data     any    `json:"data"`
	IsSystem bool   `json:"is_system,omitempty"`
}

// ReplyData is the payload of a "message" frame. Accepted replies carry
// Content and the persisted reply ID; policy rejections and synthetic error
// replies carry Message instead.
type ReplyData struct {
	ID        int64     `json:"id,omitempty"`
	Content   string    `json:"content,omitempty"`
	Message   string    `json:"message,omitempty"`
	ReplyType ReplyType `json:"reply_type"`
	Filename  string    `json:"filename,omitempty"`
	MimeType  string    `json:"mime_type,omitempty"`
}

// ErrorData is the payload of an "error" frame.
type ErrorData struct {
	Message string `json:"message"`
}

// SystemData is the payload of a "system" frame.
type SystemData struct {
	Message string `json:"message"`
}

// HeartbeatData is the payload of a "heartbeat" frame in either direction.
type HeartbeatData struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// ErrorFrame builds an error frame for a client-visible rejection.
func ErrorFrame(message string) Envelope {
	return Envelope{Type: FrameError, Data: ErrorData{Message: message}}
}

// SystemFrame builds a server-initiated system frame.
func SystemFrame(message string) Envelope {
	return Envelope{Type: FrameSystem, Data: SystemData{Message: message}, IsSystem: true}
}

// HeartbeatFrame builds a heartbeat ping or pong frame.
func HeartbeatFrame(message string, ts time.Time) Envelope {
	return Envelope{Type: FrameHeartbeat, Data: HeartbeatData{
		Message:   message,
		Timestamp: ts.Format(time.RFC3339),
	}}
}
