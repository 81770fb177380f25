package chat

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bhieu79/Torilab-backend-test/internal/media"
)

// Policy rejection messages sent verbatim to clients.
const (
	rejectTextHours  = "Text messages are only accepted between 5 AM and midnight"
	rejectVoiceHours = "Voice messages are only accepted between 8 AM and 12 PM"
	rejectVideoHours = "Video messages are only accepted between 8 PM and midnight"
)

// Inbound is the wire shape of a client message's metadata.
type Inbound struct {
	Type        string `json:"type"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Timestamp   string `json:"timestamp"`
	IsSystem    bool   `json:"is_system"`
}

// Validator turns raw inbound metadata into a validated Message. Structural
// failures return an error; time-of-day policy violations return a Message
// with IsAccepted false so the rejection is still persisted.
type Validator struct {
	logger *slog.Logger

	// injectable for tests
	now func() time.Time
}

// NewValidator creates a Validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger, now: time.Now}
}

// Validate builds a Message from inbound metadata and an optional binary
// payload. System and heartbeat frames come back with IsSystem set and
// never reach the pipeline.
func (v *Validator) Validate(clientID, timezone string, in Inbound, payload media.Payload) (*Message, error) {
	typeStr := in.Type
	if typeStr == "" {
		typeStr = in.MessageType
	}
	if typeStr == "" {
		typeStr = string(MessageText)
	}

	if typeStr == string(MessageSystem) || typeStr == FrameHeartbeat || in.IsSystem {
		return &Message{
			ClientID:        clientID,
			Type:            MessageSystem,
			Content:         in.Content,
			ClientTimestamp: v.now(),
			Timezone:        timezone,
			IsAccepted:      true,
			IsSystem:        true,
		}, nil
	}

	messageType, ok := ParseMessageType(typeStr)
	if !ok {
		v.logger.Error("invalid message type", slog.String("type", typeStr))
		return nil, fmt.Errorf("Invalid message type: %s", typeStr)
	}

	if messageType.IsMedia() && in.Filename == "" {
		return nil, fmt.Errorf("Filename is required for %s messages", messageType)
	}
	if in.Content == "" && in.Filename == "" && payload.Empty() {
		return nil, fmt.Errorf("Message content cannot be empty")
	}

	clientTimestamp := v.parseTimestamp(in.Timestamp)

	content := in.Content
	if messageType.IsMedia() {
		// The content field carried base64 media; it moves to the
		// payload and the persisted content becomes the storage path.
		if payload.Empty() && in.Content != "" {
			payload = media.Payload{Base64: in.Content}
		}
		content = ""
	}

	allowed, rejection := timeAllowed(clientTimestamp, messageType, timezone, v.logger)

	return &Message{
		ClientID:        clientID,
		Type:            messageType,
		Content:         content,
		ClientTimestamp: clientTimestamp,
		Timezone:        timezone,
		Filename:        in.Filename,
		Payload:         payload,
		IsAccepted:      allowed,
		StatusMessage:   rejection,
		IsSystem:        in.IsSystem,
	}, nil
}

// parseTimestamp accepts RFC 3339 and falls back to the current time on
// anything else.
func (v *Validator) parseTimestamp(s string) time.Time {
	if s == "" {
		return v.now()
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		v.logger.Warn("invalid timestamp format, using current time",
			slog.String("timestamp", s),
			slog.String("error", err.Error()))
		return v.now()
	}
	return ts
}

// timeAllowed applies the per-type acceptance windows against the hour in
// the client's timezone. Unknown timezones fall back to the server's local
// zone.
func timeAllowed(ts time.Time, messageType MessageType, timezone string, logger *slog.Logger) (bool, string) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		logger.Error("invalid timezone, using server local time",
			slog.String("timezone", timezone),
			slog.String("error", err.Error()))
		loc = time.Local
	}
	hour := ts.In(loc).Hour()

	switch messageType {
	case MessageText:
		// 5 AM through midnight.
		if hour >= 5 {
			return true, ""
		}
		return false, rejectTextHours
	case MessageVoice:
		// 8 AM through noon.
		if hour >= 8 && hour < 12 {
			return true, ""
		}
		return false, rejectVoiceHours
	case MessageVideo:
		// 8 PM through midnight.
		if hour >= 20 {
			return true, ""
		}
		return false, rejectVideoHours
	}
	return true, ""
}
