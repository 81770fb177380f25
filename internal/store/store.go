// Package store provides the persistence port for clients, messages and
// replies, with an in-memory implementation for tests and a PostgreSQL
// implementation for production.
package store

import (
	"context"
	"errors"
	"time"
)

// Common errors for store operations.
var (
	// ErrMessageNotFound is returned when a reply references a message
	// that was never persisted.
	ErrMessageNotFound = errors.New("message not found")
)

// MessageRecord is a persisted inbound message. Immutable once inserted.
type MessageRecord struct {
	ID              int64
	ClientID        string
	MessageType     string
	Content         string
	ClientTimestamp time.Time
	Timezone        string
	IsAccepted      bool
	StatusMessage   string
}

// ReplyRecord is a persisted reply to a message. Immutable once inserted.
type ReplyRecord struct {
	ID          int64
	MessageID   int64
	Content     string
	ReplyType   string
	IsDelivered bool
}

// HistoryReply is the wire shape of a reply in a history response.
type HistoryReply struct {
	ID          int64  `json:"id"`
	Content     string `json:"content"`
	ReplyType   string `json:"reply_type"`
	IsDelivered bool   `json:"is_delivered"`
}

// HistoryMessage is the wire shape of a message with its replies in a
// history response.
type HistoryMessage struct {
	ID              int64          `json:"id"`
	ClientID        string         `json:"client_id"`
	Content         string         `json:"content"`
	MessageType     string         `json:"message_type"`
	ClientTimestamp string         `json:"client_timestamp"`
	Timezone        string         `json:"timezone"`
	IsAccepted      bool           `json:"is_accepted"`
	StatusMessage   string         `json:"status_message"`
	Replies         []HistoryReply `json:"replies"`
}

// Store is the persistence port for the chat pipeline.
type Store interface {
	// UpsertClient creates the client on first handshake and refreshes
	// its timezone on reconnect.
	UpsertClient(ctx context.Context, clientID, timezone string) error

	// InsertMessage persists a message and returns its assigned ID.
	InsertMessage(ctx context.Context, m *MessageRecord) (int64, error)

	// InsertReply persists a reply for an existing message and returns
	// its assigned ID. The reply is marked delivered since delivery is
	// attempted inline.
	InsertReply(ctx context.Context, messageID int64, content, replyType string) (int64, error)

	// CountMessages returns the total number of messages for a client.
	CountMessages(ctx context.Context, clientID string) (int, error)

	// History returns a page of messages with nested replies, ordered by
	// client timestamp descending.
	History(ctx context.Context, clientID string, limit, offset int) ([]HistoryMessage, error)
}
