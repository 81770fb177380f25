package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is an in-memory implementation of Store.
// Thread-safe via RWMutex.
type InMemoryStore struct {
	mu       sync.RWMutex
	clients  map[string]string // client_id -> timezone
	messages []*MessageRecord
	replies  []*ReplyRecord
	nextID   int64
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		clients: make(map[string]string),
		nextID:  1,
	}
}

// UpsertClient creates or updates the client record.
func (s *InMemoryStore) UpsertClient(ctx context.Context, clientID, timezone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[clientID] = timezone
	return nil
}

// ClientTimezone returns the stored timezone for a client, or "" if unknown.
func (s *InMemoryStore) ClientTimezone(clientID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[clientID]
}

// InsertMessage persists a message and returns its assigned ID.
func (s *InMemoryStore) InsertMessage(ctx context.Context, m *MessageRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := *m
	rec.ID = s.nextID
	s.nextID++
	s.messages = append(s.messages, &rec)
	return rec.ID, nil
}

// InsertReply persists a reply for an existing message.
func (s *InMemoryStore) InsertReply(ctx context.Context, messageID int64, content, replyType string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for _, m := range s.messages {
		if m.ID == messageID {
			found = true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("%w: id %d", ErrMessageNotFound, messageID)
	}

	rec := &ReplyRecord{
		ID:          s.nextID,
		MessageID:   messageID,
		Content:     content,
		ReplyType:   replyType,
		IsDelivered: true,
	}
	s.nextID++
	s.replies = append(s.replies, rec)
	return rec.ID, nil
}

// CountMessages returns the total number of messages for a client.
func (s *InMemoryStore) CountMessages(ctx context.Context, clientID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.messages {
		if m.ClientID == clientID {
			count++
		}
	}
	return count, nil
}

// History returns a page of messages with nested replies, ordered by client
// timestamp descending with the message ID as tie-breaker.
func (s *InMemoryStore) History(ctx context.Context, clientID string, limit, offset int) ([]HistoryMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*MessageRecord
	for _, m := range s.messages {
		if m.ClientID == clientID {
			matched = append(matched, m)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].ClientTimestamp.Equal(matched[j].ClientTimestamp) {
			return matched[i].ClientTimestamp.After(matched[j].ClientTimestamp)
		}
		return matched[i].ID > matched[j].ID
	})

	if offset >= len(matched) {
		return []HistoryMessage{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}

	out := make([]HistoryMessage, 0, end-offset)
	for _, m := range matched[offset:end] {
		hm := HistoryMessage{
			ID:              m.ID,
			ClientID:        m.ClientID,
			Content:         m.Content,
			MessageType:     m.MessageType,
			ClientTimestamp: m.ClientTimestamp.Format(time.RFC3339),
			Timezone:        m.Timezone,
			IsAccepted:      m.IsAccepted,
			StatusMessage:   m.StatusMessage,
			Replies:         []HistoryReply{},
		}
		for _, r := range s.replies {
			if r.MessageID == m.ID {
				hm.Replies = append(hm.Replies, HistoryReply{
					ID:          r.ID,
					Content:     r.Content,
					ReplyType:   r.ReplyType,
					IsDelivered: r.IsDelivered,
				})
			}
		}
		out = append(out, hm)
	}
	return out, nil
}

// Messages returns a snapshot of all persisted messages, for tests.
func (s *InMemoryStore) Messages() []MessageRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]MessageRecord, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

// Replies returns a snapshot of all persisted replies, for tests.
func (s *InMemoryStore) Replies() []ReplyRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ReplyRecord, 0, len(s.replies))
	for _, r := range s.replies {
		out = append(out, *r)
	}
	return out
}
