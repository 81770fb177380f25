package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/bhieu79/Torilab-backend-test/internal/tracing"
)

// Write operations retry when the driver reports a locked database. The
// backoff is linear: 100 ms x attempt.
const (
	writeRetries     = 3
	retryBackoffStep = 100 * time.Millisecond
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a PostgresStore over an open connection pool.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStore{db: db, logger: logger}
}

// Open opens a PostgreSQL connection pool for the given DATABASE_URL and
// verifies connectivity.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the chat tables when they do not exist. The SQL
// mirrors the files under migrations/.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS clients (
	client_id  TEXT PRIMARY KEY,
	timezone   TEXT NOT NULL DEFAULT 'UTC',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS messages (
	id               BIGSERIAL PRIMARY KEY,
	client_id        TEXT NOT NULL REFERENCES clients (client_id),
	message_type     TEXT NOT NULL,
	content          TEXT NOT NULL DEFAULT '',
	client_timestamp TIMESTAMPTZ NOT NULL,
	timezone         TEXT NOT NULL DEFAULT 'UTC',
	is_accepted      BOOLEAN NOT NULL DEFAULT TRUE,
	status_message   TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_client_ts
	ON messages (client_id, client_timestamp DESC, id DESC);

CREATE TABLE IF NOT EXISTS replies (
	id           BIGSERIAL PRIMARY KEY,
	message_id   BIGINT NOT NULL REFERENCES messages (id) ON DELETE CASCADE,
	content      TEXT NOT NULL DEFAULT '',
	reply_type   TEXT NOT NULL,
	is_delivered BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_replies_message ON replies (message_id);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// withWriteRetry runs fn, retrying up to writeRetries times with linear
// backoff when the error reports a locked database.
func (s *PostgresStore) withWriteRetry(ctx context.Context, fn func() error) error {
	var last error
	for attempt := 1; attempt <= writeRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		last = err
		if !strings.Contains(err.Error(), "database is locked") {
			break
		}
		if attempt < writeRetries {
			s.logger.Warn("database locked, retrying write",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoffStep):
			}
		}
	}
	return last
}

// UpsertClient creates the client on first handshake and refreshes its
// timezone on reconnect.
func (s *PostgresStore) UpsertClient(ctx context.Context, clientID, timezone string) error {
	ctx, endSpan := tracing.StartDBSpan(ctx, "clients", tracing.DBOperationUpsert)
	var err error
	defer func() { endSpan(err) }()

	const query = `
		INSERT INTO clients (client_id, timezone)
		VALUES ($1, $2)
		ON CONFLICT (client_id)
		DO UPDATE SET timezone = EXCLUDED.timezone, updated_at = NOW()
	`
	err = s.withWriteRetry(ctx, func() error {
		_, execErr := s.db.ExecContext(ctx, query, clientID, timezone)
		return execErr
	})
	if err != nil {
		return fmt.Errorf("upsert client %s: %w", clientID, err)
	}
	return nil
}

// InsertMessage persists a message and returns its assigned ID.
func (s *PostgresStore) InsertMessage(ctx context.Context, m *MessageRecord) (int64, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "messages", tracing.DBOperationInsert)
	var err error
	defer func() { endSpan(err) }()

	const query = `
		INSERT INTO messages (client_id, message_type, content, client_timestamp, timezone, is_accepted, status_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	var id int64
	err = s.withWriteRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx, query,
			m.ClientID, m.MessageType, m.Content, m.ClientTimestamp,
			m.Timezone, m.IsAccepted, m.StatusMessage,
		).Scan(&id)
	})
	if err != nil {
		return 0, fmt.Errorf("insert message for %s: %w", m.ClientID, err)
	}
	return id, nil
}

// InsertReply persists a reply for an existing message.
func (s *PostgresStore) InsertReply(ctx context.Context, messageID int64, content, replyType string) (int64, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "replies", tracing.DBOperationInsert)
	var err error
	defer func() { endSpan(err) }()

	const query = `
		INSERT INTO replies (message_id, content, reply_type, is_delivered)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id
	`
	var id int64
	err = s.withWriteRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx, query, messageID, content, replyType).Scan(&id)
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			err = fmt.Errorf("%w: id %d", ErrMessageNotFound, messageID)
			return 0, err
		}
		return 0, fmt.Errorf("insert reply for message %d: %w", messageID, err)
	}
	return id, nil
}

// CountMessages returns the total number of messages for a client.
func (s *PostgresStore) CountMessages(ctx context.Context, clientID string) (int, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "messages", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE client_id = $1`, clientID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages for %s: %w", clientID, err)
	}
	return count, nil
}

// History returns a page of messages with nested replies, ordered by client
// timestamp descending with the message ID as tie-breaker.
func (s *PostgresStore) History(ctx context.Context, clientID string, limit, offset int) ([]HistoryMessage, error) {
	ctx, endSpan := tracing.StartDBSpan(ctx, "messages", tracing.DBOperationQuery)
	var err error
	defer func() { endSpan(err) }()

	const pageQuery = `
		SELECT id, client_id, content, message_type, client_timestamp, timezone, is_accepted, status_message
		FROM messages
		WHERE client_id = $1
		ORDER BY client_timestamp DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.QueryContext(ctx, pageQuery, clientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", clientID, err)
	}
	defer rows.Close()

	messages := []HistoryMessage{}
	index := make(map[int64]int)
	ids := make([]int64, 0)
	for rows.Next() {
		var m HistoryMessage
		var ts time.Time
		if err = rows.Scan(&m.ID, &m.ClientID, &m.Content, &m.MessageType, &ts, &m.Timezone, &m.IsAccepted, &m.StatusMessage); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		m.ClientTimestamp = ts.Format(time.RFC3339)
		m.Replies = []HistoryReply{}
		index[m.ID] = len(messages)
		ids = append(ids, m.ID)
		messages = append(messages, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	if len(ids) == 0 {
		return messages, nil
	}

	const repliesQuery = `
		SELECT id, message_id, content, reply_type, is_delivered
		FROM replies
		WHERE message_id = ANY($1)
		ORDER BY id ASC
	`
	replyRows, err := s.db.QueryContext(ctx, repliesQuery, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query replies for %s: %w", clientID, err)
	}
	defer replyRows.Close()

	for replyRows.Next() {
		var r HistoryReply
		var messageID int64
		if err = replyRows.Scan(&r.ID, &messageID, &r.Content, &r.ReplyType, &r.IsDelivered); err != nil {
			return nil, fmt.Errorf("scan reply row: %w", err)
		}
		if i, ok := index[messageID]; ok {
			messages[i].Replies = append(messages[i].Replies, r)
		}
	}
	if err = replyRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reply rows: %w", err)
	}

	return messages, nil
}

// isForeignKeyViolation reports whether the error is a PostgreSQL foreign
// key violation (class 23503).
func isForeignKeyViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23503"
	}
	return false
}
