// Package store provides sqlite-backed persistence for sessions,
// messages, and cached conversation summaries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Message roles. Persisted messages are only ever user or assistant;
// tool messages exist in-memory during a single agent loop execution.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one persisted conversation turn.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a chat session.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary is the cached summary for a session. One row per session;
// MessageCount records how many messages the summary covers.
type Summary struct {
	SessionID    string    `json:"session_id"`
	MessageCount int       `json:"message_count"`
	SummaryText  string    `json:"summary_text"`
	CreatedAt    time.Time `json:"created_at"`
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Store methods accept it so the request path can run inside a
// transaction while background tasks use the plain handle.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store wraps the database handle. The driver is the caller's choice:
// production uses mattn/go-sqlite3, tests use the CGO-free
// modernc.org/sqlite driver.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a store over an already-open database handle.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// DB returns the underlying handle, for callers (background tasks)
// that operate outside a request transaction.
func (s *Store) DB() *sql.DB { return s.db }

// BeginTx starts a transaction for an atomic request unit.
func (s *Store) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, nil)
}

// Migrate creates the database schema.
func (s *Store) Migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

	-- One summary row per session; message_count is the coverage count.
	CREATE TABLE IF NOT EXISTS summaries (
		session_id TEXT PRIMARY KEY,
		message_count INTEGER NOT NULL,
		summary_text TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// CreateSession creates a session. A blank id generates one.
func (s *Store) CreateSession(ctx context.Context, q Querier, id, name string) (*Session, error) {
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate session id: %w", err)
		}
		id = u.String()
	}
	now := time.Now().UTC()

	_, err := q.ExecContext(ctx, `
		INSERT INTO sessions (id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`, id, name, now, now)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("session created", "session", id, "name", name)
	return &Session{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}, nil
}

// GetSession returns a session by id, or ErrNotFound.
func (s *Store) GetSession(ctx context.Context, q Querier, id string) (*Session, error) {
	var sess Session
	err := q.QueryRowContext(ctx, `
		SELECT id, name, created_at, updated_at FROM sessions WHERE id = ?
	`, id).Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// ListSessions returns sessions ordered by most recent activity.
func (s *Store) ListSessions(ctx context.Context, q Querier, limit, offset int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// RenameSession updates a session's name. Returns ErrNotFound if absent.
func (s *Store) RenameSession(ctx context.Context, q Querier, id, name string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE sessions SET name = ?, updated_at = ? WHERE id = ?
	`, name, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteSession removes a session with its messages and summary.
// Returns ErrNotFound if the session does not exist.
func (s *Store) DeleteSession(ctx context.Context, q Querier, id string) error {
	// Not every sqlite connection has foreign_keys on; delete children
	// explicitly so cascade behavior doesn't depend on the DSN.
	if _, err := q.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session messages: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM summaries WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session summary: %w", err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	s.logger.Info("session deleted", "session", id)
	return nil
}

// TouchSession updates the session's activity timestamp.
func (s *Store) TouchSession(ctx context.Context, q Querier, id string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE sessions SET updated_at = ? WHERE id = ?
	`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// AppendMessage persists a message at the end of a session's history.
func (s *Store) AppendMessage(ctx context.Context, q Querier, sessionID, role, content string) (*Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	now := time.Now().UTC()

	_, err = q.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id.String(), sessionID, role, content, now)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	return &Message{
		ID:        id.String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// MessagesBySession returns all messages for a session, oldest first.
func (s *Store) MessagesBySession(ctx context.Context, q Querier, sessionID string) ([]Message, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at
		FROM messages WHERE session_id = ?
		ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountMessages returns the number of messages in a session.
func (s *Store) CountMessages(ctx context.Context, q Querier, sessionID string) (int, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE session_id = ?
	`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// SummaryBySession returns the cached summary for a session, or
// ErrNotFound when none has been generated yet.
func (s *Store) SummaryBySession(ctx context.Context, q Querier, sessionID string) (*Summary, error) {
	var sum Summary
	err := q.QueryRowContext(ctx, `
		SELECT session_id, message_count, summary_text, created_at
		FROM summaries WHERE session_id = ?
	`, sessionID).Scan(&sum.SessionID, &sum.MessageCount, &sum.SummaryText, &sum.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("summary for session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &sum, nil
}

// UpsertSummary writes the summary row for a session, replacing any
// prior row. Last writer wins; coverage monotonicity is the caller's
// contract, not a database constraint.
func (s *Store) UpsertSummary(ctx context.Context, q Querier, sessionID string, messageCount int, text string) (*Summary, error) {
	now := time.Now().UTC()
	_, err := q.ExecContext(ctx, `
		INSERT INTO summaries (session_id, message_count, summary_text, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			message_count = excluded.message_count,
			summary_text = excluded.summary_text,
			created_at = excluded.created_at
	`, sessionID, messageCount, text, now)
	if err != nil {
		return nil, fmt.Errorf("upsert summary: %w", err)
	}

	s.logger.Debug("summary cached",
		"session", sessionID,
		"message_count", messageCount,
		"summary_length", len(text),
	)
	return &Summary{
		SessionID:    sessionID,
		MessageCount: messageCount,
		SummaryText:  text,
		CreatedAt:    now,
	}, nil
}
