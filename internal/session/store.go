package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrSessionNotFound is returned when a session id does not exist.
var ErrSessionNotFound = errors.New("session not found")

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Turn is one message of a session transcript. Immutable once written.
type Turn struct {
	Sender    string
	Text      string
	CreatedAt time.Time
}

// Session is one continuous conversation: an append-only transcript plus the
// typed context side-channel.
type Session struct {
	ID      string
	UserID  string
	Active  bool
	Turns   []Turn
	Context Context
}

// Store persists sessions, transcripts and context in sqlite. It also hosts
// the generated-artifact and application records, which share the same
// database file.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS turns (
	session_id TEXT NOT NULL REFERENCES sessions(id),
	seq        INTEGER NOT NULL,
	sender     TEXT NOT NULL,
	text       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS session_context (
	session_id TEXT PRIMARY KEY REFERENCES sessions(id),
	data       TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS artifacts (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	template   TEXT NOT NULL,
	data       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS profile_fields (
	user_id    TEXT NOT NULL,
	field      TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, field)
);

CREATE TABLE IF NOT EXISTS applications (
	job_id     TEXT NOT NULL,
	user_id    TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (job_id, user_id)
);
`

// Open opens (creating if needed) the session store at the given path.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create starts a new active session for the user and returns its id.
func (s *Store) Create(ctx context.Context, userID string) (string, error) {
	id := uuid.NewString()

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id) VALUES (?, ?)`, id, userID); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	s.logger.Debug("created session", zap.String("session_id", id), zap.String("user_id", userID))

	return id, nil
}

// AppendTurn appends one transcript turn. Ordering comes from the next free
// sequence number within the session.
func (s *Store) AppendTurn(ctx context.Context, sessionID, text, sender string) error {
	if err := s.exists(ctx, sessionID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO turns (session_id, seq, sender, text)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE session_id = ?), ?, ?)`,
		sessionID, sessionID, sender, text)
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	return nil
}

// Get loads a session with its full transcript and context.
func (s *Store) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess := &Session{ID: sessionID}

	var active int
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, active FROM sessions WHERE id = ?`, sessionID).
		Scan(&sess.UserID, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	sess.Active = active == 1

	rows, err := s.db.QueryContext(ctx,
		`SELECT sender, text, created_at FROM turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var turn Turn
		if err := rows.Scan(&turn.Sender, &turn.Text, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		sess.Turns = append(sess.Turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	var data string
	err = s.db.QueryRowContext(ctx,
		`SELECT data FROM session_context WHERE session_id = ?`, sessionID).Scan(&data)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load context: %w", err)
	}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &sess.Context); err != nil {
			return nil, fmt.Errorf("decode context: %w", err)
		}
	}

	return sess, nil
}

// UpdateContext merges the partial context into the session's stored context.
// Non-nil shapes replace their stored counterpart.
func (s *Store) UpdateContext(ctx context.Context, sessionID string, partial Context) error {
	if err := s.exists(ctx, sessionID); err != nil {
		return err
	}

	var current Context
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM session_context WHERE session_id = ?`, sessionID).Scan(&data)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load context: %w", err)
	}
	if data != "" {
		if err := json.Unmarshal([]byte(data), &current); err != nil {
			return fmt.Errorf("decode context: %w", err)
		}
	}

	current.merge(partial)

	merged, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("encode context: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_context (session_id, data) VALUES (?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET data = excluded.data`,
		sessionID, string(merged))
	if err != nil {
		return fmt.Errorf("store context: %w", err)
	}

	return nil
}

// Deactivate marks a session inactive. Sessions are never deleted.
func (s *Store) Deactivate(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET active = 0 WHERE id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("deactivate session: %w", err)
	}

	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	return nil
}

func (s *Store) exists(ctx context.Context, sessionID string) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE id = ?`, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if err != nil {
		return fmt.Errorf("check session: %w", err)
	}
	return nil
}
