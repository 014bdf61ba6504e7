package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
	sqlite "modernc.org/sqlite"
)

const (
	sqliteConstraintCode = 19
	defaultBusyTimeout   = 5000
	defaultActivityLimit = 50
)

// Activity actions recorded by the TCP authority.
const (
	ActionCreateRoom = "create_room"
	ActionJoinRoom   = "join_room"
	ActionUpload     = "upload"
	ActionDownload   = "download"
)

// Store wraps the SQLite handle backing the activity journal. The journal is
// an audit trail: nothing in it is read back into the live room registry.
type Store struct {
	db *sql.DB
}

// Activity is one row of the journal.
type Activity struct {
	ID        int64     `json:"id"`
	Room      string    `json:"room"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Filename  string    `json:"filename,omitempty"`
	Size      int64     `json:"size,omitempty"`
	SHA256    string    `json:"sha256,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ErrInvalidActivity is returned for rows missing their room or action.
var ErrInvalidActivity = errors.New("activity requires room and action")

// NewStore initializes the SQLite database at the provided path. Call Close when done.
func NewStore(path string) (*Store, error) {
	if path == "" {
		path = "roomshare.db"
	}
	dsn := buildDSN(path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", defaultBusyTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func buildDSN(path string) string {
	switch {
	case strings.HasPrefix(path, "sqlite://"):
		path = path[len("sqlite://"):]
	case strings.HasPrefix(path, "file:"), strings.HasPrefix(path, ":memory:"):
		// already in a form sqlite understands
	default:
		path = "file:" + path
	}
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	return fmt.Sprintf("%s%s_pragma=busy_timeout=%d&_pragma=journal_mode=WAL", path, separator, defaultBusyTimeout)
}

// Migrate runs the schema creation statements.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			room TEXT NOT NULL,
			username TEXT NOT NULL,
			action TEXT NOT NULL,
			filename TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			sha256 TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS activity_room_idx ON activity(room, id);`,
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// RecordActivity appends one journal row and returns its id.
func (s *Store) RecordActivity(ctx context.Context, a Activity) (int64, error) {
	if a.Room == "" || a.Action == "" {
		return 0, ErrInvalidActivity
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO activity(room, username, action, filename, size, sha256, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		a.Room, a.Username, a.Action, a.Filename, a.Size, a.SHA256, a.CreatedAt.UTC())
	if err != nil {
		if isConstraintError(err) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidActivity, err)
		}
		return 0, err
	}
	return result.LastInsertId()
}

// ListActivity returns the newest rows first. An empty room lists every room.
func (s *Store) ListActivity(ctx context.Context, room string, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	query := `SELECT id, room, username, action, filename, size, sha256, created_at FROM activity`
	args := []any{}
	if room != "" {
		query += ` WHERE room = ?`
		args = append(args, room)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.Room, &a.Username, &a.Action, &a.Filename, &a.Size, &a.SHA256, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func isConstraintError(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code() == sqliteConstraintCode
	}
	return false
}
