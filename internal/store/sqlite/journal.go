// Package sqlite implements the inbound message journal backed by a SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const defaultMaxOpenConns = 4
const defaultMaxIdleConns = 4

// DefaultRecentLimit caps Recent when the caller passes a non-positive limit.
const DefaultRecentLimit = 100

const insertMessageQuery = `
INSERT INTO messages(router, session, msg_type, raw, received_at)
VALUES (?, ?, ?, ?, ?)`

const recentMessagesQuery = `
SELECT id, router, session, msg_type, raw, received_at
FROM messages
ORDER BY id DESC
LIMIT ?`

// Entry is one journaled inbound message.
type Entry struct {
	ID         int64
	Router     string
	Session    string
	MsgType    string
	Raw        string
	ReceivedAt time.Time
}

// Journal wraps a SQLite database connection holding inbound messages.
type Journal struct {
	db *sql.DB

	insertStmt *sql.Stmt
	recentStmt *sql.Stmt
}

// OpenOptions controls SQLite connection pool sizing.
type OpenOptions struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Open creates or opens the journal database at path, runs migrations, and
// enables WAL mode.
func Open(path string) (*Journal, error) {
	return OpenWithOptions(path, OpenOptions{})
}

// OpenWithOptions is Open with tunable connection pool settings.
func OpenWithOptions(path string, opts OpenOptions) (*Journal, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}
	// Per-connection PRAGMAs go on the DSN so every pooled connection gets them.
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	dsn := path + sep + "_pragma=synchronous(normal)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	maxOpenConns := opts.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = defaultMaxOpenConns
	}
	maxIdleConns := opts.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = defaultMaxIdleConns
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	// journal_mode and busy_timeout are database-wide; set them once here.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite setup (%s): %w", pragma, err)
		}
	}

	j := &Journal{db: db}
	if err := j.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := j.prepareStatements(context.Background()); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	stmtErr := j.closePreparedStatements()
	return errors.Join(stmtErr, j.db.Close())
}

// Migrate creates the journal tables and indexes if they do not exist.
func (j *Journal) Migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	router TEXT NOT NULL,
	session TEXT NOT NULL,
	msg_type TEXT NOT NULL,
	raw TEXT NOT NULL,
	received_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_msg_type ON messages(msg_type);
CREATE INDEX IF NOT EXISTS idx_messages_received_at ON messages(received_at);
`
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

func (j *Journal) prepareStatements(ctx context.Context) error {
	var err error
	if j.insertStmt, err = j.db.PrepareContext(ctx, insertMessageQuery); err != nil {
		return fmt.Errorf("prepare insert message query: %w", err)
	}
	if j.recentStmt, err = j.db.PrepareContext(ctx, recentMessagesQuery); err != nil {
		closeErr := j.closePreparedStatements()
		return errors.Join(fmt.Errorf("prepare recent messages query: %w", err), closeErr)
	}
	return nil
}

func (j *Journal) closePreparedStatements() error {
	var err error
	err = errors.Join(err, closeStmt(&j.insertStmt))
	err = errors.Join(err, closeStmt(&j.recentStmt))
	return err
}

func closeStmt(stmt **sql.Stmt) error {
	if stmt == nil || *stmt == nil {
		return nil
	}
	err := (*stmt).Close()
	*stmt = nil
	return err
}

// Append stores e and returns it with its assigned ID. A zero ReceivedAt is
// set to the current time.
func (j *Journal) Append(ctx context.Context, e Entry) (Entry, error) {
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	e.ReceivedAt = e.ReceivedAt.UTC()
	res, err := j.insertStmt.ExecContext(ctx, e.Router, e.Session, e.MsgType, e.Raw, e.ReceivedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("append message: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return Entry{}, fmt.Errorf("append message: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	rows, err := j.recentStmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Router, &e.Session, &e.MsgType, &e.Raw, &e.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByType returns the number of journaled messages per message type.
func (j *Journal) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT msg_type, COUNT(1) FROM messages GROUP BY msg_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var msgType string
		var n int
		if err := rows.Scan(&msgType, &n); err != nil {
			return nil, err
		}
		out[msgType] = n
	}
	return out, rows.Err()
}

func ensureParentDir(path string) error {
	path = strings.TrimSpace(path)
	if path == "" || path == ":memory:" || strings.HasPrefix(path, "file:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
