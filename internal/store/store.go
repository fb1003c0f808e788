// Package store is the SQLite-backed Store Adapter: it owns the on-disk
// relational file, the schema, and the four prepared statements the rest
// of the plugin drives through it (insert, delete-by-topic-id,
// select-latest-by-topic, retention purge). Nothing outside this package
// touches the database handle directly.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/mqttsql/persist/internal/interfaces"
)

const schema = `
CREATE TABLE IF NOT EXISTS msg (
	id      TEXT PRIMARY KEY,
	topic   TEXT NOT NULL,
	payload TEXT NOT NULL,
	retain  INT,
	qos     INT,
	headers TEXT
);
CREATE INDEX IF NOT EXISTS idx_msg_topic ON msg(topic);
CREATE INDEX IF NOT EXISTS idx_msg_topic_id ON msg(topic, id DESC);
`

// Insert carries every column of a row to be written.
type Insert struct {
	ID      string
	Topic   string
	Payload []byte
	Retain  bool
	QoS     byte
	Headers sql.NullString
}

// Delete carries the (topic, id) pair identifying a row to remove. Both
// fields must match for the row to be deleted; a ulid pointing at the
// wrong topic deletes nothing.
type Delete struct {
	Topic string
	ID    string
}

// Entry is a tagged queue/batch record: exactly one of Insert or Delete is
// set.
type Entry struct {
	Insert *Insert
	Delete *Delete
}

// API is the subset of Store's behavior the writer and the retention
// sweeper depend on. Tests substitute a fake satisfying this instead of
// opening a real SQLite file.
type API interface {
	LatestID(ctx context.Context, topic string) (id string, found bool, err error)
	ExecBatch(ctx context.Context, entries []Entry) (BatchResult, error)
	Retention(ctx context.Context, prefix string) (int64, error)
	Close() error
}

// Store owns the database handle and its four prepared statements.
type Store struct {
	db     *sql.DB
	logger interfaces.Logger

	insertStmt       *sql.Stmt
	deleteStmt       *sql.Stmt
	selectLatestStmt *sql.Stmt
	retentionStmt    *sql.Stmt
}

// Open opens (creating if absent) the SQLite file at path, enables WAL
// journaling, ensures the schema and indexes, and prepares the four
// statements the rest of the plugin uses. Failure here is fatal to
// initialization; the caller should abort Init and decline to register.
func Open(path string, logger interfaces.Logger) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.prepare(); err != nil {
		db.Close()
		return nil, err
	}
	if logger != nil {
		logger.Infof("store opened at %s", path)
	}
	return s, nil
}

func (s *Store) prepare() error {
	var err error
	if s.insertStmt, err = s.db.Prepare(`INSERT INTO msg (id, topic, payload, retain, qos, headers) VALUES (?, ?, ?, ?, ?, ?)`); err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	if s.deleteStmt, err = s.db.Prepare(`DELETE FROM msg WHERE topic = ? AND id = ?`); err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	if s.selectLatestStmt, err = s.db.Prepare(`SELECT id FROM msg WHERE topic = ? ORDER BY id DESC LIMIT 1`); err != nil {
		return fmt.Errorf("prepare select-latest: %w", err)
	}
	if s.retentionStmt, err = s.db.Prepare(`DELETE FROM msg WHERE id < ?`); err != nil {
		return fmt.Errorf("prepare retention: %w", err)
	}
	return nil
}

// LatestID returns the most recent id stored for topic, used by the event
// handler's delete-intent fallback when no ulid user property is present.
func (s *Store) LatestID(ctx context.Context, topic string) (id string, found bool, err error) {
	err = s.selectLatestStmt.QueryRowContext(ctx, topic).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// BatchResult summarizes the outcome of one ExecBatch call.
type BatchResult struct {
	Inserted int
	Deleted  int
	Failed   int
}

// ExecBatch runs entries as one transaction, in order, so a delete of a
// just-inserted id within the same batch still takes effect. A per-row
// step error is logged and counted but does not abort the batch. A
// commit error is returned to the caller, which drops the batch (entries
// are not requeued — at-most-once persistence).
func (s *Store) ExecBatch(ctx context.Context, entries []Entry) (BatchResult, error) {
	var result BatchResult
	if len(entries) == 0 {
		return result, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, fmt.Errorf("begin batch: %w", err)
	}

	txInsert := tx.StmtContext(ctx, s.insertStmt)
	txDelete := tx.StmtContext(ctx, s.deleteStmt)

	for _, e := range entries {
		switch {
		case e.Insert != nil:
			ins := e.Insert
			if _, err := txInsert.ExecContext(ctx, ins.ID, ins.Topic, ins.Payload, boolToInt(ins.Retain), ins.QoS, ins.Headers); err != nil {
				result.Failed++
				if s.logger != nil {
					s.logger.Errorf("insert step failed for id=%s topic=%s: %v", ins.ID, ins.Topic, err)
				}
				continue
			}
			result.Inserted++
		case e.Delete != nil:
			del := e.Delete
			if _, err := txDelete.ExecContext(ctx, del.Topic, del.ID); err != nil {
				result.Failed++
				if s.logger != nil {
					s.logger.Errorf("delete step failed for id=%s topic=%s: %v", del.ID, del.Topic, err)
				}
				continue
			}
			result.Deleted++
		}
	}

	if err := tx.Commit(); err != nil {
		_ = tx.Rollback()
		return result, fmt.Errorf("commit batch: %w", err)
	}
	return result, nil
}

// Retention deletes every row whose id sorts before prefix (a ULID-string
// boundary corresponding to now-horizon), returning the number of rows
// removed. Because ids are lexicographically time-ordered this is an
// index range scan on the primary key.
func (s *Store) Retention(ctx context.Context, prefix string) (int64, error) {
	res, err := s.retentionStmt.ExecContext(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("retention purge: %w", err)
	}
	return res.RowsAffected()
}

// Close finalizes every prepared statement and closes the database file.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.insertStmt, s.deleteStmt, s.selectLatestStmt, s.retentionStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

var _ API = (*Store)(nil)

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
