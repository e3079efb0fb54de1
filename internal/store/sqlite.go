package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amishk599/jobalert/internal/model"
)

// Ensure SQLiteStore implements model.SubscriberStore.
var _ model.SubscriberStore = (*SQLiteStore)(nil)

// SQLiteStore keeps the subscriber registry in a SQLite database.
// Every mutation is a single statement, so it is atomic on its own.
// The last successful ActiveRecipients result is kept so a failed read can
// still fall back to it.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time

	mu     sync.Mutex
	active []model.RecipientID // last good ActiveRecipients snapshot
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// subscribers table exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection serialises readers and writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	for _, stmt := range []string{
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = FULL`,
		`CREATE TABLE IF NOT EXISTS subscribers (
			chat_id       INTEGER PRIMARY KEY,
			name          TEXT    NOT NULL DEFAULT '',
			active        INTEGER NOT NULL DEFAULT 1,
			subscribed_at INTEGER NOT NULL
		)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialising subscribers table: %w", err)
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Subscribe adds id, or reactivates it if it unsubscribed earlier.
func (s *SQLiteStore) Subscribe(ctx context.Context, id model.RecipientID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscribers (chat_id, name, active, subscribed_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(chat_id) DO UPDATE SET active = 1, name = excluded.name`,
		int64(id), name, s.now().Unix(),
	)
	if err != nil {
		return &model.PersistenceError{Op: "subscribe", Err: err}
	}
	return nil
}

// Unsubscribe marks id inactive. Unknown ids are a no-op.
func (s *SQLiteStore) Unsubscribe(ctx context.Context, id model.RecipientID) error {
	_, err := s.db.ExecContext(ctx, "UPDATE subscribers SET active = 0 WHERE chat_id = ?", int64(id))
	if err != nil {
		return &model.PersistenceError{Op: "unsubscribe", Err: err}
	}
	return nil
}

// Get returns the subscriber with the given id.
func (s *SQLiteStore) Get(ctx context.Context, id model.RecipientID) (model.Subscriber, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT chat_id, name, active, subscribed_at FROM subscribers WHERE chat_id = ?", int64(id))
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Subscriber{}, false, nil
	}
	if err != nil {
		return model.Subscriber{}, false, &model.PersistenceError{Op: "get", Err: err}
	}
	return sub, true, nil
}

// List returns every subscriber, active or not, oldest first.
func (s *SQLiteStore) List(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chat_id, name, active, subscribed_at FROM subscribers ORDER BY subscribed_at, chat_id")
	if err != nil {
		return nil, &model.PersistenceError{Op: "list", Err: err}
	}
	defer rows.Close()

	var subs []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, &model.PersistenceError{Op: "list", Err: err}
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, &model.PersistenceError{Op: "list", Err: err}
	}
	return subs, nil
}

// ActiveRecipients returns the ids of active subscribers, oldest first. On a
// read failure it returns the last good result along with the error.
func (s *SQLiteStore) ActiveRecipients(ctx context.Context) ([]model.RecipientID, error) {
	ids, err := s.queryActive(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return slices.Clone(s.active), &model.PersistenceError{Op: "read", Err: err}
	}
	s.active = slices.Clone(ids)
	return ids, nil
}

func (s *SQLiteStore) queryActive(ctx context.Context) ([]model.RecipientID, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT chat_id FROM subscribers WHERE active = 1 ORDER BY subscribed_at, chat_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []model.RecipientID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, model.RecipientID(id))
	}
	return ids, rows.Err()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(r rowScanner) (model.Subscriber, error) {
	var (
		id     int64
		name   string
		active int
		since  int64
	)
	if err := r.Scan(&id, &name, &active, &since); err != nil {
		return model.Subscriber{}, err
	}
	return model.Subscriber{
		ID:           model.RecipientID(id),
		Name:         name,
		Active:       active == 1,
		SubscribedAt: time.Unix(since, 0),
	}, nil
}
