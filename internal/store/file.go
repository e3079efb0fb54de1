package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/amishk599/jobalert/internal/model"
)

// Ensure FileStore implements model.SubscriberStore.
var _ model.SubscriberStore = (*FileStore)(nil)

// fileRecord is the on-disk form of a subscriber.
type fileRecord struct {
	ID           int64     `json:"chat_id"`
	Name         string    `json:"name,omitempty"`
	Active       bool      `json:"active"`
	SubscribedAt time.Time `json:"subscribed_at"`
}

// FileStore keeps the registry in a JSON file. The file is the source of
// truth: it is re-read under a shared file lock before every operation and
// replaced whole (temp file, fsync, rename) under an exclusive lock on every
// mutation, so a CLI and a running daemon can share it. If the file cannot be
// read or written, the last good in-memory state is kept.
type FileStore struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
	subs map[model.RecipientID]model.Subscriber
	now  func() time.Time
}

// NewFileStore opens the registry at path, creating it lazily on first write.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
		subs: make(map[model.RecipientID]model.Subscriber),
		now:  time.Now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Subscribe adds id, or reactivates it if it unsubscribed earlier.
func (s *FileStore) Subscribe(_ context.Context, id model.RecipientID, name string) error {
	return s.mutate("subscribe", func(subs map[model.RecipientID]model.Subscriber) {
		sub, ok := subs[id]
		if !ok {
			sub = model.Subscriber{ID: id, SubscribedAt: s.now().UTC().Truncate(time.Second)}
		}
		sub.Name = name
		sub.Active = true
		subs[id] = sub
	})
}

// Unsubscribe marks id inactive. Unknown ids are a no-op.
func (s *FileStore) Unsubscribe(_ context.Context, id model.RecipientID) error {
	return s.mutate("unsubscribe", func(subs map[model.RecipientID]model.Subscriber) {
		if sub, ok := subs[id]; ok {
			sub.Active = false
			subs[id] = sub
		}
	})
}

// Get returns the subscriber with the given id.
func (s *FileStore) Get(_ context.Context, id model.RecipientID) (model.Subscriber, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.reload()
	sub, ok := s.subs[id]
	return sub, ok, err
}

// List returns every subscriber, oldest first. On a read failure it returns
// the last good state along with the error.
func (s *FileStore) List(_ context.Context) ([]model.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.reload()
	return sorted(s.subs), err
}

// ActiveRecipients returns the ids of active subscribers, oldest first. On a
// read failure it returns the last good state along with the error.
func (s *FileStore) ActiveRecipients(_ context.Context) ([]model.RecipientID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.reload()

	var ids []model.RecipientID
	for _, sub := range sorted(s.subs) {
		if sub.Active {
			ids = append(ids, sub.ID)
		}
	}
	return ids, err
}

// Close releases the lock file handle.
func (s *FileStore) Close() error {
	return s.lock.Close()
}

// mutate applies fn to a copy of the freshly loaded state and persists it.
// The in-memory state only advances once the new file is in place.
func (s *FileStore) mutate(op string, fn func(map[model.RecipientID]model.Subscriber)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return &model.PersistenceError{Op: op, Err: fmt.Errorf("lock: %w", err)}
	}
	defer s.lock.Unlock()

	current, err := s.read()
	if err != nil {
		return &model.PersistenceError{Op: op, Err: err}
	}

	next := maps.Clone(current)
	fn(next)

	if err := s.write(next); err != nil {
		return &model.PersistenceError{Op: op, Err: err}
	}
	s.subs = next
	return nil
}

// reload refreshes s.subs from disk. Callers hold s.mu.
func (s *FileStore) reload() error {
	if err := s.lock.RLock(); err != nil {
		return &model.PersistenceError{Op: "read", Err: fmt.Errorf("lock: %w", err)}
	}
	defer s.lock.Unlock()

	subs, err := s.read()
	if err != nil {
		return &model.PersistenceError{Op: "read", Err: err}
	}
	s.subs = subs
	return nil
}

func (s *FileStore) read() (map[model.RecipientID]model.Subscriber, error) {
	subs := make(map[model.RecipientID]model.Subscriber)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return subs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var records []fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	for _, r := range records {
		id := model.RecipientID(r.ID)
		subs[id] = model.Subscriber{ID: id, Name: r.Name, Active: r.Active, SubscribedAt: r.SubscribedAt}
	}
	return subs, nil
}

func (s *FileStore) write(subs map[model.RecipientID]model.Subscriber) error {
	records := make([]fileRecord, 0, len(subs))
	for _, sub := range sorted(subs) {
		records = append(records, fileRecord{
			ID:           int64(sub.ID),
			Name:         sub.Name,
			Active:       sub.Active,
			SubscribedAt: sub.SubscribedAt,
		})
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}

func sorted(subs map[model.RecipientID]model.Subscriber) []model.Subscriber {
	out := slices.Collect(maps.Values(subs))
	slices.SortFunc(out, func(a, b model.Subscriber) int {
		if c := a.SubscribedAt.Compare(b.SubscribedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
