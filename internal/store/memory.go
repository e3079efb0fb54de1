package store

import (
	"context"
	"sync"
	"time"

	"github.com/amishk599/jobalert/internal/model"
)

// MemoryStore is a volatile registry used in dry-run mode and tests. Nothing
// survives a restart.
type MemoryStore struct {
	mu   sync.Mutex
	subs map[model.RecipientID]model.Subscriber
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[model.RecipientID]model.Subscriber)}
}

func (s *MemoryStore) Subscribe(_ context.Context, id model.RecipientID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		sub = model.Subscriber{ID: id, SubscribedAt: time.Now()}
	}
	sub.Name = name
	sub.Active = true
	s.subs[id] = sub
	return nil
}

func (s *MemoryStore) Unsubscribe(_ context.Context, id model.RecipientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[id]; ok {
		sub.Active = false
		s.subs[id] = sub
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id model.RecipientID) (model.Subscriber, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	return sub, ok, nil
}

func (s *MemoryStore) List(_ context.Context) ([]model.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sorted(s.subs), nil
}

func (s *MemoryStore) ActiveRecipients(_ context.Context) ([]model.RecipientID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []model.RecipientID
	for _, sub := range sorted(s.subs) {
		if sub.Active {
			ids = append(ids, sub.ID)
		}
	}
	return ids, nil
}

func (s *MemoryStore) Close() error { return nil }
