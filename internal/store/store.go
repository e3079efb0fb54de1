package store

import (
	"context"
	"fmt"

	"github.com/amishk599/jobalert/internal/model"
)

// Open returns the registry backend named by backend ("sqlite" or "file").
func Open(backend, path string) (model.SubscriberStore, error) {
	switch backend {
	case "sqlite":
		return NewSQLiteStore(path)
	case "file":
		return NewFileStore(path)
	default:
		return nil, fmt.Errorf("unknown subscriber backend %q", backend)
	}
}

// Seed subscribes each id that the registry has never seen. Ids that exist,
// including ones that unsubscribed, are left alone so a restart does not
// undo an /unsubscribe. It returns how many ids were added.
func Seed(ctx context.Context, s model.SubscriberStore, ids []int64) (int, error) {
	added := 0
	for _, raw := range ids {
		id := model.RecipientID(raw)
		_, ok, err := s.Get(ctx, id)
		if err != nil {
			return added, err
		}
		if ok {
			continue
		}
		if err := s.Subscribe(ctx, id, ""); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
