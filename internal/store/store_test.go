package store

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/amishk599/jobalert/internal/model"
)

func TestSeed_AddsOnlyUnknownIDs(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Subscribe(ctx, 1, "existing"); err != nil {
		t.Fatal(err)
	}
	if err := s.Subscribe(ctx, 2, "left"); err != nil {
		t.Fatal(err)
	}
	if err := s.Unsubscribe(ctx, 2); err != nil {
		t.Fatal(err)
	}

	added, err := Seed(ctx, s, []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}

	ids, _ := s.ActiveRecipients(ctx)
	if !slices.Contains(ids, 3) {
		t.Errorf("seeded id 3 missing from %v", ids)
	}
	if slices.Contains(ids, model.RecipientID(2)) {
		t.Error("seed must not resubscribe an id that unsubscribed")
	}
}

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()

	for _, tc := range []struct {
		backend string
		file    string
	}{
		{"sqlite", "subs.db"},
		{"file", "subs.json"},
	} {
		s, err := Open(tc.backend, filepath.Join(dir, tc.file))
		if err != nil {
			t.Fatalf("Open(%s): %v", tc.backend, err)
		}
		if err := s.Subscribe(context.Background(), 11, ""); err != nil {
			t.Errorf("%s Subscribe: %v", tc.backend, err)
		}
		s.Close()
	}

	if _, err := Open("redis", filepath.Join(dir, "x")); err == nil {
		t.Error("expected error for unknown backend")
	}
}
