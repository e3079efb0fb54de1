package notifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/amishk599/jobalert/internal/model"
	"github.com/amishk599/jobalert/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type sent struct {
	to   model.RecipientID
	text string
}

// recordingSender records every send and fails for recipients in failFor.
type recordingSender struct {
	mu      sync.Mutex
	sent    []sent
	failFor map[model.RecipientID]int // fail on the n-th chunk (1-based)
	counts  map[model.RecipientID]int
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		failFor: map[model.RecipientID]int{},
		counts:  map[model.RecipientID]int{},
	}
}

func (s *recordingSender) Send(_ context.Context, to model.RecipientID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[to]++
	if n, ok := s.failFor[to]; ok && s.counts[to] == n {
		return errors.New("Forbidden: bot was blocked by the user")
	}
	s.sent = append(s.sent, sent{to: to, text: text})
	return nil
}

const (
	alice model.RecipientID = 101
	bob   model.RecipientID = 202
	carol model.RecipientID = 303
)

func TestDispatch_IsolatesFailures(t *testing.T) {
	s := newRecordingSender()
	s.failFor[bob] = 1
	d := NewDispatcher(s, nil, discardLogger())

	res := d.Dispatch(context.Background(), model.Digest{Chunks: []string{"hello"}, Count: 1}, []model.RecipientID{alice, bob, carol})

	if !res.Delivered.Contains(alice, carol) || res.Delivered.Cardinality() != 2 {
		t.Errorf("Delivered = %v, want {alice, carol}", res.Delivered)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("Failed = %v, want only bob", res.Failed)
	}
	var dErr *model.DispatchError
	if !errors.As(res.Failed[bob], &dErr) || dErr.Recipient != bob {
		t.Errorf("Failed[bob] = %v, want *model.DispatchError for bob", res.Failed[bob])
	}
}

func TestDispatch_SendsChunksInOrder(t *testing.T) {
	s := newRecordingSender()
	d := NewDispatcher(s, nil, discardLogger())

	d.Dispatch(context.Background(), model.Digest{Chunks: []string{"one", "two", "three"}, Count: 9}, []model.RecipientID{alice, bob})

	want := []sent{
		{alice, "one"}, {alice, "two"}, {alice, "three"},
		{bob, "one"}, {bob, "two"}, {bob, "three"},
	}
	if len(s.sent) != len(want) {
		t.Fatalf("sent %d messages, want %d: %v", len(s.sent), len(want), s.sent)
	}
	for i := range want {
		if s.sent[i] != want[i] {
			t.Errorf("sent[%d] = %v, want %v", i, s.sent[i], want[i])
		}
	}
}

func TestDispatch_StopsChunksAfterFailure(t *testing.T) {
	s := newRecordingSender()
	s.failFor[alice] = 2
	d := NewDispatcher(s, nil, discardLogger())

	res := d.Dispatch(context.Background(), model.Digest{Chunks: []string{"one", "two", "three"}}, []model.RecipientID{alice, bob})

	if s.counts[alice] != 2 {
		t.Errorf("alice attempts = %d, want 2 (no retry, no further chunks)", s.counts[alice])
	}
	if _, ok := res.Failed[alice]; !ok {
		t.Error("alice should be recorded as failed")
	}
	if !res.Delivered.Contains(bob) {
		t.Error("bob should still be delivered")
	}
}

func TestDispatch_DeduplicatesRecipients(t *testing.T) {
	s := newRecordingSender()
	d := NewDispatcher(s, nil, discardLogger())

	res := d.Dispatch(context.Background(), model.Digest{Chunks: []string{"x"}}, []model.RecipientID{alice, alice, bob, alice})

	if len(s.sent) != 2 {
		t.Errorf("sent %d messages, want 2", len(s.sent))
	}
	if res.Delivered.Cardinality() != 2 {
		t.Errorf("Delivered = %v", res.Delivered)
	}
}

func TestDispatch_NoRecipients(t *testing.T) {
	d := NewDispatcher(newRecordingSender(), nil, discardLogger())
	res := d.Dispatch(context.Background(), model.Digest{Chunks: []string{"x"}}, nil)
	if res.Delivered.Cardinality() != 0 || len(res.Failed) != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestDispatch_CancelledContextFailsRemaining(t *testing.T) {
	s := newRecordingSender()
	d := NewDispatcher(s, ratelimit.NewPacer(time.Hour), discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := d.Dispatch(ctx, model.Digest{Chunks: []string{"x"}}, []model.RecipientID{alice, bob, carol})
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("dispatch took %v", elapsed)
	}

	// The first send passes the pacer; the rest cannot wait an hour.
	if !res.Delivered.Contains(alice) {
		t.Error("alice should be delivered")
	}
	if len(res.Failed) != 2 {
		t.Errorf("Failed = %v, want bob and carol", res.Failed)
	}
}

func TestDispatch_PacesSends(t *testing.T) {
	s := newRecordingSender()
	d := NewDispatcher(s, ratelimit.NewPacer(40*time.Millisecond), discardLogger())

	start := time.Now()
	d.Dispatch(context.Background(), model.Digest{Chunks: []string{"a", "b"}}, []model.RecipientID{alice, bob})
	// Four sends, three gaps.
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("expected paced sends to take >= 100ms, got %v", elapsed)
	}
}

func TestSendTest(t *testing.T) {
	s := newRecordingSender()
	d := NewDispatcher(s, nil, discardLogger())

	res := d.SendTest(context.Background(), []model.RecipientID{alice})
	if !res.Delivered.Contains(alice) {
		t.Fatal("test message not delivered")
	}
	if s.sent[0].text != TestMessage {
		t.Errorf("text = %q", s.sent[0].text)
	}
}

func TestLogSender_NeverFails(t *testing.T) {
	s := NewLogSender(discardLogger())
	if err := s.Send(context.Background(), alice, "hello"); err != nil {
		t.Errorf("Send = %v, want nil", err)
	}
}
