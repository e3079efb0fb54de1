package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/amishk599/jobalert/internal/model"
)

// fakeBotAPI serves getMe and sendMessage. Chats listed in blocked get a 403.
func fakeBotAPI(t *testing.T, blocked map[string]bool, sends *atomic.Int32, lastForm *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Jobs","username":"jobalert_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			sends.Add(1)
			if err := r.ParseForm(); err != nil {
				t.Errorf("ParseForm: %v", err)
			}
			lastForm.Store(r.PostForm)
			if blocked[r.PostForm.Get("chat_id")] {
				w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
				return
			}
			w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestTelegramSender_Send(t *testing.T) {
	var sends atomic.Int32
	var form atomic.Value
	srv := fakeBotAPI(t, nil, &sends, &form)

	bot, err := NewBotWithEndpoint("123:abc", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("NewBotWithEndpoint: %v", err)
	}
	if bot.Self.UserName != "jobalert_bot" {
		t.Errorf("Self.UserName = %q", bot.Self.UserName)
	}

	s := NewTelegramSender(bot)
	if err := s.Send(context.Background(), 42, "<b>hi</b>"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if sends.Load() != 1 {
		t.Fatalf("sendMessage calls = %d, want 1", sends.Load())
	}
	got := form.Load().(url.Values)
	if got.Get("chat_id") != "42" || got.Get("text") != "<b>hi</b>" || got.Get("parse_mode") != "HTML" {
		t.Errorf("form = %v", got)
	}
}

func TestTelegramSender_BlockedIsHTTPError(t *testing.T) {
	var sends atomic.Int32
	var form atomic.Value
	srv := fakeBotAPI(t, map[string]bool{"99": true}, &sends, &form)

	bot, err := NewBotWithEndpoint("123:abc", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("NewBotWithEndpoint: %v", err)
	}

	err = NewTelegramSender(bot).Send(context.Background(), 99, "hi")
	var httpErr *model.HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != 403 {
		t.Fatalf("expected HTTPError 403, got %v", err)
	}
}

func TestTelegramSender_DispatchIsolation(t *testing.T) {
	var sends atomic.Int32
	var form atomic.Value
	srv := fakeBotAPI(t, map[string]bool{"202": true}, &sends, &form)

	bot, err := NewBotWithEndpoint("123:abc", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("NewBotWithEndpoint: %v", err)
	}
	d := NewDispatcher(NewTelegramSender(bot), nil, discardLogger())

	res := d.Dispatch(context.Background(), model.Digest{Chunks: []string{"digest"}, Count: 1}, []model.RecipientID{alice, bob, carol})
	if res.Delivered.Cardinality() != 2 || !res.Delivered.Contains(alice, carol) {
		t.Errorf("Delivered = %v", res.Delivered)
	}
	if _, ok := res.Failed[bob]; !ok || len(res.Failed) != 1 {
		t.Errorf("Failed = %v", res.Failed)
	}
	if sends.Load() != 3 {
		t.Errorf("sendMessage calls = %d, want 3", sends.Load())
	}
}

func TestTelegramSender_CancelledContext(t *testing.T) {
	var sends atomic.Int32
	var form atomic.Value
	srv := fakeBotAPI(t, nil, &sends, &form)
	bot, err := NewBotWithEndpoint("123:abc", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewTelegramSender(bot).Send(ctx, 42, "hi"); !errors.Is(err, context.Canceled) {
		t.Errorf("Send = %v, want context.Canceled", err)
	}
	if sends.Load() != 0 {
		t.Errorf("sendMessage calls = %d, want 0", sends.Load())
	}
}

func TestNewBot_EmptyToken(t *testing.T) {
	if _, err := NewBotWithEndpoint("", "http://127.0.0.1/bot%s/%s", http.DefaultClient); err == nil {
		t.Fatal("expected error for empty token")
	}
}
