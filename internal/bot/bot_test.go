package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/amishk599/jobalert/internal/model"
)

func TestCommandOf(t *testing.T) {
	msg := &tgbotapi.Message{
		Text:     "/check@jobalert_bot",
		Chat:     &tgbotapi.Chat{ID: 42, Type: "private"},
		From:     &tgbotapi.User{ID: 42, UserName: "dev"},
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 19}},
	}

	chat, name, cmd, ok := commandOf(tgbotapi.Update{Message: msg})
	if !ok || chat != 42 || name != "@dev" || cmd != "check" {
		t.Errorf("message command = %d %q %q %v", chat, name, cmd, ok)
	}

	cq := &tgbotapi.CallbackQuery{
		ID:      "cb1",
		From:    &tgbotapi.User{ID: 9, FirstName: "Ana"},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: -100, Title: "Team"}},
		Data:    CmdStatus,
	}
	chat, name, cmd, ok = commandOf(tgbotapi.Update{CallbackQuery: cq})
	if !ok || chat != -100 || name != "Team" || cmd != CmdStatus {
		t.Errorf("callback command = %d %q %q %v", chat, name, cmd, ok)
	}

	plain := &tgbotapi.Message{Text: "hello", Chat: &tgbotapi.Chat{ID: 1}}
	if _, _, _, ok := commandOf(tgbotapi.Update{Message: plain}); ok {
		t.Error("plain text must not be treated as a command")
	}
}

func TestReply_SendsHTMLWithMenu(t *testing.T) {
	var form atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Jobs","username":"jobalert_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			r.ParseForm()
			form.Store(r.PostForm)
			w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	api, err := tgbotapi.NewBotAPIWithClient("123:abc", srv.URL+"/bot%s/%s", srv.Client())
	if err != nil {
		t.Fatalf("NewBotAPIWithClient: %v", err)
	}
	b := New(api, nil, 0, discardLogger())

	if err := b.Reply(context.Background(), model.RecipientID(42), msgWelcome, true); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	got := form.Load().(url.Values)
	if got.Get("parse_mode") != "HTML" || got.Get("chat_id") != "42" {
		t.Errorf("form = %v", got)
	}
	if !strings.Contains(got.Get("reply_markup"), `"callback_data":"check"`) {
		t.Errorf("reply_markup = %s, want inline keyboard", got.Get("reply_markup"))
	}
}

// longPollServer answers getUpdates the way the Bot API does when idle: it
// holds the request for the requested timeout and then returns no updates.
// It counts polls that completed and polls the client gave up on.
func longPollServer(t *testing.T) (srv *httptest.Server, completed, aborted *atomic.Int32) {
	t.Helper()
	completed, aborted = new(atomic.Int32), new(atomic.Int32)
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Jobs","username":"jobalert_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/getUpdates"):
			secs, _ := strconv.Atoi(r.FormValue("timeout"))
			select {
			case <-time.After(time.Duration(secs) * time.Second):
				completed.Add(1)
				w.Write([]byte(`{"ok":true,"result":[]}`))
			case <-r.Context().Done():
				aborted.Add(1)
			}
		default:
			http.NotFound(w, r)
		}
	}))
	return srv, completed, aborted
}

func TestRun_IdleLongPollCompletes(t *testing.T) {
	srv, completed, aborted := longPollServer(t)

	pollTimeout := time.Second
	updates, err := tgbotapi.NewBotAPIWithClient("123:abc", srv.URL+"/bot%s/%s", PollClient(pollTimeout))
	if err != nil {
		t.Fatalf("NewBotAPIWithClient: %v", err)
	}
	b := New(updates, nil, pollTimeout, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	if err := b.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	srv.Close() // waits for the poll still in flight

	if n := aborted.Load(); n != 0 {
		t.Errorf("%d getUpdates calls hit the client timeout", n)
	}
	if n := completed.Load(); n < 2 {
		t.Errorf("completed polls = %d, want at least 2 in 2.5s with a 1s long-poll", n)
	}
}

func TestPollClient_OutlastsLongPoll(t *testing.T) {
	for _, poll := range []time.Duration{time.Second, DefaultPollTimeout} {
		if c := PollClient(poll); c.Timeout <= poll {
			t.Errorf("PollClient(%v).Timeout = %v, want more than the long-poll", poll, c.Timeout)
		}
	}
}
