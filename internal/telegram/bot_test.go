package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/web3-frozen/ultrasound-monitor/internal/dedup"
	"github.com/web3-frozen/ultrasound-monitor/internal/monitor"
	"github.com/web3-frozen/ultrasound-monitor/internal/store"
	"github.com/web3-frozen/ultrasound-monitor/internal/supply"
)

type sentMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// fakeTelegram records sendMessage calls.
type fakeTelegram struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (f *fakeTelegram) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
			http.NotFound(w, r)
			return
		}
		var m sentMessage
		_ = json.NewDecoder(r.Body).Decode(&m)
		f.mu.Lock()
		f.sent = append(f.sent, m)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeTelegram) last(t *testing.T) sentMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("no message sent")
	}
	return f.sent[len(f.sent)-1]
}

type fakeStore struct {
	user     *store.TelegramUser
	subs     []store.Subscription
	upserted int
}

func (s *fakeStore) UpsertTelegramUser(context.Context, int64, string, string, time.Time) error {
	s.upserted++
	return nil
}

func (s *fakeStore) GetTelegramUser(context.Context, int64) (*store.TelegramUser, error) {
	if s.user == nil {
		return nil, errors.New("no rows")
	}
	return s.user, nil
}

func (s *fakeStore) ListSubscriptions(context.Context, int64) ([]store.Subscription, error) {
	return s.subs, nil
}

func (s *fakeStore) ListEvents(context.Context) ([]store.Event, error) {
	return []store.Event{{ID: 1, Name: "supply_daily_report", Description: "Daily ETH supply report"}}, nil
}

type fakeSupply struct {
	snap *monitor.Snapshot
	proj monitor.Projection
}

func (f *fakeSupply) Latest() *monitor.Snapshot { return f.snap }

func (f *fakeSupply) Projection() (monitor.Projection, bool) { return f.proj, f.snap != nil }

func newTestBot(t *testing.T, st UserStore, sr SupplyReader, l Limiter) (*Bot, *fakeTelegram) {
	t.Helper()
	tg := &fakeTelegram{}
	srv := tg.server(t)
	b := NewBot("TOKEN", st, sr, l, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	b.apiBase = srv.URL + "/bot"
	b.client = srv.Client()
	return b, tg
}

func TestCommand(t *testing.T) {
	tests := map[string]string{
		"/start":                "/start",
		"  /Supply  ":           "/supply",
		"/status@UltrasoundBot": "/status",
		"/help me":              "/help",
		"":                      "",
	}
	for in, want := range tests {
		if got := command(in); got != want {
			t.Errorf("command(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHandleSupply(t *testing.T) {
	var s supply.Snapshot
	s.ExecutionBalancesSum.BlockNumber = 15537394
	s.BeaconBalancesSum.Slot = 4700013
	sr := &fakeSupply{
		snap: &monitor.Snapshot{Source: "ultrasound", Supply: s},
		proj: monitor.Projection{EthSupply: 120521140.92, ComputedAt: time.Date(2022, 9, 15, 6, 42, 42, 0, time.UTC)},
	}
	b, tg := newTestBot(t, nil, sr, nil)

	b.handle(context.Background(), 7, "alice", "/supply")
	msg := tg.last(t)
	if msg.ChatID != 7 {
		t.Errorf("ChatID = %d, want 7", msg.ChatID)
	}
	for _, want := range []string{"120,521,140.92 ETH", "Block 15537394", "Slot 4700013", "06:42:42"} {
		if !strings.Contains(msg.Text, want) {
			t.Errorf("message missing %q:\n%s", want, msg.Text)
		}
	}
}

func TestHandleSupplyBeforeFirstPoll(t *testing.T) {
	b, tg := newTestBot(t, nil, &fakeSupply{}, nil)
	b.handle(context.Background(), 7, "", "/supply")
	if !strings.Contains(tg.last(t).Text, "No supply data yet") {
		t.Errorf("unexpected reply: %s", tg.last(t).Text)
	}
}

func TestHandleStartRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := dedup.New("redis://"+mr.Addr(), "")
	if err != nil {
		t.Fatalf("dedup.New: %v", err)
	}
	defer limiter.Close()

	st := &fakeStore{}
	b, tg := newTestBot(t, st, &fakeSupply{}, limiter)
	ctx := context.Background()

	b.handle(ctx, 42, "alice", "/start")
	if !strings.Contains(tg.last(t).Text, "<code>") {
		t.Fatalf("first /start should issue a code: %s", tg.last(t).Text)
	}

	b.handle(ctx, 42, "alice", "/start")
	if !strings.Contains(tg.last(t).Text, "wait") {
		t.Errorf("second /start should be rate limited: %s", tg.last(t).Text)
	}
	if st.upserted != 1 {
		t.Errorf("upserted %d times, want 1", st.upserted)
	}

	mr.FastForward(linkCodeLimit + time.Second)
	b.handle(ctx, 42, "alice", "/start")
	if st.upserted != 2 {
		t.Errorf("upserted %d times after the window, want 2", st.upserted)
	}
}

func TestHandleStatus(t *testing.T) {
	st := &fakeStore{
		user: &store.TelegramUser{TgUsername: "alice", Linked: true},
		subs: []store.Subscription{{ID: 1, EventID: 1, ReportHour: 6}},
	}
	b, tg := newTestBot(t, st, &fakeSupply{}, nil)

	b.handle(context.Background(), 42, "alice", "/status")
	msg := tg.last(t).Text
	if !strings.Contains(msg, "@alice") || !strings.Contains(msg, "Daily ETH supply report at 06:00 UTC") {
		t.Errorf("unexpected status reply:\n%s", msg)
	}
}

func TestHandleWithoutStore(t *testing.T) {
	b, tg := newTestBot(t, nil, &fakeSupply{}, nil)
	for _, cmd := range []string{"/start", "/status"} {
		b.handle(context.Background(), 1, "", cmd)
		if !strings.Contains(tg.last(t).Text, "not available") {
			t.Errorf("%s without store: %s", cmd, tg.last(t).Text)
		}
	}
}

func TestGenerateLinkCode(t *testing.T) {
	code := generateLinkCode()
	if len(code) != 6 || strings.ToUpper(code) != code {
		t.Errorf("generateLinkCode = %q, want 6 upper-case hex chars", code)
	}
}

func TestRunBacksOffWhenPollRejected(t *testing.T) {
	var (
		mu    sync.Mutex
		calls int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer srv.Close()

	b := NewBot("BAD", nil, &fakeSupply{}, nil, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	b.apiBase = srv.URL + "/bot"
	b.client = srv.Client()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	b.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("getUpdates called %d times in 500ms, want 1 before backing off", calls)
	}
}
