package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/web3-frozen/ultrasound-monitor/internal/store"
	"github.com/web3-frozen/ultrasound-monitor/internal/supply"
)

// mockSource serves queued wire snapshots or errors.
type mockSource struct {
	mu    sync.Mutex
	wires []supply.WireSnapshot
	err   error
}

func (m *mockSource) Name() string { return "mock" }
func (m *mockSource) URL() string  { return "https://example.com" }

func (m *mockSource) FetchSupply(context.Context) (supply.WireSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return supply.WireSnapshot{}, m.err
	}
	w := m.wires[0]
	if len(m.wires) > 1 {
		m.wires = m.wires[1:]
	}
	return w, nil
}

type mockStore struct {
	records     []store.SupplyRecord
	subscribers map[int][]int64
	subErr      error
}

func (m *mockStore) InsertSupplySnapshot(_ context.Context, r store.SupplyRecord) error {
	m.records = append(m.records, r)
	return nil
}

func (m *mockStore) NearestSupplySnapshot(_ context.Context, at time.Time, tolerance time.Duration) (*store.SupplyRecord, error) {
	var best *store.SupplyRecord
	for i := range m.records {
		d := m.records[i].FetchedAt.Sub(at).Abs()
		if d > tolerance {
			continue
		}
		if best == nil || d < best.FetchedAt.Sub(at).Abs() {
			best = &m.records[i]
		}
	}
	return best, nil
}

func (m *mockStore) GetDailyReportSubscribers(_ context.Context, _ string, hour int) ([]int64, error) {
	return m.subscribers[hour], m.subErr
}

func (m *mockStore) CountSubscriptions(context.Context, string) (int, error) { return 0, nil }
func (m *mockStore) CountLinkedUsers(context.Context) (int, error)          { return 0, nil }

type mockClaimer struct {
	claimed map[string]bool
	cleared []string
}

func (m *mockClaimer) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	if m.claimed[key] {
		return false, nil
	}
	m.claimed[key] = true
	return true, nil
}

func (m *mockClaimer) AlreadySent(_ context.Context, key string) bool { return m.claimed[key] }

func (m *mockClaimer) Record(_ context.Context, key string, _ time.Duration) { m.claimed[key] = true }

func (m *mockClaimer) Clear(_ context.Context, key string) {
	delete(m.claimed, key)
	m.cleared = append(m.cleared, key)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// ethWire builds a snapshot whose supply is exactly eth ETH.
func ethWire(eth string, block uint64) supply.WireSnapshot {
	var w supply.WireSnapshot
	w.BeaconBalancesSum.BalancesSum = "0"
	w.BeaconBalancesSum.Slot = block - 10_000_000
	w.BeaconDepositsSum.DepositsSum = "0"
	w.BeaconDepositsSum.Slot = block - 10_000_000
	w.ExecutionBalancesSum.BalancesSum = eth + "000000000000000000"
	w.ExecutionBalancesSum.BlockNumber = block
	return w
}

func newTestEngine(src Source, st SnapshotStore, cl Claimer, alert AlertFunc) (*Engine, *time.Time) {
	e := NewEngine(src, st, cl, quietLogger(), alert, Options{Cooldown: time.Minute})
	clock := time.Date(2022, 9, 15, 6, 42, 42, 0, time.UTC)
	e.now = func() time.Time { return clock }
	return e, &clock
}

func TestEngineEmptyBeforePoll(t *testing.T) {
	e, _ := newTestEngine(&mockSource{}, nil, nil, nil)
	if e.Latest() != nil {
		t.Error("Latest should be nil before the first poll")
	}
	if _, ok := e.Projection(); ok {
		t.Error("Projection should be unavailable before the first poll")
	}
	if e.PollInterval() != defaultPollInterval {
		t.Errorf("PollInterval = %v", e.PollInterval())
	}
}

func TestEnginePollThrottlesProjection(t *testing.T) {
	src := &mockSource{wires: []supply.WireSnapshot{
		ethWire("120000000", 15_537_394),
		ethWire("120000050", 15_537_395),
		ethWire("120000100", 15_537_396),
	}}
	st := &mockStore{}
	e, clock := newTestEngine(src, st, nil, nil)
	ctx := context.Background()

	if err := e.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	p, ok := e.Projection()
	if !ok || p.EthSupply != 120_000_000 {
		t.Fatalf("Projection = %+v/%v, want 120000000", p, ok)
	}

	*clock = clock.Add(30 * time.Second)
	if err := e.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if p, _ := e.Projection(); p.EthSupply != 120_000_000 {
		t.Errorf("Projection within cooldown = %v, want retained 120000000", p.EthSupply)
	}
	if got := e.Latest().Supply.ExecutionBalancesSum.BlockNumber; got != 15_537_395 {
		t.Errorf("Latest block = %d, want 15537395", got)
	}

	*clock = clock.Add(31 * time.Second)
	if err := e.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if p, _ := e.Projection(); p.EthSupply != 120_000_100 {
		t.Errorf("Projection after cooldown = %v, want 120000100", p.EthSupply)
	}

	if len(st.records) != 3 {
		t.Fatalf("persisted %d records, want 3", len(st.records))
	}
	if st.records[0].ExecutionBalancesWei != "120000000000000000000000000" {
		t.Errorf("ExecutionBalancesWei = %s", st.records[0].ExecutionBalancesWei)
	}
}

func TestEnginePollSkipsPersistingSameBlock(t *testing.T) {
	src := &mockSource{wires: []supply.WireSnapshot{ethWire("1", 20_000_000)}}
	st := &mockStore{}
	e, _ := newTestEngine(src, st, nil, nil)

	for i := 0; i < 3; i++ {
		if err := e.Poll(context.Background()); err != nil {
			t.Fatalf("Poll: %v", err)
		}
	}
	if len(st.records) != 1 {
		t.Errorf("persisted %d records, want 1", len(st.records))
	}
}

func TestEnginePollErrorKeepsPrevious(t *testing.T) {
	src := &mockSource{wires: []supply.WireSnapshot{ethWire("5", 20_000_000)}}
	e, _ := newTestEngine(src, nil, nil, nil)
	ctx := context.Background()

	if err := e.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	src.err = errors.New("upstream down")
	if err := e.Poll(ctx); err == nil {
		t.Fatal("expected fetch error")
	}
	if e.Latest() == nil || e.Latest().Supply.ExecutionBalancesSum.BlockNumber != 20_000_000 {
		t.Error("previous snapshot should be kept after a failed fetch")
	}
}

func TestEnginePollDecodeError(t *testing.T) {
	bad := ethWire("1", 20_000_000)
	bad.BeaconDepositsSum.DepositsSum = "-1"
	e, _ := newTestEngine(&mockSource{wires: []supply.WireSnapshot{bad}}, nil, nil, nil)

	err := e.Poll(context.Background())
	var pe *supply.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Poll error = %v, want *supply.ParseError", err)
	}
	if e.Latest() != nil {
		t.Error("a malformed snapshot must not replace the latest one")
	}
}

func TestSendReports(t *testing.T) {
	src := &mockSource{wires: []supply.WireSnapshot{ethWire("120000000", 15_537_394)}}
	st := &mockStore{subscribers: map[int][]int64{6: {11, 22}}}
	cl := &mockClaimer{claimed: map[string]bool{}}

	var (
		mu   sync.Mutex
		sent = map[int64]string{}
	)
	alert := func(chatID int64, msg string) error {
		mu.Lock()
		defer mu.Unlock()
		sent[chatID] = msg
		return nil
	}
	e, clock := newTestEngine(src, st, cl, alert)
	if err := e.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	at := clock.Truncate(time.Hour)
	if n := e.SendReports(context.Background(), at); n != 2 {
		t.Fatalf("SendReports = %d, want 2", n)
	}
	msg := sent[11]
	for _, want := range []string{"Supply: 120,000,000.00 ETH", "Block: 15,537,394", "2022-09-15 06:00 UTC"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "24h change") {
		t.Error("first report should not carry a change line")
	}

	// Same round again: already claimed.
	if n := e.SendReports(context.Background(), at); n != 0 {
		t.Errorf("duplicate round sent %d, want 0", n)
	}

	// Next day, same hour: change line appears.
	if n := e.SendReports(context.Background(), at.Add(24*time.Hour)); n != 2 {
		t.Fatalf("next day SendReports = %d, want 2", n)
	}
	if !strings.Contains(sent[22], "24h change: +0.00 ETH") {
		t.Errorf("next day report missing change line:\n%s", sent[22])
	}
}

func TestSendReportsChangeUsesStoredDayOldReading(t *testing.T) {
	src := &mockSource{wires: []supply.WireSnapshot{
		ethWire("100", 20_000_000),
		ethWire("110", 20_014_400),
		ethWire("120", 20_021_600),
	}}
	st := &mockStore{subscribers: map[int][]int64{6: {11}}}
	cl := &mockClaimer{claimed: map[string]bool{}}

	var last string
	alert := func(_ int64, msg string) error { last = msg; return nil }
	e, clock := newTestEngine(src, st, cl, alert)
	ctx := context.Background()
	day0 := clock.Truncate(24 * time.Hour)

	// Day 0 reading and report, then nothing on day 1.
	if err := e.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n := e.SendReports(ctx, day0.Add(6*time.Hour)); n != 1 {
		t.Fatalf("day 0 round sent %d, want 1", n)
	}

	*clock = clock.Add(48 * time.Hour)
	if err := e.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n := e.SendReports(ctx, day0.Add(48*time.Hour+6*time.Hour)); n != 1 {
		t.Fatalf("day 2 round sent %d, want 1", n)
	}
	if strings.Contains(last, "24h change") {
		t.Errorf("a 48h gap must not be reported as a 24h change:\n%s", last)
	}

	// The reading stored on day 2 is the baseline for day 3.
	*clock = clock.Add(24 * time.Hour)
	if err := e.Poll(ctx); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n := e.SendReports(ctx, day0.Add(72*time.Hour+6*time.Hour)); n != 1 {
		t.Fatalf("day 3 round sent %d, want 1", n)
	}
	if !strings.Contains(last, "24h change: +10.00 ETH") {
		t.Errorf("day 3 change should compare with the day 2 reading (110):\n%s", last)
	}
}

func TestSendReportsNormalisesToUTC(t *testing.T) {
	src := &mockSource{wires: []supply.WireSnapshot{ethWire("120000000", 15_537_394)}}
	st := &mockStore{subscribers: map[int][]int64{18: {11}}}
	cl := &mockClaimer{claimed: map[string]bool{}}
	e, _ := newTestEngine(src, st, cl, func(int64, string) error { return nil })
	if err := e.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	// 02:00 on the 16th at UTC+8 is 18:00 on the 15th in UTC.
	at := time.Date(2022, 9, 16, 2, 0, 0, 0, time.FixedZone("UTC+8", 8*3600))
	if n := e.SendReports(context.Background(), at); n != 1 {
		t.Fatalf("SendReports = %d, want 1", n)
	}
	for _, key := range []string{
		"report:supply_daily_report:2022-09-15:18",
		"report:delivered:11:2022-09-15",
	} {
		if !cl.claimed[key] {
			t.Errorf("missing key %s in %v", key, cl.claimed)
		}
	}
}

func TestSendReportsSkipsChatAlreadyReportedToday(t *testing.T) {
	src := &mockSource{wires: []supply.WireSnapshot{ethWire("120000000", 15_537_394)}}
	// Chat 11 moved its report hour from 06 to 08 after the 06 round.
	st := &mockStore{subscribers: map[int][]int64{6: {11}, 8: {11, 33}}}
	cl := &mockClaimer{claimed: map[string]bool{}}

	var got []int64
	alert := func(chatID int64, _ string) error {
		got = append(got, chatID)
		return nil
	}
	e, clock := newTestEngine(src, st, cl, alert)
	if err := e.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}

	day := clock.Truncate(24 * time.Hour)
	if n := e.SendReports(context.Background(), day.Add(6*time.Hour)); n != 1 {
		t.Fatalf("06:00 round sent %d, want 1", n)
	}
	if n := e.SendReports(context.Background(), day.Add(8*time.Hour)); n != 1 {
		t.Fatalf("08:00 round sent %d, want 1", n)
	}
	if len(got) != 2 || got[0] != 11 || got[1] != 33 {
		t.Errorf("delivered to %v, want [11 33]", got)
	}
}

func TestSendReportsReleasesClaimWhenNothingSent(t *testing.T) {
	src := &mockSource{wires: []supply.WireSnapshot{ethWire("1", 20_000_000)}}
	st := &mockStore{subscribers: map[int][]int64{6: {1}}}
	cl := &mockClaimer{claimed: map[string]bool{}}
	failing := func(int64, string) error { return errors.New("telegram down") }

	e, clock := newTestEngine(src, st, cl, failing)
	if err := e.Poll(context.Background()); err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if n := e.SendReports(context.Background(), *clock); n != 0 {
		t.Errorf("SendReports = %d, want 0", n)
	}
	if len(cl.cleared) != 1 {
		t.Errorf("cleared %v, want the round key released", cl.cleared)
	}
}

func TestSendReportsWithoutSupply(t *testing.T) {
	st := &mockStore{subscribers: map[int][]int64{6: {1}}}
	called := false
	e, clock := newTestEngine(&mockSource{}, st, nil, func(int64, string) error { called = true; return nil })
	if n := e.SendReports(context.Background(), *clock); n != 0 || called {
		t.Errorf("SendReports = %d (called %v), want nothing sent", n, called)
	}
}

func TestFormatEth(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0, "0.00"},
		{0.004, "0.00"},
		{-0.004, "0.00"},
		{999.99, "999.99"},
		{1234.567, "1,234.57"},
		{120521140.92, "120,521,140.92"},
		{-123.4, "-123.40"},
		{-1234.5, "-1,234.50"},
	}
	for _, tt := range tests {
		if got := FormatEth(tt.input); got != tt.want {
			t.Errorf("FormatEth(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatSigned(t *testing.T) {
	if got := formatSigned(12.5); got != "+12.50" {
		t.Errorf("formatSigned(12.5) = %q", got)
	}
	if got := formatSigned(-2500); got != "-2,500.00" {
		t.Errorf("formatSigned(-2500) = %q", got)
	}
}

func TestAddCommas(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"0", "0"},
		{"100", "100"},
		{"1000", "1,000"},
		{"12345", "12,345"},
		{"123456", "123,456"},
		{"1234567", "1,234,567"},
		{"1000.50", "1,000.50"},
		{"12345678.99", "12,345,678.99"},
		{"100.25", "100.25"},
	}
	for _, tt := range tests {
		got := addCommas(tt.input)
		if got != tt.want {
			t.Errorf("addCommas(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
