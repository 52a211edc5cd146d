package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/notify"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLeaderboard struct {
	rows []domain.TrackedTrader
	err  error
}

func (f *fakeLeaderboard) Leaderboard(context.Context) ([]domain.TrackedTrader, error) {
	return f.rows, f.err
}

type fakeFillSource struct {
	mu    sync.Mutex
	fills map[string][]domain.Fill
	errs  map[string]error
	calls []string
}

func (f *fakeFillSource) UserFills(_ context.Context, addr string) ([]domain.Fill, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, addr)
	if err := f.errs[addr]; err != nil {
		return nil, err
	}
	return f.fills[addr], nil
}

type memTraderStore struct {
	traders  []domain.TrackedTrader
	replaced int
	err      error
}

func (m *memTraderStore) ReplaceAll(_ context.Context, traders []domain.TrackedTrader) error {
	if m.err != nil {
		return m.err
	}
	m.replaced++
	m.traders = append([]domain.TrackedTrader(nil), traders...)
	return nil
}

func (m *memTraderStore) List(context.Context) ([]domain.TrackedTrader, error) {
	if m.err != nil {
		return nil, m.err
	}
	return append([]domain.TrackedTrader(nil), m.traders...), nil
}

// memFillStore mirrors the postgres filter semantics over an in-memory slice.
type memFillStore struct {
	fills       []domain.Fill
	replaceArgs [][]string
	pruneArgs   [][]string
	listErr     error
}

func (m *memFillStore) ReplaceForTraders(_ context.Context, traders []string, fills []domain.Fill) error {
	m.replaceArgs = append(m.replaceArgs, traders)
	drop := make(map[string]bool, len(traders))
	for _, t := range traders {
		drop[t] = true
	}
	kept := m.fills[:0:0]
	for _, f := range m.fills {
		if !drop[f.Trader] {
			kept = append(kept, f)
		}
	}
	m.fills = append(kept, fills...)
	return nil
}

func (m *memFillStore) PruneExcept(_ context.Context, keep []string) (int64, error) {
	m.pruneArgs = append(m.pruneArgs, keep)
	ok := make(map[string]bool, len(keep))
	for _, t := range keep {
		ok[t] = true
	}
	var (
		kept   []domain.Fill
		pruned int64
	)
	for _, f := range m.fills {
		if ok[f.Trader] {
			kept = append(kept, f)
			continue
		}
		pruned++
	}
	m.fills = kept
	return pruned, nil
}

func (m *memFillStore) List(_ context.Context, filter domain.FillFilter) ([]domain.Fill, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	traders := make(map[string]bool, len(filter.Traders))
	for _, t := range filter.Traders {
		traders[t] = true
	}
	var out []domain.Fill
	for _, f := range m.fills {
		if filter.Since != nil && f.Timestamp < filter.Since.UnixMilli() {
			continue
		}
		if filter.OpeningsOnly && !strings.HasPrefix(f.Direction, "Open ") {
			continue
		}
		if len(traders) > 0 && !traders[f.Trader] {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if filter.NewestFirst {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Timestamp < out[j].Timestamp
	})
	return out, nil
}

func (m *memFillStore) Count(context.Context) (int64, error) {
	return int64(len(m.fills)), nil
}

type memAudit struct {
	entries []domain.AuditEntry
}

func (m *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	m.entries = append(m.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (m *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return m.entries, nil
}

func (m *memAudit) events() []string {
	out := make([]string, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Event
	}
	return out
}

type memSignalStore struct {
	at      time.Time
	signals []domain.AnnotatedSignal
	saves   int
}

func (m *memSignalStore) SaveCycle(_ context.Context, at time.Time, signals []domain.AnnotatedSignal) error {
	m.saves++
	m.at, m.signals = at, signals
	return nil
}

func (m *memSignalStore) Latest(context.Context) (time.Time, []domain.AnnotatedSignal, error) {
	if m.saves == 0 {
		return time.Time{}, nil, domain.ErrNotFound
	}
	return m.at, m.signals, nil
}

type fakeLocker struct {
	held     bool
	acquired int
	released int
}

func (f *fakeLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	if f.held {
		return nil, domain.ErrLockHeld
	}
	f.acquired++
	return func() { f.released++ }, nil
}

type fakeMarket struct {
	mc    domain.MarketContext
	err   error
	calls int
}

func (f *fakeMarket) MarketContext(context.Context) (domain.MarketContext, error) {
	f.calls++
	return f.mc, f.err
}

type memMarketCache struct {
	mc   domain.MarketContext
	ttl  time.Duration
	sets int
}

func (m *memMarketCache) SetContext(_ context.Context, mc domain.MarketContext, ttl time.Duration) error {
	m.sets++
	m.mc, m.ttl = mc, ttl
	return nil
}

func (m *memMarketCache) GetContext(context.Context) (domain.MarketContext, error) {
	if m.mc == nil {
		return nil, domain.ErrNotFound
	}
	return m.mc, nil
}

type fakeBus struct {
	published [][]byte
	streamed  [][]byte
}

func (f *fakeBus) Publish(_ context.Context, _ string, payload []byte) error {
	f.published = append(f.published, payload)
	return nil
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return make(chan []byte), nil
}

func (f *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	f.streamed = append(f.streamed, payload)
	return nil
}

func (f *fakeBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type dispatchCall struct {
	event string
	msgs  []notify.Message
}

// recordingDispatcher records every call. While err is set nothing is
// delivered.
type recordingDispatcher struct {
	calls []dispatchCall
	err   error
}

func (r *recordingDispatcher) SendRanked(_ context.Context, event string, msgs []notify.Message) ([]int, error) {
	r.calls = append(r.calls, dispatchCall{event: event, msgs: msgs})
	if r.err != nil {
		return nil, r.err
	}
	delivered := make([]int, len(msgs))
	for i := range msgs {
		delivered[i] = i
	}
	return delivered, nil
}

func (r *recordingDispatcher) byEvent(event string) []notify.Message {
	var out []notify.Message
	for _, c := range r.calls {
		if c.event == event {
			out = append(out, c.msgs...)
		}
	}
	return out
}

type memSink struct {
	stored map[string][]byte
}

func (m *memSink) Store(_ context.Context, name string, _ time.Time, data []byte) (string, error) {
	if m.stored == nil {
		m.stored = map[string][]byte{}
	}
	m.stored[name] = data
	return "mem://" + name, nil
}

type fakeArchiver struct {
	fills []domain.Fill
	err   error
}

func (f *fakeArchiver) ArchiveFills(_ context.Context, _ time.Time, fills []domain.Fill) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.fills = fills
	return "archive/fills/test.jsonl", nil
}
