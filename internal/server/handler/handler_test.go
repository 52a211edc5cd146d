package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

type fakePositions struct {
	gotTrader string
	positions []domain.Position
	err       error
}

func (f *fakePositions) Positions(_ context.Context, trader string) ([]domain.Position, error) {
	f.gotTrader = trader
	return f.positions, f.err
}

func TestListPositions(t *testing.T) {
	svc := &fakePositions{positions: []domain.Position{
		{Trader: "0xabc", Asset: "BTC", Side: domain.SideLong, NetVolume: 2, AvgPrice: 50000, Value: 100000},
	}}
	h := NewPositionHandler(svc, discard())

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Positions []positionDTO `json:"positions"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Positions, 1)
	assert.Equal(t, "Long", body.Positions[0].Side)
	assert.InDelta(t, 100000, body.Positions[0].Value, 1e-9)
	assert.Empty(t, svc.gotTrader)
}

func TestListPositionsNormalizesTrader(t *testing.T) {
	svc := &fakePositions{}
	h := NewPositionHandler(svc, discard())

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet,
		"/api/positions?trader=0xAbCdEf0000000000000000000000000000000001", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0xabcdef0000000000000000000000000000000001", svc.gotTrader)
}

func TestListPositionsRejectsBadTrader(t *testing.T) {
	h := NewPositionHandler(&fakePositions{}, discard())

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions?trader=whale", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPositionsServiceError(t *testing.T) {
	h := NewPositionHandler(&fakePositions{err: errors.New("db down")}, discard())

	rec := httptest.NewRecorder()
	h.ListPositions(rec, httptest.NewRequest(http.MethodGet, "/api/positions", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db down")
}

type fakeSentiment struct {
	weighted bool
	window   time.Duration
	records  []domain.SentimentRecord
	err      error

	cycleAt    time.Time
	signals    []domain.AnnotatedSignal
	consensErr error
}

func (f *fakeSentiment) Sentiment(_ context.Context, _ time.Time, weighted bool, window time.Duration) ([]domain.SentimentRecord, error) {
	f.weighted, f.window = weighted, window
	return f.records, f.err
}

func (f *fakeSentiment) LatestConsensus(context.Context) (time.Time, []domain.AnnotatedSignal, error) {
	return f.cycleAt, f.signals, f.consensErr
}

func TestGetSentimentDefaultsToWeighted(t *testing.T) {
	svc := &fakeSentiment{records: []domain.SentimentRecord{
		{Asset: "ETH", NetValue: -500, SentimentPercent: -50, ShortTraderCount: 1},
	}}
	h := NewSentimentHandler(svc, discard())

	rec := httptest.NewRecorder()
	h.GetSentiment(rec, httptest.NewRequest(http.MethodGet, "/api/sentiment", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.weighted)
	assert.Zero(t, svc.window)

	var body sentimentResponse
	decode(t, rec, &body)
	require.Len(t, body.Assets, 1)
	assert.Equal(t, "bearish", body.Assets[0].Mood)
	assert.Empty(t, body.Window)
}

func TestGetSentimentUnweightedWindow(t *testing.T) {
	svc := &fakeSentiment{}
	h := NewSentimentHandler(svc, discard())

	rec := httptest.NewRecorder()
	h.GetSentiment(rec, httptest.NewRequest(http.MethodGet, "/api/sentiment?weighted=false&window=24h", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, svc.weighted)
	assert.Equal(t, 24*time.Hour, svc.window)

	var body sentimentResponse
	decode(t, rec, &body)
	assert.Equal(t, "24h0m0s", body.Window)
	assert.NotNil(t, body.Assets)
}

func TestGetSentimentBadParams(t *testing.T) {
	h := NewSentimentHandler(&fakeSentiment{}, discard())

	for _, q := range []string{"weighted=maybe", "window=soon", "window=-1h"} {
		rec := httptest.NewRecorder()
		h.GetSentiment(rec, httptest.NewRequest(http.MethodGet, "/api/sentiment?"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestGetSentimentWithoutWeights(t *testing.T) {
	h := NewSentimentHandler(&fakeSentiment{err: domain.ErrNoWeights}, discard())

	rec := httptest.NewRecorder()
	h.GetSentiment(rec, httptest.NewRequest(http.MethodGet, "/api/sentiment", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetConsensus(t *testing.T) {
	change := 2.5
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := &fakeSentiment{cycleAt: at, signals: []domain.AnnotatedSignal{
		{Signal: domain.ConsensusSignal{Asset: "BTC", Direction: domain.SideLong, TraderCount: 2, PnLBacking: 400, TotalValue: 40000}, Change: &change},
		{Signal: domain.ConsensusSignal{Asset: "ETH", Direction: domain.SideShort, TraderCount: 1, PnLBacking: 300, TotalValue: 20000}},
	}}
	h := NewSentimentHandler(svc, discard())

	rec := httptest.NewRecorder()
	h.GetConsensus(rec, httptest.NewRequest(http.MethodGet, "/api/consensus", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body consensusResponse
	decode(t, rec, &body)
	assert.True(t, at.Equal(body.CycleAt))
	require.Len(t, body.Signals, 2)
	assert.Equal(t, 1, body.Signals[0].Rank)
	require.NotNil(t, body.Signals[0].Change24h)
	assert.InDelta(t, 2.5, *body.Signals[0].Change24h, 1e-9)
	assert.Equal(t, 2, body.Signals[1].Rank)
	assert.Nil(t, body.Signals[1].Change24h)
}

func TestGetConsensusNotFound(t *testing.T) {
	h := NewSentimentHandler(&fakeSentiment{consensErr: domain.ErrNotFound}, discard())

	rec := httptest.NewRecorder()
	h.GetConsensus(rec, httptest.NewRequest(http.MethodGet, "/api/consensus", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("refused") })

	t.Run("healthy", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{"postgres": ok, "redis": nil}, discard())
		rec := httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		var body struct {
			Status       string            `json:"status"`
			Dependencies map[string]string `json:"dependencies"`
		}
		decode(t, rec, &body)
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, map[string]string{"postgres": "ok"}, body.Dependencies)
	})

	t.Run("degraded", func(t *testing.T) {
		h := NewHealthHandler(map[string]Pinger{"postgres": ok, "redis": down}, discard())
		rec := httptest.NewRecorder()
		h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"redis":"down"`)
		assert.Contains(t, rec.Body.String(), `"degraded"`)
	})
}

type fakeStats struct {
	fills   int64
	traders []domain.TrackedTrader
	err     error
}

func (f fakeStats) CountFills(context.Context) (int64, error) { return f.fills, f.err }

func (f fakeStats) TrackedTraders(context.Context) ([]domain.TrackedTrader, error) {
	return f.traders, nil
}

func TestGetStatus(t *testing.T) {
	stats := fakeStats{fills: 42, traders: []domain.TrackedTrader{{Address: "0xa", PnL: 300}}}
	h := NewStatusHandler("serve", time.Now().Add(-time.Minute), stats, discard())

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Mode    string      `json:"mode"`
		Uptime  int64       `json:"uptime_seconds"`
		Fills   int64       `json:"fills"`
		Traders []traderDTO `json:"traders"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "serve", body.Mode)
	assert.GreaterOrEqual(t, body.Uptime, int64(59))
	assert.Equal(t, int64(42), body.Fills)
	require.Len(t, body.Traders, 1)
	assert.Equal(t, "0xa", body.Traders[0].Address)
}

func TestGetStatusError(t *testing.T) {
	h := NewStatusHandler("serve", time.Now(), fakeStats{err: errors.New("boom")}, discard())

	rec := httptest.NewRecorder()
	h.GetStatus(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTriggerAnalysis(t *testing.T) {
	t.Run("no pipeline", func(t *testing.T) {
		h := NewPipelineHandler(discard())
		rec := httptest.NewRecorder()
		h.TriggerAnalysis(rec, httptest.NewRequest(http.MethodPost, "/api/pipeline/trigger", nil))
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("collapses pending triggers", func(t *testing.T) {
		ch := make(chan struct{}, 1)
		h := NewPipelineHandler(discard()).WithTriggerChannel(ch)

		for range 3 {
			rec := httptest.NewRecorder()
			h.TriggerAnalysis(rec, httptest.NewRequest(http.MethodPost, "/api/pipeline/trigger", nil))
			assert.Equal(t, http.StatusAccepted, rec.Code)
		}
		assert.Len(t, ch, 1)
	})
}

type fakeStream struct {
	gotStream string
	gotAfter  string
	gotCount  int
	msgs      []domain.StreamMessage
}

func (f *fakeStream) StreamRead(_ context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	f.gotStream, f.gotAfter, f.gotCount = stream, lastID, count
	return f.msgs, nil
}

func TestListSignals(t *testing.T) {
	stream := &fakeStream{msgs: []domain.StreamMessage{
		{ID: "1-0", Payload: []byte(`{"event":"consensus"}`)},
		{ID: "2-0", Payload: []byte(`not json`)},
		{ID: "3-0", Payload: []byte(`{"event":"new_trade"}`)},
	}}
	h := NewSignalHandler(stream, "signals", discard())

	rec := httptest.NewRecorder()
	h.ListSignals(rec, httptest.NewRequest(http.MethodGet, "/api/signals?limit=900", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "signals", stream.gotStream)
	assert.Equal(t, "0", stream.gotAfter)
	assert.Equal(t, 500, stream.gotCount)

	var page struct {
		Entries []struct {
			ID    string          `json:"id"`
			Event json.RawMessage `json:"event"`
		} `json:"entries"`
		Next string `json:"next"`
	}
	decode(t, rec, &page)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "1-0", page.Entries[0].ID)
	assert.JSONEq(t, `{"event":"new_trade"}`, string(page.Entries[1].Event))
	assert.Equal(t, "3-0", page.Next)
}

func TestListSignalsBadLimit(t *testing.T) {
	h := NewSignalHandler(&fakeStream{}, "signals", discard())

	rec := httptest.NewRecorder()
	h.ListSignals(rec, httptest.NewRequest(http.MethodGet, "/api/signals?limit=0", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeAudit struct {
	opts    domain.ListOpts
	entries []domain.AuditEntry
}

func (f *fakeAudit) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	f.opts = opts
	return f.entries, nil
}

func TestListAudit(t *testing.T) {
	audit := &fakeAudit{entries: []domain.AuditEntry{
		{ID: 7, Event: "collector.collect", Detail: map[string]any{"fills": float64(12)}},
	}}
	h := NewAuditHandler(audit, discard())

	rec := httptest.NewRecorder()
	h.ListAudit(rec, httptest.NewRequest(http.MethodGet, "/api/audit?limit=10&offset=20", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.ListOpts{Limit: 10, Offset: 20}, audit.opts)

	var body struct {
		Entries []auditDTO `json:"entries"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Entries, 1)
	assert.Equal(t, "collector.collect", body.Entries[0].Event)
	assert.Equal(t, float64(12), body.Entries[0].Detail["fills"])
}

func TestParseListOptsClamps(t *testing.T) {
	opts := parseListOpts(httptest.NewRequest(http.MethodGet, "/?limit=10000&offset=-4", nil))
	assert.Equal(t, domain.ListOpts{Limit: 500, Offset: 0}, opts)
}
