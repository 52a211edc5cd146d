package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/dedup"
	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/notify"
	"github.com/alanyoungcy/whalewatch/internal/report"
)

var cycleNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func minutesAgo(m int) int64 {
	return cycleNow.Add(-time.Duration(m) * time.Minute).UnixMilli()
}

// big returns a fill worth 20,000 (above the default consensus threshold).
func big(trader, asset, dir string, ts int64) domain.Fill {
	return domain.Fill{
		Trader: trader, Asset: asset, Price: 20000, Size: 1,
		IsBuy: dir == "Open Long" || dir == "Close Short", Direction: dir, Timestamp: ts,
	}
}

type analysisFixture struct {
	fills      *memFillStore
	traders    *memTraderStore
	signals    *memSignalStore
	audit      *memAudit
	market     *fakeMarket
	cache      *memMarketCache
	bus        *fakeBus
	dispatcher *recordingDispatcher
	sink       *memSink
	console    *bytes.Buffer
}

func newAnalysisFixture() *analysisFixture {
	return &analysisFixture{
		fills: &memFillStore{fills: []domain.Fill{
			big("0xa", "BTC", "Open Long", minutesAgo(2)),
			big("0xb", "BTC", "Open Long", minutesAgo(3)),
			big("0xa", "ETH", "Open Short", minutesAgo(4)),
			big("0xc", "SOL", "Open Long", minutesAgo(1)),    // untracked
			big("0xb", "DOGE", "Open Long", minutesAgo(60)),  // outside window
			big("0xa", "BTC", "Close Long", minutesAgo(1)),   // not an opening
			big("0xb", "ETH", "Open Long", minutesAgo(2000)), // older than a day
		}},
		traders: &memTraderStore{traders: []domain.TrackedTrader{
			trader("0xa", 300), trader("0xb", 100),
		}},
		signals:    &memSignalStore{},
		audit:      &memAudit{},
		market:     &fakeMarket{mc: domain.MarketContext{"BTC": 2.5}},
		cache:      &memMarketCache{},
		bus:        &fakeBus{},
		dispatcher: &recordingDispatcher{},
		sink:       &memSink{},
		console:    &bytes.Buffer{},
	}
}

func (f *analysisFixture) service(cfg AnalysisConfig) *AnalysisService {
	return NewAnalysisService(cfg, AnalysisDeps{
		Fills:       f.fills,
		Traders:     f.traders,
		Signals:     f.signals,
		Audit:       f.audit,
		Market:      f.market,
		MarketCache: f.cache,
		Bus:         f.bus,
		Dispatcher:  f.dispatcher,
		Sinks:       []report.Sink{f.sink},
		Console:     f.console,
	}, discardLogger())
}

func TestConsensusRanksAndAnnotates(t *testing.T) {
	f := newAnalysisFixture()
	svc := f.service(AnalysisConfig{MinTradeValue: 10000})

	got, err := svc.Consensus(context.Background(), cycleNow)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "BTC", got[0].Signal.Asset)
	assert.Equal(t, domain.SideLong, got[0].Signal.Direction)
	assert.Equal(t, 2, got[0].Signal.TraderCount)
	assert.Equal(t, 400.0, got[0].Signal.PnLBacking)
	assert.Equal(t, 40000.0, got[0].Signal.TotalValue)
	require.NotNil(t, got[0].Change)
	assert.Equal(t, 2.5, *got[0].Change)

	assert.Equal(t, "ETH", got[1].Signal.Asset)
	assert.Equal(t, domain.SideShort, got[1].Signal.Direction)
	assert.Nil(t, got[1].Change)

	assert.Equal(t, 1, f.signals.saves)
	assert.Equal(t, cycleNow, f.signals.at)
	require.Len(t, f.bus.published, 1)
	require.Len(t, f.bus.streamed, 1)

	var evt map[string]any
	require.NoError(t, json.Unmarshal(f.bus.published[0], &evt))
	assert.Equal(t, "consensus", evt["event"])
}

func TestConsensusWithoutWeights(t *testing.T) {
	f := newAnalysisFixture()
	f.traders.traders = []domain.TrackedTrader{trader("0xa", -10)}
	svc := f.service(AnalysisConfig{})

	got, err := svc.Consensus(context.Background(), cycleNow)
	require.ErrorIs(t, err, domain.ErrNoWeights)
	assert.Empty(t, got)
	assert.Zero(t, f.signals.saves)
}

func TestConsensusBelowThresholdRecordsNothing(t *testing.T) {
	f := newAnalysisFixture()
	svc := f.service(AnalysisConfig{MinTradeValue: 50000})

	got, err := svc.Consensus(context.Background(), cycleNow)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, f.signals.saves)
	assert.Empty(t, f.bus.published)
	assert.Zero(t, f.market.calls)
}

func TestMarketContextReadsThroughCache(t *testing.T) {
	f := newAnalysisFixture()
	svc := f.service(AnalysisConfig{MarketCtxTTL: 30 * time.Second})

	_, err := svc.Consensus(context.Background(), cycleNow)
	require.NoError(t, err)
	_, err = svc.Consensus(context.Background(), cycleNow)
	require.NoError(t, err)

	assert.Equal(t, 1, f.market.calls)
	assert.Equal(t, 1, f.cache.sets)
	assert.Equal(t, 30*time.Second, f.cache.ttl)
}

func TestMarketContextFailureDegradesToNA(t *testing.T) {
	f := newAnalysisFixture()
	f.market.err = errors.New("exchange down")
	svc := f.service(AnalysisConfig{})

	got, err := svc.Consensus(context.Background(), cycleNow)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, a := range got {
		assert.False(t, a.HasChange())
	}
}

func TestNewTradesNewestFirst(t *testing.T) {
	f := newAnalysisFixture()
	svc := f.service(AnalysisConfig{})

	got, err := svc.NewTrades(context.Background(), cycleNow)
	require.NoError(t, err)

	require.Len(t, got, 4)
	assert.Equal(t, "SOL", got[0].Asset)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Timestamp, got[i].Timestamp)
	}
}

func TestWeightedSentiment(t *testing.T) {
	f := newAnalysisFixture()
	svc := f.service(AnalysisConfig{})

	got, err := svc.WeightedSentiment(context.Background())
	require.NoError(t, err)

	byAsset := map[string]domain.SentimentRecord{}
	for _, r := range got {
		byAsset[r.Asset] = r
	}
	// 0xa opened and closed 1 BTC long, so only 0xb is left long BTC.
	btc := byAsset["BTC"]
	assert.Equal(t, 1, btc.LongTraderCount)
	assert.Equal(t, 0, btc.ShortTraderCount)
	assert.Equal(t, 100.0, btc.SentimentPercent)

	// ETH: 0xa short with weight 300, 0xb long with weight 100.
	eth := byAsset["ETH"]
	assert.Equal(t, 1, eth.LongTraderCount)
	assert.Equal(t, 1, eth.ShortTraderCount)
	assert.InDelta(t, -50.0, eth.SentimentPercent, 1e-9)

	// SOL is held by an untracked trader, who votes with weight 1.
	assert.Equal(t, 100.0, byAsset["SOL"].SentimentPercent)
}

func TestRecentSentimentUsesWindow(t *testing.T) {
	f := newAnalysisFixture()
	svc := f.service(AnalysisConfig{RecentWindow: 30 * time.Minute})

	got, err := svc.RecentSentiment(context.Background(), cycleNow)
	require.NoError(t, err)

	assets := map[string]bool{}
	for _, r := range got {
		assets[r.Asset] = true
	}
	assert.True(t, assets["SOL"])
	assert.True(t, assets["ETH"])
	assert.False(t, assets["DOGE"], "opened an hour ago")
}

func TestRunCycle(t *testing.T) {
	f := newAnalysisFixture()
	lock := &fakeLocker{}
	svc := NewAnalysisService(AnalysisConfig{TrackNewTrades: true}, AnalysisDeps{
		Fills:      f.fills,
		Traders:    f.traders,
		Signals:    f.signals,
		Audit:      f.audit,
		Market:     f.market,
		Locker:     lock,
		Dispatcher: f.dispatcher,
		Sinks:      []report.Sink{f.sink},
		Console:    f.console,
	}, discardLogger())

	res, err := svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)

	assert.Len(t, res.Consensus, 2)
	assert.Len(t, res.NewTrades, 4)
	assert.NotEmpty(t, res.Weighted)
	assert.NotEmpty(t, res.Recent)
	assert.False(t, res.NoWeights)
	assert.Equal(t, 6, res.Notified)
	assert.ElementsMatch(t, []string{
		"mem://" + report.WeightedSentimentName,
		"mem://" + report.RecentSentimentName,
	}, res.Reports)

	consensus := f.dispatcher.byEvent(notify.EventConsensus)
	require.Len(t, consensus, 2)
	assert.Contains(t, consensus[0].Body, "BTC")
	assert.Len(t, f.dispatcher.byEvent(notify.EventNewTrade), 4)
	assert.Empty(t, f.dispatcher.byEvent(notify.EventError))

	csv := string(f.sink.stored[report.WeightedSentimentName])
	assert.Contains(t, csv, report.CSVHeader[0])
	assert.Contains(t, f.console.String(), "PnL-Weighted Sentiment")
	assert.Equal(t, []string{"analysis.cycle"}, f.audit.events())
	assert.Equal(t, 1, lock.released)
}

func TestRunCycleWithoutWeightsStillReportsRecent(t *testing.T) {
	f := newAnalysisFixture()
	f.traders.traders = nil
	svc := f.service(AnalysisConfig{})

	res, err := svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)

	assert.True(t, res.NoWeights)
	assert.Empty(t, res.Consensus)
	assert.Empty(t, res.Weighted)
	assert.NotEmpty(t, res.Recent)
	assert.NotContains(t, f.sink.stored, report.WeightedSentimentName)
	assert.Contains(t, f.sink.stored, report.RecentSentimentName)
}

func TestRunCycleReportsFailures(t *testing.T) {
	f := newAnalysisFixture()
	f.fills.listErr = errors.New("db gone")
	svc := f.service(AnalysisConfig{})

	_, err := svc.RunCycle(context.Background(), cycleNow)
	require.Error(t, err)

	errs := f.dispatcher.byEvent(notify.EventError)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Body, "db gone")
	require.Len(t, f.audit.entries, 1)
	assert.Contains(t, f.audit.entries[0].Detail, "error")
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	f := newAnalysisFixture()
	svc := NewAnalysisService(AnalysisConfig{}, AnalysisDeps{
		Fills: f.fills, Traders: f.traders, Signals: f.signals, Locker: &fakeLocker{held: true},
	}, discardLogger())

	res, err := svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Zero(t, f.signals.saves)
}

func TestReadPaths(t *testing.T) {
	f := newAnalysisFixture()
	svc := f.service(AnalysisConfig{})
	ctx := context.Background()

	positions, err := svc.Positions(ctx, "0xb")
	require.NoError(t, err)
	for _, p := range positions {
		assert.Equal(t, "0xb", p.Trader)
	}
	assert.Len(t, positions, 3)

	_, _, err = svc.LatestConsensus(ctx)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.Consensus(ctx, cycleNow)
	require.NoError(t, err)
	at, latest, err := svc.LatestConsensus(ctx)
	require.NoError(t, err)
	assert.Equal(t, cycleNow, at)
	assert.Len(t, latest, 2)

	unweighted, err := svc.Sentiment(ctx, cycleNow, false, 0)
	require.NoError(t, err)
	weighted, err := svc.Sentiment(ctx, cycleNow, true, 0)
	require.NoError(t, err)
	assert.Equal(t, len(unweighted), len(weighted))

	f.traders.traders = nil
	_, err = svc.Sentiment(ctx, cycleNow, true, time.Hour)
	require.ErrorIs(t, err, domain.ErrNoWeights)
}

func TestRunCycleDoesNotRepeatNotifications(t *testing.T) {
	f := newAnalysisFixture()
	svc := NewAnalysisService(AnalysisConfig{TrackNewTrades: true}, AnalysisDeps{
		Fills:      f.fills,
		Traders:    f.traders,
		Signals:    f.signals,
		Market:     f.market,
		Dispatcher: f.dispatcher,
		Dedup:      dedup.NewMemory(),
		Sinks:      []report.Sink{f.sink},
	}, discardLogger())

	first, err := svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)
	assert.Equal(t, 6, first.Notified)

	second, err := svc.RunCycle(context.Background(), cycleNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, second.Notified)
	assert.Len(t, second.Consensus, 2, "signals are still detected and recorded")

	f.fills.fills = append(f.fills.fills, big("0xb", "ETH", "Open Short", minutesAgo(0)))
	third, err := svc.RunCycle(context.Background(), cycleNow.Add(2*time.Minute))
	require.NoError(t, err)
	// ETH Short gained a trader and the fill itself is new.
	assert.Equal(t, 2, third.Notified)
}

func TestRunCycleRetriesUndeliveredNotifications(t *testing.T) {
	f := newAnalysisFixture()
	svc := NewAnalysisService(AnalysisConfig{}, AnalysisDeps{
		Fills:      f.fills,
		Traders:    f.traders,
		Signals:    f.signals,
		Market:     f.market,
		Dispatcher: f.dispatcher,
		Dedup:      dedup.NewMemory(),
		Sinks:      []report.Sink{f.sink},
	}, discardLogger())

	f.dispatcher.err = errors.New("telegram: unexpected status 502")
	first, err := svc.RunCycle(context.Background(), cycleNow)
	require.NoError(t, err)
	require.Len(t, first.Consensus, 2)
	assert.Zero(t, first.Notified)

	f.dispatcher.err = nil
	second, err := svc.RunCycle(context.Background(), cycleNow.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Notified, "signals that failed to send are sent by the next cycle")

	third, err := svc.RunCycle(context.Background(), cycleNow.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, third.Notified)
}
