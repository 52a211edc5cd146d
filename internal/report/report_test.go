package report

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

var sampleRecords = []domain.SentimentRecord{
	{Asset: "BTC", NetValue: 150, SentimentPercent: 100, LongTraderCount: 2},
	{Asset: "ETH", NetValue: -30, SentimentPercent: -100, ShortTraderCount: 1},
	{Asset: "SOL", NetValue: 0, SentimentPercent: 10, LongTraderCount: 1, ShortTraderCount: 1},
}

func TestSentimentCSV(t *testing.T) {
	data, err := SentimentCSV(sampleRecords)
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{"BTC", "2", "0", "150.00", "100.00"}, rows[1])
	assert.Equal(t, []string{"ETH", "0", "1", "-30.00", "-100.00"}, rows[2])
}

func TestSentimentCSV_Empty(t *testing.T) {
	data, err := SentimentCSV(nil)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(CSVHeader, ",")+"\n", string(data))
}

func TestSentimentTable(t *testing.T) {
	out := SentimentTable("Weighted", sampleRecords)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "--- Weighted ---", lines[0])
	assert.Contains(t, lines[1], "Sentiment %")
	assert.Contains(t, lines[2], "100.0% bullish")
	assert.Contains(t, lines[3], "-100.0% bearish")
	assert.Contains(t, lines[3], "-$30.00")
	assert.Contains(t, lines[4], "10.0% neutral")
}

func TestDollars(t *testing.T) {
	assert.Equal(t, "$12,345.68", Dollars(12345.678, 2))
	assert.Equal(t, "$120,000", Dollars(120000, 0))
	assert.Equal(t, "-$5.50", Dollars(-5.5, 2))
	assert.Equal(t, "$0.00", Dollars(0, 2))
}

func TestChangeLabel(t *testing.T) {
	up, down := 2.5, -1.234
	assert.Equal(t, "+2.50%", ChangeLabel(&up))
	assert.Equal(t, "-1.23%", ChangeLabel(&down))
	assert.Equal(t, "N/A", ChangeLabel(nil))
}

func TestConsensusMessage(t *testing.T) {
	change := 3.0
	msg := ConsensusMessage(domain.AnnotatedSignal{
		Signal: domain.ConsensusSignal{
			Asset: "BTC", Direction: domain.SideLong, TraderCount: 3,
			PnLBacking: 2500000, TotalValue: 120000,
		},
		Change: &change,
	})

	assert.Contains(t, msg.Title, "Consensus Signal")
	assert.Contains(t, msg.Body, "🟢 *Long* on *BTC*")
	assert.Contains(t, msg.Body, "*Trader Count:* `3`")
	assert.Contains(t, msg.Body, "*Total Value:* `$120,000`")
	assert.Contains(t, msg.Body, "*Smart Money:* `$2,500,000 (PNL)`")
	assert.Contains(t, msg.Body, "*24h Change:* `+3.00%`")
}

func TestConsensusMessage_NoChange(t *testing.T) {
	msg := ConsensusMessage(domain.AnnotatedSignal{
		Signal: domain.ConsensusSignal{Asset: "NEW", Direction: domain.SideShort},
	})
	assert.Contains(t, msg.Body, "🔴 *Short* on *NEW*")
	assert.Contains(t, msg.Body, "`N/A`")
}

func TestNewTradeMessage(t *testing.T) {
	ts := time.Date(2025, 1, 2, 13, 45, 0, 0, time.UTC).UnixMilli()
	msg := NewTradeMessage(domain.Fill{
		Trader: "0xabc", Asset: "ETH", Price: 2000, Size: 7.5,
		Direction: "Open Short", Timestamp: ts,
	})

	assert.Equal(t, "🔴 New Trade Signal 🔴", msg.Title)
	assert.Contains(t, msg.Body, "*Asset:* `ETH`")
	assert.Contains(t, msg.Body, "*Direction:* `Open Short`")
	assert.Contains(t, msg.Body, "*Price:* `$2,000.00`")
	assert.Contains(t, msg.Body, "*Value:* `$15,000.00`")
	assert.Contains(t, msg.Body, "*Time:* `13:45 (UTC)`")
	assert.Contains(t, msg.Body, "*Source:* `0xabc`")
}

func TestErrorMessage(t *testing.T) {
	msg := ErrorMessage("Analysis cycle failed", errors.New("list *fills: `pq` timeout"))

	assert.Equal(t, "Analysis cycle failed", msg.Title)
	assert.Equal(t, "```\nlist *fills: 'pq' timeout\n```", msg.Body)
}

func TestMessagesKeepOrder(t *testing.T) {
	signals := []domain.AnnotatedSignal{
		{Signal: domain.ConsensusSignal{Asset: "A"}},
		{Signal: domain.ConsensusSignal{Asset: "B"}},
	}
	msgs := ConsensusMessages(signals)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Body, "*A*")
	assert.Contains(t, msgs[1].Body, "*B*")
}

func TestFileName(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "sentiment_recent_24h_2025-03-04_05-06.csv", FileName(RecentSentimentName, at))
}

func TestDirSink(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")
	sink := NewDirSink(dir)
	at := time.Date(2025, 3, 4, 5, 6, 0, 0, time.UTC)

	path, err := sink.Store(context.Background(), "x", at, []byte("a,b\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x_2025-03-04_05-06.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n", string(data))
}

type failingSink struct{}

func (failingSink) Store(context.Context, string, time.Time, []byte) (string, error) {
	return "", errors.New("disk full")
}

func TestPublish_ContinuesPastFailures(t *testing.T) {
	dir := t.TempDir()
	sinks := []Sink{failingSink{}, NewDirSink(dir)}

	locs, err := Publish(context.Background(), sinks, "r", time.Now(), []byte("x"))

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.Len(t, locs, 1)
	assert.FileExists(t, locs[0])
}
