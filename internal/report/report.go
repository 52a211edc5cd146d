// Package report renders sentiment tables, CSV exports and signal messages,
// and writes report files to their configured sinks.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/alanyoungcy/whalewatch/internal/analysis"
	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// Base names of the two sentiment reports.
const (
	WeightedSentimentName = "sentiment_weighted_pnl"
	RecentSentimentName   = "sentiment_recent_24h"
)

// CSVHeader is the column layout of sentiment exports.
var CSVHeader = []string{"Asset", "Long Traders", "Short Traders", "Net Value ($)", "Sentiment %"}

var printer = message.NewPrinter(language.English)

// SentimentCSV encodes records with a single header row. Numbers are written
// unformatted so the file stays machine readable.
func SentimentCSV(records []domain.SentimentRecord) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(CSVHeader); err != nil {
		return nil, fmt.Errorf("report: write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.Asset,
			strconv.Itoa(r.LongTraderCount),
			strconv.Itoa(r.ShortTraderCount),
			strconv.FormatFloat(r.NetValue, 'f', 2, 64),
			strconv.FormatFloat(r.SentimentPercent, 'f', 2, 64),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("report: write csv row %s: %w", r.Asset, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("report: flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// SentimentTable renders records as an aligned plain-text table under title.
func SentimentTable(title string, records []domain.SentimentRecord) string {
	var sb strings.Builder
	if title != "" {
		fmt.Fprintf(&sb, "--- %s ---\n", title)
	}

	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(CSVHeader, "\t")+"\t")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t\n",
			r.Asset,
			r.LongTraderCount,
			r.ShortTraderCount,
			Dollars(r.NetValue, 2),
			MoodLabel(r),
		)
	}
	_ = tw.Flush()
	return sb.String()
}

// MoodLabel formats the percentage with its classification, e.g.
// "42.0% bullish".
func MoodLabel(r domain.SentimentRecord) string {
	return fmt.Sprintf("%.1f%% %s", r.SentimentPercent, analysis.Classify(r))
}

// Dollars formats v with thousands separators, e.g. "$12,345.68". Negative
// values render as "-$12.00".
func Dollars(v float64, decimals int) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + "$" + printer.Sprintf(fmt.Sprintf("%%.%df", decimals), v)
}
