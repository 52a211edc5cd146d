package handler

import (
	"time"

	"github.com/alanyoungcy/whalewatch/internal/analysis"
	"github.com/alanyoungcy/whalewatch/internal/domain"
)

type positionDTO struct {
	Trader    string  `json:"trader"`
	Asset     string  `json:"asset"`
	Side      string  `json:"side"`
	NetVolume float64 `json:"net_volume"`
	AvgPrice  float64 `json:"avg_price"`
	Value     float64 `json:"value"`
}

func toPositionDTOs(in []domain.Position) []positionDTO {
	out := make([]positionDTO, len(in))
	for i, p := range in {
		out[i] = positionDTO{
			Trader:    p.Trader,
			Asset:     p.Asset,
			Side:      string(p.Side),
			NetVolume: p.NetVolume,
			AvgPrice:  p.AvgPrice,
			Value:     p.Value,
		}
	}
	return out
}

type sentimentDTO struct {
	Asset            string  `json:"asset"`
	LongTraders      int     `json:"long_traders"`
	ShortTraders     int     `json:"short_traders"`
	NetValue         float64 `json:"net_value"`
	SentimentPercent float64 `json:"sentiment_percent"`
	Mood             string  `json:"mood"`
}

func toSentimentDTOs(in []domain.SentimentRecord) []sentimentDTO {
	out := make([]sentimentDTO, len(in))
	for i, r := range in {
		out[i] = sentimentDTO{
			Asset:            r.Asset,
			LongTraders:      r.LongTraderCount,
			ShortTraders:     r.ShortTraderCount,
			NetValue:         r.NetValue,
			SentimentPercent: r.SentimentPercent,
			Mood:             string(analysis.Classify(r)),
		}
	}
	return out
}

type signalDTO struct {
	Rank        int      `json:"rank"`
	Asset       string   `json:"asset"`
	Direction   string   `json:"direction"`
	TraderCount int      `json:"trader_count"`
	PnLBacking  float64  `json:"pnl_backing"`
	TotalValue  float64  `json:"total_value"`
	Change24h   *float64 `json:"change_24h"`
}

func toSignalDTOs(in []domain.AnnotatedSignal) []signalDTO {
	out := make([]signalDTO, len(in))
	for i, a := range in {
		out[i] = signalDTO{
			Rank:        i + 1,
			Asset:       a.Signal.Asset,
			Direction:   string(a.Signal.Direction),
			TraderCount: a.Signal.TraderCount,
			PnLBacking:  a.Signal.PnLBacking,
			TotalValue:  a.Signal.TotalValue,
			Change24h:   a.Change,
		}
	}
	return out
}

type auditDTO struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

func toAuditDTOs(in []domain.AuditEntry) []auditDTO {
	out := make([]auditDTO, len(in))
	for i, e := range in {
		out[i] = auditDTO{ID: e.ID, Event: e.Event, Detail: e.Detail, CreatedAt: e.CreatedAt}
	}
	return out
}
