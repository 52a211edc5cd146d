package hyperliquid

import (
	"encoding/json"
	"fmt"
)

// infoRequest is the body of every POST to the /info endpoint.
type infoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
}

// apiFill is one element of a userFills response. Numeric fields arrive as
// decimal strings.
type apiFill struct {
	Coin          string `json:"coin"`
	Px            string `json:"px"`
	Sz            string `json:"sz"`
	Side          string `json:"side"`
	Time          int64  `json:"time"`
	StartPosition string `json:"startPosition"`
	Dir           string `json:"dir"`
	ClosedPnl     string `json:"closedPnl"`
	Hash          string `json:"hash"`
	Oid           int64  `json:"oid"`
	Crossed       bool   `json:"crossed"`
	Fee           string `json:"fee"`
}

type apiMeta struct {
	Universe []struct {
		Name       string `json:"name"`
		SzDecimals int    `json:"szDecimals"`
	} `json:"universe"`
}

type apiAssetCtx struct {
	MarkPx    string `json:"markPx"`
	PrevDayPx string `json:"prevDayPx"`
	DayNtlVlm string `json:"dayNtlVlm"`
	Funding   string `json:"funding"`
}

type leaderboardResponse struct {
	LeaderboardRows []leaderboardRow `json:"leaderboardRows"`
}

type leaderboardRow struct {
	EthAddress         string              `json:"ethAddress"`
	AccountValue       string              `json:"accountValue"`
	DisplayName        *string             `json:"displayName"`
	WindowPerformances []windowPerformance `json:"windowPerformances"`
}

// windowPerformance is encoded as a two-element array: ["allTime", {...}].
type windowPerformance struct {
	Window string
	PnL    string
	ROI    string
	Volume string
}

func (w *windowPerformance) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("window performance: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &w.Window); err != nil {
		return fmt.Errorf("window performance: name: %w", err)
	}
	var perf struct {
		PnL json.Number `json:"pnl"`
		ROI json.Number `json:"roi"`
		Vlm json.Number `json:"vlm"`
	}
	if err := json.Unmarshal(pair[1], &perf); err != nil {
		return fmt.Errorf("window performance %s: %w", w.Window, err)
	}
	w.PnL = perf.PnL.String()
	w.ROI = perf.ROI.String()
	w.Volume = perf.Vlm.String()
	return nil
}
