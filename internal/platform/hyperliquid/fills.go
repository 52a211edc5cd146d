package hyperliquid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalewatch/internal/domain"
	"github.com/alanyoungcy/whalewatch/internal/metrics"
)

// ErrInvalidAddress is returned for trader addresses that are not 20-byte hex.
var ErrInvalidAddress = errors.New("hyperliquid: invalid address")

// NormalizeAddress validates a hex address and returns its lower-case form.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// UserFills returns the fill history of one trader. Fills that fail boundary
// validation are dropped, counted and logged; they never reach the caller.
func (c *Client) UserFills(ctx context.Context, address string) ([]domain.Fill, error) {
	trader, err := NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	var raw []apiFill
	if err := c.postInfo(ctx, infoRequest{Type: "userFills", User: trader}, &raw); err != nil {
		return nil, fmt.Errorf("hyperliquid: user fills %s: %w", trader, err)
	}

	fills := make([]domain.Fill, 0, len(raw))
	for _, rf := range raw {
		f, reason, err := convertFill(trader, rf)
		if err != nil {
			metrics.FillsRejected.WithLabelValues(reason).Inc()
			c.logger.WarnContext(ctx, "dropping fill",
				slog.String("trader", trader),
				slog.String("hash", rf.Hash),
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
			continue
		}
		fills = append(fills, f)
	}
	return fills, nil
}

// convertFill maps one API fill to the domain type. On failure it returns a
// short reason label alongside the error.
func convertFill(trader string, rf apiFill) (domain.Fill, string, error) {
	if rf.Coin == "" {
		return domain.Fill{}, "missing_asset", fmt.Errorf("%w: empty asset", domain.ErrInvalidFill)
	}
	px, err := decimal.NewFromString(rf.Px)
	if err != nil {
		return domain.Fill{}, "bad_price", fmt.Errorf("%w: price %q: %v", domain.ErrInvalidFill, rf.Px, err)
	}
	if !px.IsPositive() {
		return domain.Fill{}, "bad_price", fmt.Errorf("%w: price %s not positive", domain.ErrInvalidFill, px)
	}
	sz, err := decimal.NewFromString(rf.Sz)
	if err != nil {
		return domain.Fill{}, "bad_size", fmt.Errorf("%w: size %q: %v", domain.ErrInvalidFill, rf.Sz, err)
	}
	if !sz.IsPositive() {
		return domain.Fill{}, "bad_size", fmt.Errorf("%w: size %s not positive", domain.ErrInvalidFill, sz)
	}

	var pnl *float64
	if rf.ClosedPnl != "" {
		d, err := decimal.NewFromString(rf.ClosedPnl)
		if err != nil {
			return domain.Fill{}, "bad_pnl", fmt.Errorf("%w: closedPnl %q: %v", domain.ErrInvalidFill, rf.ClosedPnl, err)
		}
		v := d.InexactFloat64()
		pnl = &v
	}

	return domain.Fill{
		Trader:    trader,
		Asset:     rf.Coin,
		Price:     px.InexactFloat64(),
		Size:      sz.InexactFloat64(),
		IsBuy:     isBuy(rf.Dir, rf.Side),
		Direction: rf.Dir,
		PnL:       pnl,
		Timestamp: rf.Time,
		Hash:      rf.Hash,
		OrderID:   rf.Oid,
	}, "", nil
}

// isBuy derives the fill side from the direction label. Labels that carry no
// perp direction (spot "Buy"/"Sell") fall back to the API side code.
func isBuy(dir, side string) bool {
	switch {
	case strings.Contains(dir, "Open Long"), strings.Contains(dir, "Close Short"):
		return true
	case strings.Contains(dir, "Open Short"), strings.Contains(dir, "Close Long"):
		return false
	default:
		return side == "B"
	}
}
