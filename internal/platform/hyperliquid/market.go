package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

// MarketContext returns the 24h percent price change of every perp asset,
// computed from the mark price against the previous day's price. Assets with
// no usable previous price are left out.
func (c *Client) MarketContext(ctx context.Context) (domain.MarketContext, error) {
	var raw []json.RawMessage
	if err := c.postInfo(ctx, infoRequest{Type: "metaAndAssetCtxs"}, &raw); err != nil {
		return nil, fmt.Errorf("hyperliquid: market context: %w", err)
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("hyperliquid: market context: expected 2 elements, got %d", len(raw))
	}

	var meta apiMeta
	if err := json.Unmarshal(raw[0], &meta); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode meta: %w", err)
	}
	var ctxs []apiAssetCtx
	if err := json.Unmarshal(raw[1], &ctxs); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode asset contexts: %w", err)
	}

	hundred := decimal.NewFromInt(100)
	mc := make(domain.MarketContext, len(meta.Universe))
	for i, asset := range meta.Universe {
		if i >= len(ctxs) {
			break
		}
		mark, err := decimal.NewFromString(ctxs[i].MarkPx)
		if err != nil {
			continue
		}
		prev, err := decimal.NewFromString(ctxs[i].PrevDayPx)
		if err != nil || !prev.IsPositive() {
			continue
		}
		change := mark.Sub(prev).Div(prev).Mul(hundred)
		mc[asset.Name] = change.InexactFloat64()
	}
	return mc, nil
}
