package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/whalewatch/internal/domain"
)

func TestAnnotate(t *testing.T) {
	signals := []domain.ConsensusSignal{
		{Asset: "BTC", Direction: domain.SideLong},
		{Asset: "NEWCOIN", Direction: domain.SideShort},
		{Asset: "ETH", Direction: domain.SideShort},
	}
	mc := domain.MarketContext{"BTC": 2.5, "ETH": 0}

	out := Annotate(signals, mc)

	require.Len(t, out, 3)
	require.True(t, out[0].HasChange())
	assert.Equal(t, 2.5, *out[0].Change)
	assert.False(t, out[1].HasChange())
	require.True(t, out[2].HasChange())
	assert.Equal(t, 0.0, *out[2].Change)
	assert.Equal(t, signals[1], out[1].Signal)
}

func TestAnnotate_ChangesAreIndependent(t *testing.T) {
	signals := []domain.ConsensusSignal{{Asset: "BTC"}, {Asset: "ETH"}}
	mc := domain.MarketContext{"BTC": 1, "ETH": 2}

	out := Annotate(signals, mc)
	*out[0].Change = 99

	assert.Equal(t, 2.0, *out[1].Change)
	assert.Equal(t, 1.0, mc["BTC"])
}

func TestAnnotate_NilContext(t *testing.T) {
	out := Annotate([]domain.ConsensusSignal{{Asset: "BTC"}}, nil)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Change)
}

func TestWeightsFromTraders(t *testing.T) {
	traders := []domain.TrackedTrader{
		{Address: "A", PnL: 100},
		{Address: "B", PnL: 0},
		{Address: "C", PnL: -5},
		{Address: "D", PnL: 1.5},
	}

	w := WeightsFromTraders(traders)

	assert.Equal(t, domain.Weights{"A": 100, "D": 1.5}, w)
	assert.Nil(t, WeightsFromTraders([]domain.TrackedTrader{{Address: "B", PnL: -1}}))
	assert.Nil(t, WeightsFromTraders(nil))
}
