package data

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/value"
)

func mustPrice(t *testing.T, s string) value.Price {
	t.Helper()
	p, err := value.NewPriceFromString(s, 2)
	require.NoError(t, err)
	return p
}

func mustQty(t *testing.T, s string) value.Quantity {
	t.Helper()
	q, err := value.NewQuantityFromString(s, 0)
	require.NoError(t, err)
	return q
}

func tradeTick(t *testing.T, px, sz string, tsNs int64) TradeTick {
	return TradeTick{
		InstrumentId: value.NewInstrumentId("AUD/USD", "SIM"),
		Price:        mustPrice(t, px),
		Size:         mustQty(t, sz),
		TsEventNs:    tsNs,
	}
}

func TestTimeBarAggregatorClosesOnNewWindow(t *testing.T) {
	instId := value.NewInstrumentId("AUD/USD", "SIM")
	agg := NewTimeBarAggregator("AUD/USD.SIM-1-SECOND-LAST", instId, 1_000_000_000, DropLateTicks)

	_, closed := agg.OnTradeTick(tradeTick(t, "100.00", "1", 0))
	assert.False(t, closed)

	_, closed = agg.OnTradeTick(tradeTick(t, "101.00", "1", 500_000_000))
	assert.False(t, closed)

	bar, closed := agg.OnTradeTick(tradeTick(t, "99.00", "1", 1_000_000_001))
	require.True(t, closed)
	assert.Equal(t, "100.00", bar.Open.String())
	assert.Equal(t, "101.00", bar.High.String())
	assert.Equal(t, "100.00", bar.Low.String())
	assert.Equal(t, "101.00", bar.Close.String())
}

func TestTimeBarAggregatorDropsLateTick(t *testing.T) {
	instId := value.NewInstrumentId("AUD/USD", "SIM")
	agg := NewTimeBarAggregator("AUD/USD.SIM-1-SECOND-LAST", instId, 1_000_000_000, DropLateTicks)

	agg.OnTradeTick(tradeTick(t, "100.00", "1", 1_000_000_000))
	_, closed := agg.OnTradeTick(tradeTick(t, "102.00", "1", 1_500_000_000))
	require.False(t, closed)

	// late tick, before the current window's start, dropped silently
	bar, closed := agg.OnTradeTick(tradeTick(t, "999.00", "1", 500_000_000))
	assert.False(t, closed)
	assert.Equal(t, Bar{}, bar)
}

func TestTickCountBarAggregatorClosesAtN(t *testing.T) {
	instId := value.NewInstrumentId("AUD/USD", "SIM")
	agg := NewTickCountBarAggregator("AUD/USD.SIM-3-TICK-LAST", instId, 3)

	_, closed := agg.OnTradeTick(tradeTick(t, "100.00", "1", 0))
	assert.False(t, closed)
	_, closed = agg.OnTradeTick(tradeTick(t, "101.00", "1", 1))
	assert.False(t, closed)
	bar, closed := agg.OnTradeTick(tradeTick(t, "99.00", "1", 2))
	require.True(t, closed)
	assert.Equal(t, "99.00", bar.Close.String())
}

func TestVolumeBarAggregatorClosesAtThreshold(t *testing.T) {
	instId := value.NewInstrumentId("AUD/USD", "SIM")
	threshold := mustQty(t, "10")
	agg := NewVolumeBarAggregator("AUD/USD.SIM-10-VOLUME-LAST", instId, threshold)

	_, closed := agg.OnTradeTick(tradeTick(t, "100.00", "4", 0))
	assert.False(t, closed)
	_, closed = agg.OnTradeTick(tradeTick(t, "100.50", "5", 1))
	assert.False(t, closed)
	bar, closed := agg.OnTradeTick(tradeTick(t, "101.00", "2", 2))
	require.True(t, closed)
	assert.Equal(t, "11", bar.Volume.String())
}

func TestValueBarAggregatorClosesAtNotionalThreshold(t *testing.T) {
	instId := value.NewInstrumentId("AUD/USD", "SIM")
	agg := NewValueBarAggregator("AUD/USD.SIM-1000-VALUE-LAST", instId, 1000)

	_, closed := agg.OnTradeTick(tradeTick(t, "100.00", "5", 0)) // 500
	assert.False(t, closed)
	bar, closed := agg.OnTradeTick(tradeTick(t, "100.00", "6", 1)) // +600 = 1100
	require.True(t, closed)
	assert.Equal(t, "100.00", bar.Close.String())
}
