package data

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nautilus-go/kernel/internal/bus"
	"github.com/nautilus-go/kernel/internal/value"
)

func TestEngineRepublishesQuoteTick(t *testing.T) {
	b := bus.New(slog.Default())
	e := New(b, slog.Default())

	instId := value.NewInstrumentId("AUD/USD", "SIM")
	received := make(chan QuoteTick, 1)
	b.Subscribe(bus.TopicDataQuotes(instId), 0, func(topic string, payload any) {
		received <- payload.(QuoteTick)
	})

	q := QuoteTick{
		InstrumentId: instId,
		BidPrice:     mustPrice(t, "0.6500"),
		AskPrice:     mustPrice(t, "0.6502"),
		TsEventNs:    1,
	}
	e.ProcessQuoteTick(q)

	select {
	case got := <-received:
		assert.Equal(t, q.InstrumentId, got.InstrumentId)
	default:
		t.Fatal("expected quote tick to be republished synchronously")
	}
}

func TestEngineEmitsDerivedBarOnAggregatorClose(t *testing.T) {
	b := bus.New(slog.Default())
	e := New(b, slog.Default())

	instId := value.NewInstrumentId("AUD/USD", "SIM")
	barType := BarType("AUD/USD.SIM-2-TICK-LAST")
	e.RegisterBarAggregator(instId, barType, NewTickCountBarAggregator(barType, instId, 2))

	var bars []Bar
	b.Subscribe(bus.TopicDataBars(string(barType)), 0, func(topic string, payload any) {
		bars = append(bars, payload.(Bar))
	})

	e.ProcessTradeTick(tradeTick(t, "100.00", "1", 0))
	assert.Empty(t, bars)

	e.ProcessTradeTick(tradeTick(t, "101.00", "1", 1))
	require.Len(t, bars, 1)
	assert.Equal(t, "101.00", bars[0].Close.String())
}
