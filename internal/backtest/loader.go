package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/nautilus-go/kernel/internal/data"
	"github.com/nautilus-go/kernel/internal/value"
)

// LoadQuoteTicksCSV reads a CSV file with columns
// ts_event_ns,bid_price,ask_price,bid_size,ask_size into a slice of
// QuoteTick in file row order (rows are not sorted), mirroring the original's CSV-backed TestDataProvider fixtures.
func LoadQuoteTicksCSV(path string, instId value.InstrumentId, pricePrecision, sizePrecision uint8) ([]data.QuoteTick, error) {
	rows, err := readCSVBody(path)
	if err != nil {
		return nil, err
	}

	ticks := make([]data.QuoteTick, 0, len(rows))
	for i, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("%s: row %d: expected at least 3 columns, got %d", path, i, len(row))
		}
		tsEventNs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: ts_event_ns: %w", path, i, err)
		}
		bidPx, err := value.NewPriceFromString(row[1], pricePrecision)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: bid_price: %w", path, i, err)
		}
		askPx, err := value.NewPriceFromString(row[2], pricePrecision)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: ask_price: %w", path, i, err)
		}

		tick := data.QuoteTick{
			InstrumentId: instId,
			BidPrice:     bidPx,
			AskPrice:     askPx,
			TsEventNs:    tsEventNs,
			TsInitNs:     tsEventNs,
		}
		if len(row) >= 5 {
			if tick.BidSize, err = value.NewQuantityFromString(row[3], sizePrecision); err != nil {
				return nil, fmt.Errorf("%s: row %d: bid_size: %w", path, i, err)
			}
			if tick.AskSize, err = value.NewQuantityFromString(row[4], sizePrecision); err != nil {
				return nil, fmt.Errorf("%s: row %d: ask_size: %w", path, i, err)
			}
		}
		ticks = append(ticks, tick)
	}
	return ticks, nil
}

// LoadTradeTicksCSV reads ts_event_ns,price,size,aggressor_side.
func LoadTradeTicksCSV(path string, instId value.InstrumentId, pricePrecision, sizePrecision uint8) ([]data.TradeTick, error) {
	rows, err := readCSVBody(path)
	if err != nil {
		return nil, err
	}

	ticks := make([]data.TradeTick, 0, len(rows))
	for i, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("%s: row %d: expected at least 3 columns, got %d", path, i, len(row))
		}
		tsEventNs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: ts_event_ns: %w", path, i, err)
		}
		px, err := value.NewPriceFromString(row[1], pricePrecision)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: price: %w", path, i, err)
		}
		size, err := value.NewQuantityFromString(row[2], sizePrecision)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: size: %w", path, i, err)
		}

		side := value.Buy
		if len(row) >= 4 && row[3] == "SELL" {
			side = value.Sell
		}
		ticks = append(ticks, data.TradeTick{
			InstrumentId:   instId,
			Price:          px,
			Size:           size,
			AggressorSide:  side,
			TsEventNs:      tsEventNs,
			TsInitNs:       tsEventNs,
		})
	}
	return ticks, nil
}

// LoadBarsCSV reads ts_event_ns,open,high,low,close,volume for the given
// barType (e.g. "AUD/USD.SIM-1-MINUTE-MID").
func LoadBarsCSV(path, barType string, instId value.InstrumentId, pricePrecision, sizePrecision uint8) ([]data.Bar, error) {
	rows, err := readCSVBody(path)
	if err != nil {
		return nil, err
	}

	bars := make([]data.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("%s: row %d: expected at least 6 columns, got %d", path, i, len(row))
		}
		tsEventNs, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: ts_event_ns: %w", path, i, err)
		}
		var bar data.Bar
		bar.BarType = data.BarType(barType)
		bar.InstrumentId = instId
		bar.TsEventNs = tsEventNs
		bar.TsInitNs = tsEventNs
		if bar.Open, err = value.NewPriceFromString(row[1], pricePrecision); err != nil {
			return nil, fmt.Errorf("%s: row %d: open: %w", path, i, err)
		}
		if bar.High, err = value.NewPriceFromString(row[2], pricePrecision); err != nil {
			return nil, fmt.Errorf("%s: row %d: high: %w", path, i, err)
		}
		if bar.Low, err = value.NewPriceFromString(row[3], pricePrecision); err != nil {
			return nil, fmt.Errorf("%s: row %d: low: %w", path, i, err)
		}
		if bar.Close, err = value.NewPriceFromString(row[4], pricePrecision); err != nil {
			return nil, fmt.Errorf("%s: row %d: close: %w", path, i, err)
		}
		if bar.Volume, err = value.NewQuantityFromString(row[5], sizePrecision); err != nil {
			return nil, fmt.Errorf("%s: row %d: volume: %w", path, i, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// readCSVBody opens path and returns its rows with the header line dropped.
func readCSVBody(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[1:], nil
}
