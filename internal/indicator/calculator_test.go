package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jacqueswww/btfd/internal/gateway"
)

func makeCandles(values ...float64) []gateway.Candle {
	candles := make([]gateway.Candle, len(values))
	for i, v := range values {
		d := decimal.NewFromFloat(v)
		candles[i] = gateway.Candle{
			StartTime: time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC),
			Open:      d,
			High:      d,
			Low:       d,
			Close:     d,
		}
	}
	return candles
}

func TestDailyVolatility_FlatSeries(t *testing.T) {
	result, err := DailyVolatility(makeCandles(100, 100, 100, 100, 100, 100, 100, 100, 100))
	if err != nil {
		t.Fatalf("DailyVolatility returned error: %v", err)
	}

	if math.Abs(result.ATR) > 1e-9 {
		t.Errorf("flat series ATR = %f, want 0", result.ATR)
	}
	if math.Abs(result.SMA-100) > 1e-9 {
		t.Errorf("flat series SMA = %f, want 100", result.SMA)
	}
	if math.Abs(result.Relative) > 1e-9 {
		t.Errorf("flat series relative volatility = %f, want 0", result.Relative)
	}
}

func TestDailyVolatility_RequiresEnoughCandles(t *testing.T) {
	if _, err := DailyVolatility(makeCandles(100, 101, 102)); err == nil {
		t.Fatal("expected error for short candle series")
	}
}
