package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jacqueswww/btfd/internal/gateway"
)

func flatCandle(value string) gateway.Candle {
	v := decimal.RequireFromString(value)
	return gateway.Candle{
		StartTime: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Open:      v,
		High:      v,
		Low:       v,
		Close:     v,
	}
}

func makeSummary(last, high, low string) gateway.MarketSummary {
	return gateway.MarketSummary{
		Created:         time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
		LastTradedPrice: decimal.RequireFromString(last),
		High:            decimal.RequireFromString(high),
		Low:             decimal.RequireFromString(low),
	}
}

func TestEstimateBasePrice_AveragesSyntheticAndHistory(t *testing.T) {
	// 合成K线 mid = (102+98+100+100)/4 = 100，历史K线 mid = 80，均值 90。
	history := []gateway.Candle{flatCandle("80")}
	summary := makeSummary("100", "102", "98")

	base, err := EstimateBasePrice(history, summary)
	if err != nil {
		t.Fatalf("EstimateBasePrice returned error: %v", err)
	}
	if want := decimal.NewFromInt(90); !base.Equal(want) {
		t.Errorf("base price = %s, want %s", base, want)
	}
}

func TestEstimateBasePrice_ClampsAboveMarket(t *testing.T) {
	// 历史均值高于市价时必须压回 round(0.99 * last)，而不是追高。
	history := []gateway.Candle{flatCandle("120")}
	summary := makeSummary("100", "100", "100")

	base, err := EstimateBasePrice(history, summary)
	if err != nil {
		t.Fatalf("EstimateBasePrice returned error: %v", err)
	}
	if want := decimal.NewFromInt(99); !base.Equal(want) {
		t.Errorf("base price = %s, want %s", base, want)
	}
	if !base.LessThan(summary.LastTradedPrice) {
		t.Errorf("clamped base %s not strictly below last traded price %s", base, summary.LastTradedPrice)
	}
}

func TestEstimateBasePrice_RoundsToWholeFiatUnit(t *testing.T) {
	// 合成 mid = 90，历史 mid = 91，均值 90.5 → 91。
	history := []gateway.Candle{flatCandle("91")}
	summary := makeSummary("90", "90", "90")

	base, err := EstimateBasePrice(history, summary)
	if err != nil {
		t.Fatalf("EstimateBasePrice returned error: %v", err)
	}
	if want := decimal.NewFromInt(89); !base.Equal(want) {
		// 均值 90.5 ≥ last=90，触发钳制：round(0.99*90) = 89。
		t.Errorf("base price = %s, want %s", base, want)
	}
}

func TestEstimateBasePrice_EmptyHistory(t *testing.T) {
	_, err := EstimateBasePrice(nil, makeSummary("100", "101", "99"))
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}
