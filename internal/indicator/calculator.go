package indicator

import (
	"fmt"

	talib "github.com/markcheno/go-talib"

	"github.com/jacqueswww/btfd/internal/gateway"
)

// 周期取 7，正好覆盖策略拉取的约 8 天日线窗口。
const atrPeriod = 7

// Result 为一次日线波动率计算的汇总。
type Result struct {
	ATR      float64
	SMA      float64
	Relative float64
}

// DailyVolatility 基于日线K线计算 ATR 与收盘 SMA，
// Relative = ATR/SMA，仅用于日志与监控注记，不参与定价。
func DailyVolatility(candles []gateway.Candle) (Result, error) {
	if len(candles) <= atrPeriod {
		return Result{}, fmt.Errorf("计算波动率失败: 需要至少 %d 根日线，实际 %d", atrPeriod+1, len(candles))
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High.InexactFloat64()
		lows[i] = c.Low.InexactFloat64()
		closes[i] = c.Close.InexactFloat64()
	}

	atrSeries := talib.Atr(highs, lows, closes, atrPeriod)
	smaSeries := talib.Sma(closes, atrPeriod)

	result := Result{
		ATR: atrSeries[len(atrSeries)-1],
		SMA: smaSeries[len(smaSeries)-1],
	}
	if result.SMA > 0 {
		result.Relative = result.ATR / result.SMA
	}

	return result, nil
}
