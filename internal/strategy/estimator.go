package strategy

import (
	"errors"

	"github.com/shopspring/decimal"

	"github.com/jacqueswww/btfd/internal/gateway"
)

// ErrInsufficientHistory 表示历史K线不足以估算基准价。
var ErrInsufficientHistory = errors.New("strategy: insufficient candle history")

var (
	four       = decimal.NewFromInt(4)
	clampRatio = decimal.RequireFromString("0.99")
)

// EstimateBasePrice 估算阶梯锚定的基准价。
// 先把实时行情合成一根"今日"K线插到最前面，再取全部K线
// (O+H+L+C)/4 中间价的均值，并四舍五入到整数法币单位。
// 阶梯必须买在市价之下：若均值不低于最新成交价，
// 则压回到 round(0.99 * 最新成交价)，避免追高。
func EstimateBasePrice(history []gateway.Candle, summary gateway.MarketSummary) (decimal.Decimal, error) {
	if len(history) == 0 {
		return decimal.Zero, ErrInsufficientHistory
	}

	candles := make([]gateway.Candle, 0, len(history)+1)
	candles = append(candles, gateway.Candle{
		StartTime: summary.Created,
		Open:      summary.LastTradedPrice,
		Close:     summary.LastTradedPrice,
		High:      summary.High,
		Low:       summary.Low,
	})
	candles = append(candles, history...)

	sum := decimal.Zero
	for _, c := range candles {
		mid := c.High.Add(c.Low).Add(c.Close).Add(c.Open).Div(four)
		sum = sum.Add(mid)
	}

	base := sum.Div(decimal.NewFromInt(int64(len(candles)))).Round(0)

	if base.GreaterThanOrEqual(summary.LastTradedPrice) {
		base = summary.LastTradedPrice.Mul(clampRatio).Round(0)
	}

	return base, nil
}
