package gateway

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Candle 代表一根日线K线。
type Candle struct {
	StartTime time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
}

// MarketSummary 为标准化后的实时行情摘要。
type MarketSummary struct {
	Created         time.Time
	High            decimal.Decimal
	Low             decimal.Decimal
	LastTradedPrice decimal.Decimal
}

// Gateway 抽象交易所能力，每个策略持有独立实例。
// 余额已在网关内部按 balance_limit 缩放，引擎不感知传输层细节。
type Gateway interface {
	Pair() string
	UsableFiatBalance(ctx context.Context) (decimal.Decimal, error)
	OpenOrderIDs(ctx context.Context, pair string) ([]string, error)
	CloseOrder(ctx context.Context, pair string, orderID string) error
	DailyOHLC(ctx context.Context, pair string, from, to time.Time) ([]Candle, error)
	MarketSummary(ctx context.Context, pair string) (MarketSummary, error)
	PlaceBuyOrder(ctx context.Context, pair string, price, quantity decimal.Decimal) error
}
