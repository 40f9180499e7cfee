package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jacqueswww/btfd/internal/config"
)

const (
	lunoMaxAttempts = 5
	lunoMinDelay    = 500 * time.Millisecond
	lunoMaxDelay    = 5 * time.Second
)

// Luno 通过 ccxt 访问 Luno 交易所并实现重试机制。
type Luno struct {
	cfg      config.StrategyConfig
	logger   *zap.Logger
	exchange *ccxt.Luno
	symbol   string

	marketsMu     sync.Mutex
	marketsLoaded bool
}

// NewLuno 构造 Luno 网关。
func NewLuno(cfg config.StrategyConfig, logger *zap.Logger) *Luno {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}

	ex := ccxt.NewLuno(userConfig)

	return &Luno{
		cfg:      cfg,
		logger:   logger,
		exchange: ex,
		symbol:   cfg.CryptoCurrencyCode + "/" + cfg.FiatCurrencyCode,
	}
}

// Pair 返回交易对符号，如 XBTZAR。
func (l *Luno) Pair() string {
	return l.cfg.Pair()
}

// UsableFiatBalance 返回按 balance_limit 缩放并扣除已冻结部分的法币余额。
func (l *Luno) UsableFiatBalance(ctx context.Context) (decimal.Decimal, error) {
	var balances ccxt.Balances
	err := l.callWithRetry(ctx, "fetch_balance", func() error {
		result, err := l.exchange.FetchBalance()
		if err != nil {
			return err
		}
		balances = result
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	reserved := decimal.Zero
	if balances.Total != nil {
		if v, ok := balances.Total[l.cfg.FiatCurrencyCode]; ok && v != nil {
			total = decimal.NewFromFloat(*v)
		}
	}
	if balances.Used != nil {
		if v, ok := balances.Used[l.cfg.FiatCurrencyCode]; ok && v != nil {
			reserved = decimal.NewFromFloat(*v)
		}
	}

	return l.cfg.BalanceLimit.Mul(total).Sub(reserved), nil
}

// MarketSummary 返回标准化的实时行情摘要。
func (l *Luno) MarketSummary(ctx context.Context, pair string) (MarketSummary, error) {
	var ticker ccxt.Ticker
	err := l.callWithRetry(ctx, "fetch_ticker", func() error {
		if err := l.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := l.exchange.FetchTicker(l.symbol)
		if err != nil {
			return err
		}
		ticker = result
		return nil
	})
	if err != nil {
		return MarketSummary{}, err
	}

	created := time.Now().UTC()
	if ticker.Timestamp != nil {
		created = time.UnixMilli(int64(*ticker.Timestamp)).UTC()
	}

	last := decimal.NewFromFloat(derefFloat(ticker.Last))
	high := last
	low := last
	if ticker.High != nil {
		high = decimal.NewFromFloat(*ticker.High)
	}
	if ticker.Low != nil {
		low = decimal.NewFromFloat(*ticker.Low)
	}

	return MarketSummary{
		Created:         created,
		High:            high,
		Low:             low,
		LastTradedPrice: last,
	}, nil
}

// DailyOHLC 拉取日线K线。
func (l *Luno) DailyOHLC(ctx context.Context, pair string, from, to time.Time) ([]Candle, error) {
	var raw []ccxt.OHLCV
	err := l.callWithRetry(ctx, "fetch_ohlcv_1d", func() error {
		if err := l.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := l.exchange.FetchOHLCV(
			l.symbol,
			ccxt.WithFetchOHLCVTimeframe("1d"),
			ccxt.WithFetchOHLCVSince(from.UnixMilli()),
		)
		if err != nil {
			return err
		}
		raw = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, 0, len(raw))
	for _, item := range raw {
		ts := time.UnixMilli(item.Timestamp).UTC()
		if ts.After(to) {
			continue
		}
		candles = append(candles, Candle{
			StartTime: ts,
			Open:      decimal.NewFromFloat(item.Open),
			High:      decimal.NewFromFloat(item.High),
			Low:       decimal.NewFromFloat(item.Low),
			Close:     decimal.NewFromFloat(item.Close),
		})
	}

	return candles, nil
}

// OpenOrderIDs 返回当前交易对的全部挂单ID。
func (l *Luno) OpenOrderIDs(ctx context.Context, pair string) ([]string, error) {
	var orders []ccxt.Order
	err := l.callWithRetry(ctx, "fetch_open_orders", func() error {
		if err := l.ensureMarketsLoaded(ctx); err != nil {
			return err
		}
		result, err := l.exchange.FetchOpenOrders(ccxt.WithFetchOpenOrdersSymbol(l.symbol))
		if err != nil {
			return err
		}
		orders = result
		return nil
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		if id := derefString(order.Id); id != "" {
			ids = append(ids, id)
		}
	}

	return ids, nil
}

// CloseOrder 撤销一笔挂单。
func (l *Luno) CloseOrder(ctx context.Context, pair, orderID string) error {
	return l.callWithRetry(ctx, "cancel_order", func() error {
		_, err := l.exchange.CancelOrder(orderID, ccxt.WithCancelOrderSymbol(l.symbol))
		return err
	})
}

// PlaceBuyOrder 提交一笔限价买单。
func (l *Luno) PlaceBuyOrder(ctx context.Context, pair string, price, quantity decimal.Decimal) error {
	return l.callWithRetry(ctx, "create_limit_order", func() error {
		_, err := l.exchange.CreateLimitOrder(
			l.symbol,
			"buy",
			quantity.InexactFloat64(),
			price.InexactFloat64(),
		)
		return err
	})
}

func (l *Luno) ensureMarketsLoaded(ctx context.Context) error {
	if l.marketsLoaded {
		return nil
	}

	l.marketsMu.Lock()
	defer l.marketsMu.Unlock()

	if l.marketsLoaded {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	if _, err := l.exchange.LoadMarkets(); err != nil {
		return err
	}

	l.marketsLoaded = true
	l.logger.Info("已完成市场元数据加载", zap.String("symbol", l.symbol))
	return nil
}

func (l *Luno) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := lunoMinDelay

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				l.logger.Info("交易所调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		normalizedErr, retry := classifyLunoError(err)

		if errors.Is(normalizedErr, ErrMaintenance) {
			l.logger.Warn("交易所维护中",
				zap.String("operation", operation),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		if !retry || attempt >= lunoMaxAttempts {
			l.logger.Error("交易所调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.Error(normalizedErr),
			)
			return normalizedErr
		}

		l.logger.Warn("交易所调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", delay),
			zap.Error(normalizedErr),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay *= 2
		if delay > lunoMaxDelay {
			delay = lunoMaxDelay
		}
	}
}

func classifyLunoError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		if ccxtErr.Type == ccxt.OnMaintenanceErrType {
			message := strings.TrimSpace(ccxtErr.Message)
			if message == "" {
				message = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, message), false
		}
		return err, isRetryableCCXT(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return err, true
	}

	return err, false
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

var _ Gateway = (*Luno)(nil)
