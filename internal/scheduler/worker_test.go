package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jacqueswww/btfd/internal/config"
	"github.com/jacqueswww/btfd/internal/gateway"
)

type placement struct {
	price    decimal.Decimal
	quantity decimal.Decimal
}

type mockGateway struct {
	mu         sync.Mutex
	calls      []string
	openOrders []string
	closeErrs  map[string]error
	balance    decimal.Decimal
	candles    []gateway.Candle
	summary    gateway.MarketSummary
	placeErrs  map[int]error
	placeCount int
	placements []placement
}

func (m *mockGateway) recordCall(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *mockGateway) Pair() string { return "BTCZAR" }

func (m *mockGateway) UsableFiatBalance(ctx context.Context) (decimal.Decimal, error) {
	m.recordCall("UsableFiatBalance")
	return m.balance, nil
}

func (m *mockGateway) OpenOrderIDs(ctx context.Context, pair string) ([]string, error) {
	m.recordCall("OpenOrderIDs")
	return m.openOrders, nil
}

func (m *mockGateway) CloseOrder(ctx context.Context, pair, orderID string) error {
	m.recordCall("CloseOrder")
	if err, ok := m.closeErrs[orderID]; ok {
		return err
	}
	return nil
}

func (m *mockGateway) DailyOHLC(ctx context.Context, pair string, from, to time.Time) ([]gateway.Candle, error) {
	m.recordCall("DailyOHLC")
	return m.candles, nil
}

func (m *mockGateway) MarketSummary(ctx context.Context, pair string) (gateway.MarketSummary, error) {
	m.recordCall("MarketSummary")
	return m.summary, nil
}

func (m *mockGateway) PlaceBuyOrder(ctx context.Context, pair string, price, quantity decimal.Decimal) error {
	m.mu.Lock()
	index := m.placeCount
	m.placeCount++
	m.calls = append(m.calls, "PlaceBuyOrder")
	m.mu.Unlock()

	if err, ok := m.placeErrs[index]; ok {
		return err
	}

	m.mu.Lock()
	m.placements = append(m.placements, placement{price: price, quantity: quantity})
	m.mu.Unlock()
	return nil
}

func flatCandles(n int, value string) []gateway.Candle {
	v := decimal.RequireFromString(value)
	candles := make([]gateway.Candle, n)
	for i := range candles {
		candles[i] = gateway.Candle{
			StartTime: time.Date(2024, 3, 1+i, 0, 0, 0, 0, time.UTC),
			Open:      v,
			High:      v,
			Low:       v,
			Close:     v,
		}
	}
	return candles
}

func testStrategyConfig() config.StrategyConfig {
	return config.StrategyConfig{
		Name:               "test_btc_zar",
		Backend:            "valr",
		APIKey:             "k",
		APISecret:          "s",
		FiatCurrencyCode:   "ZAR",
		CryptoCurrencyCode: "BTC",
		IcebergLevels:      3,
		LevelStepPerc:      decimal.NewFromInt(5),
		IcebergMultiple:    decimal.NewFromInt(2),
		MinOrderSize:       decimal.RequireFromString("0.01"),
		QuantityPrecision:  2,
		BalanceLimit:       decimal.NewFromInt(1),
		RestructureTime:    "1h",
	}
}

// 合成K线 mid=120，8 根历史 mid=97.5 → 均值 (120+780)/9 = 100。
func testMarket(m *mockGateway) {
	m.balance = decimal.NewFromInt(1000)
	m.candles = flatCandles(8, "97.5")
	m.summary = gateway.MarketSummary{
		Created:         time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
		High:            decimal.NewFromInt(120),
		Low:             decimal.NewFromInt(120),
		LastTradedPrice: decimal.NewFromInt(120),
	}
}

func TestRunCycle_CancelsThenPlacesLadder(t *testing.T) {
	mock := &mockGateway{openOrders: []string{"o1", "o2"}}
	testMarket(mock)

	w := NewWorker(testStrategyConfig(), mock, nil, 10*time.Millisecond, nil)
	if err := w.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}

	closes := 0
	firstPlace := -1
	lastClose := -1
	for i, call := range mock.calls {
		switch call {
		case "CloseOrder":
			closes++
			lastClose = i
		case "PlaceBuyOrder":
			if firstPlace == -1 {
				firstPlace = i
			}
		}
	}
	if closes != 2 {
		t.Errorf("expected 2 CloseOrder calls, got %d", closes)
	}
	if firstPlace == -1 || lastClose > firstPlace {
		t.Errorf("expected all cancellations before first placement, calls=%v", mock.calls)
	}

	wantPrices := []string{"100", "95", "90"}
	wantQuantities := []string{"1.42", "3", "6.34"}
	if len(mock.placements) != 3 {
		t.Fatalf("expected 3 placements, got %d", len(mock.placements))
	}
	for i, p := range mock.placements {
		if p.price.String() != wantPrices[i] {
			t.Errorf("placement %d price = %s, want %s", i, p.price, wantPrices[i])
		}
		if p.quantity.String() != wantQuantities[i] {
			t.Errorf("placement %d quantity = %s, want %s", i, p.quantity, wantQuantities[i])
		}
	}
}

func TestRunCycle_CancelFailureDoesNotAbort(t *testing.T) {
	mock := &mockGateway{
		openOrders: []string{"o1", "o2"},
		closeErrs:  map[string]error{"o1": errors.New("gateway timeout")},
	}
	testMarket(mock)

	w := NewWorker(testStrategyConfig(), mock, nil, 10*time.Millisecond, nil)
	if err := w.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}
	if len(mock.placements) != 3 {
		t.Errorf("expected ladder placed despite cancel failure, got %d placements", len(mock.placements))
	}
}

func TestRunCycle_PlacementFailureContinues(t *testing.T) {
	mock := &mockGateway{
		placeErrs: map[int]error{0: errors.New("insufficient funds")},
	}
	testMarket(mock)

	w := NewWorker(testStrategyConfig(), mock, nil, 10*time.Millisecond, nil)
	if err := w.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}
	if mock.placeCount != 3 {
		t.Errorf("expected 3 placement attempts, got %d", mock.placeCount)
	}
	if len(mock.placements) != 2 {
		t.Errorf("expected 2 successful placements, got %d", len(mock.placements))
	}
}

func TestRunCycle_DropsBelowMinimum(t *testing.T) {
	mock := &mockGateway{}
	testMarket(mock)

	cfg := testStrategyConfig()
	cfg.MinOrderSize = decimal.NewFromInt(2) // 第0层数量 1.42 低于最小值

	w := NewWorker(cfg, mock, nil, 10*time.Millisecond, nil)
	if err := w.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle returned error: %v", err)
	}
	if len(mock.placements) != 2 {
		t.Fatalf("expected 2 placements after minimum filter, got %d", len(mock.placements))
	}
	for _, p := range mock.placements {
		if p.quantity.LessThan(cfg.MinOrderSize) {
			t.Errorf("placed quantity %s below minimum", p.quantity)
		}
	}
}

func TestRunCycle_AbortsOnEmptyHistory(t *testing.T) {
	mock := &mockGateway{}
	testMarket(mock)
	mock.candles = nil

	w := NewWorker(testStrategyConfig(), mock, nil, 10*time.Millisecond, nil)
	err := w.runCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "估算基准价失败") {
		t.Fatalf("expected base price estimation error, got %v", err)
	}
	if len(mock.placements) != 0 {
		t.Errorf("expected no placements on aborted cycle, got %d", len(mock.placements))
	}
}

func TestRun_StopsOnShutdownSignal(t *testing.T) {
	mock := &mockGateway{}
	testMarket(mock)

	w := NewWorker(testStrategyConfig(), mock, nil, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after shutdown signal")
	}

	if w.state != StateStopped {
		t.Errorf("worker state = %s, want %s", w.state, StateStopped)
	}
	// 睡眠周期为1小时，期间只应执行首个周期。
	if mock.placeCount != 3 {
		t.Errorf("expected exactly one cycle (3 placements), got %d", mock.placeCount)
	}
}
