package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jacqueswww/btfd/internal/config"
	"github.com/jacqueswww/btfd/internal/gateway"
	"github.com/jacqueswww/btfd/internal/indicator"
	"github.com/jacqueswww/btfd/internal/monitor"
	"github.com/jacqueswww/btfd/internal/strategy"
)

// State 标识策略线程所处的阶段。
type State string

const (
	StateIdle       State = "IDLE"
	StateCancelling State = "CANCELLING"
	StateSizing     State = "SIZING"
	StatePlacing    State = "PLACING"
	StateWaiting    State = "WAITING"
	StateStopped    State = "STOPPED"
)

// 基准价估算拉取的历史窗口天数。
const historyDays = 8

// Worker 驱动单个策略的重建循环：
// 撤单 → 仓位切分 → 估价 → 构建阶梯 → 挂单，然后等待下一次到期。
// 每个 Worker 独占自己的网关实例，彼此之间只共享退出信号。
type Worker struct {
	cfg     config.StrategyConfig
	gw      gateway.Gateway
	journal *monitor.Service
	logger  *zap.Logger

	sleepDuration time.Duration
	pollInterval  time.Duration
	state         State
	lastRun       time.Time
	now           func() time.Time
}

// NewWorker 创建策略线程。
func NewWorker(cfg config.StrategyConfig, gw gateway.Gateway, journal *monitor.Service, pollInterval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		cfg:           cfg,
		gw:            gw,
		journal:       journal,
		logger:        logger.With(zap.String("strategy", cfg.Name)),
		sleepDuration: cfg.SleepDuration(),
		pollInterval:  pollInterval,
		state:         StateIdle,
		now:           time.Now,
	}
}

// Name 返回策略名。
func (w *Worker) Name() string {
	return w.cfg.Name
}

// Run 执行策略循环直至退出信号。
// 周期内任何未处理的异常都在这里兜底，只终结当前策略线程，
// 不影响其他策略。
func (w *Worker) Run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("策略线程异常终止",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			w.recordError(context.Background(), "策略线程异常终止", fmt.Errorf("panic: %v", r))
		}
		w.setState(StateStopped)
		w.logger.Info("策略线程已停止")
	}()

	w.logger.Info("策略线程启动",
		zap.String("pair", w.gw.Pair()),
		zap.Int("levels", w.cfg.IcebergLevels),
		zap.Duration("sleep_duration", w.sleepDuration),
	)

	for {
		if w.due() {
			start := w.now()
			if err := w.runCycle(ctx); err != nil {
				// 本周期作废，下个周期即重试边界。
				w.logger.Error("重建周期失败", zap.Error(err))
				monitor.ObserveCycleError(w.cfg.Name)
				w.recordError(ctx, "重建周期失败", err)
			}
			w.lastRun = start
		}

		w.setState(StateWaiting)
		// 小步轮询等待，保证退出信号能被及时观察到。
		timer := time.NewTimer(w.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("收到退出信号，正在停止策略线程")
			return
		case <-timer.C:
		}
	}
}

func (w *Worker) due() bool {
	return w.lastRun.IsZero() || w.now().Sub(w.lastRun) >= w.sleepDuration
}

func (w *Worker) runCycle(ctx context.Context) error {
	pair := w.gw.Pair()

	// 撤单阶段：无条件清掉上一轮的全部挂单，失败只记不停。
	w.setState(StateCancelling)
	orderIDs, err := w.gw.OpenOrderIDs(ctx, pair)
	if err != nil {
		return fmt.Errorf("获取挂单列表失败: %w", err)
	}
	for _, orderID := range orderIDs {
		w.logger.Info("撤销挂单", zap.String("order_id", orderID))
		if err := w.gw.CloseOrder(ctx, pair, orderID); err != nil {
			w.logger.Error("撤单失败", zap.String("order_id", orderID), zap.Error(err))
			monitor.ObserveCancelFailure(w.cfg.Name)
			w.recordError(ctx, "撤单失败", err)
			continue
		}
		w.record(ctx, monitor.EventCancel, map[string]interface{}{"order_id": orderID})
	}

	// 仓位切分阶段。
	w.setState(StateSizing)
	balance, err := w.gw.UsableFiatBalance(ctx)
	if err != nil {
		return fmt.Errorf("获取可用余额失败: %w", err)
	}
	balance = balance.Round(2)

	allocations, err := strategy.CalculatePositionSizes(balance, w.cfg.IcebergLevels, w.cfg.IcebergMultiple)
	if err != nil {
		return fmt.Errorf("仓位切分失败: %w", err)
	}

	// 估价阶段：K线与实时行情并行拉取。
	to := w.now()
	from := to.AddDate(0, 0, -historyDays)

	var (
		candles []gateway.Candle
		summary gateway.MarketSummary
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		data, err := w.gw.DailyOHLC(groupCtx, pair, from, to)
		if err != nil {
			return fmt.Errorf("拉取日线失败: %w", err)
		}
		candles = data
		return nil
	})
	group.Go(func() error {
		data, err := w.gw.MarketSummary(groupCtx, pair)
		if err != nil {
			return fmt.Errorf("拉取行情摘要失败: %w", err)
		}
		summary = data
		return nil
	})
	if err := group.Wait(); err != nil {
		return err
	}

	basePrice, err := strategy.EstimateBasePrice(candles, summary)
	if err != nil {
		return fmt.Errorf("估算基准价失败: %w", err)
	}

	w.logger.Info("周期输入就绪",
		zap.String("balance", balance.String()),
		zap.String("base_price", basePrice.String()),
		zap.String("last_traded_price", summary.LastTradedPrice.String()),
	)
	monitor.SetUsableBalance(w.cfg.Name, balance.InexactFloat64())
	monitor.SetBasePrice(pair, basePrice.InexactFloat64())

	if vol, volErr := indicator.DailyVolatility(candles); volErr == nil {
		w.logger.Debug("日线波动率注记",
			zap.Float64("atr", vol.ATR),
			zap.Float64("relative", vol.Relative),
		)
		monitor.SetVolatility(pair, vol.Relative)
	} else {
		w.logger.Debug("波动率注记不可用", zap.Error(volErr))
	}

	// 构建阶段。
	levels, dropped := strategy.BuildLadder(basePrice, w.cfg.LevelStepPerc, allocations, w.cfg.QuantityPrecision, w.cfg.MinOrderSize)
	for _, level := range dropped {
		w.logger.Warn("数量低于最小下单量，跳过该层",
			zap.String("price", level.Price.String()),
			zap.String("quantity", level.Quantity.String()),
		)
		monitor.ObserveOrderSkipped(w.cfg.Name)
		w.record(ctx, monitor.EventSkip, map[string]interface{}{
			"price":    level.Price.String(),
			"quantity": level.Quantity.String(),
		})
	}

	// 挂单阶段：从浅层到深层逐笔提交，单笔失败不阻塞后续。
	w.setState(StatePlacing)
	placed := 0
	for _, level := range levels {
		w.logger.Info("提交限价买单",
			zap.String("quantity", level.Quantity.String()),
			zap.String("crypto", w.cfg.CryptoCurrencyCode),
			zap.String("price", level.Price.String()),
			zap.String("fiat", w.cfg.FiatCurrencyCode),
			zap.String("notional", level.Notional.String()),
		)
		if err := w.gw.PlaceBuyOrder(ctx, pair, level.Price, level.Quantity); err != nil {
			w.logger.Error("下单失败",
				zap.String("price", level.Price.String()),
				zap.String("quantity", level.Quantity.String()),
				zap.Error(err),
			)
			w.recordError(ctx, "下单失败", err)
			continue
		}
		placed++
		monitor.ObserveOrderPlaced(w.cfg.Name)
		w.record(ctx, monitor.EventPlacement, map[string]interface{}{
			"price":    level.Price.String(),
			"quantity": level.Quantity.String(),
			"notional": level.Notional.String(),
		})
	}

	monitor.ObserveCycle(w.cfg.Name)
	w.record(ctx, monitor.EventCycle, map[string]interface{}{
		"balance":    balance.String(),
		"base_price": basePrice.String(),
		"placed":     placed,
		"dropped":    len(dropped),
		"cancelled":  len(orderIDs),
	})

	return nil
}

func (w *Worker) setState(next State) {
	if w.state == next {
		return
	}
	w.logger.Debug("状态迁移",
		zap.String("from", string(w.state)),
		zap.String("to", string(next)),
	)
	w.state = next
}

func (w *Worker) record(ctx context.Context, eventType monitor.EventType, payload map[string]interface{}) {
	if w.journal == nil {
		return
	}
	w.journal.Record(ctx, monitor.Event{
		Type:     eventType,
		Strategy: w.cfg.Name,
		Payload:  payload,
	})
}

func (w *Worker) recordError(ctx context.Context, message string, cause error) {
	if w.journal == nil {
		return
	}
	w.journal.RecordError(ctx, w.cfg.Name, message, cause)
}
