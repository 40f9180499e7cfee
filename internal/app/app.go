package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jacqueswww/btfd/internal/config"
	"github.com/jacqueswww/btfd/internal/gateway"
	"github.com/jacqueswww/btfd/internal/monitor"
	"github.com/jacqueswww/btfd/internal/scheduler"
	"github.com/jacqueswww/btfd/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 为每个策略启动独立线程并阻塞至退出信号。
// 策略线程错峰启动，避免进程启动瞬间的网关调用洪峰；
// 收到退出信号后等待全部线程退出再返回。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Int("strategies", len(a.cfg.Strategies)),
	)

	journal, err := monitor.NewService(a.store, a.logger)
	if err != nil {
		return err
	}

	workers := make([]*scheduler.Worker, 0, len(a.cfg.Strategies))
	for _, sc := range a.cfg.Strategies {
		gw, err := gateway.New(sc, a.logger)
		if err != nil {
			// 配置级错误只影响该策略，不拖垮其他策略。
			a.logger.Error("初始化网关失败，跳过该策略",
				zap.String("strategy", sc.Name),
				zap.Error(err),
			)
			continue
		}
		workers = append(workers, scheduler.NewWorker(sc, gw, journal, a.cfg.Scheduler.PollInterval, a.logger))
	}

	if len(workers) == 0 {
		return errors.New("没有任何可启动的策略")
	}

	if a.cfg.Monitor.Enabled {
		startMonitorServer(ctx, journal, a.cfg.Monitor.Port, a.logger)
	}

	var wg sync.WaitGroup
	for i, worker := range workers {
		if i > 0 && a.cfg.Scheduler.StaggerDelay > 0 {
			timer := time.NewTimer(a.cfg.Scheduler.StaggerDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				a.logger.Info("启动阶段收到退出信号", zap.String("strategy", worker.Name()))
				wg.Wait()
				return nil
			case <-timer.C:
			}
		}

		wg.Add(1)
		go func(w *scheduler.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(worker)
		a.logger.Info("策略线程已调度", zap.String("strategy", worker.Name()))
	}

	<-ctx.Done()
	a.logger.Info("系统收到退出信号，等待策略线程退出")
	wg.Wait()
	return nil
}
