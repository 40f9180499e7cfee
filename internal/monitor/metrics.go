// 周期级运行指标，/metrics 以 Prometheus 文本格式暴露。
package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btfd_cycles_total",
			Help: "Completed ladder rebuild cycles",
		},
		[]string{"strategy"},
	)

	mtxOrdersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btfd_orders_placed_total",
			Help: "Limit buy orders submitted",
		},
		[]string{"strategy"},
	)

	mtxOrdersSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btfd_orders_skipped_total",
			Help: "Ladder levels dropped below minimum order size",
		},
		[]string{"strategy"},
	)

	mtxCancelFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btfd_cancel_failures_total",
			Help: "Open order cancellations that failed",
		},
		[]string{"strategy"},
	)

	mtxCycleErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btfd_cycle_errors_total",
			Help: "Cycles aborted by an error",
		},
		[]string{"strategy"},
	)

	mtxBasePrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "btfd_base_price",
			Help: "Base price the current ladder is anchored to",
		},
		[]string{"pair"},
	)

	mtxUsableBalance = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "btfd_usable_balance",
			Help: "Usable fiat balance at the start of the last cycle",
		},
		[]string{"strategy"},
	)

	mtxVolatility = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "btfd_daily_volatility",
			Help: "ATR of the daily candles relative to their SMA",
		},
		[]string{"pair"},
	)
)

func init() {
	prometheus.MustRegister(
		mtxCycles,
		mtxOrdersPlaced,
		mtxOrdersSkipped,
		mtxCancelFailures,
		mtxCycleErrors,
		mtxBasePrice,
		mtxUsableBalance,
		mtxVolatility,
	)
}

// ObserveCycle 累计一次完成的重建周期。
func ObserveCycle(strategy string) {
	mtxCycles.WithLabelValues(strategy).Inc()
}

// ObserveOrderPlaced 累计一笔提交成功的买单。
func ObserveOrderPlaced(strategy string) {
	mtxOrdersPlaced.WithLabelValues(strategy).Inc()
}

// ObserveOrderSkipped 累计一个被过滤的层。
func ObserveOrderSkipped(strategy string) {
	mtxOrdersSkipped.WithLabelValues(strategy).Inc()
}

// ObserveCancelFailure 累计一次失败的撤单。
func ObserveCancelFailure(strategy string) {
	mtxCancelFailures.WithLabelValues(strategy).Inc()
}

// ObserveCycleError 累计一次被错误中止的周期。
func ObserveCycleError(strategy string) {
	mtxCycleErrors.WithLabelValues(strategy).Inc()
}

// SetBasePrice 更新阶梯锚定的基准价。
func SetBasePrice(pair string, price float64) {
	mtxBasePrice.WithLabelValues(pair).Set(price)
}

// SetUsableBalance 更新周期起始可用余额。
func SetUsableBalance(strategy string, balance float64) {
	mtxUsableBalance.WithLabelValues(strategy).Set(balance)
}

// SetVolatility 更新日线波动率注记。
func SetVolatility(pair string, value float64) {
	mtxVolatility.WithLabelValues(pair).Set(value)
}
