package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	AvailableGoods *prometheus.GaugeVec
	TotalGoods     *prometheus.GaugeVec
	LiveOrders     prometheus.Gauge
	Redemptions    *prometheus.CounterVec
	Payouts        *prometheus.CounterVec
	SweepReleased  prometheus.Counter
)

var Registered = false

func RegisterMetrics(namespace string) {
	if Registered {
		return
	}
	Registered = true

	AvailableGoods = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:      "available_goods",
			Namespace: namespace,
			Subsystem: "inventory",
			Help:      "Unreserved goods per offer.",
		},
		[]string{"offer"},
	)

	TotalGoods = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:      "total_goods",
			Namespace: namespace,
			Subsystem: "inventory",
			Help:      "All goods per offer, consumed included.",
		},
		[]string{"offer"},
	)

	LiveOrders = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name:      "live_orders",
			Namespace: namespace,
			Subsystem: "orders",
			Help:      "Unexpired, undeleted orders.",
		},
	)

	Redemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "redemptions_total",
			Namespace: namespace,
			Subsystem: "orders",
			Help:      "Redemption attempts by terminal state.",
		},
		[]string{"state"},
	)

	Payouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name:      "payouts_total",
			Namespace: namespace,
			Subsystem: "rewards",
			Help:      "Task reward payout attempts by result.",
		},
		[]string{"result"},
	)

	SweepReleased = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name:      "sweep_released_goods_total",
			Namespace: namespace,
			Subsystem: "inventory",
			Help:      "Goods released back to the pool by the expiry sweep.",
		},
	)

	prometheus.MustRegister(AvailableGoods, TotalGoods, LiveOrders, Redemptions, Payouts, SweepReleased)
}
