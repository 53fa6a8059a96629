// Package metrics exposes Prometheus collectors for the event engine and the
// HTTP server that serves them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "eventbt"

var (
	// EventsProcessed counts events drained from the engine queue by kind.
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "Events dispatched by the engine, by kind.",
	}, []string{"kind"})

	// HeartbeatsTotal counts outer loop iterations.
	HeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "heartbeats_total",
		Help:      "Outer loop heartbeats completed.",
	})

	// HeartbeatTimestamp is the bar time of the last completed heartbeat.
	HeartbeatTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "heartbeat_bar_timestamp_seconds",
		Help:      "Unix time of the market event handled by the last heartbeat.",
	})

	// SignalsGenerated counts strategy signals.
	SignalsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_generated_total",
		Help:      "Signals emitted by strategies.",
	}, []string{"strategy", "direction"})

	// SignalsIgnored counts signals the portfolio turned into no order.
	SignalsIgnored = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_ignored_total",
		Help:      "Signals that produced no order.",
	}, []string{"direction"})

	// OrdersTotal counts orders by outcome.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_total",
		Help:      "Orders sent to execution, by outcome.",
	}, []string{"symbol", "side", "status"})

	// FillsTotal counts fills applied to the ledger.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fills_total",
		Help:      "Fills applied to the portfolio.",
	}, []string{"symbol", "side"})

	// FilledQuantity sums filled units.
	FilledQuantity = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "filled_quantity_total",
		Help:      "Units filled, by symbol and side.",
	}, []string{"symbol", "side"})

	// ExecutionLatency observes ExecuteOrder duration.
	ExecutionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "execution_latency_seconds",
		Help:      "Time spent turning an order into a fill.",
		Buckets:   []float64{.0001, .001, .01, .05, .1, .25, .5, 1, 2.5, 5},
	})

	// StrategyLatency observes CalculateSignals duration.
	StrategyLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "strategy_latency_seconds",
		Help:      "Time spent computing signals for one market event.",
		Buckets:   []float64{.00001, .0001, .001, .01, .1, 1},
	}, []string{"strategy"})

	// DataFeedLatency observes DataSource.Advance duration.
	DataFeedLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "data_feed_latency_seconds",
		Help:      "Time spent waiting for the next market event.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	})

	// Cash is the portfolio cash after the last heartbeat.
	Cash = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "portfolio_cash",
		Help:      "Portfolio cash.",
	})

	// EquityTotal is cash plus mark-to-market.
	EquityTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "portfolio_total",
		Help:      "Portfolio total value.",
	})

	// EquityHighWaterMark is the highest total seen.
	EquityHighWaterMark = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "portfolio_high_water_mark",
		Help:      "Highest portfolio total observed.",
	})

	// DrawdownCurrent is the fractional drawdown from the high-water mark.
	DrawdownCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "portfolio_drawdown_ratio",
		Help:      "Current drawdown from the high-water mark.",
	})

	// DataFeedConnected is 1 while a live source is connected.
	DataFeedConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "data_feed_connected",
		Help:      "Whether the data source is connected.",
	})

	// BrokerConnected is 1 while the broker accepts orders.
	BrokerConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "broker_connected",
		Help:      "Whether the broker is reachable.",
	})

	// RunsTotal counts finished runs by outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Engine runs, by outcome.",
	}, []string{"status"})

	// ErrorsTotal counts errors by type.
	ErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Errors, by type.",
	}, []string{"type"})

	// BuildInfo carries the binary version as labels.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version", "commit", "build_date"})
)

// SetBuildInfo publishes the build labels.
func SetBuildInfo(version, commit, buildDate string) {
	BuildInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
