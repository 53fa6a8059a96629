package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recorder provides methods for recording metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordEvent records one event drained from the queue.
func (r *Recorder) RecordEvent(kind string) {
	EventsProcessed.WithLabelValues(kind).Inc()
}

// RecordHeartbeat records a completed heartbeat for the bar time ts.
func (r *Recorder) RecordHeartbeat(ts time.Time) {
	HeartbeatsTotal.Inc()
	HeartbeatTimestamp.Set(float64(ts.Unix()))
}

// RecordSignal records a signal being generated.
func (r *Recorder) RecordSignal(strategy, direction string) {
	SignalsGenerated.WithLabelValues(strategy, direction).Inc()
}

// RecordSignalIgnored records a signal that produced no order.
func (r *Recorder) RecordSignalIgnored(direction string) {
	SignalsIgnored.WithLabelValues(direction).Inc()
}

// RecordOrder records an order metric.
func (r *Recorder) RecordOrder(symbol, side, status string) {
	OrdersTotal.WithLabelValues(symbol, side, status).Inc()
}

// RecordFill records a fill applied to the ledger.
func (r *Recorder) RecordFill(symbol, side string, quantity int64) {
	FillsTotal.WithLabelValues(symbol, side).Inc()
	FilledQuantity.WithLabelValues(symbol, side).Add(float64(quantity))
}

// RecordEquity records portfolio cash and total.
func (r *Recorder) RecordEquity(cash, total decimal.Decimal) {
	Cash.Set(cash.InexactFloat64())
	EquityTotal.Set(total.InexactFloat64())
}

// RecordDrawdown records the high-water mark and current drawdown.
func (r *Recorder) RecordDrawdown(highWaterMark, drawdown decimal.Decimal) {
	EquityHighWaterMark.Set(highWaterMark.InexactFloat64())
	DrawdownCurrent.Set(drawdown.InexactFloat64())
}

// RecordExecutionLatency records order execution latency.
func (r *Recorder) RecordExecutionLatency(duration time.Duration) {
	ExecutionLatency.Observe(duration.Seconds())
}

// RecordDataFeedLatency records data feed latency.
func (r *Recorder) RecordDataFeedLatency(duration time.Duration) {
	DataFeedLatency.Observe(duration.Seconds())
}

// RecordStrategyLatency records strategy computation latency.
func (r *Recorder) RecordStrategyLatency(strategy string, duration time.Duration) {
	StrategyLatency.WithLabelValues(strategy).Observe(duration.Seconds())
}

// RecordDataFeedStatus records data feed connection status.
func (r *Recorder) RecordDataFeedStatus(connected bool) {
	DataFeedConnected.Set(boolGauge(connected))
}

// RecordBrokerStatus records broker connection status.
func (r *Recorder) RecordBrokerStatus(connected bool) {
	BrokerConnected.Set(boolGauge(connected))
}

// RecordRun records a finished run. Status is "completed", "cancelled" or "failed".
func (r *Recorder) RecordRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
}

// RecordError records an error.
func (r *Recorder) RecordError(errorType string) {
	ErrorsTotal.WithLabelValues(errorType).Inc()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}

// Timer is a helper for measuring latency.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveExecution observes the elapsed time as execution latency.
func (t *Timer) ObserveExecution() {
	ExecutionLatency.Observe(t.Elapsed().Seconds())
}

// ObserveStrategy observes the elapsed time as strategy latency.
func (t *Timer) ObserveStrategy(strategy string) {
	StrategyLatency.WithLabelValues(strategy).Observe(t.Elapsed().Seconds())
}

// ObserveDataFeed observes the elapsed time as data feed latency.
func (t *Timer) ObserveDataFeed() {
	DataFeedLatency.Observe(t.Elapsed().Seconds())
}
