package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 母单指标
	instancesRunning  prometheus.Gauge
	instancesQueued   prometheus.Gauge
	instancesTotal    prometheus.Counter
	instancesFinished *prometheus.CounterVec

	// 子单指标
	ordersPlaced   prometheus.Counter
	ordersCanceled prometheus.Counter
	ordersFilled   prometheus.Counter
	ordersRejected prometheus.Counter
	filledQty      prometheus.Counter
	filledAmount   prometheus.Counter

	// 快照指标
	snapshotsPublished prometheus.Counter
	snapshotErrors     prometheus.Counter

	// 行情指标
	quotesReceived prometheus.Counter
	feedReconnects prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "algo",
		Subsystem: "engine",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()

	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		// 母单指标
		instancesRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "instances_running",
			Help:      "正在执行的母单数",
		}),
		instancesQueued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "instances_queued",
			Help:      "排队等待执行的回测母单数",
		}),
		instancesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "instances_total",
			Help:      "受理母单总数",
		}),
		instancesFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "instances_finished_total",
				Help:      "按终态统计的母单完成数",
			},
			[]string{"status"},
		),

		// 子单指标
		ordersPlaced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_placed_total",
			Help:      "子单下单总数",
		}),
		ordersCanceled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_canceled_total",
			Help:      "子单撤单总数",
		}),
		ordersFilled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_filled_total",
			Help:      "子单成交总数",
		}),
		ordersRejected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_rejected_total",
			Help:      "子单拒绝总数",
		}),
		filledQty: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "filled_qty_total",
			Help:      "累计成交数量",
		}),
		filledAmount: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "filled_amount_total",
			Help:      "累计成交金额",
		}),

		// 快照指标
		snapshotsPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "snapshots_published_total",
			Help:      "发布的绩效快照总数",
		}),
		snapshotErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "snapshot_errors_total",
			Help:      "快照发布失败总数",
		}),

		// 行情指标
		quotesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "quotes_received_total",
			Help:      "行情快照接收总数",
		}),
		feedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "feed_reconnects_total",
			Help:      "行情源重连次数",
		}),
	}

	return m
}

// 母单相关方法
func (m *Monitor) UpdateInstancesRunning(n int) {
	m.instancesRunning.Set(float64(n))
}

func (m *Monitor) UpdateInstancesQueued(n int) {
	m.instancesQueued.Set(float64(n))
}

func (m *Monitor) RecordInstanceAccepted() {
	m.instancesTotal.Inc()
}

func (m *Monitor) RecordInstanceFinished(status string) {
	m.instancesFinished.WithLabelValues(status).Inc()
}

// 子单相关方法
func (m *Monitor) RecordOrderPlaced() {
	m.ordersPlaced.Inc()
}

func (m *Monitor) RecordOrderCanceled() {
	m.ordersCanceled.Inc()
}

func (m *Monitor) RecordOrderFilled() {
	m.ordersFilled.Inc()
}

func (m *Monitor) RecordOrderRejected() {
	m.ordersRejected.Inc()
}

func (m *Monitor) RecordFill(qty int, amount float64) {
	m.filledQty.Add(float64(qty))
	m.filledAmount.Add(amount)
}

// 快照相关方法
func (m *Monitor) RecordSnapshotPublished() {
	m.snapshotsPublished.Inc()
}

func (m *Monitor) RecordSnapshotError() {
	m.snapshotErrors.Inc()
}

// 行情相关方法
func (m *Monitor) RecordQuoteReceived() {
	m.quotesReceived.Inc()
}

func (m *Monitor) RecordFeedReconnect() {
	m.feedReconnects.Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
