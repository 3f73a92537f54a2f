// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器，同时实现 workflow.MetricsRecorder
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 工作流指标
	eventsTotal       *prometheus.CounterVec
	nodeExecutions    *prometheus.CounterVec
	nodeDuration      *prometheus.HistogramVec
	schedulerTasks    *prometheus.CounterVec
	graphLoads        *prometheus.CounterVec
	graphNodes        prometheus.Gauge
	observers         prometheus.Gauge
	observerDrops     prometheus.Counter
	streamSubscribers *prometheus.GaugeVec

	// 存储指标
	storeOperations *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec

	// 数据库连接池指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 工作流指标
	c.eventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "events_total",
			Help:      "Events emitted into the active graph, by origin node type and outcome",
		},
		[]string{"origin_type", "status"},
	)

	c.nodeExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "node_executions_total",
			Help:      "Node executions by node type and outcome",
		},
		[]string{"node_type", "status"},
	)

	c.nodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "node_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"node_type"},
	)

	c.schedulerTasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "task_runs_total",
			Help:      "Scheduler task runs by schedule kind and outcome",
		},
		[]string{"kind", "status"},
	)

	c.graphLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "loads_total",
			Help:      "Graph load attempts by outcome",
		},
		[]string{"status"},
	)

	c.graphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "graph_nodes",
		Help:      "Number of nodes in the active graph",
	})

	c.observers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "observers",
		Help:      "Number of attached observers",
	})

	c.observerDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "observer_dropped_total",
		Help:      "Notifications dropped because a subscriber was not keeping up",
	})

	c.streamSubscribers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "stream_subscribers",
			Help:      "Connected notification stream clients by transport",
		},
		[]string{"transport"},
	)

	// 存储指标
	c.storeOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Document store operations by driver, operation and outcome",
		},
		[]string{"driver", "operation", "status"},
	)

	c.storeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Document store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"driver", "operation"},
	)

	// 数据库指标
	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🔀 工作流指标记录
// =============================================================================

// RecordEvent 记录一个事件的最终结果
func (c *Collector) RecordEvent(originType, status string) {
	c.eventsTotal.WithLabelValues(originType, status).Inc()
}

// RecordNode 记录单个节点执行
func (c *Collector) RecordNode(nodeType, status string, d time.Duration) {
	c.nodeExecutions.WithLabelValues(nodeType, status).Inc()
	c.nodeDuration.WithLabelValues(nodeType).Observe(d.Seconds())
}

// RecordSchedulerTask 记录调度任务执行
func (c *Collector) RecordSchedulerTask(kind, status string) {
	c.schedulerTasks.WithLabelValues(kind, status).Inc()
}

// RecordLoad 记录图加载
func (c *Collector) RecordLoad(status string) {
	c.graphLoads.WithLabelValues(status).Inc()
}

func (c *Collector) SetGraphNodes(n int) { c.graphNodes.Set(float64(n)) }
func (c *Collector) SetObservers(n int)  { c.observers.Set(float64(n)) }
func (c *Collector) RecordObserverDrop() { c.observerDrops.Inc() }

// StreamConnected 记录一个推送客户端接入，返回断开时调用的函数
func (c *Collector) StreamConnected(transport string) (disconnected func()) {
	g := c.streamSubscribers.WithLabelValues(transport)
	g.Inc()
	return g.Dec
}

// =============================================================================
// 🗄️ 存储指标记录
// =============================================================================

// RecordStoreOperation 记录文档存储操作
func (c *Collector) RecordStoreOperation(driver, operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.storeOperations.WithLabelValues(driver, operation, status).Inc()
	c.storeDuration.WithLabelValues(driver, operation).Observe(duration.Seconds())
}

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
