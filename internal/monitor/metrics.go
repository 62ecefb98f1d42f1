package monitor

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// 业务指标
	platformCallTotal     *prometheus.CounterVec
	platformCallDuration  *prometheus.HistogramVec
	platformRetryTotal    *prometheus.CounterVec
	listingOperationTotal *prometheus.CounterVec
	divergenceTotal       *prometheus.CounterVec
	reconcileDuration     prometheus.Histogram
	salesIngestedTotal    *prometheus.CounterVec
	rateLimiterWait       *prometheus.HistogramVec
	breakerState          *prometheus.GaugeVec

	// 系统指标
	httpRequestTotal    *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 数据库指标
	dbConnectionsActive prometheus.Gauge
	dbConnectionsIdle   prometheus.Gauge
	dbConnectionsTotal  prometheus.Gauge
	dbQueryTotal        *prometheus.CounterVec
	dbQueryDuration     *prometheus.HistogramVec

	// Redis指标
	redisConnectionsActive prometheus.Gauge
	redisCommandTotal      *prometheus.CounterVec
	redisCommandDuration   *prometheus.HistogramVec

	// 系统资源指标
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcDuration     prometheus.Gauge

	// 队列指标
	queueMessageTotal    *prometheus.CounterVec
	queueMessageDuration *prometheus.HistogramVec
	queueSize            *prometheus.GaugeVec

	mu sync.RWMutex
}

// NewMetricsCollector 创建新的指标收集器
func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{}
	mc.initMetrics()
	return mc
}

// initMetrics 初始化所有指标
func (mc *MetricsCollector) initMetrics() {
	// 业务指标
	mc.platformCallTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_call_total",
			Help: "Total number of platform API calls",
		},
		[]string{"platform", "operation", "status"},
	)

	mc.platformCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "platform_call_duration_seconds",
			Help:    "Duration of platform API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform", "operation"},
	)

	mc.platformRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "platform_retry_total",
			Help: "Total number of platform call retries",
		},
		[]string{"platform", "operation"},
	)

	mc.listingOperationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_operation_total",
			Help: "Total number of listing operations by aggregated status",
		},
		[]string{"operation", "status"},
	)

	mc.divergenceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_divergence_total",
			Help: "Total number of detected sync divergences",
		},
		[]string{"platform", "field", "resolution"},
	)

	mc.reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_pass_duration_seconds",
			Help:    "Duration of reconciliation passes",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	mc.salesIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sales_ingested_total",
			Help: "Total number of sales ingested",
		},
		[]string{"platform"},
	)

	mc.rateLimiterWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rate_limiter_wait_seconds",
			Help:    "Time spent waiting for a rate limiter token",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	mc.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"platform"},
	)

	// 系统指标
	mc.httpRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	mc.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	mc.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "Size of HTTP requests",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	mc.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Size of HTTP responses",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 数据库指标
	mc.dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	mc.dbConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)

	mc.dbConnectionsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_total",
			Help: "Total number of database connections",
		},
	)

	mc.dbQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_query_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "table", "status"},
	)

	mc.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Duration of database queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	// Redis指标
	mc.redisConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "redis_connections_active",
			Help: "Number of active Redis connections",
		},
	)

	mc.redisCommandTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_command_total",
			Help: "Total number of Redis commands",
		},
		[]string{"command", "status"},
	)

	mc.redisCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_command_duration_seconds",
			Help:    "Duration of Redis commands",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// 系统资源指标
	mc.memoryUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "memory_usage_bytes",
			Help: "Memory usage in bytes",
		},
	)

	mc.goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "goroutine_count",
			Help: "Number of goroutines",
		},
	)

	mc.gcDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gc_duration_seconds",
			Help: "Duration of garbage collection",
		},
	)

	// 队列指标
	mc.queueMessageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_message_total",
			Help: "Total number of queue messages",
		},
		[]string{"queue", "operation", "status"},
	)

	mc.queueMessageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_message_duration_seconds",
			Help:    "Duration of queue message processing",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue", "operation"},
	)

	mc.queueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_size",
			Help: "Size of queue",
		},
		[]string{"queue"},
	)
}

// 业务指标记录方法

// RecordPlatformCall 记录平台API调用
func (mc *MetricsCollector) RecordPlatformCall(platform, operation, status string) {
	mc.platformCallTotal.WithLabelValues(platform, operation, status).Inc()
}

// RecordPlatformCallDuration 记录平台API调用耗时
func (mc *MetricsCollector) RecordPlatformCallDuration(platform, operation string, duration time.Duration) {
	mc.platformCallDuration.WithLabelValues(platform, operation).Observe(duration.Seconds())
}

// RecordPlatformRetries 记录平台调用重试次数
func (mc *MetricsCollector) RecordPlatformRetries(platform, operation string, retries int) {
	if retries <= 0 {
		return
	}
	mc.platformRetryTotal.WithLabelValues(platform, operation).Add(float64(retries))
}

// RecordListingOperation 记录listing操作聚合结果
func (mc *MetricsCollector) RecordListingOperation(operation, status string) {
	mc.listingOperationTotal.WithLabelValues(operation, status).Inc()
}

// RecordDivergence 记录同步差异
func (mc *MetricsCollector) RecordDivergence(platform, field, resolution string) {
	mc.divergenceTotal.WithLabelValues(platform, field, resolution).Inc()
}

// RecordReconcilePass 记录对账耗时
func (mc *MetricsCollector) RecordReconcilePass(duration time.Duration) {
	mc.reconcileDuration.Observe(duration.Seconds())
}

// RecordSaleIngested 记录销售数据入库
func (mc *MetricsCollector) RecordSaleIngested(platform string) {
	mc.salesIngestedTotal.WithLabelValues(platform).Inc()
}

// RecordRateLimiterWait 记录限流等待时间
func (mc *MetricsCollector) RecordRateLimiterWait(platform string, wait time.Duration) {
	mc.rateLimiterWait.WithLabelValues(platform).Observe(wait.Seconds())
}

// UpdateBreakerState 更新熔断器状态
func (mc *MetricsCollector) UpdateBreakerState(platform string, state int) {
	mc.breakerState.WithLabelValues(platform).Set(float64(state))
}

// 系统指标记录方法

// RecordHTTPRequest 记录HTTP请求
func (mc *MetricsCollector) RecordHTTPRequest(method, path, status string) {
	mc.httpRequestTotal.WithLabelValues(method, path, status).Inc()
}

// RecordHTTPDuration 记录HTTP请求耗时
func (mc *MetricsCollector) RecordHTTPDuration(method, path string, duration time.Duration) {
	mc.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordHTTPRequestSize 记录HTTP请求大小
func (mc *MetricsCollector) RecordHTTPRequestSize(method, path string, size float64) {
	mc.httpRequestSize.WithLabelValues(method, path).Observe(size)
}

// RecordHTTPResponseSize 记录HTTP响应大小
func (mc *MetricsCollector) RecordHTTPResponseSize(method, path string, size float64) {
	mc.httpResponseSize.WithLabelValues(method, path).Observe(size)
}

// 数据库指标记录方法

// UpdateDBConnections 更新数据库连接数
func (mc *MetricsCollector) UpdateDBConnections(active, idle, total int) {
	mc.dbConnectionsActive.Set(float64(active))
	mc.dbConnectionsIdle.Set(float64(idle))
	mc.dbConnectionsTotal.Set(float64(total))
}

// RecordDBQuery 记录数据库查询
func (mc *MetricsCollector) RecordDBQuery(operation, table, status string) {
	mc.dbQueryTotal.WithLabelValues(operation, table, status).Inc()
}

// RecordDBQueryDuration 记录数据库查询耗时
func (mc *MetricsCollector) RecordDBQueryDuration(operation, table string, duration time.Duration) {
	mc.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// Redis指标记录方法

// UpdateRedisConnections 更新Redis连接数
func (mc *MetricsCollector) UpdateRedisConnections(active int) {
	mc.redisConnectionsActive.Set(float64(active))
}

// RecordRedisCommand 记录Redis命令
func (mc *MetricsCollector) RecordRedisCommand(command, status string) {
	mc.redisCommandTotal.WithLabelValues(command, status).Inc()
}

// RecordRedisCommandDuration 记录Redis命令耗时
func (mc *MetricsCollector) RecordRedisCommandDuration(command string, duration time.Duration) {
	mc.redisCommandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// 系统资源指标更新方法

// UpdateSystemMetrics 更新系统指标
func (mc *MetricsCollector) UpdateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mc.memoryUsage.Set(float64(m.Alloc))
	mc.goroutineCount.Set(float64(runtime.NumGoroutine()))
	mc.gcDuration.Set(float64(m.PauseTotalNs) / 1e9)
}

// 队列指标记录方法

// RecordQueueMessage 记录队列消息
func (mc *MetricsCollector) RecordQueueMessage(queue, operation, status string) {
	mc.queueMessageTotal.WithLabelValues(queue, operation, status).Inc()
}

// RecordQueueMessageDuration 记录队列消息处理耗时
func (mc *MetricsCollector) RecordQueueMessageDuration(queue, operation string, duration time.Duration) {
	mc.queueMessageDuration.WithLabelValues(queue, operation).Observe(duration.Seconds())
}

// UpdateQueueSize 更新队列大小
func (mc *MetricsCollector) UpdateQueueSize(queue string, size int) {
	mc.queueSize.WithLabelValues(queue).Set(float64(size))
}

// StartSystemMetricsCollection 启动系统指标收集
func (mc *MetricsCollector) StartSystemMetricsCollection(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mc.UpdateSystemMetrics()
		}
	}
}
