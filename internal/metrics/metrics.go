package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "palletdock_"

	resultSuccess   = "success"
	resultError     = "error"
	resultConflict  = "conflict"
	resultExhausted = "exhausted"
	resultAssigned  = "assigned"
)

var (
	registerOnce sync.Once

	palletCreateTotal   *prometheus.CounterVec
	palletCreateLatency *prometheus.HistogramVec
	palletNumberRetries prometheus.Counter

	shapeAllocationsTotal *prometheus.CounterVec
	shapeRepairTotal      *prometheus.CounterVec

	storeOperationsTotal  *prometheus.CounterVec
	storeOperationLatency *prometheus.HistogramVec

	artifactTotal   *prometheus.CounterVec
	artifactLatency *prometheus.HistogramVec

	httpRequestsTotal  *prometheus.CounterVec
	httpRequestLatency *prometheus.HistogramVec
)

// Init 注册全部指标，可重复调用
func Init() {
	registerOnce.Do(func() {
		palletCreateTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pallet_create_total",
				Help: "Total pallet creations by result",
			},
			[]string{"result"},
		)
		palletCreateLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pallet_create_latency_seconds",
				Help:    "Pallet creation latency including allocation lock wait",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		palletNumberRetries = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "pallet_number_retries_total",
				Help: "Pallet number allocations retried after a unique violation",
			},
		)

		shapeAllocationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "shape_allocations_total",
				Help: "Shape allocations by outcome (assigned/exhausted)",
			},
			[]string{"result"},
		)
		shapeRepairTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "shape_repair_changes_total",
				Help: "Pallet shape changes made by the repair routine by kind",
			},
			[]string{"kind"},
		)

		storeOperationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "store_operations_total",
				Help: "Pallet store operations by operation and result",
			},
			[]string{"operation", "result"},
		)
		storeOperationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "store_operation_latency_seconds",
				Help:    "Pallet store operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)

		artifactTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "artifact_total",
				Help: "Rendered artifacts by kind and result",
			},
			[]string{"kind", "result"},
		)
		artifactLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "artifact_latency_seconds",
				Help:    "Artifact render and store latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		)

		httpRequestsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		)
		httpRequestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_latency_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)

		prometheus.MustRegister(
			palletCreateTotal,
			palletCreateLatency,
			palletNumberRetries,
			shapeAllocationsTotal,
			shapeRepairTotal,
			storeOperationsTotal,
			storeOperationLatency,
			artifactTotal,
			artifactLatency,
			httpRequestsTotal,
			httpRequestLatency,
		)
	})
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObservePalletCreate 记录托盘创建结果与耗时
func ObservePalletCreate(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if palletCreateTotal != nil {
		palletCreateTotal.WithLabelValues(result).Inc()
	}
	if palletCreateLatency != nil {
		palletCreateLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncPalletNumberRetry 记录编号冲突重试
func IncPalletNumberRetry() {
	if palletNumberRetries != nil {
		palletNumberRetries.Inc()
	}
}

// IncShapeAllocation 记录一次形状分配，exhausted 表示形状池已满
func IncShapeAllocation(assigned bool) {
	result := resultAssigned
	if !assigned {
		result = resultExhausted
	}
	if shapeAllocationsTotal != nil {
		shapeAllocationsTotal.WithLabelValues(result).Inc()
	}
}

// AddShapeRepair 记录修复例程的变更数
func AddShapeRepair(kind string, count int) {
	if count <= 0 {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	if shapeRepairTotal != nil {
		shapeRepairTotal.WithLabelValues(kind).Add(float64(count))
	}
}

// ObserveStoreOperation 记录托盘存储操作
func ObserveStoreOperation(operation, result string, duration time.Duration) {
	if operation == "" {
		operation = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if storeOperationsTotal != nil {
		storeOperationsTotal.WithLabelValues(operation, result).Inc()
	}
	if storeOperationLatency != nil {
		storeOperationLatency.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// ObserveArtifact 记录产物生成
func ObserveArtifact(kind, result string, duration time.Duration) {
	if kind == "" {
		kind = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if artifactTotal != nil {
		artifactTotal.WithLabelValues(kind, result).Inc()
	}
	if artifactLatency != nil {
		artifactLatency.WithLabelValues(kind).Observe(duration.Seconds())
	}
}

// ObserveHTTPRequest 记录 HTTP 请求
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	}
	if httpRequestLatency != nil {
		httpRequestLatency.WithLabelValues(method, route).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess  = resultSuccess
	ResultError    = resultError
	ResultConflict = resultConflict
)
