package xpak

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// 设计决策: 指标前缀使用 "xpak.*"，与 OTel Meter scope name 保持一致
// （Meter("xpak")）。如需统一命名空间，应在采集端处理。
const (
	// metricNameAcquireTotal 获取次数计数器
	metricNameAcquireTotal = "xpak.acquire.total"
	// metricNameLoadDuration 回源加载耗时直方图
	metricNameLoadDuration = "xpak.load.duration"
	// metricNameEvictionsTotal 淘汰条目数计数器
	metricNameEvictionsTotal = "xpak.evictions.total"
	// metricNameBudgetExceededTotal 软性预算超限次数计数器
	metricNameBudgetExceededTotal = "xpak.budget_exceeded.total"
	// metricNameResidentBytes 常驻字节数升降计数器
	metricNameResidentBytes = "xpak.resident.bytes"
)

// 指标属性键。
const (
	attrResult  = "result"
	attrSuccess = "success"
)

// Acquire 结果属性值。
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

// durationBuckets 加载耗时直方图的桶边界（秒）。
// 包加载以磁盘/网络 I/O 为主，桶偏向较长尾部。
var durationBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0}

// Metrics 缓存指标收集器。
// 所有 Record 方法对 nil 接收者安全（未配置 MeterProvider 时不收集）。
type Metrics struct {
	meter               metric.Meter
	acquireTotal        metric.Int64Counter
	loadDuration        metric.Float64Histogram
	evictionsTotal      metric.Int64Counter
	budgetExceededTotal metric.Int64Counter
	residentBytes       metric.Int64UpDownCounter
}

// NewMetrics 创建指标收集器。
// meterProvider 为 nil 时返回 nil（不收集指标）。
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	m := &Metrics{}
	m.meter = meterProvider.Meter("xpak")

	var err error
	if m.acquireTotal, err = m.meter.Int64Counter(metricNameAcquireTotal,
		metric.WithDescription("内容包获取次数"), metric.WithUnit("{acquire}")); err != nil {
		return nil, err
	}
	if m.loadDuration, err = m.meter.Float64Histogram(metricNameLoadDuration,
		metric.WithDescription("内容包回源加载耗时"), metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...)); err != nil {
		return nil, err
	}
	if m.evictionsTotal, err = m.meter.Int64Counter(metricNameEvictionsTotal,
		metric.WithDescription("淘汰条目数"), metric.WithUnit("{entry}")); err != nil {
		return nil, err
	}
	if m.budgetExceededTotal, err = m.meter.Int64Counter(metricNameBudgetExceededTotal,
		metric.WithDescription("软性预算超限次数"), metric.WithUnit("{event}")); err != nil {
		return nil, err
	}
	if m.residentBytes, err = m.meter.Int64UpDownCounter(metricNameResidentBytes,
		metric.WithDescription("常驻载荷字节数"), metric.WithUnit("By")); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordAcquire 记录一次获取及其结果（hit/miss/error）。
func (m *Metrics) RecordAcquire(ctx context.Context, result string) {
	if m == nil {
		return
	}
	// 使用 context.WithoutCancel 确保即使 ctx 被取消，指标仍能记录
	m.acquireTotal.Add(context.WithoutCancel(ctx), 1,
		metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordLoad 记录一次回源加载的耗时与结果。
func (m *Metrics) RecordLoad(ctx context.Context, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.loadDuration.Record(context.WithoutCancel(ctx), duration.Seconds(),
		metric.WithAttributes(attribute.Bool(attrSuccess, success)))
}

// RecordEvictions 记录一次淘汰遍历移除的条目数。
func (m *Metrics) RecordEvictions(ctx context.Context, n int64) {
	if m == nil {
		return
	}
	m.evictionsTotal.Add(context.WithoutCancel(ctx), n)
}

// RecordBudgetExceeded 记录一次软性预算超限。
func (m *Metrics) RecordBudgetExceeded(ctx context.Context) {
	if m == nil {
		return
	}
	m.budgetExceededTotal.Add(context.WithoutCancel(ctx), 1)
}

// AddResidentBytes 按增量更新常驻字节数。
func (m *Metrics) AddResidentBytes(ctx context.Context, delta int64) {
	if m == nil {
		return
	}
	m.residentBytes.Add(context.WithoutCancel(ctx), delta)
}
