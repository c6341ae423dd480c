package xpak

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RecommendedLoadTimeout 推荐的单次加载超时时间。
// 加载在脱离调用方取消链的独立 context 下执行，
// 建议保留超时以避免加载源挂起时 goroutine 泄漏。
const RecommendedLoadTimeout = 30 * time.Second

// defaultLowWaterRatio 低水位缺省为高水位的 80%。
const defaultLowWaterRatio = 0.8

// ReleaseHook 载荷释放钩子。
// 条目被淘汰时在管理器互斥锁内同步调用，用于归还外部资源
// （GPU 纹理、内存池块等）。
//
// 调用方必须遵守以下约束：
//   - 严禁在钩子中调用 Manager 自身的任何方法，否则会死锁
//   - 应避免耗时操作，以免阻塞其他并发操作
//
// 钩子错误按条目隔离：单个条目的释放失败不会中止整个淘汰遍历，
// 所有错误收集后经 EvictNow/Close 返回或记入日志。
type ReleaseHook func(key string, data []byte) error

// Options 定义缓存管理器的配置选项。
type Options struct {
	// HighWater 常驻大小高水位（字节）。
	// 任何使常驻大小越过高水位的操作都会触发淘汰遍历。
	// 0 表示不设预算（仅 EvictNow 回收）。默认为 0。
	HighWater int64

	// LowWater 淘汰遍历的目标低水位（字节）。
	// 0 且 HighWater > 0 时取高水位的 80%。默认为 0。
	LowWater int64

	// LoadTimeout 单次加载的独立超时时间。
	//   - > 0: 使用指定超时
	//   - == 0: 禁用超时（需确保 Loader 不会无限阻塞）
	//   - < 0: 使用 RecommendedLoadTimeout (30s)
	//
	// 注意：即使禁用超时，加载 context 仍脱离调用方取消链，
	// 以避免首个调用者取消影响其他等待者。
	LoadTimeout time.Duration

	// ResolverMemoSize 依赖闭包备忘缓存容量，0 禁用。
	// 默认为 0。
	ResolverMemoSize int

	// PrefetchConcurrency Prefetch 的最大并发加载数。
	// 默认为 4。
	PrefetchConcurrency int

	// OnRelease 条目淘汰时的载荷释放钩子。默认为 nil。
	OnRelease ReleaseHook

	// Logger 用于记录警告与调试日志。
	// 默认使用 slog.Default()，传入 nil 禁用日志。
	Logger *slog.Logger

	// MeterProvider OTel 指标提供者。
	// 默认为 nil（不收集指标）。
	MeterProvider metric.MeterProvider
}

// Option 定义配置缓存管理器的函数类型。
type Option func(*Options)

// defaultOptions 返回默认配置。
func defaultOptions() *Options {
	return &Options{
		LoadTimeout:         RecommendedLoadTimeout,
		PrefetchConcurrency: 4,
		Logger:              slog.Default(),
	}
}

// validate 校验配置并填充派生默认值。
func (o *Options) validate() error {
	if o.HighWater < 0 || o.LowWater < 0 || o.LowWater > o.HighWater {
		return ErrInvalidBudget
	}
	if o.HighWater > 0 && o.LowWater == 0 {
		o.LowWater = int64(float64(o.HighWater) * defaultLowWaterRatio)
	}
	if o.PrefetchConcurrency <= 0 {
		o.PrefetchConcurrency = 4
	}
	return nil
}

// WithBudget 设置常驻大小预算水位。
// low 为 0 时取 high 的 80%。
func WithBudget(high, low int64) Option {
	return func(o *Options) {
		o.HighWater = high
		o.LowWater = low
	}
}

// WithLoadTimeout 设置单次加载的独立超时时间。
func WithLoadTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.LoadTimeout = timeout
	}
}

// WithResolverMemo 设置依赖闭包备忘缓存容量，0 禁用。
func WithResolverMemo(size int) Option {
	return func(o *Options) {
		o.ResolverMemoSize = size
	}
}

// WithPrefetchConcurrency 设置 Prefetch 的最大并发加载数。
func WithPrefetchConcurrency(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.PrefetchConcurrency = n
		}
	}
}

// WithReleaseHook 设置条目淘汰时的载荷释放钩子。
func WithReleaseHook(hook ReleaseHook) Option {
	return func(o *Options) {
		o.OnRelease = hook
	}
}

// WithLogger 设置自定义 Logger。
// 传入 nil 将禁用日志输出。
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMeterProvider 设置 OTel 指标提供者。
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *Options) {
		o.MeterProvider = mp
	}
}
