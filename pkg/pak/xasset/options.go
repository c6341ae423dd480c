package xasset

import "log/slog"

// Options 定义资产缓存的配置选项。
type Options struct {
	// NumCounters 用于跟踪频率的计数器数量。
	// 建议设置为预期资产数量的 10 倍。默认为 1e6。
	NumCounters int64

	// MaxCost 缓存的最大容量，单位由 Decoder 返回的 cost 决定
	// （通常是字节）。默认为 64MB。
	MaxCost int64

	// BufferItems 写入缓冲区的大小。默认为 64。
	BufferItems int64

	// Logger 用于记录警告日志。
	// 默认使用 slog.Default()，传入 nil 禁用日志。
	Logger *slog.Logger
}

// Option 定义配置资产缓存的函数类型。
type Option func(*Options)

// defaultOptions 返回默认配置。
func defaultOptions() *Options {
	return &Options{
		NumCounters: 1e6,
		MaxCost:     64 * 1024 * 1024,
		BufferItems: 64,
		Logger:      slog.Default(),
	}
}

// WithNumCounters 设置计数器数量。n <= 0 时忽略。
func WithNumCounters(n int64) Option {
	return func(o *Options) {
		if n > 0 {
			o.NumCounters = n
		}
	}
}

// WithMaxCost 设置最大容量。cost <= 0 时忽略。
func WithMaxCost(cost int64) Option {
	return func(o *Options) {
		if cost > 0 {
			o.MaxCost = cost
		}
	}
}

// WithBufferItems 设置写入缓冲区大小。n <= 0 时忽略。
func WithBufferItems(n int64) Option {
	return func(o *Options) {
		if n > 0 {
			o.BufferItems = n
		}
	}
}

// WithLogger 设置自定义 Logger。传入 nil 禁用日志输出。
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}
