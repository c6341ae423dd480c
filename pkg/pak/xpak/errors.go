package xpak

import "errors"

var (
	// ErrClosed 表示缓存管理器已关闭，拒绝新的 Acquire。
	ErrClosed = errors.New("xpak: manager is closed")

	// ErrEmptyKey 表示包 key 为空。
	ErrEmptyKey = errors.New("xpak: key must not be empty")

	// ErrNilCatalog 表示目录能力为 nil。
	ErrNilCatalog = errors.New("xpak: catalog is nil")

	// ErrNilLoader 表示加载能力为 nil。
	ErrNilLoader = errors.New("xpak: loader is nil")

	// ErrInvalidBudget 表示预算水位配置无效
	// （负值，或低水位高于高水位）。
	ErrInvalidBudget = errors.New("xpak: invalid budget watermarks")

	// ErrLoadFailed 表示加载器回源失败。
	// 失败广播给同一加载回合的所有等待者；占位条目会被移除，
	// 后续 Acquire 可重新发起全新加载（失败不粘滞）。
	ErrLoadFailed = errors.New("xpak: package load failed")

	// ErrHandleReleased 表示同一 Handle 被重复释放。
	// 这是调用方编程错误：静默忽略会掩盖引用计数损坏，
	// 因此显式报告；重复调用不影响任何计数。
	ErrHandleReleased = errors.New("xpak: handle already released")
)
