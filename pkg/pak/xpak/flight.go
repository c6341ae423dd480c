package xpak

import (
	"context"
	"fmt"
	"time"
)

// detachedCtx 是一个脱离原始 context 取消链的 context。
// 它保留原始 context 的 Value，但不继承其 Done/Err/Deadline。
// 用于单飞加载场景，避免首个调用者取消影响其他等待者。
type detachedCtx struct {
	context.Context
}

func (c detachedCtx) Deadline() (time.Time, bool) { return time.Time{}, false }
func (c detachedCtx) Done() <-chan struct{}       { return nil }
func (c detachedCtx) Err() error                  { return nil }

// contextDetached 创建一个脱离原始取消链的 context。
func contextDetached(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return detachedCtx{Context: ctx}
}

// contextWithIndependentTimeout 创建脱离原始取消链但有独立超时的 context。
// timeout 行为：
//   - timeout == 0: 禁用超时（仍脱离原始取消链）
//   - timeout < 0: 使用 RecommendedLoadTimeout (30s)
//   - timeout > 0: 使用指定超时时间
func contextWithIndependentTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	detached := contextDetached(ctx)

	if timeout == 0 {
		return context.WithCancel(detached)
	}
	if timeout < 0 {
		timeout = RecommendedLoadTimeout
	}
	return context.WithTimeout(detached, timeout)
}

// =============================================================================
// 单飞加载
// =============================================================================

// loadPackage 加入（或发起）key 的加载回合并等待其结束。
//
// singleflight 保证每个加载回合只有一次底层 Load 调用；
// 并发调用者共享同一回合的终态（成功或失败一视同仁地广播）。
// 每个等待者在自己的 ctx 上独立等待：放弃等待只影响自己，
// 加载在脱离调用方取消链的独立 context 下继续，供其他等待者使用。
func (m *Manager) loadPackage(ctx context.Context, key string) error {
	ch := m.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := contextWithIndependentTimeout(ctx, m.opts.LoadTimeout)
		defer cancel()
		return nil, m.loadAndInstall(loadCtx, key)
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case result := <-ch:
		return result.Err
	}
}

// loadAndInstall 执行一个加载回合：回源加载并发布结果。
// 仅由 singleflight 的回合 goroutine 调用。
func (m *Manager) loadAndInstall(ctx context.Context, key string) error {
	// double-check：上一回合可能已在本回合启动前完成安装
	m.mu.Lock()
	if e := m.entries[key]; e != nil && e.state == stateResident {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	start := time.Now()
	payload, err := m.loader.Load(ctx, key)
	m.metrics.RecordLoad(ctx, time.Since(start), err == nil)

	if err != nil {
		m.mu.Lock()
		m.removePlaceholderLocked(key)
		m.mu.Unlock()
		m.logWarn("xpak: package load failed", "key", key, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrLoadFailed, key, err)
	}

	deps, err := m.catalog.DependenciesOf(key)
	if err != nil {
		m.mu.Lock()
		m.removePlaceholderLocked(key)
		m.mu.Unlock()
		return err
	}

	size := payload.SizeBytes()

	m.mu.Lock()
	if m.closed.Load() {
		// 管理器在加载期间被关闭：不安装，等待者收到 ErrClosed
		m.removePlaceholderLocked(key)
		m.mu.Unlock()
		return ErrClosed
	}
	installed := m.installLocked(key, payload.Data, size, deps)
	if installed {
		m.metrics.AddResidentBytes(ctx, size)
		// 安装使常驻大小增长，越过高水位即触发淘汰。
		// 刚安装的条目引用尚未转入等待者名下，本次遍历予以豁免。
		if m.overBudgetLocked() {
			m.evictToLocked(ctx, m.opts.LowWater, key, true)
		}
	}
	m.mu.Unlock()

	return nil
}
