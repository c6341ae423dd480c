package xasset

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xpak/pkg/pak/xpak"
)

// Decoder 从包载荷中解码单个资产。
// 返回解码后的值与记账 cost（通常为字节数，<= 0 时按 1 计）。
// data 是包载荷的共享只读字节，严禁修改；返回值必须自包含，
// 不得引用 data 的任何子切片。
type Decoder[V any] func(pkgKey, name string, data []byte) (V, int64, error)

// view 是缓存内的资产视图：解码结果加上来源包的 Handle。
// Handle 在资产被移除时归还。
type view[V any] struct {
	value  V
	handle *xpak.Handle
}

func (v *view[V]) release() {
	// ristretto 的 Del 会对同一 key 触发两次移除回调，第二次传入零值（nil）
	if v != nil && v.handle != nil {
		// 重复移除路径（替换后再淘汰）下的二次 Release 是无害空操作
		_ = v.handle.Release()
	}
}

// Cache 是派生资产缓存。
// 通过 New 创建；所有方法并发安全。
type Cache[V any] struct {
	manager *xpak.Manager
	decode  Decoder[V]
	cache   *ristretto.Cache[string, *view[V]]
	group   singleflight.Group
	opts    *Options
	closed  atomic.Bool
}

// New 创建资产缓存。
// manager 必须是已初始化的包缓存管理器，decode 负责从包载荷解码资产。
func New[V any](manager *xpak.Manager, decode Decoder[V], opts ...Option) (*Cache[V], error) {
	if manager == nil {
		return nil, ErrNilManager
	}
	if decode == nil {
		return nil, ErrNilDecoder
	}

	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	c := &Cache[V]{
		manager: manager,
		decode:  decode,
		opts:    options,
	}

	inner, err := ristretto.NewCache(&ristretto.Config[string, *view[V]]{
		NumCounters: options.NumCounters,
		MaxCost:     options.MaxCost,
		BufferItems: options.BufferItems,
		Metrics:     true,
		// OnExit 覆盖所有移除路径：淘汰、准入拒绝、替换与删除，
		// 统一在此归还来源包的 Handle
		OnExit: func(v *view[V]) {
			v.release()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("xasset: create cache: %w", err)
	}
	c.cache = inner

	return c, nil
}

// Get 返回指定包中指定资产的解码结果。
// 未命中时获取来源包（必要时触发包加载）、解码并缓存；
// 同一资产的并发未命中只解码一次。
//
// ctx 只约束本调用的等待，取消不影响其他等待者。
func (c *Cache[V]) Get(ctx context.Context, pkgKey, name string) (V, error) {
	var zero V
	if pkgKey == "" {
		return zero, ErrEmptyKey
	}
	if name == "" {
		return zero, ErrEmptyName
	}
	if c.closed.Load() {
		return zero, ErrClosed
	}

	key := assetKey(pkgKey, name)
	if v, ok := c.cache.Get(key); ok {
		return v.value, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// 回合在脱离发起者取消链的 context 下执行：
		// 发起者放弃等待只影响自己，回合结果仍广播给其余等待者
		return c.loadAsset(context.WithoutCancel(ctx), key, pkgKey, name)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case result := <-ch:
		if result.Err != nil {
			return zero, result.Err
		}
		return result.Val.(V), nil
	}
}

// loadAsset 执行一次资产加载回合：获取来源包、解码并写入缓存。
func (c *Cache[V]) loadAsset(ctx context.Context, key, pkgKey, name string) (any, error) {
	// double-check：上一回合的异步写入可能已落盘
	if v, ok := c.cache.Get(key); ok {
		return v.value, nil
	}

	h, err := c.manager.Acquire(ctx, pkgKey)
	if err != nil {
		return nil, err
	}

	value, cost, err := c.decode(pkgKey, name, h.Data())
	if err != nil {
		_ = h.Release()
		return nil, fmt.Errorf("%w: %s in %s: %w", ErrDecodeFailed, name, pkgKey, err)
	}
	if cost <= 0 {
		cost = 1
	}

	v := &view[V]{value: value, handle: h}
	if !c.cache.Set(key, v, cost) {
		// 写入缓冲满被丢弃：不缓存本次结果，立即归还 Handle。
		// 调用方拿到的解码值自包含，不受影响。
		v.release()
		c.logWarn("xasset: set dropped", "package", pkgKey, "asset", name)
	}

	return value, nil
}

// Del 删除指定资产，归还其来源包 Handle。
func (c *Cache[V]) Del(pkgKey, name string) {
	if c.closed.Load() {
		return
	}
	c.cache.Del(assetKey(pkgKey, name))
}

// Wait 等待所有缓冲的写入完成。
// ristretto 异步写入，需要读己之写（典型如测试）时调用。
func (c *Cache[V]) Wait() {
	c.cache.Wait()
}

// Stats 返回缓存统计信息。
func (c *Cache[V]) Stats() Stats {
	if c.closed.Load() {
		return Stats{}
	}
	metrics := c.cache.Metrics
	if metrics == nil {
		return Stats{}
	}

	hits := metrics.Hits()
	misses := metrics.Misses()
	total := hits + misses

	var hitRatio float64
	if total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	return Stats{
		Hits:        hits,
		Misses:      misses,
		HitRatio:    hitRatio,
		KeysAdded:   metrics.KeysAdded(),
		KeysEvicted: metrics.KeysEvicted(),
		CostAdded:   metrics.CostAdded(),
		CostEvicted: metrics.CostEvicted(),
	}
}

// Close 关闭缓存。幂等。
// 清空全部资产（逐个归还来源包 Handle）后关闭底层缓存。
func (c *Cache[V]) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	// Clear 同步移除所有条目并触发 OnExit，确保 Handle 全部归还
	c.cache.Clear()
	c.cache.Close()
	return nil
}

func (c *Cache[V]) logWarn(msg string, args ...any) {
	if c.opts.Logger != nil {
		c.opts.Logger.Warn(msg, args...)
	}
}

// Stats 定义资产缓存的统计信息。
type Stats struct {
	// Hits 缓存命中次数。
	Hits uint64

	// Misses 缓存未命中次数。
	Misses uint64

	// HitRatio 缓存命中率 (0.0 - 1.0)。
	HitRatio float64

	// KeysAdded 已添加的资产数量。
	KeysAdded uint64

	// KeysEvicted 已淘汰的资产数量。
	KeysEvicted uint64

	// CostAdded 已添加的总 cost。
	CostAdded uint64

	// CostEvicted 已淘汰的总 cost。
	CostEvicted uint64
}

// assetKey 构造资产的缓存 key。
// 包 key 带长度前缀，避免 (pkgKey, name) 不同组合拼出相同 key。
func assetKey(pkgKey, name string) string {
	return fmt.Sprintf("%d:%s:%s", len(pkgKey), pkgKey, name)
}
