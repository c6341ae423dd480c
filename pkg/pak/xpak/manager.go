package xpak

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/omeyang/xpak/pkg/pak/xcatalog"
	"github.com/omeyang/xpak/pkg/pak/xloader"
)

// Manager 是内容包缓存的对外门面。
// 通过 New 创建并显式共享一个实例；没有进程级单例，
// 测试中可以并存多个互不干扰的缓存。
//
// 并发模型：条目表、引用计数、常驻大小与统计计数由单个互斥锁保护，
// 所有变更操作（获取记账、释放、淘汰）在锁内原子完成；
// Loader 回源调用不持锁，可以任意时长挂起，
// 仅发布结果（Loading → Resident/失败）时短暂重新持锁。
type Manager struct {
	mu           sync.Mutex
	entries      map[string]*entry
	residentSize int64
	accessSeq    uint64
	stats        statsCounters

	catalog  xcatalog.Catalog
	loader   xloader.Loader
	resolver *xcatalog.Resolver
	group    singleflight.Group
	opts     *Options
	metrics  *Metrics
	closed   atomic.Bool
}

// New 创建缓存管理器。
func New(catalog xcatalog.Catalog, loader xloader.Loader, opts ...Option) (*Manager, error) {
	if catalog == nil {
		return nil, ErrNilCatalog
	}
	if loader == nil {
		return nil, ErrNilLoader
	}

	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	if err := options.validate(); err != nil {
		return nil, err
	}

	resolver, err := xcatalog.NewResolver(catalog,
		xcatalog.WithMemoSize(options.ResolverMemoSize))
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(options.MeterProvider)
	if err != nil {
		return nil, err
	}

	return &Manager{
		entries:  make(map[string]*entry),
		catalog:  catalog,
		loader:   loader,
		resolver: resolver,
		opts:     options,
		metrics:  metrics,
	}, nil
}

// Acquire 获取包及其全部传递依赖，返回代表这次获取的 Handle。
//
// 流程：解析依赖闭包（拓扑序）→ 依序获取每个依赖 → 获取包本身。
// 任一步失败时，按逆序释放本次调用已取得的全部引用（不留部分泄漏），
// 然后原样传播错误。未命中的 key 经单飞加载：同一 key 的并发
// Acquire 只触发一次 Loader 调用。
//
// ctx 只约束本调用的等待：取消/超时使本调用失败，
// 不影响底层加载与其他等待者。
func (m *Manager) Acquire(ctx context.Context, key string) (*Handle, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if m.closed.Load() {
		return nil, ErrClosed
	}

	closure, err := m.resolver.Resolve(key)
	if err != nil {
		m.metrics.RecordAcquire(ctx, resultError)
		return nil, err
	}

	acquired := make([]string, 0, len(closure)+1)
	for _, dep := range closure {
		if _, err := m.acquireEntry(ctx, dep); err != nil {
			m.rollback(ctx, acquired)
			m.metrics.RecordAcquire(ctx, resultError)
			return nil, err
		}
		acquired = append(acquired, dep)
	}

	hit, err := m.acquireEntry(ctx, key)
	if err != nil {
		m.rollback(ctx, acquired)
		m.metrics.RecordAcquire(ctx, resultError)
		return nil, err
	}

	if hit {
		m.metrics.RecordAcquire(ctx, resultHit)
	} else {
		m.metrics.RecordAcquire(ctx, resultMiss)
	}

	return &Handle{
		manager: m,
		key:     key,
		deps:    closure,
		token:   uuid.NewString(),
	}, nil
}

// Prefetch 预热缓存：以受限并发逐个 Acquire 后立即 Release，
// 使条目常驻但不持有引用（可被后续淘汰回收）。
// 任一 key 失败即返回首个错误；已预热的条目保持常驻。
func (m *Manager) Prefetch(ctx context.Context, keys ...string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.PrefetchConcurrency)

	for _, key := range keys {
		g.Go(func() error {
			h, err := m.Acquire(gctx, key)
			if err != nil {
				return err
			}
			return h.Release()
		})
	}

	return g.Wait()
}

// SetBudget 调整常驻大小预算水位。
// low 为 0 时取 high 的 80%；high 为 0 表示不设预算。
// 新高水位低于当前常驻大小时立即触发一次淘汰遍历。
func (m *Manager) SetBudget(high, low int64) error {
	if high < 0 || low < 0 || low > high {
		return ErrInvalidBudget
	}
	if high > 0 && low == 0 {
		low = int64(float64(high) * defaultLowWaterRatio)
	}

	m.mu.Lock()
	m.opts.HighWater = high
	m.opts.LowWater = low
	if m.overBudgetLocked() {
		m.evictToLocked(context.Background(), low, "", true)
	}
	m.mu.Unlock()
	return nil
}

// ResidentSize 返回当前常驻大小（字节）。
func (m *Manager) ResidentSize() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.residentSize
}

// IsResident 报告 key 的载荷当前是否常驻。
func (m *Manager) IsResident(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	return e != nil && e.state == stateResident
}

// SizeOf 返回常驻条目的记账大小。
// 条目不存在或未常驻时返回 (0, false)。
func (m *Manager) SizeOf(key string) (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	if e == nil || e.state != stateResident {
		return 0, false
	}
	return e.size, true
}

// EvictNow 立即执行一次淘汰遍历（跳过高水位触发条件），
// 回收无引用条目直至低水位（未设预算时回收全部无引用条目）。
// 返回释放的字节数；err 为各条目释放钩子错误的汇总。
func (m *Manager) EvictNow() (int64, error) {
	m.mu.Lock()
	freed, errs := m.evictToLocked(context.Background(), m.opts.LowWater, "", false)
	m.mu.Unlock()
	return freed, errors.Join(errs...)
}

// Close 关闭管理器。幂等。
// 关闭后新的 Acquire 返回 ErrClosed；既有 Handle 仍可 Release。
// 关闭时对无引用条目做一次完整回收，仍被引用的条目保留至释放。
func (m *Manager) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	m.mu.Lock()
	_, errs := m.evictToLocked(context.Background(), 0, "", false)
	m.mu.Unlock()
	return errors.Join(errs...)
}

// =============================================================================
// 内部实现
// =============================================================================

// acquireEntry 获取单个条目的一个引用，返回是否立即命中。
//
// 常驻则增加引用并刷新访问序号；缺失则创建 Loading 占位并加入
// （或发起）单飞加载，成功后循环转入引用。极端交错下刚安装的条目
// 可能在转入引用前被并发淘汰，循环重试会发起新的加载回合。
func (m *Manager) acquireEntry(ctx context.Context, key string) (bool, error) {
	first := true

	for {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		m.mu.Lock()
		if m.closed.Load() {
			m.mu.Unlock()
			return false, ErrClosed
		}
		if e := m.entries[key]; e != nil && e.state == stateResident {
			m.touchLocked(e)
			if first {
				m.stats.hits++
			}
			m.mu.Unlock()
			return first, nil
		} else if e == nil {
			m.entries[key] = &entry{key: key, state: stateLoading}
		}
		if first {
			m.stats.misses++
			first = false
		}
		m.mu.Unlock()

		if err := m.loadPackage(ctx, key); err != nil {
			return false, err
		}
	}
}

// rollback 逆序释放一次失败的 Acquire 已取得的引用。
func (m *Manager) rollback(ctx context.Context, acquired []string) {
	if len(acquired) == 0 {
		return
	}
	m.mu.Lock()
	for i := len(acquired) - 1; i >= 0; i-- {
		m.releaseEntryLocked(acquired[i])
	}
	if m.overBudgetLocked() {
		m.evictToLocked(ctx, m.opts.LowWater, "", true)
	}
	m.mu.Unlock()
}

// releaseHandle 释放 Handle 持有的全部引用并触发淘汰检查。
// 仅由 Handle.Release 经单次释放闸门调用。
func (m *Manager) releaseHandle(h *Handle) {
	ctx := context.Background()

	m.mu.Lock()
	m.releaseEntryLocked(h.key)
	for i := len(h.deps) - 1; i >= 0; i-- {
		m.releaseEntryLocked(h.deps[i])
	}
	if m.overBudgetLocked() {
		m.evictToLocked(ctx, m.opts.LowWater, "", true)
	}
	m.mu.Unlock()
}

// payloadOf 返回常驻条目的载荷字节（供 Handle.Data 使用）。
func (m *Manager) payloadOf(key string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.entries[key]
	if e == nil || e.state != stateResident {
		return nil
	}
	return e.data
}

func (m *Manager) logWarn(msg string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Warn(msg, args...)
	}
}

func (m *Manager) logDebug(msg string, args ...any) {
	if m.opts.Logger != nil {
		m.opts.Logger.Debug(msg, args...)
	}
}
