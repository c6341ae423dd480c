package xpak

import (
	"context"
	"fmt"
)

// overBudgetLocked 报告常驻大小是否越过高水位（未设预算恒为 false）。
func (m *Manager) overBudgetLocked() bool {
	return m.opts.HighWater > 0 && m.residentSize > m.opts.HighWater
}

// evictToLocked 执行一次淘汰遍历：按 LRU 次序淘汰零引用、零固定的条目，
// 直至常驻大小 ≤ target 或再无可淘汰条目。要求持有 m.mu。
//
// exclude 指定本次遍历豁免的 key（刚安装、引用尚未转入等待者名下的条目）。
// reportOverBudget 为 true 且遍历结束后仍高于高水位时，记一次软性
// 预算超限信号（警告日志 + 指标 + 统计计数），不构成错误。
//
// 设计决策: 每轮重新扫描候选而非一次性排序——淘汰解除依赖固定后
// 会有新条目变为可淘汰（级联），重扫描自然覆盖这种级联。
// 条目数在内容缓存场景下有限，O(n²) 可接受。
func (m *Manager) evictToLocked(ctx context.Context, target int64, exclude string, reportOverBudget bool) (freed int64, errs []error) {
	evicted := 0

	for m.residentSize > target {
		victim := m.pickVictimLocked(exclude)
		if victim == nil {
			break
		}
		if err := m.evictEntryLocked(ctx, victim); err != nil {
			errs = append(errs, err)
		}
		freed += victim.size
		evicted++
	}

	if evicted > 0 {
		m.stats.evictions += uint64(evicted)
		m.metrics.RecordEvictions(ctx, int64(evicted))
		m.logDebug("xpak: eviction pass finished",
			"evicted", evicted, "freed", freed, "resident", m.residentSize)
	}

	if reportOverBudget && m.overBudgetLocked() {
		m.stats.budgetExceeded++
		m.metrics.RecordBudgetExceeded(ctx)
		m.logWarn("xpak: resident size over budget after eviction pass",
			"resident", m.residentSize, "high_water", m.opts.HighWater)
	}

	return freed, errs
}

// pickVictimLocked 选择最久未访问的可淘汰条目。
// 访问序号相同不可能（单调递增），以 key 升序兜底保证确定性。
func (m *Manager) pickVictimLocked(exclude string) *entry {
	var victim *entry
	for _, e := range m.entries {
		if !e.evictable() || e.key == exclude {
			continue
		}
		if victim == nil ||
			e.lastAccess < victim.lastAccess ||
			(e.lastAccess == victim.lastAccess && e.key < victim.key) {
			victim = e
		}
	}
	return victim
}

// evictEntryLocked 淘汰单个条目：调用释放钩子、解除依赖固定、
// 移出条目表并修正常驻大小。钩子错误返回给调用方，不中止遍历。
func (m *Manager) evictEntryLocked(ctx context.Context, e *entry) error {
	e.state = stateEvicting

	var hookErr error
	if m.opts.OnRelease != nil {
		if err := m.opts.OnRelease(e.key, e.data); err != nil {
			hookErr = fmt.Errorf("xpak: release hook for %s: %w", e.key, err)
		}
	}

	// 解除对直接依赖的固定，依赖可能因此在本次遍历中变为可淘汰
	for _, d := range e.pinned {
		if de := m.entries[d]; de != nil && de.pins > 0 {
			de.pins--
		}
	}

	m.residentSize -= e.size
	m.metrics.AddResidentBytes(ctx, -e.size)

	e.state = stateFreed
	e.data = nil
	delete(m.entries, e.key)

	return hookErr
}
