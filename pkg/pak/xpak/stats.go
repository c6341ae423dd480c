package xpak

// statsCounters 是累计计数器，仅在 Manager.mu 下修改。
type statsCounters struct {
	hits           uint64
	misses         uint64
	evictions      uint64
	budgetExceeded uint64
}

// Stats 是缓存的即时快照与累计计数。
//
// Hits/Misses 按条目获取计数：一次 Acquire 对闭包内每个条目
// 各记一次命中或未命中。
type Stats struct {
	// Resident 常驻条目数。
	Resident int
	// Loading 加载中的占位条目数。
	Loading int
	// Evicting 淘汰中的条目数（淘汰在锁内同步完成，通常为 0）。
	Evicting int
	// ResidentBytes 常驻总大小（字节）。
	ResidentBytes int64

	// Hits 累计命中次数。
	Hits uint64
	// Misses 累计未命中次数。
	Misses uint64
	// Evictions 累计淘汰条目数。
	Evictions uint64
	// BudgetExceeded 累计软性预算超限次数
	// （淘汰遍历结束后常驻大小仍高于高水位）。
	BudgetExceeded uint64
}

// Stats 返回当前统计快照。
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		ResidentBytes:  m.residentSize,
		Hits:           m.stats.hits,
		Misses:         m.stats.misses,
		Evictions:      m.stats.evictions,
		BudgetExceeded: m.stats.budgetExceeded,
	}
	for _, e := range m.entries {
		switch e.state {
		case stateResident:
			s.Resident++
		case stateLoading:
			s.Loading++
		case stateEvicting:
			s.Evicting++
		}
	}
	return s
}
