package xpak

// =============================================================================
// 条目生命周期
// =============================================================================

// entryState 条目生命周期状态。
type entryState uint8

const (
	// stateLoading 占位条目，加载回合进行中。
	stateLoading entryState = iota + 1
	// stateResident 载荷已发布，可被共享读取。
	stateResident
	// stateEvicting 被淘汰遍历选中，正在释放载荷。
	stateEvicting
	// stateFreed 载荷已释放，条目即将从表中移除。
	stateFreed
)

// entry 是缓存拥有的包条目。所有字段仅在 Manager.mu 下访问。
//
// refs 是 Handle 持有的外部引用计数；pins 是内部依赖固定计数——
// 每个以本包为直接依赖的常驻包贡献一个 pin。两者任一大于零的条目
// 不会被淘汰。
type entry struct {
	key        string
	data       []byte
	size       int64
	refs       int64
	pins       int64
	lastAccess uint64
	deps       []string // 目录记录的直接依赖
	pinned     []string // 安装时实际固定的直接依赖（淘汰时按此解除）
	state      entryState
}

// evictable 报告条目当前是否可被淘汰。
func (e *entry) evictable() bool {
	return e.state == stateResident && e.refs == 0 && e.pins == 0
}

// =============================================================================
// 条目表操作（均要求持有 m.mu）
// =============================================================================

// nextAccessLocked 返回下一个访问序号。
// 设计决策: lastAccess 使用单调递增序号而非墙钟时间——
// 相同时间戳下仍有确定的 LRU 次序，且不受系统时钟跳变影响。
func (m *Manager) nextAccessLocked() uint64 {
	m.accessSeq++
	return m.accessSeq
}

// touchLocked 增加引用并刷新访问序号。
func (m *Manager) touchLocked(e *entry) {
	e.refs++
	e.lastAccess = m.nextAccessLocked()
}

// releaseEntryLocked 归还一个外部引用。
// 计数降到零后条目保持 Resident 并成为淘汰候选——
// 不立即释放，便于复用时免去重新加载。
func (m *Manager) releaseEntryLocked(key string) {
	e := m.entries[key]
	if e == nil {
		m.logWarn("xpak: release of unknown entry", "key", key)
		return
	}
	if e.refs <= 0 {
		// 不变量保护：引用计数永不为负
		m.logWarn("xpak: release of unreferenced entry", "key", key)
		return
	}
	e.refs--
}

// installLocked 将加载成功的载荷发布为 Resident 条目。
// 对每个已常驻的直接依赖加一个 pin；占位条目（Loading）原位转正。
// 返回安装后条目（若另一回合已抢先安装则返回 false）。
func (m *Manager) installLocked(key string, data []byte, size int64, deps []string) bool {
	e := m.entries[key]
	if e != nil && e.state == stateResident {
		return false
	}
	if e == nil {
		e = &entry{key: key}
		m.entries[key] = e
	}

	e.data = data
	e.size = size
	e.deps = deps
	e.state = stateResident
	e.lastAccess = m.nextAccessLocked()

	// 依赖固定：正常流程下发起加载的调用方已按拓扑序持有全部依赖，
	// 此处依赖必然常驻。调用方在安装前取消等待并回滚的罕见交错下，
	// 个别依赖可能已被淘汰——跳过即可，消费方仍通过各自 Handle 持有依赖。
	e.pinned = e.pinned[:0]
	for _, d := range deps {
		if de := m.entries[d]; de != nil && de.state == stateResident {
			de.pins++
			e.pinned = append(e.pinned, d)
		}
	}

	m.residentSize += size
	return true
}

// removePlaceholderLocked 移除加载失败留下的占位条目。
// 仅当条目仍处于 Loading 时移除，失败不粘滞。
func (m *Manager) removePlaceholderLocked(key string) {
	if e := m.entries[key]; e != nil && e.state == stateLoading {
		delete(m.entries, key)
	}
}
