package xpak

import (
	"slices"
	"sync/atomic"
)

// Handle 是调用方持有的获取凭证，对应一次 Acquire：
// 持有 Handle 等价于在目标包及其闭包内每个依赖上各持有一个引用。
//
// Handle 是一次性的：Release 只能调用一次，重复释放返回
// ErrHandleReleased 且不影响任何计数。
type Handle struct {
	manager  *Manager
	key      string
	deps     []string
	token    string
	released atomic.Bool
}

// Key 返回本次获取的目标包 key。
func (h *Handle) Key() string {
	return h.key
}

// Deps 返回本次获取隐式持有的依赖闭包（拓扑序副本）。
func (h *Handle) Deps() []string {
	return slices.Clone(h.deps)
}

// Token 返回本次获取的唯一标识，用于日志关联。
func (h *Handle) Token() string {
	return h.token
}

// Data 返回目标包的载荷字节。
// 载荷发布后被所有持有者共享只读，不得原地修改。
// Handle 已释放后返回 nil。
func (h *Handle) Data() []byte {
	if h.released.Load() {
		return nil
	}
	return h.manager.payloadOf(h.key)
}

// Release 释放本次获取持有的全部引用（目标包及依赖闭包各减一），
// 然后触发一次淘汰检查。幂等闸门由 CAS 保证：
// 第二次调用返回 ErrHandleReleased，计数不受影响。
func (h *Handle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return ErrHandleReleased
	}
	h.manager.releaseHandle(h)
	return nil
}
