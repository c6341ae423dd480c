// Package xpak 提供引用计数、大小受限的内容包缓存，
// 支持依赖感知的单飞异步加载与 LRU 淘汰。
//
// xpak 按需加载不透明的"内容包"，跟踪包间依赖，对同一 key 的并发
// 加载请求去重（单飞），对消费方做引用计数使包仅在无人使用时可被
// 释放，并在常驻大小超过预算后按 LRU 次序淘汰无引用条目。
//
// # 核心概念
//
//   - Manager: 缓存门面，Acquire(key) 返回 Handle，
//     Release 归还；显式构造与共享，无进程级单例
//   - Handle: 一次获取的凭证，等价于在目标包与其依赖闭包上
//     各持有一个引用；一次性释放，重复释放报 ErrHandleReleased
//   - 依赖固定: 包 A 常驻期间其直接依赖 B 被内部固定（pin），
//     即使 B 自身引用归零也不会在 A 之前被淘汰
//   - 水位预算: 常驻大小越过高水位触发淘汰，回收至低水位；
//     无可回收条目时仅发出软性超限信号，不令触发操作失败
//
// # 生命周期
//
// 条目状态机：Loading → Resident → Evicting → Freed。
// 加载失败移除占位条目（失败不粘滞），下次 Acquire 重新回源；
// 引用归零的条目保持 Resident 直至被淘汰遍历回收，期间命中免加载。
//
// # 并发模型
//
// 条目表、计数与常驻大小由单个互斥锁保护；Loader 回源不持锁。
// 同一 key 的并发 Acquire 加入同一加载回合，观察到相同终态；
// 等待者取消只影响自己，不中断底层加载。载荷发布后共享只读。
//
// # 典型用法
//
//	catalog := xcatalog.NewStatic(map[string][]string{
//	    "level01":  {"textures", "audio"},
//	    "textures": nil,
//	    "audio":    nil,
//	})
//	mgr, err := xpak.New(catalog, loader,
//	    xpak.WithBudget(512<<20, 0), // 512MB，低水位默认 80%
//	)
//	if err != nil { ... }
//	defer mgr.Close()
//
//	h, err := mgr.Acquire(ctx, "level01")
//	if err != nil { ... }
//	defer h.Release()
//	decode(h.Data())
//
// # 非目标
//
// xpak 不是通用对象缓存，不做垃圾回收，也不负责包的构建——
// 只负责已构建包的获取、共享与释放。载荷字节对缓存不透明。
package xpak
