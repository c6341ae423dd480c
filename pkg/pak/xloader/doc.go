// Package xloader 提供内容包加载能力的抽象与常用实现。
//
// Loader 是 xpak 缓存核心消费的唯一回源能力：给定包 key，
// 异步产出包的载荷字节。载荷格式对本包不透明，解码由上层负责。
//
// # 内置实现
//
//   - Dir: 从本地目录加载，key 映射为目录内的相对路径，
//     内置路径穿越防护，可选 zstd 解压与 xxhash 摘要校验
//   - Redis: 从 Redis 加载（GET prefix+key），适合远端包仓库场景
//   - Static: 内存映射表，适合内嵌资源与测试
//   - Func: 函数适配器，便于临时实现
//
// # 装饰器
//
//   - NewRetry: 基于 avast/retry-go 的重试装饰器，
//     ErrNotFound 与 context 取消不会被重试
//   - NewBreaker: 基于 sony/gobreaker 的熔断装饰器，
//     适合不稳定的远端传输
//
// # 错误语义
//
// key 不存在返回 ErrNotFound；摘要不匹配返回 ErrDigestMismatch。
// 本包不隐式重试，重试策略由调用方通过装饰器显式声明。
//
// # 注意事项
//
//   - Load 返回的 Payload.Data 进入缓存后被视为只读共享，
//     实现不得保留并修改已返回的字节切片
//   - Dir 启用 zstd 后应调用 Close() 释放解码器资源
package xloader
