// Package pak 提供游戏内容包缓存相关的子包。
//
// 子包列表：
//   - xpak: 引用计数的内容包缓存核心（单飞加载、依赖固定、LRU 淘汰）
//   - xcatalog: 包目录能力（静态表、koanf 清单、热重载、依赖解析器）
//   - xloader: 包加载能力（目录、Redis、静态，以及重试/熔断装饰器）
//   - xasset: 基于 ristretto 的已解码资产视图缓存
//
// 设计原则：
//   - 核心只消费 Catalog 与 Loader 两个抽象能力，载荷字节对核心不透明
//   - 引用计数由缓存内部维护，调用方只持有 Handle
//   - 内置可观测性（指标、结构化日志）
package pak
