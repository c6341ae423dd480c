// Package xasset 提供基于内容包缓存的派生资产缓存。
//
// 内容包（xpak）以整包字节为粒度；xasset 在其上再加一层：
// 从包载荷中解码出的单个资产（纹理、网格、配置对象等）按
// (包 key, 资产名) 缓存，底层由 ristretto 做容量控制与准入。
//
// 每个常驻资产持有其来源包的一个 Handle：资产在缓存期间，
// 来源包被引用计数保活，不会被包缓存淘汰；资产被 ristretto
// 移除（淘汰、替换、拒绝或清空）时自动归还 Handle。
//
// 解码结果必须自包含：Decoder 返回的值不得引用包载荷字节切片，
// 资产的生命周期由资产缓存独立管理，与包载荷脱钩。
//
// 注意：ristretto 使用异步写入，刚解码的资产不会立即可见，
// 测试或需要读己之写的场景应先调用 Wait()。
package xasset
