// Package xcatalog 提供包目录能力：包 key 到其直接依赖的只读映射，
// 以及在其上的传递依赖解析。
//
// # 核心组件
//
//   - Catalog: 目录能力接口，DependenciesOf 返回包的直接依赖
//   - Static: 不可变内存目录，适合内嵌与测试场景
//   - Manifest: 基于 koanf 解析的 JSON/YAML 清单目录，
//     支持 size/digest 元数据、Reload 与代次计数
//   - Watcher: 基于 fsnotify 的清单文件监视器，变更后防抖自动重载
//   - Resolver: 传递依赖闭包解析器，拓扑有序输出、环检测、
//     可选的 LRU 闭包备忘
//
// # 清单格式
//
//	packages:
//	  level01:
//	    deps: [textures, audio]
//	    size: 1048576
//	    digest: "4c2e9fb1a0d83b77"
//	  textures:
//	    deps: []
//
// digest 为载荷的 xxhash64 十六进制值，供 xloader 校验使用；
// size 为记账大小提示。两者均可省略。
//
// # 错误语义
//
// 目录中不存在的 key 返回 ErrUnknownPackage；
// 依赖图中出现环返回 *CycleError（可用 errors.Is 匹配
// ErrCyclicDependency），并在错误中给出环路径。
//
// # 并发安全
//
// 所有类型的方法都是并发安全的。Manifest 的 Reload 原子替换
// 内部表，读操作要么看到旧表要么看到新表。
package xcatalog
