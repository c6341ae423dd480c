package xloader

import (
	"context"
	"fmt"
)

// =============================================================================
// Loader 接口定义
// =============================================================================

// Payload 是一次加载产出的包载荷。
// Data 是载荷字节；Size 是记账大小（字节），
// Size <= 0 时以 len(Data) 计。
//
// 重要：Payload 进入缓存并发布为 Resident 后，
// 所有 Handle 持有者共享同一份字节，任何一方都不得原地修改。
type Payload struct {
	Data []byte
	Size int64
}

// SizeBytes 返回用于缓存记账的载荷大小。
func (p Payload) SizeBytes() int64 {
	if p.Size > 0 {
		return p.Size
	}
	return int64(len(p.Data))
}

// Loader 定义包加载能力。
// 给定包 key，产出载荷字节或失败；实现可能涉及磁盘或网络 I/O，
// 应尊重 ctx 的取消信号。
//
// Loader 自身不承诺重试；需要重试时用 NewRetry 显式装饰。
type Loader interface {
	// Load 加载指定 key 的包载荷。
	// key 不存在时返回 ErrNotFound。
	Load(ctx context.Context, key string) (Payload, error)
}

// DigestSource 提供包载荷的期望摘要（xxhash64）。
// 通常由清单目录（xcatalog.Manifest）实现。
// 返回 false 表示该 key 没有记录摘要，跳过校验。
type DigestSource interface {
	Digest(key string) (uint64, bool)
}

// Func 是 Loader 的函数适配器。
type Func func(ctx context.Context, key string) (Payload, error)

// Load 实现 Loader 接口。
func (f Func) Load(ctx context.Context, key string) (Payload, error) {
	return f(ctx, key)
}

// =============================================================================
// Static 实现
// =============================================================================

// Static 是内存映射表加载器，适合内嵌资源与测试场景。
// 构造后只读，所有方法并发安全。
type Static struct {
	packages map[string][]byte
}

var _ Loader = (*Static)(nil)

// NewStatic 创建静态加载器。
// packages 会被浅拷贝，后续修改原 map 不影响加载器；
// 但值切片不拷贝，调用方不得在传入后修改。
func NewStatic(packages map[string][]byte) *Static {
	cloned := make(map[string][]byte, len(packages))
	for k, v := range packages {
		cloned[k] = v
	}
	return &Static{packages: cloned}
}

// Load 实现 Loader 接口。
func (s *Static) Load(ctx context.Context, key string) (Payload, error) {
	if key == "" {
		return Payload{}, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return Payload{}, err
	}
	data, ok := s.packages[key]
	if !ok {
		return Payload{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return Payload{Data: data}, nil
}
