package xloader

import (
	"context"
	"errors"

	"github.com/sony/gobreaker/v2"
)

// Breaker 是 Loader 的熔断装饰器，基于 sony/gobreaker 实现。
// 适合包仓库位于不稳定远端（Redis、对象存储）时防止故障扩散。
//
// 设计决策: ErrNotFound 不计为失败——key 不存在是数据问题而非传输故障，
// 大量未知 key 不应触发熔断导致健康仓库被切断。
type Breaker struct {
	next Loader
	cb   *gobreaker.CircuitBreaker[Payload]
}

var _ Loader = (*Breaker)(nil)

// NewBreaker 创建熔断装饰器。
// st 为 gobreaker 原生配置；st.Name 为空时使用 "xloader"；
// st.IsSuccessful 为 nil 时使用默认判定（ErrNotFound 与 ctx 取消视为成功）。
func NewBreaker(next Loader, st gobreaker.Settings) (*Breaker, error) {
	if next == nil {
		return nil, ErrNilLoader
	}

	if st.Name == "" {
		st.Name = "xloader"
	}
	if st.IsSuccessful == nil {
		st.IsSuccessful = func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		}
	}

	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[Payload](st),
	}, nil
}

// Load 实现 Loader 接口。
// 熔断打开时返回 gobreaker.ErrOpenState。
func (b *Breaker) Load(ctx context.Context, key string) (Payload, error) {
	return b.cb.Execute(func() (Payload, error) {
		return b.next.Load(ctx, key)
	})
}

// State 返回当前熔断器状态，用于观测。
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
