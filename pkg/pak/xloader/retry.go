package xloader

import (
	"context"
	"errors"

	retry "github.com/avast/retry-go/v5"
)

// Retry 是 Loader 的重试装饰器，基于 avast/retry-go 实现。
//
// 默认策略：
//   - ErrNotFound 与 context 取消/超时不重试（重试不会改变结果）
//   - 仅返回最后一次错误（LastErrorOnly）
//   - 其余行为（次数、退避）沿用 retry-go 默认值，可通过 opts 覆盖
type Retry struct {
	next Loader
	opts []retry.Option
}

var _ Loader = (*Retry)(nil)

// NewRetry 创建重试装饰器。
// opts 直接透传给 retry-go，追加在默认策略之后，可覆盖默认值。
func NewRetry(next Loader, opts ...retry.Option) (*Retry, error) {
	if next == nil {
		return nil, ErrNilLoader
	}

	base := []retry.Option{
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrNotFound) &&
				!errors.Is(err, ErrDigestMismatch) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}),
		retry.LastErrorOnly(true),
	}

	return &Retry{next: next, opts: append(base, opts...)}, nil
}

// Load 实现 Loader 接口。
func (r *Retry) Load(ctx context.Context, key string) (Payload, error) {
	opts := make([]retry.Option, 0, len(r.opts)+1)
	opts = append(opts, r.opts...)
	opts = append(opts, retry.Context(ctx))

	return retry.NewWithData[Payload](opts...).Do(func() (Payload, error) {
		return r.next.Load(ctx, key)
	})
}
