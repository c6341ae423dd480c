package xloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// =============================================================================
// Redis 配置选项
// =============================================================================

// RedisOptions 定义 Redis 加载器的配置选项。
type RedisOptions struct {
	// KeyPrefix 包 key 在 Redis 中的前缀。
	// 最终键为 KeyPrefix+key。默认为 "pak:"。
	KeyPrefix string
}

// RedisOption 定义配置 Redis 加载器的函数类型。
type RedisOption func(*RedisOptions)

// WithKeyPrefix 设置包 key 的 Redis 前缀。
func WithKeyPrefix(prefix string) RedisOption {
	return func(o *RedisOptions) {
		o.KeyPrefix = prefix
	}
}

// =============================================================================
// Redis 实现
// =============================================================================

// Redis 从 Redis 加载内容包（GET KeyPrefix+key）。
// 适合远端包仓库场景；不稳定网络下建议叠加 NewRetry 或 NewBreaker 装饰。
// 客户端生命周期由调用方管理，本加载器不负责 Close。
type Redis struct {
	client redis.UniversalClient
	opts   *RedisOptions
}

var _ Loader = (*Redis)(nil)

// NewRedis 创建 Redis 加载器。
func NewRedis(client redis.UniversalClient, opts ...RedisOption) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	options := &RedisOptions{KeyPrefix: "pak:"}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	return &Redis{client: client, opts: options}, nil
}

// Load 实现 Loader 接口。
func (r *Redis) Load(ctx context.Context, key string) (Payload, error) {
	if key == "" {
		return Payload{}, ErrEmptyKey
	}

	data, err := r.client.Get(ctx, r.opts.KeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Payload{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Payload{}, fmt.Errorf("xloader: redis get %s: %w", key, err)
	}

	return Payload{Data: data}, nil
}
