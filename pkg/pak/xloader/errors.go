package xloader

import "errors"

var (
	// ErrNotFound 表示加载源中不存在指定 key 的包。
	ErrNotFound = errors.New("xloader: package not found")

	// ErrEmptyKey 表示包 key 为空。
	ErrEmptyKey = errors.New("xloader: key must not be empty")

	// ErrInvalidKey 表示包 key 无法映射为安全的路径
	// （绝对路径、路径穿越、空字节等）。
	ErrInvalidKey = errors.New("xloader: invalid key")

	// ErrNilLoader 表示被装饰的 Loader 为 nil。
	ErrNilLoader = errors.New("xloader: loader is nil")

	// ErrNilClient 表示 Redis 客户端为 nil。
	ErrNilClient = errors.New("xloader: redis client is nil")

	// ErrEmptyRoot 表示目录加载器的根目录为空或不是绝对路径。
	ErrEmptyRoot = errors.New("xloader: root must be an absolute path")

	// ErrDigestMismatch 表示载荷字节与清单中记录的摘要不一致。
	ErrDigestMismatch = errors.New("xloader: payload digest mismatch")

	// ErrClosed 表示加载器已关闭。
	ErrClosed = errors.New("xloader: loader is closed")
)
