package xcatalog

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownPackage 表示目录中不存在指定 key 的包。
	ErrUnknownPackage = errors.New("xcatalog: unknown package")

	// ErrCyclicDependency 表示依赖图中存在环。
	// 具体环路径通过 *CycleError 给出。
	ErrCyclicDependency = errors.New("xcatalog: cyclic dependency")

	// ErrEmptyKey 表示包 key 为空。
	ErrEmptyKey = errors.New("xcatalog: key must not be empty")

	// ErrNilCatalog 表示目录为 nil。
	ErrNilCatalog = errors.New("xcatalog: catalog is nil")

	// ErrEmptyPath 表示清单文件路径为空。
	ErrEmptyPath = errors.New("xcatalog: manifest path must not be empty")

	// ErrUnsupportedFormat 表示清单格式不受支持。
	ErrUnsupportedFormat = errors.New("xcatalog: unsupported manifest format")

	// ErrParseFailed 表示清单解析失败。
	ErrParseFailed = errors.New("xcatalog: manifest parse failed")

	// ErrLoadFailed 表示清单文件读取失败。
	ErrLoadFailed = errors.New("xcatalog: manifest load failed")

	// ErrInvalidDigest 表示清单中的 digest 字段不是合法的 xxhash64 十六进制值。
	ErrInvalidDigest = errors.New("xcatalog: invalid digest")

	// ErrNotReloadable 表示从字节数据创建的清单不支持 Reload 或监视。
	ErrNotReloadable = errors.New("xcatalog: manifest created from bytes cannot reload")
)

// CycleError 携带依赖环的具体路径。
// Path 形如 [a b c a]：首尾相同，依序给出环上的每条边。
type CycleError struct {
	Path []string
}

// Error 实现 error 接口。
func (e *CycleError) Error() string {
	return "xcatalog: cyclic dependency: " + strings.Join(e.Path, " -> ")
}

// Unwrap 支持 errors.Is(err, ErrCyclicDependency) 匹配。
func (e *CycleError) Unwrap() error {
	return ErrCyclicDependency
}
