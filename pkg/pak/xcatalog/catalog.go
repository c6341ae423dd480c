package xcatalog

import (
	"fmt"
	"slices"
)

// =============================================================================
// Catalog 接口定义
// =============================================================================

// Catalog 定义包目录能力：包 key 到其直接依赖 key 的只读映射。
// 纯查询，不涉及任何加载。
type Catalog interface {
	// DependenciesOf 返回包的直接依赖 key 序列（顺序稳定）。
	// key 不在目录中时返回 ErrUnknownPackage。
	// 返回的切片归调用方所有，可自由修改。
	DependenciesOf(key string) ([]string, error)
}

// Versioned 是目录的可选扩展：可重载的目录通过代次计数
// 暴露内容变更，供 Resolver 使闭包备忘失效。
type Versioned interface {
	// Generation 返回目录内容的代次。
	// 每次内容成功变更（如 Reload）后单调递增。
	Generation() uint64
}

// =============================================================================
// Static 实现
// =============================================================================

// Static 是不可变内存目录。构造后只读，所有方法并发安全。
type Static struct {
	deps map[string][]string
}

var _ Catalog = (*Static)(nil)

// NewStatic 创建静态目录。
// deps 的键与值均被深拷贝；依赖引用的 key 不要求本身出现在目录中
// （完整性校验属于 Resolver / xpakctl verify 的职责）。
func NewStatic(deps map[string][]string) *Static {
	cloned := make(map[string][]string, len(deps))
	for k, v := range deps {
		cloned[k] = slices.Clone(v)
	}
	return &Static{deps: cloned}
}

// DependenciesOf 实现 Catalog 接口。
func (s *Static) DependenciesOf(key string) ([]string, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	deps, ok := s.deps[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, key)
	}
	return slices.Clone(deps), nil
}

// Keys 返回目录中所有包 key，按字典序排列。
func (s *Static) Keys() []string {
	keys := make([]string, 0, len(s.deps))
	for k := range s.deps {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
