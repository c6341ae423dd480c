package xcatalog

import (
	"fmt"
	"slices"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// =============================================================================
// Resolver 配置选项
// =============================================================================

// ResolverOptions 定义解析器的配置选项。
type ResolverOptions struct {
	// MemoSize 闭包备忘缓存的容量（条目数）。
	// 0 表示禁用备忘。备忘对可重载目录（Versioned）按代次自动失效。
	// 默认为 0。
	MemoSize int
}

// ResolverOption 定义配置解析器的函数类型。
type ResolverOption func(*ResolverOptions)

// WithMemoSize 设置闭包备忘缓存容量，0 禁用。
func WithMemoSize(size int) ResolverOption {
	return func(o *ResolverOptions) {
		if size > 0 {
			o.MemoSize = size
		}
	}
}

// =============================================================================
// Resolver 实现
// =============================================================================

// Resolver 计算包的传递依赖闭包。
//
// Resolve 输出拓扑有序的依赖序列（被依赖者在前），不含请求的 key 本身，
// 适合"先加载依赖、再加载自身"的处理顺序。遍历使用显式栈而非递归，
// 深依赖链不会耗尽调用栈；重访活动路径上的 key 时返回 *CycleError。
//
// 所有方法并发安全。
type Resolver struct {
	catalog Catalog
	memo    *lru.Cache[string, []string]
	memoGen atomic.Uint64
}

// NewResolver 创建依赖解析器。
func NewResolver(catalog Catalog, opts ...ResolverOption) (*Resolver, error) {
	if catalog == nil {
		return nil, ErrNilCatalog
	}

	options := &ResolverOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	r := &Resolver{catalog: catalog}

	if options.MemoSize > 0 {
		memo, err := lru.New[string, []string](options.MemoSize)
		if err != nil {
			return nil, fmt.Errorf("xcatalog: create memo cache: %w", err)
		}
		r.memo = memo
	}

	return r, nil
}

// Resolve 返回 key 的传递依赖闭包，拓扑有序且不含 key 本身。
// key 或其任何传递依赖不在目录中时返回 ErrUnknownPackage；
// 依赖图存在环时返回 *CycleError。
// 返回的切片归调用方所有。
func (r *Resolver) Resolve(key string) ([]string, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	r.invalidateStale()

	if r.memo != nil {
		if closure, ok := r.memo.Get(key); ok {
			return slices.Clone(closure), nil
		}
	}

	closure, err := r.traverse(key)
	if err != nil {
		return nil, err
	}

	if r.memo != nil {
		r.memo.Add(key, slices.Clone(closure))
	}
	return closure, nil
}

// invalidateStale 在目录代次变更后清空备忘。
// 两个 goroutine 并发清空是良性竞态：最坏情况是多清一次。
func (r *Resolver) invalidateStale() {
	if r.memo == nil {
		return
	}
	v, ok := r.catalog.(Versioned)
	if !ok {
		return
	}
	gen := v.Generation()
	if r.memoGen.Load() != gen {
		r.memo.Purge()
		r.memoGen.Store(gen)
	}
}

// 遍历着色标记。
const (
	colorGray  = 1 // 在活动路径上
	colorBlack = 2 // 闭包已完整输出
)

// frame 是显式 DFS 栈的一帧。
type frame struct {
	key  string
	deps []string
	next int
}

// traverse 以显式栈做后序 DFS，产出拓扑序（被依赖者在前）。
// 后序保证：一个 key 在其全部依赖输出之后才被输出；
// root 恰好最后输出，截掉即得到"不含自身"的闭包。
func (r *Resolver) traverse(root string) ([]string, error) {
	color := make(map[string]uint8)
	var order []string
	var stack []frame

	push := func(key string) error {
		deps, err := r.catalog.DependenciesOf(key)
		if err != nil {
			return err
		}
		color[key] = colorGray
		stack = append(stack, frame{key: key, deps: deps})
		return nil
	}

	if err := push(root); err != nil {
		return nil, err
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if top.next >= len(top.deps) {
			color[top.key] = colorBlack
			order = append(order, top.key)
			stack = stack[:len(stack)-1]
			continue
		}

		dep := top.deps[top.next]
		top.next++

		switch color[dep] {
		case colorBlack:
			// 已输出，跳过
		case colorGray:
			return nil, cycleFrom(stack, dep)
		default:
			if err := push(dep); err != nil {
				return nil, fmt.Errorf("resolving %s: %w", root, err)
			}
		}
	}

	// 后序输出的最后一项必然是 root 自身
	return order[:len(order)-1], nil
}

// cycleFrom 从当前栈构造环路径：从 dep 在栈中的首次出现到栈顶，再回到 dep。
func cycleFrom(stack []frame, dep string) error {
	start := 0
	for i, f := range stack {
		if f.key == dep {
			start = i
			break
		}
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		path = append(path, f.key)
	}
	path = append(path, dep)
	return &CycleError{Path: path}
}
