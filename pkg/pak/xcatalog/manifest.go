package xcatalog

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 清单格式。
type Format string

// 支持的清单格式。
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// koanfDelim 是 koanf 的路径分隔符。
// 包 key 可能包含 "/"（目录式命名）但不应包含 "."；
// 为避免 key 被切分，这里使用包 key 中不会出现的分隔符。
const koanfDelim = "\x00"

// manifestDoc 是清单文件的反序列化结构。
type manifestDoc struct {
	Packages map[string]manifestEntry `koanf:"packages"`
}

// manifestEntry 是清单中单个包的原始条目。
type manifestEntry struct {
	Deps   []string `koanf:"deps"`
	Size   int64    `koanf:"size"`
	Digest string   `koanf:"digest"`
}

// packageMeta 是解析后的包元数据。
type packageMeta struct {
	deps      []string
	size      int64
	digest    uint64
	hasDigest bool
}

// =============================================================================
// Manifest 实现
// =============================================================================

// Manifest 是基于清单文件的目录实现。
// 除 Catalog 能力外还提供 size 提示与 xxhash64 摘要
// （实现 xloader.DigestSource），并支持 Reload 热重载。
//
// Reload 原子替换内部表并递增代次；读操作要么看到旧表要么看到新表。
type Manifest struct {
	mu      sync.RWMutex
	table   map[string]packageMeta
	path    string
	format  Format
	isBytes bool
	gen     atomic.Uint64
}

var _ Catalog = (*Manifest)(nil)
var _ Versioned = (*Manifest)(nil)

// NewManifest 从清单文件创建目录。
// 根据扩展名自动检测格式（.yaml/.yml 或 .json）。
func NewManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	format, err := detectFormat(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	table, err := parseManifest(data, format)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		table:  table,
		path:   path,
		format: format,
	}
	m.gen.Store(1)
	return m, nil
}

// NewManifestFromBytes 从字节数据创建目录，需显式指定格式。
// 适用于内嵌清单或配置中心下发的场景；不支持 Reload 与监视。
func NewManifestFromBytes(data []byte, format Format) (*Manifest, error) {
	if !isValidFormat(format) {
		return nil, ErrUnsupportedFormat
	}

	table, err := parseManifest(data, format)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		table:   table,
		format:  format,
		isBytes: true,
	}
	m.gen.Store(1)
	return m, nil
}

// DependenciesOf 实现 Catalog 接口。
func (m *Manifest) DependenciesOf(key string) ([]string, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	m.mu.RLock()
	meta, ok := m.table[key]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPackage, key)
	}
	return slices.Clone(meta.deps), nil
}

// SizeOf 返回清单中记录的包大小提示。
// 未记录（或 key 不存在）时返回 (0, false)。
func (m *Manifest) SizeOf(key string) (int64, bool) {
	m.mu.RLock()
	meta, ok := m.table[key]
	m.mu.RUnlock()

	if !ok || meta.size <= 0 {
		return 0, false
	}
	return meta.size, true
}

// Digest 返回清单中记录的包载荷 xxhash64 摘要。
// 未记录（或 key 不存在）时返回 (0, false)。
// 该方法使 Manifest 满足 xloader.DigestSource。
func (m *Manifest) Digest(key string) (uint64, bool) {
	m.mu.RLock()
	meta, ok := m.table[key]
	m.mu.RUnlock()

	if !ok || !meta.hasDigest {
		return 0, false
	}
	return meta.digest, true
}

// Keys 返回清单中所有包 key，按字典序排列。
func (m *Manifest) Keys() []string {
	m.mu.RLock()
	keys := make([]string, 0, len(m.table))
	for k := range m.table {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	slices.Sort(keys)
	return keys
}

// Len 返回清单中的包数量。
func (m *Manifest) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.table)
}

// Reload 重新读取并解析清单文件。
// 解析失败时保留旧表，代次不变。
func (m *Manifest) Reload() error {
	if m.isBytes {
		return ErrNotReloadable
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}

	table, err := parseManifest(data, m.format)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.table = table
	m.mu.Unlock()
	m.gen.Add(1)

	return nil
}

// Generation 实现 Versioned 接口。
func (m *Manifest) Generation() uint64 {
	return m.gen.Load()
}

// Path 返回清单文件路径（从字节创建时为空）。
func (m *Manifest) Path() string {
	return m.path
}

// Format 返回清单格式。
func (m *Manifest) Format() Format {
	return m.format
}

// =============================================================================
// 内部辅助函数
// =============================================================================

// detectFormat 根据文件扩展名检测清单格式。
func detectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %s", ErrUnsupportedFormat, ext)
	}
}

// isValidFormat 检查格式是否有效。
func isValidFormat(format Format) bool {
	switch format {
	case FormatYAML, FormatJSON:
		return true
	default:
		return false
	}
}

// parseManifest 解析清单数据为包元数据表。
func parseManifest(data []byte, format Format) (map[string]packageMeta, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return nil, ErrUnsupportedFormat
	}

	k := koanf.New(koanfDelim)
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}

	var doc manifestDoc
	if err := k.UnmarshalWithConf("", &doc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	table := make(map[string]packageMeta, len(doc.Packages))
	for key, entry := range doc.Packages {
		if key == "" {
			return nil, fmt.Errorf("%w: empty package key", ErrParseFailed)
		}
		meta := packageMeta{
			deps: slices.Clone(entry.Deps),
			size: entry.Size,
		}
		if entry.Digest != "" {
			digest, err := strconv.ParseUint(entry.Digest, 16, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: package %s: %q", ErrInvalidDigest, key, entry.Digest)
			}
			meta.digest = digest
			meta.hasDigest = true
		}
		table[key] = meta
	}

	return table, nil
}
