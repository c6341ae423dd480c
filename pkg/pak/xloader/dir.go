package xloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// =============================================================================
// Dir 配置选项
// =============================================================================

// DirOptions 定义目录加载器的配置选项。
type DirOptions struct {
	// ZstdExt 压缩包文件的扩展名。
	// 非空时，若 root/key 不存在则尝试 root/key+ZstdExt 并做 zstd 解压。
	// 默认为空（不启用解压）。
	ZstdExt string

	// Digests 期望摘要来源。
	// 非 nil 时，对解压后的载荷字节计算 xxhash64 并与之比对，
	// 不一致返回 ErrDigestMismatch。未记录摘要的 key 跳过校验。
	Digests DigestSource

	// Logger 用于记录警告日志。
	// 默认使用 slog.Default()，传入 nil 禁用日志。
	Logger *slog.Logger
}

// DirOption 定义配置目录加载器的函数类型。
type DirOption func(*DirOptions)

// WithZstdExt 设置压缩包文件扩展名，启用 zstd 解压回退。
// 常用值为 ".zst"。
func WithZstdExt(ext string) DirOption {
	return func(o *DirOptions) {
		o.ZstdExt = ext
	}
}

// WithDigests 设置期望摘要来源，启用载荷完整性校验。
func WithDigests(ds DigestSource) DirOption {
	return func(o *DirOptions) {
		o.Digests = ds
	}
}

// WithDirLogger 设置自定义 Logger。
// 传入 nil 将禁用日志输出。
func WithDirLogger(logger *slog.Logger) DirOption {
	return func(o *DirOptions) {
		o.Logger = logger
	}
}

// =============================================================================
// Dir 实现
// =============================================================================

// Dir 从本地目录加载内容包。
// key 被解释为 root 下的相对路径，内置路径穿越防护：
// 拒绝绝对路径、".." 路径段与空字节。
// 所有方法并发安全。
type Dir struct {
	root    string
	opts    *DirOptions
	decoder *zstd.Decoder
	closed  atomic.Bool
}

var _ Loader = (*Dir)(nil)

// NewDir 创建目录加载器。
// root 必须是绝对路径。
func NewDir(root string, opts ...DirOption) (*Dir, error) {
	if root == "" || !filepath.IsAbs(root) {
		return nil, ErrEmptyRoot
	}

	options := &DirOptions{Logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	d := &Dir{
		root: filepath.Clean(root),
		opts: options,
	}

	if options.ZstdExt != "" {
		// 仅使用 DecodeAll 同步解码，不做流式读取
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("xloader: create zstd decoder: %w", err)
		}
		d.decoder = dec
	}

	return d, nil
}

// Load 实现 Loader 接口。
func (d *Dir) Load(ctx context.Context, key string) (Payload, error) {
	if d.closed.Load() {
		return Payload{}, ErrClosed
	}
	if key == "" {
		return Payload{}, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return Payload{}, err
	}

	rel, err := safeRelPath(key)
	if err != nil {
		return Payload{}, err
	}
	full := filepath.Join(d.root, rel)

	data, compressed, err := d.readFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Payload{}, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return Payload{}, fmt.Errorf("xloader: read %s: %w", key, err)
	}

	if compressed {
		data, err = d.decoder.DecodeAll(data, nil)
		if err != nil {
			return Payload{}, fmt.Errorf("xloader: decompress %s: %w", key, err)
		}
	}

	if err := d.verifyDigest(key, data); err != nil {
		return Payload{}, err
	}

	return Payload{Data: data}, nil
}

// Close 释放解码器资源。幂等。
func (d *Dir) Close() error {
	if d.closed.CompareAndSwap(false, true) && d.decoder != nil {
		d.decoder.Close()
	}
	return nil
}

// readFile 读取包文件，必要时回退到压缩文件。
// 返回 (数据, 是否来自压缩文件, 错误)。
func (d *Dir) readFile(full string) ([]byte, bool, error) {
	data, err := os.ReadFile(full)
	if err == nil {
		return data, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) || d.opts.ZstdExt == "" {
		return nil, false, err
	}
	data, zerr := os.ReadFile(full + d.opts.ZstdExt)
	if zerr != nil {
		// 两个候选都不存在时报告原始（未压缩）路径的错误
		if errors.Is(zerr, fs.ErrNotExist) {
			return nil, false, err
		}
		return nil, false, zerr
	}
	return data, true, nil
}

// verifyDigest 校验载荷摘要（如配置了 Digests）。
func (d *Dir) verifyDigest(key string, data []byte) error {
	if d.opts.Digests == nil {
		return nil
	}
	want, ok := d.opts.Digests.Digest(key)
	if !ok {
		return nil
	}
	got := xxhash.Sum64(data)
	if got != want {
		d.logWarn("xloader: digest mismatch", "key", key, "want", want, "got", got)
		return fmt.Errorf("%w: %s: want %016x got %016x", ErrDigestMismatch, key, want, got)
	}
	return nil
}

func (d *Dir) logWarn(msg string, args ...any) {
	if d.opts.Logger != nil {
		d.opts.Logger.Warn(msg, args...)
	}
}

// =============================================================================
// key → 路径 安全映射
// =============================================================================

// safeRelPath 将包 key 净化为 root 下的安全相对路径。
// 拒绝空字节、绝对路径（含 Windows 形式）与 ".." 路径段。
func safeRelPath(key string) (string, error) {
	if strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: key contains null byte", ErrInvalidKey)
	}
	if filepath.IsAbs(key) || isWindowsAbsPath(key) {
		return "", fmt.Errorf("%w: key must be a relative path", ErrInvalidKey)
	}
	cleaned := filepath.Clean(key)
	if hasDotDotSegment(cleaned) {
		return "", fmt.Errorf("%w: path traversal in key", ErrInvalidKey)
	}
	if cleaned == "." {
		return "", fmt.Errorf("%w: key resolves to empty path", ErrInvalidKey)
	}
	return cleaned, nil
}

// isWindowsAbsPath 检测 Windows 风格的绝对或驱动器相关路径。
// 在非 Windows 平台上 filepath.IsAbs 不识别 "C:\..." 或 "\\server\..."，
// 需要显式检测以防止跨平台场景下的防护绕过。
func isWindowsAbsPath(path string) bool {
	if len(path) >= 2 && isASCIILetter(path[0]) && path[1] == ':' {
		return true
	}
	return len(path) >= 1 && path[0] == '\\'
}

func isASCIILetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// hasDotDotSegment 检测路径中是否包含 ".." 作为独立路径段。
// 同时将 '/' 和 '\' 视为分隔符，以检测 Windows 风格路径穿越。
// 不使用 strings.Contains，避免误伤合法文件名（如 "pak..2024"）。
func hasDotDotSegment(path string) bool {
	i := 0
	for i < len(path) {
		if path[i] == '/' || path[i] == '\\' {
			i++
			continue
		}
		j := i
		for j < len(path) && path[j] != '/' && path[j] != '\\' {
			j++
		}
		if j-i == 2 && path[i] == '.' && path[i+1] == '.' {
			return true
		}
		i = j
	}
	return false
}
