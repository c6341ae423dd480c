package xasset

import "errors"

// 预定义错误变量，便于调用方使用 errors.Is 进行判断。
var (
	// ErrNilManager 包缓存管理器为 nil。
	ErrNilManager = errors.New("xasset: nil manager")

	// ErrNilDecoder 解码函数为 nil。
	ErrNilDecoder = errors.New("xasset: nil decoder")

	// ErrEmptyKey 包 key 为空。
	ErrEmptyKey = errors.New("xasset: empty package key")

	// ErrEmptyName 资产名为空。
	ErrEmptyName = errors.New("xasset: empty asset name")

	// ErrDecodeFailed 资产解码失败。
	ErrDecodeFailed = errors.New("xasset: decode failed")

	// ErrClosed 缓存已关闭。
	ErrClosed = errors.New("xasset: cache is closed")
)
