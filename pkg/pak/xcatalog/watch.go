package xcatalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchCallback 清单重载回调。
// 每次自动 Reload 后调用一次；err 非 nil 表示本次重载失败，
// 此时目录仍持有上一份有效的包表。
type WatchCallback func(m *Manifest, err error)

// WatchOption 监视器配置选项。
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
}

func defaultWatchOptions() *watchOptions {
	return &watchOptions{
		debounce: 100 * time.Millisecond,
	}
}

// WithDebounce 设置重载防抖窗口。
// 发布工具往往对清单做多次连续写入，窗口内的事件合并为一次 Reload。
// 默认 100ms。
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) {
		o.debounce = d
	}
}

// Watcher 在清单文件变更时自动触发 Manifest.Reload。
// 重载成功会递增目录代次，共享该目录的 Resolver 随之丢弃过期的闭包备忘，
// 因此热更新对上层缓存是无感的。
type Watcher struct {
	manifest *Manifest
	watcher  *fsnotify.Watcher
	callback WatchCallback
	debounce time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	running  bool
	timer    *time.Timer // 防抖定时器，Stop() 时需要取消
}

// Watch 创建清单监视器。
// m 必须来自 NewManifest（从字节创建的清单没有可监视的文件，
// 返回 ErrNotReloadable）。创建后调用 StartAsync 开始监视，Stop 停止。
func Watch(m *Manifest, callback WatchCallback, opts ...WatchOption) (*Watcher, error) {
	if m == nil {
		return nil, ErrNilCatalog
	}
	if m.isBytes || m.path == "" {
		return nil, ErrNotReloadable
	}

	options := defaultWatchOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("xcatalog: failed to create watcher: %w", err)
	}

	// 监视的是清单所在目录。发布流水线通常以"写临时文件 + rename"
	// 原子替换清单，旧文件的 inode 随之失效，挂在文件本身的监视会断掉；
	// 目录级监视对替换与重建都稳定。
	dir := filepath.Dir(m.path)
	if err := fsWatcher.Add(dir); err != nil {
		closeErr := fsWatcher.Close()
		return nil, errors.Join(
			fmt.Errorf("xcatalog: failed to watch directory %s: %w", dir, err),
			closeErr,
		)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		manifest: m,
		watcher:  fsWatcher,
		callback: callback,
		debounce: options.debounce,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// StartAsync 在后台 goroutine 中开始监视，立即返回。重复调用无效果。
// running 标志在 goroutine 启动前置位，避免与 Stop 的竞态。
func (w *Watcher) StartAsync() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run()
}

// Stop 停止监视并释放底层资源。幂等。
// 已进入防抖窗口但尚未触发的重载一并取消。
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}

	w.cancel()
	w.running = false
	return w.watcher.Close()
}

// run 消费目录事件直至 Stop。
func (w *Watcher) run() {
	filename := filepath.Base(w.manifest.path)

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if isManifestRewrite(event, filename) {
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.callback != nil {
				w.callback(w.manifest, fmt.Errorf("xcatalog: watch error: %w", err))
			}
		}
	}
}

// isManifestRewrite 判断目录事件是否意味着清单内容更新。
// 覆盖三种写入方式：就地写（Write）、删后重建（Create）、
// 临时文件 rename 原子替换（Rename/Create，依平台而异）。
func isManifestRewrite(event fsnotify.Event, filename string) bool {
	if filepath.Base(event.Name) != filename {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}

// scheduleReload 重置防抖定时器；窗口结束后执行一次 Reload 并通知回调。
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		err := w.manifest.Reload()
		if w.callback != nil {
			w.callback(w.manifest, err)
		}
	})
}
