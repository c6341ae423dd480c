package xpak

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xpak/pkg/pak/xcatalog"
	"github.com/omeyang/xpak/pkg/pak/xloader"
)

// newTestManager 构造静态目录 + 静态加载器的测试管理器。
func newTestManager(t *testing.T, deps map[string][]string, data map[string][]byte, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(nil)}, opts...)
	mgr, err := New(xcatalog.NewStatic(deps), xloader.NewStatic(data), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

// payload 生成指定大小的载荷字节。
func payload(size int) []byte {
	return bytes.Repeat([]byte{'x'}, size)
}

// =============================================================================
// 构造测试
// =============================================================================

func TestNew_WithNilCatalog_ReturnsError(t *testing.T) {
	_, err := New(nil, xloader.NewStatic(nil))
	assert.ErrorIs(t, err, ErrNilCatalog)
}

func TestNew_WithNilLoader_ReturnsError(t *testing.T) {
	_, err := New(xcatalog.NewStatic(nil), nil)
	assert.ErrorIs(t, err, ErrNilLoader)
}

func TestNew_WithInvalidBudget_ReturnsError(t *testing.T) {
	_, err := New(xcatalog.NewStatic(nil), xloader.NewStatic(nil),
		WithBudget(10, 20))
	assert.ErrorIs(t, err, ErrInvalidBudget)
}

func TestNew_WithBudget_DerivesLowWaterDefault(t *testing.T) {
	mgr := newTestManager(t, nil, nil, WithBudget(1000, 0))
	assert.Equal(t, int64(800), mgr.opts.LowWater)
}

// =============================================================================
// Acquire 基本行为
// =============================================================================

func TestManager_Acquire_WithEmptyKey_ReturnsError(t *testing.T) {
	mgr := newTestManager(t, nil, nil)

	_, err := mgr.Acquire(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestManager_Acquire_WithUnknownKey_ReturnsError(t *testing.T) {
	mgr := newTestManager(t, nil, nil)

	_, err := mgr.Acquire(context.Background(), "ghost")
	assert.ErrorIs(t, err, xcatalog.ErrUnknownPackage)
}

func TestManager_Acquire_LoadsClosureAndReturnsHandle(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{
			"level01":  {"textures", "audio"},
			"textures": nil,
			"audio":    nil,
		},
		map[string][]byte{
			"level01":  payload(30),
			"textures": payload(20),
			"audio":    payload(10),
		},
	)

	h, err := mgr.Acquire(context.Background(), "level01")
	require.NoError(t, err)
	defer h.Release()

	assert.Equal(t, "level01", h.Key())
	assert.Equal(t, []string{"textures", "audio"}, h.Deps())
	assert.NotEmpty(t, h.Token())
	assert.Len(t, h.Data(), 30)

	assert.True(t, mgr.IsResident("level01"))
	assert.True(t, mgr.IsResident("textures"))
	assert.True(t, mgr.IsResident("audio"))
	assert.Equal(t, int64(60), mgr.ResidentSize())

	size, ok := mgr.SizeOf("textures")
	assert.True(t, ok)
	assert.Equal(t, int64(20), size)
}

func TestManager_Acquire_SecondCall_IsHit(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"a": {"b"}, "b": nil},
		map[string][]byte{"a": payload(1), "b": payload(1)},
	)

	h1, err := mgr.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer h1.Release()

	stats := mgr.Stats()
	assert.Equal(t, uint64(0), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)

	h2, err := mgr.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer h2.Release()

	stats = mgr.Stats()
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
}

func TestManager_Acquire_WithCyclicDeps_LeavesNothingResident(t *testing.T) {
	var loads atomic.Int64
	loader := xloader.Func(func(_ context.Context, _ string) (xloader.Payload, error) {
		loads.Add(1)
		return xloader.Payload{Data: payload(1)}, nil
	})
	mgr, err := New(xcatalog.NewStatic(map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}), loader, WithLogger(nil))
	require.NoError(t, err)
	defer mgr.Close()

	_, err = mgr.Acquire(context.Background(), "a")
	assert.ErrorIs(t, err, xcatalog.ErrCyclicDependency)

	// 解析阶段就失败：不触发任何加载，不留任何常驻条目
	assert.Equal(t, int64(0), loads.Load())
	assert.Equal(t, int64(0), mgr.ResidentSize())
	assert.Equal(t, 0, mgr.Stats().Resident)
}

func TestManager_Acquire_WithFailingDep_RollsBackAcquiredRefs(t *testing.T) {
	loader := xloader.Func(func(_ context.Context, key string) (xloader.Payload, error) {
		if key == "lib2" {
			return xloader.Payload{}, errors.New("storage offline")
		}
		return xloader.Payload{Data: payload(10)}, nil
	})
	mgr, err := New(xcatalog.NewStatic(map[string][]string{
		"app":  {"lib1", "lib2"},
		"lib1": nil,
		"lib2": nil,
	}), loader, WithLogger(nil))
	require.NoError(t, err)
	defer mgr.Close()

	_, err = mgr.Acquire(context.Background(), "app")
	assert.ErrorIs(t, err, ErrLoadFailed)

	// lib1 的引用已回滚：保持常驻但可被完整回收
	freed, err := mgr.EvictNow()
	require.NoError(t, err)
	assert.Equal(t, int64(10), freed)
	assert.Equal(t, int64(0), mgr.ResidentSize())
}

func TestManager_Acquire_AfterLoadFailure_RetriesOnNextCall(t *testing.T) {
	var calls atomic.Int64
	loader := xloader.Func(func(_ context.Context, _ string) (xloader.Payload, error) {
		if calls.Add(1) == 1 {
			return xloader.Payload{}, errors.New("cold start")
		}
		return xloader.Payload{Data: payload(5)}, nil
	})
	mgr, err := New(xcatalog.NewStatic(map[string][]string{"a": nil}), loader,
		WithLogger(nil))
	require.NoError(t, err)
	defer mgr.Close()

	_, err = mgr.Acquire(context.Background(), "a")
	require.ErrorIs(t, err, ErrLoadFailed)

	// 失败不粘滞：占位条目已移除，下次获取重新回源
	h, err := mgr.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, int64(2), calls.Load())
}

// =============================================================================
// 单飞与等待者取消
// =============================================================================

func TestManager_Acquire_ConcurrentSameKey_LoadsOnce(t *testing.T) {
	var loads atomic.Int64
	loader := xloader.Func(func(_ context.Context, _ string) (xloader.Payload, error) {
		loads.Add(1)
		time.Sleep(50 * time.Millisecond)
		return xloader.Payload{Data: payload(8)}, nil
	})
	mgr, err := New(xcatalog.NewStatic(map[string][]string{"pak": nil}), loader,
		WithLogger(nil))
	require.NoError(t, err)
	defer mgr.Close()

	const workers = 16
	var wg sync.WaitGroup
	handles := make([]*Handle, workers)
	errs := make([]error, workers)

	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handles[i], errs[i] = mgr.Acquire(context.Background(), "pak")
		}()
	}
	wg.Wait()

	for i := range workers {
		require.NoError(t, errs[i])
		assert.Len(t, handles[i].Data(), 8)
		require.NoError(t, handles[i].Release())
	}

	assert.Equal(t, int64(1), loads.Load())
}

func TestManager_Acquire_WaiterCancellation_DoesNotAbortLoad(t *testing.T) {
	release := make(chan struct{})
	var loads atomic.Int64
	loader := xloader.Func(func(_ context.Context, _ string) (xloader.Payload, error) {
		loads.Add(1)
		<-release
		return xloader.Payload{Data: payload(4)}, nil
	})
	mgr, err := New(xcatalog.NewStatic(map[string][]string{"slow": nil}), loader,
		WithLogger(nil))
	require.NoError(t, err)
	defer mgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := mgr.Acquire(ctx, "slow")
		done <- err
	}()

	// 等待加载回合开始后取消等待者
	require.Eventually(t, func() bool { return loads.Load() == 1 },
		time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// 放行加载：结果仍被安装，后续获取直接命中
	close(release)
	require.Eventually(t, func() bool { return mgr.IsResident("slow") },
		time.Second, time.Millisecond)

	h, err := mgr.Acquire(context.Background(), "slow")
	require.NoError(t, err)
	defer h.Release()
	assert.Equal(t, int64(1), loads.Load())
}

// =============================================================================
// Handle 释放
// =============================================================================

func TestHandle_Release_SecondCall_ReturnsErrHandleReleased(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"a": nil},
		map[string][]byte{"a": payload(2)},
	)

	h, err := mgr.Acquire(context.Background(), "a")
	require.NoError(t, err)

	require.NoError(t, h.Release())
	before := mgr.Stats()

	assert.ErrorIs(t, h.Release(), ErrHandleReleased)
	assert.Nil(t, h.Data())

	// 重复释放不影响任何计数
	assert.Equal(t, before, mgr.Stats())
}

func TestHandle_Release_MakesClosureReclaimable(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{
			"level01":  {"textures", "audio"},
			"textures": nil,
			"audio":    nil,
		},
		map[string][]byte{
			"level01":  payload(30),
			"textures": payload(20),
			"audio":    payload(10),
		},
	)

	h, err := mgr.Acquire(context.Background(), "level01")
	require.NoError(t, err)

	// 被引用期间立即淘汰不回收任何条目
	freed, err := mgr.EvictNow()
	require.NoError(t, err)
	assert.Equal(t, int64(0), freed)
	assert.Equal(t, int64(60), mgr.ResidentSize())

	// 引用守恒：一次释放后闭包内所有计数归零，可完整回收
	require.NoError(t, h.Release())
	freed, err = mgr.EvictNow()
	require.NoError(t, err)
	assert.Equal(t, int64(60), freed)
	assert.Equal(t, 0, mgr.Stats().Resident)
}

func TestHandle_Release_AfterManagerClose_Succeeds(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"a": nil},
		map[string][]byte{"a": payload(2)},
	)

	h, err := mgr.Acquire(context.Background(), "a")
	require.NoError(t, err)

	require.NoError(t, mgr.Close())
	assert.NoError(t, h.Release())
}

// =============================================================================
// Prefetch
// =============================================================================

func TestManager_Prefetch_WarmsEntriesWithoutHoldingRefs(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"a": nil, "b": nil},
		map[string][]byte{"a": payload(5), "b": payload(7)},
	)

	require.NoError(t, mgr.Prefetch(context.Background(), "a", "b"))
	assert.True(t, mgr.IsResident("a"))
	assert.True(t, mgr.IsResident("b"))

	// 预热不持有引用：全部可被回收
	freed, err := mgr.EvictNow()
	require.NoError(t, err)
	assert.Equal(t, int64(12), freed)
}

func TestManager_Prefetch_WithUnknownKey_ReturnsError(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"a": nil},
		map[string][]byte{"a": payload(1)},
	)

	err := mgr.Prefetch(context.Background(), "a", "ghost")
	assert.ErrorIs(t, err, xcatalog.ErrUnknownPackage)
}

// =============================================================================
// 关闭
// =============================================================================

func TestManager_Close_RejectsSubsequentAcquires(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"a": nil},
		map[string][]byte{"a": payload(1)},
	)

	require.NoError(t, mgr.Close())
	require.NoError(t, mgr.Close()) // 幂等

	_, err := mgr.Acquire(context.Background(), "a")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_Close_ReclaimsUnreferencedEntries(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"a": nil, "b": nil},
		map[string][]byte{"a": payload(5), "b": payload(5)},
	)

	require.NoError(t, mgr.Prefetch(context.Background(), "a", "b"))
	h, err := mgr.Acquire(context.Background(), "a")
	require.NoError(t, err)

	require.NoError(t, mgr.Close())

	// 无引用的 b 被回收；被引用的 a 保留至释放
	assert.False(t, mgr.IsResident("b"))
	assert.True(t, mgr.IsResident("a"))
	assert.NotNil(t, h.Data())
	require.NoError(t, h.Release())
}
