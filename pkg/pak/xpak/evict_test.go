package xpak

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// 水位预算与 LRU
// =============================================================================

func TestManager_Acquire_OverHighWater_EvictsToLowWater(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"p1": nil, "p2": nil},
		map[string][]byte{"p1": payload(60), "p2": payload(50)},
		WithBudget(100, 80),
	)
	ctx := context.Background()

	h1, err := mgr.Acquire(ctx, "p1")
	require.NoError(t, err)
	require.NoError(t, h1.Release())

	// p2 安装后常驻 110 > 100，触发淘汰至 80：无引用的 p1 被回收
	h2, err := mgr.Acquire(ctx, "p2")
	require.NoError(t, err)
	defer h2.Release()

	assert.False(t, mgr.IsResident("p1"))
	assert.True(t, mgr.IsResident("p2"))
	assert.LessOrEqual(t, mgr.ResidentSize(), int64(80))
	assert.Equal(t, uint64(1), mgr.Stats().Evictions)
	assert.Len(t, h2.Data(), 50)
}

func TestManager_Eviction_FollowsLRUOrder(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"a": nil, "b": nil, "c": nil},
		map[string][]byte{"a": payload(40), "b": payload(40), "c": payload(40)},
	)
	ctx := context.Background()

	require.NoError(t, mgr.Prefetch(ctx, "a"))
	require.NoError(t, mgr.Prefetch(ctx, "b"))
	require.NoError(t, mgr.Prefetch(ctx, "c"))

	// 再触碰 a，使访问序变为 b < c < a
	h, err := mgr.Acquire(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, h.Release())

	// 常驻 120 > 100，按 LRU 回收至 40：b、c 先后被淘汰
	require.NoError(t, mgr.SetBudget(100, 40))

	assert.False(t, mgr.IsResident("b"))
	assert.False(t, mgr.IsResident("c"))
	assert.True(t, mgr.IsResident("a"))
}

func TestManager_Eviction_NeverTouchesReferencedEntries(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"held": nil, "idle": nil},
		map[string][]byte{"held": payload(70), "idle": payload(70)},
		WithBudget(100, 50),
	)
	ctx := context.Background()

	h, err := mgr.Acquire(ctx, "held")
	require.NoError(t, err)
	defer h.Release()

	// idle 安装使常驻 140 > 100；只有无引用的 idle 可被淘汰
	require.NoError(t, mgr.Prefetch(ctx, "idle"))

	assert.True(t, mgr.IsResident("held"))
	assert.False(t, mgr.IsResident("idle"))
	assert.NotNil(t, h.Data())
}

func TestManager_Eviction_RespectsDependencyPins(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"app": {"lib"}, "lib": nil},
		map[string][]byte{"app": payload(50), "lib": payload(50)},
		WithBudget(200, 60),
	)
	ctx := context.Background()

	require.NoError(t, mgr.Prefetch(ctx, "app"))

	// lib 访问序更老，但被常驻的 app 固定；EvictNow 只能先回收 app
	freed, err := mgr.EvictNow()
	require.NoError(t, err)
	assert.Equal(t, int64(50), freed)
	assert.False(t, mgr.IsResident("app"))
	assert.True(t, mgr.IsResident("lib"))
}

func TestManager_Eviction_UnpinCascadesWithinOnePass(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"app": {"lib"}, "lib": nil},
		map[string][]byte{"app": payload(50), "lib": payload(50)},
	)

	require.NoError(t, mgr.Prefetch(context.Background(), "app"))

	// 无预算时 EvictNow 完整回收：app 淘汰解除对 lib 的固定，
	// lib 在同一次遍历内级联淘汰
	freed, err := mgr.EvictNow()
	require.NoError(t, err)
	assert.Equal(t, int64(100), freed)
	assert.Equal(t, 0, mgr.Stats().Resident)
}

func TestManager_Acquire_WithNoEvictableEntries_ReportsSoftOverBudget(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"huge": nil},
		map[string][]byte{"huge": payload(150)},
		WithBudget(100, 80),
	)

	// 超预算但无可回收条目：获取仍成功，只记软性超限信号
	h, err := mgr.Acquire(context.Background(), "huge")
	require.NoError(t, err)
	defer h.Release()

	assert.Equal(t, int64(150), mgr.ResidentSize())
	assert.Equal(t, uint64(1), mgr.Stats().BudgetExceeded)
	assert.Equal(t, uint64(0), mgr.Stats().Evictions)
}

// =============================================================================
// SetBudget
// =============================================================================

func TestManager_SetBudget_WithInvalidWaterMarks_ReturnsError(t *testing.T) {
	mgr := newTestManager(t, nil, nil)

	assert.ErrorIs(t, mgr.SetBudget(-1, 0), ErrInvalidBudget)
	assert.ErrorIs(t, mgr.SetBudget(10, 20), ErrInvalidBudget)
	assert.ErrorIs(t, mgr.SetBudget(10, -1), ErrInvalidBudget)
}

func TestManager_SetBudget_ToZero_DisablesBudget(t *testing.T) {
	mgr := newTestManager(t,
		map[string][]string{"a": nil, "b": nil},
		map[string][]byte{"a": payload(60), "b": payload(60)},
		WithBudget(100, 80),
	)
	ctx := context.Background()

	require.NoError(t, mgr.SetBudget(0, 0))

	// 预算解除后超过原高水位也不触发淘汰
	require.NoError(t, mgr.Prefetch(ctx, "a"))
	require.NoError(t, mgr.Prefetch(ctx, "b"))
	assert.Equal(t, int64(120), mgr.ResidentSize())
	assert.Equal(t, uint64(0), mgr.Stats().Evictions)
}

// =============================================================================
// 释放钩子
// =============================================================================

func TestManager_Eviction_InvokesReleaseHook(t *testing.T) {
	var mu sync.Mutex
	released := make(map[string]int)

	mgr := newTestManager(t,
		map[string][]string{"a": nil},
		map[string][]byte{"a": payload(3)},
		WithReleaseHook(func(key string, data []byte) error {
			mu.Lock()
			released[key] = len(data)
			mu.Unlock()
			return nil
		}),
	)

	require.NoError(t, mgr.Prefetch(context.Background(), "a"))
	_, err := mgr.EvictNow()
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"a": 3}, released)
}

func TestManager_Eviction_HookErrorDoesNotAbortPass(t *testing.T) {
	hookErr := errors.New("gpu free failed")
	mgr := newTestManager(t,
		map[string][]string{"bad": nil, "good": nil},
		map[string][]byte{"bad": payload(5), "good": payload(5)},
		WithReleaseHook(func(key string, _ []byte) error {
			if key == "bad" {
				return hookErr
			}
			return nil
		}),
	)

	require.NoError(t, mgr.Prefetch(context.Background(), "bad", "good"))

	// 钩子错误按条目隔离：两个条目都被回收，错误汇总返回
	freed, err := mgr.EvictNow()
	assert.ErrorIs(t, err, hookErr)
	assert.Equal(t, int64(10), freed)
	assert.Equal(t, 0, mgr.Stats().Resident)
}
