/*
 * @module service/prediction/cache_test
 * @description 进程内预测缓存单元测试
 * @architecture 测试层
 * @documentReference dev_docs/test_plan.md
 * @stateFlow 写入 -> 读取 -> 失效 -> 验证命中语义
 * @rules 未命中返回(nil,false,nil)而不是错误；过期条目视为未命中
 * @dependencies testing, stretchr/testify
 */

package prediction

import (
	"context"
	"testing"
	"time"

	"churn-service/service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryCachePutGet 测试写入后读取命中
func TestMemoryCachePutGet(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	p := &models.Prediction{CustomerID: "cust-1", ChurnProbability: 0.6, RiskLevel: "Medium"}
	require.NoError(t, cache.Put(ctx, "cust-1", p))

	got, hit, err := cache.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 0.6, got.ChurnProbability)
}

// TestMemoryCacheMiss 测试未命中不报错
func TestMemoryCacheMiss(t *testing.T) {
	cache := NewMemoryCache(time.Minute)

	got, hit, err := cache.Get(context.Background(), "nadie")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
}

// TestMemoryCacheExpiry 测试过期条目视为未命中
func TestMemoryCacheExpiry(t *testing.T) {
	cache := NewMemoryCache(10 * time.Millisecond)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "cust-1", &models.Prediction{CustomerID: "cust-1"}))
	time.Sleep(30 * time.Millisecond)

	_, hit, err := cache.Get(ctx, "cust-1")
	require.NoError(t, err)
	assert.False(t, hit)
}

// TestMemoryCacheInvalidate 测试单键失效
func TestMemoryCacheInvalidate(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "cust-1", &models.Prediction{CustomerID: "cust-1"}))
	require.NoError(t, cache.Put(ctx, "cust-2", &models.Prediction{CustomerID: "cust-2"}))

	require.NoError(t, cache.Invalidate(ctx, "cust-1"))

	_, hit, _ := cache.Get(ctx, "cust-1")
	assert.False(t, hit)
	_, hit, _ = cache.Get(ctx, "cust-2")
	assert.True(t, hit)
}

// TestMemoryCacheInvalidateAll 测试整体失效
func TestMemoryCacheInvalidateAll(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	ctx := context.Background()

	require.NoError(t, cache.Put(ctx, "cust-1", &models.Prediction{CustomerID: "cust-1"}))
	require.NoError(t, cache.Put(ctx, "cust-2", &models.Prediction{CustomerID: "cust-2"}))

	require.NoError(t, cache.InvalidateAll(ctx))

	_, hit, _ := cache.Get(ctx, "cust-1")
	assert.False(t, hit)
	_, hit, _ = cache.Get(ctx, "cust-2")
	assert.False(t, hit)
}

// TestLocalRunLock 测试进程内运行锁互斥
func TestLocalRunLock(t *testing.T) {
	lock := NewLocalRunLock()
	ctx := context.Background()

	ok, err := lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	// 已持有时再次获取必须失败
	ok, err = lock.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Unlock(ctx))

	ok, err = lock.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
