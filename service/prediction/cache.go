/*
 * @module service/prediction/cache
 * @description 最新预测的读穿缓存：显式的Get/Put/Invalidate/InvalidateAll接口，TTL在构造时配置
 * @architecture 分层架构 - 缓存层
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 读命中直接返回 -> 未命中读穿到存储 -> 写入新预测后按键失效 -> 全量运行后整体失效
 * @rules 缓存不是事实来源；存储无记录时返回"无预测"而不是错误，调用方据此走合成器兜底
 * @dependencies github.com/go-redis/redis/v8
 * @refs service/prediction/store.go, service/prediction/orchestrator.go
 */

package prediction

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"churn-service/service/models"

	"github.com/go-redis/redis/v8"
)

// Cache 预测缓存接口，按客户ID缓存最近一次读取到的预测
type Cache interface {
	// Get 读取缓存，第二个返回值表示是否命中
	Get(ctx context.Context, customerID string) (*models.Prediction, bool, error)
	// Put 写入缓存
	Put(ctx context.Context, customerID string, p *models.Prediction) error
	// Invalidate 失效单个客户的缓存
	Invalidate(ctx context.Context, customerID string) error
	// InvalidateAll 失效全部预测缓存
	InvalidateAll(ctx context.Context) error
}

const cacheKeyPrefix = "churn:prediction:latest:"

// RedisCache 基于Redis的预测缓存实现
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache 创建Redis预测缓存
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, customerID string) (*models.Prediction, bool, error) {
	data, err := c.client.Get(ctx, cacheKeyPrefix+customerID).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("读取预测缓存失败: %w", err)
	}

	var p models.Prediction
	if err := json.Unmarshal(data, &p); err != nil {
		// 缓存内容损坏按未命中处理，读穿后会覆盖
		return nil, false, nil
	}
	return &p, true, nil
}

func (c *RedisCache) Put(ctx context.Context, customerID string, p *models.Prediction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("序列化预测缓存失败: %w", err)
	}
	if err := c.client.Set(ctx, cacheKeyPrefix+customerID, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("写入预测缓存失败: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, customerID string) error {
	if err := c.client.Del(ctx, cacheKeyPrefix+customerID).Err(); err != nil {
		return fmt.Errorf("失效预测缓存失败: %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, cacheKeyPrefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("批量失效预测缓存失败: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("扫描预测缓存键失败: %w", err)
	}
	return nil
}

type memoryCacheEntry struct {
	prediction *models.Prediction
	expiresAt  time.Time
}

// MemoryCache 进程内预测缓存实现，Redis未配置时使用，测试亦依赖此实现
type MemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryCacheEntry
}

// NewMemoryCache 创建进程内预测缓存
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]memoryCacheEntry),
	}
}

func (c *MemoryCache) Get(ctx context.Context, customerID string) (*models.Prediction, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[customerID]
	c.mu.RUnlock()

	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.prediction, true, nil
}

func (c *MemoryCache) Put(ctx context.Context, customerID string, p *models.Prediction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[customerID] = memoryCacheEntry{
		prediction: p,
		expiresAt:  time.Now().Add(c.ttl),
	}
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, customerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, customerID)
	return nil
}

func (c *MemoryCache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]memoryCacheEntry)
	return nil
}
