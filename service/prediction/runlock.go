/*
 * @module service/prediction/runlock
 * @description 全量预测运行的互斥守卫，避免两个批量写入方重复持久化同一运行窗口
 * @architecture 工具层 - 互斥锁
 * @documentReference dev_docs/backend_requirements.md
 * @stateFlow 获取锁 -> 执行全量运行 -> 释放锁/自动过期
 * @rules Redis可用时使用SET NX跨实例互斥；否则退回进程内互斥
 * @dependencies github.com/go-redis/redis/v8
 * @refs service/prediction/orchestrator.go
 */

package prediction

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RunLock 全量预测的互斥守卫
type RunLock interface {
	// TryLock 尝试获取运行锁，已被占用时返回false
	TryLock(ctx context.Context) (bool, error)
	// Unlock 释放运行锁
	Unlock(ctx context.Context) error
}

const runLockKey = "churn:prediction:run-all:lock"

// 锁TTL作为运行方崩溃后的兜底，正常路径由Unlock释放
const runLockTTL = 30 * time.Minute

// RedisRunLock Redis实现，多实例部署时保证同一时间只有一个全量运行
type RedisRunLock struct {
	client     *redis.Client
	instanceID string
}

// NewRedisRunLock 创建Redis运行锁
func NewRedisRunLock(client *redis.Client) *RedisRunLock {
	hostname, _ := os.Hostname()
	return &RedisRunLock{
		client:     client,
		instanceID: fmt.Sprintf("%s:%d", hostname, os.Getpid()),
	}
}

func (l *RedisRunLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, runLockKey, l.instanceID, runLockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("获取运行锁失败: %w", err)
	}
	return ok, nil
}

func (l *RedisRunLock) Unlock(ctx context.Context) error {
	// Lua脚本保证只有持有者才能释放
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`
	if err := l.client.Eval(ctx, script, []string{runLockKey}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("释放运行锁失败: %w", err)
	}
	return nil
}

// LocalRunLock 进程内实现，单实例部署或Redis未配置时使用
type LocalRunLock struct {
	locked int32
}

// NewLocalRunLock 创建进程内运行锁
func NewLocalRunLock() *LocalRunLock {
	return &LocalRunLock{}
}

func (l *LocalRunLock) TryLock(ctx context.Context) (bool, error) {
	return atomic.CompareAndSwapInt32(&l.locked, 0, 1), nil
}

func (l *LocalRunLock) Unlock(ctx context.Context) error {
	atomic.StoreInt32(&l.locked, 0)
	return nil
}
