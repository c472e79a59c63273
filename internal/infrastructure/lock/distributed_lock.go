package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 同一用户的转换/兑换请求先在这里排队，再进数据库行锁。
// 正确性由行锁保证，这把锁的作用是把重复提交挡在事务之外，
// 减少数据库锁上的排队。
//
// 加锁：SET key value NX EX timeout
//   - NX 保证互斥，EX 防止持有者崩溃后死锁
//   - value 是持有者标识，释放时校验，避免误删别人的锁
// 释放：Lua 脚本保证"校验+删除"原子执行
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string        // 锁持有者标识
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
// 锁过期后可能已被其他请求持有，只有 value 匹配才删除
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewPointLock 创建积分操作锁（按用户维度）
// 不同用户的操作完全并行，同一用户的操作在这里先串行化一次
func NewPointLock(client *redis.Client, userID int64, token string) *DistributedLock {
	key := fmt.Sprintf("point:lock:user:%d", userID)
	return NewDistributedLock(client, key, token, 30*time.Second)
}
