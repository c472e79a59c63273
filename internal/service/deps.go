package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"mycard/internal/infrastructure/lock"
	"mycard/internal/model"
	"mycard/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// 服务层依赖的窄接口
// 线上由 *gorm.DB 和 repository 包的实现满足，测试用同包内的 fake 替换

// txRunner 由 *gorm.DB 直接满足
type txRunner interface {
	Transaction(fc func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
}

type balanceStore interface {
	GetByUserID(ctx context.Context, userID int64) (*model.PointBalance, error)
	GetOrCreate(ctx context.Context, userID int64) (*model.PointBalance, error)
	GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.PointBalance, error)
	Debit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error
	Credit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error
}

type ledgerRecorder interface {
	Create(ctx context.Context, tx *gorm.DB, entry *model.PointLedger) error
	ListByUserID(ctx context.Context, userID int64, entryType string, page, pageSize int) ([]*model.PointLedger, int64, error)
	SumAmountByUserID(ctx context.Context, userID int64) (int64, error)
}

type withdrawalStore interface {
	Create(ctx context.Context, tx *gorm.DB, withdrawal *model.PointWithdrawal) error
	ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointWithdrawal, int64, error)
	SumPointsSince(ctx context.Context, userID int64, since time.Time) (int64, error)
}

type policyProvider interface {
	GetActive(ctx context.Context) (*model.PointPolicy, error)
}

type accountDirectory interface {
	GetByIDAndUserID(ctx context.Context, id, userID int64) (*model.UserBankAccount, error)
	GetDefault(ctx context.Context, userID int64) (*model.UserBankAccount, error)
}

type couponStore interface {
	CreateBatch(ctx context.Context, tx *gorm.DB, coupons []*model.UserCoupon) error
	ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.UserCoupon, int64, error)
}

type outboxWriter interface {
	Create(ctx context.Context, tx *gorm.DB, msg *model.OutboxMessage) error
}

type auditSink interface {
	Record(userID int64, actionType, resourceType string, resourceID int64, description string)
}

// userLocker 按用户维度的互斥，挡掉同一用户的重复提交
// 正确性仍由余额行锁保证
type userLocker interface {
	Acquire(ctx context.Context, userID int64) (release func(), err error)
}

type redisUserLocker struct {
	client *redis.Client
}

func newRedisUserLocker(client *redis.Client) *redisUserLocker {
	return &redisUserLocker{client: client}
}

func (l *redisUserLocker) Acquire(ctx context.Context, userID int64) (func(), error) {
	token := fmt.Sprintf("%d", idgen.NextID())
	pointLock := lock.NewPointLock(l.client, userID, token)
	if err := pointLock.Lock(ctx, 100*time.Millisecond, 30); err != nil {
		return nil, fmt.Errorf("系统繁忙，请稍后重试: %w", err)
	}
	return func() {
		pointLock.Unlock(ctx)
	}, nil
}
