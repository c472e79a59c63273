package repository

import (
	"context"
	"errors"

	"mycard/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBalanceNotFound    = errors.New("积分余额记录不存在")
	ErrBalanceNotEnough   = errors.New("积分余额不足")
	ErrPolicyNotFound     = errors.New("没有生效的积分政策")
	ErrBankAccountMissing = errors.New("出金账户不存在")
)

type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

func (r *BalanceRepository) GetByUserID(ctx context.Context, userID int64) (*model.PointBalance, error) {
	var balance model.PointBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// GetByUserIDForUpdate 在事务内对用户余额行加排他锁后读取
// 锁持有到事务提交/回滚为止，同一用户的并发扣减在这里串行化；
// 一次调用只会锁一个用户的行，不存在跨用户死锁
func (r *BalanceRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.PointBalance, error) {
	var balance model.PointBalance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBalanceNotFound
		}
		return nil, err
	}
	return &balance, nil
}

// GetOrCreate 首次产生积分事件时懒创建零余额记录
//
// 【关键点】并发首次访问必须幂等：user_id 上有唯一索引，
// 用 INSERT ... ON CONFLICT DO NOTHING 保证只会创建一行
func (r *BalanceRepository) GetOrCreate(ctx context.Context, userID int64) (*model.PointBalance, error) {
	balance, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return balance, nil
	}

	if !errors.Is(err, ErrBalanceNotFound) {
		return nil, err
	}

	newBalance := &model.PointBalance{
		UserID:  userID,
		Balance: 0,
	}

	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(newBalance).Error

	if err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

// Debit 在调用方事务内扣减积分
// 调用方必须已通过 GetByUserIDForUpdate 持有行锁；
// WHERE balance >= ? 是防御性兜底，命中说明锁外发生了扣减
func (r *BalanceRepository) Debit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.PointBalance{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBalanceNotEnough
	}

	return nil
}

// Credit 在调用方事务内增加积分
func (r *BalanceRepository) Credit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.PointBalance{}).
		Where("user_id = ?", userID).
		Update("balance", gorm.Expr("balance + ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrBalanceNotFound
	}

	return nil
}
