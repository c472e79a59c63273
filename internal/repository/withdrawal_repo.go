package repository

import (
	"context"
	"time"

	"mycard/internal/model"

	"gorm.io/gorm"
)

type WithdrawalRepository struct {
	db *gorm.DB
}

func NewWithdrawalRepository(db *gorm.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

func (r *WithdrawalRepository) Create(ctx context.Context, tx *gorm.DB, withdrawal *model.PointWithdrawal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(withdrawal).Error
}

func (r *WithdrawalRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointWithdrawal, int64, error) {
	var withdrawals []*model.PointWithdrawal
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PointWithdrawal{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&withdrawals).Error

	return withdrawals, total, err
}

// SumPointsSince 统计 since 之后受理的提现积分合计（不含被拒绝的单）
// 用于当日累计限额校验；普通读，不加锁
func (r *WithdrawalRepository) SumPointsSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.PointWithdrawal{}).
		Where("user_id = ? AND created_at >= ? AND status <> ?", userID, since, model.WithdrawalStatusRejected).
		Select("COALESCE(SUM(points_amount), 0)").
		Scan(&sum).Error
	return sum, err
}
