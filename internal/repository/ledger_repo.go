package repository

import (
	"context"

	"mycard/internal/model"

	"gorm.io/gorm"
)

type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create 追加一条流水
// 必须和对应的余额变动在同一事务内提交：只有余额变动没有流水、
// 或者只有流水没有余额变动，都是对账事故
func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.PointLedger) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// ListByUserID 按创建时间倒序分页查询流水，entryType 为空时不过滤类型
func (r *LedgerRepository) ListByUserID(ctx context.Context, userID int64, entryType string, page, pageSize int) ([]*model.PointLedger, int64, error) {
	var entries []*model.PointLedger
	var total int64

	query := r.db.WithContext(ctx).Model(&model.PointLedger{}).Where("user_id = ?", userID)
	if entryType != "" {
		query = query.Where("entry_type = ?", entryType)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}

// SumAmountByUserID 该用户所有流水 signed amount 之和，对账时应等于当前余额
func (r *LedgerRepository) SumAmountByUserID(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&model.PointLedger{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}
