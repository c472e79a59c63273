package repository

import (
	"context"
	"errors"

	"mycard/internal/model"

	"gorm.io/gorm"
)

type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// GetActive 取当前生效的政策：enabled 且 updated_at 最新的一行
// 每次转换请求都重新读取，政策调整对后续请求立即生效
func (r *PolicyRepository) GetActive(ctx context.Context) (*model.PointPolicy, error) {
	var policy model.PointPolicy
	err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("updated_at DESC").
		First(&policy).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPolicyNotFound
		}
		return nil, err
	}
	return &policy, nil
}
