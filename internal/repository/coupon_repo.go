package repository

import (
	"context"

	"mycard/internal/model"

	"gorm.io/gorm"
)

type CouponRepository struct {
	db *gorm.DB
}

func NewCouponRepository(db *gorm.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

// CreateBatch 批量创建优惠券，必须在兑换事务内调用
func (r *CouponRepository) CreateBatch(ctx context.Context, tx *gorm.DB, coupons []*model.UserCoupon) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(&coupons).Error
}

func (r *CouponRepository) ListByUserID(ctx context.Context, userID int64, page, pageSize int) ([]*model.UserCoupon, int64, error) {
	var coupons []*model.UserCoupon
	var total int64

	query := r.db.WithContext(ctx).Model(&model.UserCoupon{}).Where("user_id = ?", userID)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&coupons).Error

	return coupons, total, err
}
