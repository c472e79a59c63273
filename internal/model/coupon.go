package model

import (
	"time"
)

const (
	CouponStatusAvailable = "AVAILABLE"
	CouponStatusUsed      = "USED"
	CouponStatusExpired   = "EXPIRED"
)

// CouponPointCosts 可兑换优惠券的单价表（couponID -> 积分单价）
// 商品目录由运营侧维护，这里固化当前在售的券
var CouponPointCosts = map[int64]int64{
	1:  4000,
	2:  8000,
	3:  4000,
	4:  3600,
	5:  3440,
	6:  1600,
	7:  17600,
	8:  6000,
	9:  40000,
	10: 8000,
	11: 24000,
	12: 24000,
	13: 40000,
	14: 8000,
	15: 4000,
}

// UserCoupon 用户持有的优惠券
// 兑换成功时与扣减、流水在同一事务内创建，有效期一年
type UserCoupon struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"index;not null" json:"user_id"`
	CouponID    int64     `gorm:"index;not null" json:"coupon_id"`
	Status      string    `gorm:"type:varchar(20);not null;default:AVAILABLE" json:"status"`
	PurchasedAt time.Time `gorm:"not null" json:"purchased_at"`
	ValidUntil  time.Time `gorm:"not null" json:"valid_until"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (UserCoupon) TableName() string {
	return "user_coupon"
}
