package model

import (
	"time"
)

// ============================================================================
// 积分流水类型常量
// ============================================================================

const (
	LedgerTypeEarn    = "EARN"    // 获得积分
	LedgerTypeSpend   = "SPEND"   // 消费积分（如兑换优惠券）
	LedgerTypeConvert = "CONVERT" // 积分转现金
	LedgerTypeAdjust  = "ADJUST"  // 管理员调整
)

// 流水关联的业务对象类型
const (
	ReferenceTypeCoupon     = "Coupon"
	ReferenceTypeWithdrawal = "PointWithdrawal"
)

// ============================================================================
// 积分流水实体
// ============================================================================

// PointLedger 积分流水表
// 记录每一笔积分变动，是对账的核心依据
//
// 【重要】流水表设计原则：
// 1. 只追加，不修改，不删除 —— 保证审计可追溯
// 2. 记录变动后余额 —— 便于校验余额一致性
// 3. 通过 ref_type/ref_id 关联产生流水的业务事件（优惠券、提现等）
type PointLedger struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	LedgerNo      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"ledger_no"` // 流水号（全局唯一）
	UserID        int64     `gorm:"index;not null" json:"user_id"`                          // 用户ID
	EntryType     string    `gorm:"type:varchar(20);index;not null" json:"entry_type"`      // 流水类型
	Amount        int64     `gorm:"not null" json:"amount"`                                 // 积分变动（正数入账，负数出账）
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`                          // 变动后余额
	Description   string    `gorm:"type:varchar(255)" json:"description"`                   // 备注
	ReferenceType string    `gorm:"type:varchar(30)" json:"reference_type"`                 // 关联业务类型
	ReferenceID   int64     `gorm:"index" json:"reference_id"`                              // 关联业务ID
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointLedger) TableName() string {
	return "point_ledger"
}
