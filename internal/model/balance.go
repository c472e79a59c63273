package model

import (
	"time"
)

// PointBalance 用户积分余额表
// 每个用户一行，是积分核算引擎的核心数据
//
// 【重要】余额的不变量：
// 1. 余额永远不为负 —— 扣减前必须在行锁内校验
// 2. 余额等于该用户所有流水 signed amount 之和 —— 对账依据
// 3. 只能通过"行锁 + 事务"的读改写路径修改，不允许直接 UPDATE
type PointBalance struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64     `gorm:"uniqueIndex;not null" json:"user_id"` // 用户ID，调用方传入
	Balance   int64     `gorm:"not null;default:0" json:"balance"`   // 当前可用积分
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PointBalance) TableName() string {
	return "point_balance"
}
