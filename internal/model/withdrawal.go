package model

import (
	"time"
)

const (
	WithdrawalStatusRequested = "REQUESTED" // 已受理，等待下游清算
	WithdrawalStatusProcessed = "PROCESSED" // 清算完成（终态）
	WithdrawalStatusRejected  = "REJECTED"  // 清算拒绝（终态）
)

// ValidWithdrawalTransitions 提现状态机
// REQUESTED 之后的状态推进由下游清算流程完成，本引擎只负责正确创建
var ValidWithdrawalTransitions = map[string][]string{
	WithdrawalStatusRequested: {WithdrawalStatusProcessed, WithdrawalStatusRejected},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidWithdrawalTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// PointWithdrawal 积分提现表
// 每次积分转现金请求一行，创建即扣减积分并写入 CONVERT 流水
type PointWithdrawal struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	WithdrawalNo  string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"withdrawal_no"` // 提现单号（全局唯一）
	UserID        int64      `gorm:"index;not null" json:"user_id"`
	PointsAmount  int64      `gorm:"not null" json:"points_amount"`                 // 申请转换的积分
	CashAmount    int64      `gorm:"not null" json:"cash_amount"`                   // 到账现金 = 积分 - 手续费
	FeeAmount     int64      `gorm:"not null;default:0" json:"fee_amount"`          // 手续费
	BankName      string     `gorm:"type:varchar(50)" json:"bank_name"`             // 出金银行
	AccountMasked string     `gorm:"type:varchar(40)" json:"account_masked"`        // 脱敏后的账号
	Status        string     `gorm:"type:varchar(20);index;not null" json:"status"` // 提现状态
	ProcessedAt   *time.Time `json:"processed_at"`                                  // 清算完成时间
	CreatedAt     time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PointWithdrawal) TableName() string {
	return "point_withdrawal"
}
