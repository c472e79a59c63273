package model

import (
	"strings"
	"time"
)

// UserBankAccount 用户出金账户表
// 提现目标账户必须先认证（is_verified）才能使用
type UserBankAccount struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64      `gorm:"index;not null" json:"user_id"`
	BankCode      string     `gorm:"type:varchar(10);not null" json:"bank_code"`
	BankName      string     `gorm:"type:varchar(50);not null" json:"bank_name"`
	AccountMasked string     `gorm:"type:varchar(30);not null" json:"account_masked"` // 脱敏账号，只保留末4位
	AccountHolder string     `gorm:"type:varchar(50);not null" json:"account_holder"`
	IsVerified    bool       `gorm:"not null;default:false" json:"is_verified"`
	IsDefault     bool       `gorm:"not null;default:false" json:"is_default"`
	VerifiedAt    *time.Time `json:"verified_at"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UserBankAccount) TableName() string {
	return "user_bank_account"
}

// MaskAccountNumber 账号脱敏，只保留末4位
func MaskAccountNumber(accountNumber string) string {
	if len(accountNumber) < 4 {
		return "****"
	}
	visible := accountNumber[len(accountNumber)-4:]
	return strings.Repeat("*", len(accountNumber)-4) + visible
}
