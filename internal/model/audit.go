package model

import (
	"time"
)

const (
	AuditActionCreate = "CREATE"
	AuditActionUpdate = "UPDATE"
)

// AuditLog 审计日志表
// 业务操作成功后异步写入，写入失败不影响业务结果
type AuditLog struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64     `gorm:"index" json:"user_id"`
	ActionType   string    `gorm:"type:varchar(20);not null" json:"action_type"`
	ResourceType string    `gorm:"type:varchar(30);index;not null" json:"resource_type"`
	ResourceID   int64     `json:"resource_id"`
	Description  string    `gorm:"type:varchar(500)" json:"description"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}
