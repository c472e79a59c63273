package model

import (
	"time"
)

// PointPolicy 积分转换政策表
// 管理后台可能保留多行历史/停用政策，生效政策取"enabled 且 updated_at 最新"的一行
//
// 政策值由管理端带外修改，引擎侧只读；每次转换请求开始时重新读取，
// 不做任何缓存，保证政策调整对后续请求立即生效
type PointPolicy struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PolicyName     string    `gorm:"type:varchar(100);not null" json:"policy_name"`
	FeeRate        float64   `gorm:"type:decimal(5,4);not null;default:0" json:"fee_rate"` // 手续费率（小数，如 0.025）
	DailyCapPoints int64     `gorm:"not null;default:50000" json:"daily_cap_points"`       // 当日累计提现积分上限
	MinPoints      int64     `gorm:"not null;default:1000" json:"min_points"`              // 单笔最低积分
	MaxPoints      int64     `gorm:"not null;default:50000" json:"max_points"`             // 单笔最高积分
	Enabled        bool      `gorm:"not null;default:true" json:"enabled"`
	UpdatedBy      int64     `gorm:"not null" json:"updated_by"` // 最后修改的管理员
	UpdatedAt      time.Time `gorm:"autoUpdateTime;index" json:"updated_at"`
}

func (PointPolicy) TableName() string {
	return "point_policy"
}
