package service

import (
	"errors"
)

// 业务规则错误
// 全部在事务提交前/提交中检出并整体回滚，不做自动重试；
// 除 ErrPolicyUnavailable 外都是调用方可修正的请求问题
var (
	ErrInsufficientBalance = errors.New("积分余额不足")
	ErrNoVerifiedAccount   = errors.New("没有可用的已认证出金账户")
	ErrBelowMinimum        = errors.New("低于单笔最低转换积分")
	ErrAboveMaximum        = errors.New("超过单笔最高转换积分")
	ErrDailyCapExceeded    = errors.New("超过当日转换积分上限")
	ErrPolicyUnavailable   = errors.New("积分政策未配置")
	ErrInvalidQuantity     = errors.New("兑换数量不合法")
	ErrInvalidCoupon       = errors.New("无效的优惠券")
	ErrInvalidAmount       = errors.New("积分数额不合法")
)
