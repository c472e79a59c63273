package handler

import (
	"errors"
	"strconv"

	"mycard/internal/audit"
	"mycard/internal/config"
	"mycard/internal/service"
	"mycard/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	pointService  *service.PointService
	couponService *service.CouponService
	bankService   *service.BankAccountService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config, recorder *audit.Recorder) *Handler {
	return &Handler{
		pointService:  service.NewPointService(db, rdb, cfg, recorder),
		couponService: service.NewCouponService(db, rdb, cfg, recorder),
		bankService:   service.NewBankAccountService(db),
	}
}

// businessError 把服务层的业务错误映射到响应码
// 未命中的按服务器内部错误处理
func businessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, err.Error())
	case errors.Is(err, service.ErrNoVerifiedAccount):
		response.BusinessError(c, response.CodeNoVerifiedAccount, err.Error())
	case errors.Is(err, service.ErrBelowMinimum):
		response.BusinessError(c, response.CodeBelowMinimum, err.Error())
	case errors.Is(err, service.ErrAboveMaximum):
		response.BusinessError(c, response.CodeAboveMaximum, err.Error())
	case errors.Is(err, service.ErrDailyCapExceeded):
		response.BusinessError(c, response.CodeDailyCapExceeded, err.Error())
	case errors.Is(err, service.ErrInvalidQuantity), errors.Is(err, service.ErrInvalidAmount):
		response.BusinessError(c, response.CodeInvalidQuantity, err.Error())
	case errors.Is(err, service.ErrInvalidCoupon):
		response.BusinessError(c, response.CodeInvalidCoupon, err.Error())
	default:
		// ErrPolicyUnavailable 属于配置事故，不是调用方可修正的问题
		response.ServerError(c, err.Error())
	}
}

func parseUserID(c *gin.Context) (int64, bool) {
	userIDStr := c.Query("user_id")
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		response.ParamError(c, "user_id 参数错误")
		return 0, false
	}
	return userID, true
}

func parsePage(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}
	return page, pageSize
}

// ============================================================
// 积分相关接口
// ============================================================

// GetBalance 查询积分余额
// GET /api/v1/point/balance?user_id=xxx
func (h *Handler) GetBalance(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	balance, err := h.pointService.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"user_id":          balance.UserID,
		"total_points":     balance.Balance,
		"available_points": balance.Balance,
		"updated_at":       balance.UpdatedAt,
	})
}

// ListLedger 查询积分流水
// GET /api/v1/point/ledger?user_id=xxx&page=1&page_size=10&type=CONVERT
func (h *Handler) ListLedger(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	page, pageSize := parsePage(c)
	entryType := c.Query("type")

	entries, total, err := h.pointService.ListLedger(c.Request.Context(), userID, entryType, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      entries,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Reconcile 对账检查：流水之和是否等于当前余额
// GET /api/v1/point/reconcile?user_id=xxx
func (h *Handler) Reconcile(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	result, err := h.pointService.Reconcile(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, result)
}

// Convert 积分转现金
// POST /api/v1/point/convert
//
// 【关键点】转换是本引擎最核心的操作，需要保证：
// 1. 原子性：扣减、提现单、流水必须同时成功或同时失败
// 2. 并发安全：同一用户的并发请求通过余额行锁串行化
// 3. 政策即时生效：上下限、费率、当日限额每次现读
func (h *Handler) Convert(c *gin.Context) {
	var req service.ConvertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	withdrawal, err := h.pointService.Convert(c.Request.Context(), &req)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, withdrawal)
}

// ListWithdrawals 查询提现记录
// GET /api/v1/point/withdrawals?user_id=xxx&page=1&page_size=10
func (h *Handler) ListWithdrawals(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	page, pageSize := parsePage(c)

	withdrawals, total, err := h.pointService.ListWithdrawals(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      withdrawals,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// Spend 消费积分（通用积分扣减入口）
// POST /api/v1/point/spend
func (h *Handler) Spend(c *gin.Context) {
	var req service.SpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	total, err := h.pointService.Spend(c.Request.Context(), &req)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"deducted_points": total,
	})
}

// EarnRequest 积分入账请求
type EarnRequest struct {
	UserID      int64  `json:"user_id" binding:"required"`
	Amount      int64  `json:"amount" binding:"required,gt=0"`
	Description string `json:"description"`
}

// Earn 积分入账（简化版，实际应由卡消费返点等业务事件触发）
// POST /api/v1/point/earn
func (h *Handler) Earn(c *gin.Context) {
	var req EarnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balanceAfter, err := h.pointService.Credit(c.Request.Context(), req.UserID, req.Amount, req.Description)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"balance_after": balanceAfter,
	})
}

// AdjustRequest 积分调整请求
type AdjustRequest struct {
	UserID int64  `json:"user_id" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
	Reason string `json:"reason" binding:"required"`
}

// Adjust 管理员调整积分
// POST /api/v1/point/adjust
func (h *Handler) Adjust(c *gin.Context) {
	var req AdjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balanceAfter, err := h.pointService.Adjust(c.Request.Context(), req.UserID, req.Amount, req.Reason)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, gin.H{
		"balance_after": balanceAfter,
	})
}

// ============================================================
// 优惠券相关接口
// ============================================================

// PurchaseCoupon 积分兑换优惠券
// POST /api/v1/coupon/purchase
func (h *Handler) PurchaseCoupon(c *gin.Context) {
	var req service.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	result, err := h.couponService.Purchase(c.Request.Context(), &req)
	if err != nil {
		businessError(c, err)
		return
	}

	response.Success(c, result)
}

// ListMyCoupons 查询我的优惠券
// GET /api/v1/coupon/list?user_id=xxx&page=1&page_size=10
func (h *Handler) ListMyCoupons(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}
	page, pageSize := parsePage(c)

	coupons, total, err := h.couponService.ListMyCoupons(c.Request.Context(), userID, page, pageSize)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list":      coupons,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 出金账户相关接口
// ============================================================

// RegisterBankAccount 登记出金账户
// POST /api/v1/bank-account/register
func (h *Handler) RegisterBankAccount(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	account, err := h.bankService.Register(c.Request.Context(), &req)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, account)
}

// ListBankAccounts 查询出金账户列表
// GET /api/v1/bank-account/list?user_id=xxx
func (h *Handler) ListBankAccounts(c *gin.Context) {
	userID, ok := parseUserID(c)
	if !ok {
		return
	}

	accounts, err := h.bankService.List(c.Request.Context(), userID)
	if err != nil {
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{
		"list": accounts,
	})
}

// BankAccountActionRequest 默认账户/认证标记请求
type BankAccountActionRequest struct {
	UserID    int64 `json:"user_id" binding:"required"`
	AccountID int64 `json:"account_id" binding:"required"`
}

// SetDefaultBankAccount 设置默认出金账户
// POST /api/v1/bank-account/set-default
func (h *Handler) SetDefaultBankAccount(c *gin.Context) {
	var req BankAccountActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.bankService.SetDefault(c.Request.Context(), req.UserID, req.AccountID); err != nil {
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
		return
	}

	response.Success(c, gin.H{
		"message": "默认账户已更新",
	})
}

// VerifyBankAccount 标记账户认证通过（认证流程由外部渠道完成）
// POST /api/v1/bank-account/verify
func (h *Handler) VerifyBankAccount(c *gin.Context) {
	var req BankAccountActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	if err := h.bankService.MarkVerified(c.Request.Context(), req.UserID, req.AccountID); err != nil {
		response.BusinessError(c, response.CodeAccountNotFound, err.Error())
		return
	}

	response.Success(c, gin.H{
		"message": "账户认证标记成功",
	})
}
