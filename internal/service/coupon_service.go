package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"mycard/internal/audit"
	"mycard/internal/config"
	"mycard/internal/model"
	"mycard/internal/repository"
	"mycard/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// CouponService 优惠券兑换服务
// 积分消费路径的具体业务方：扣减、SPEND 流水、券的创建在同一事务内
type CouponService struct {
	db          txRunner
	cfg         *config.Config
	locker      userLocker
	balanceRepo balanceStore
	ledgerRepo  ledgerRecorder
	couponRepo  couponStore
	audit       auditSink
}

func NewCouponService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, recorder *audit.Recorder) *CouponService {
	return &CouponService{
		db:          db,
		cfg:         cfg,
		locker:      newRedisUserLocker(redisClient),
		balanceRepo: repository.NewBalanceRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		couponRepo:  repository.NewCouponRepository(db),
		audit:       recorder,
	}
}

// PurchaseRequest 优惠券兑换请求
type PurchaseRequest struct {
	UserID   int64 `json:"user_id" binding:"required"`
	CouponID int64 `json:"coupon_id" binding:"required"`
	Quantity int64 `json:"quantity" binding:"required,gt=0"`
}

// PurchaseResult 兑换结果
type PurchaseResult struct {
	DeductedPoints int64 `json:"deducted_points"`
	Quantity       int64 `json:"quantity"`
}

// Purchase 用积分兑换优惠券
// 没有手续费和限额，但锁与事务纪律和提现一致；
// 券的有效期为兑换起一年
func (s *CouponService) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResult, error) {
	unitCost, ok := model.CouponPointCosts[req.CouponID]
	if !ok {
		return nil, ErrInvalidCoupon
	}

	total, err := totalCost(unitCost, req.Quantity)
	if err != nil {
		return nil, err
	}

	if _, err := s.balanceRepo.GetOrCreate(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("获取积分余额失败: %w", err)
	}

	release, err := s.locker.Acquire(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.db.Transaction(func(tx *gorm.DB) error {
		balance, err := s.balanceRepo.GetByUserIDForUpdate(ctx, tx, req.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrBalanceNotFound) {
				return ErrInsufficientBalance
			}
			return fmt.Errorf("锁定积分余额失败: %w", err)
		}

		if balance.Balance < total {
			return ErrInsufficientBalance
		}

		if err := s.balanceRepo.Debit(ctx, tx, req.UserID, total); err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return ErrInsufficientBalance
			}
			return fmt.Errorf("扣减积分失败: %w", err)
		}

		purchasedAt := time.Now()
		validUntil := purchasedAt.AddDate(1, 0, 0)

		coupons := make([]*model.UserCoupon, 0, req.Quantity)
		for i := int64(0); i < req.Quantity; i++ {
			coupons = append(coupons, &model.UserCoupon{
				UserID:      req.UserID,
				CouponID:    req.CouponID,
				Status:      model.CouponStatusAvailable,
				PurchasedAt: purchasedAt,
				ValidUntil:  validUntil,
			})
		}
		if err := s.couponRepo.CreateBatch(ctx, tx, coupons); err != nil {
			return fmt.Errorf("创建优惠券失败: %w", err)
		}

		entry := &model.PointLedger{
			LedgerNo:      idgen.GenerateLedgerNo(),
			UserID:        req.UserID,
			EntryType:     model.LedgerTypeSpend,
			Amount:        -total,
			BalanceAfter:  balance.Balance - total,
			Description:   fmt.Sprintf("优惠券兑换 (couponID=%d, 数量=%d)", req.CouponID, req.Quantity),
			ReferenceType: model.ReferenceTypeCoupon,
			ReferenceID:   req.CouponID,
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录积分流水失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s.audit.Record(req.UserID, model.AuditActionCreate, "CouponPurchase", req.CouponID,
		fmt.Sprintf("优惠券兑换: couponID=%d, 数量=%d, 扣减=%dP", req.CouponID, req.Quantity, total))

	log.Printf("优惠券兑换成功: userID=%d, couponID=%d, quantity=%d, deducted=%d",
		req.UserID, req.CouponID, req.Quantity, total)

	return &PurchaseResult{
		DeductedPoints: total,
		Quantity:       req.Quantity,
	}, nil
}

// ListMyCoupons 查询用户持有的优惠券
func (s *CouponService) ListMyCoupons(ctx context.Context, userID int64, page, pageSize int) ([]*model.UserCoupon, int64, error) {
	return s.couponRepo.ListByUserID(ctx, userID, page, pageSize)
}
