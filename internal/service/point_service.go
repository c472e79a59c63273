package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"mycard/internal/audit"
	"mycard/internal/config"
	"mycard/internal/model"
	"mycard/internal/repository"
	"mycard/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// PointService 积分核算服务
// 余额读改写、流水追加、提现受理都从这里走，
// 保证"余额变动 + 流水"在同一事务内提交或一起回滚
type PointService struct {
	db             txRunner
	cfg            *config.Config
	locker         userLocker
	balanceRepo    balanceStore
	ledgerRepo     ledgerRecorder
	withdrawalRepo withdrawalStore
	policyRepo     policyProvider
	bankRepo       accountDirectory
	outboxRepo     outboxWriter
	audit          auditSink
}

func NewPointService(db *gorm.DB, redisClient *redis.Client, cfg *config.Config, recorder *audit.Recorder) *PointService {
	return &PointService{
		db:             db,
		cfg:            cfg,
		locker:         newRedisUserLocker(redisClient),
		balanceRepo:    repository.NewBalanceRepository(db),
		ledgerRepo:     repository.NewLedgerRepository(db),
		withdrawalRepo: repository.NewWithdrawalRepository(db),
		policyRepo:     repository.NewPolicyRepository(db),
		bankRepo:       repository.NewBankAccountRepository(db),
		outboxRepo:     repository.NewOutboxRepository(db),
		audit:          recorder,
	}
}

// GetBalance 查询余额，首次访问懒创建零余额记录
func (s *PointService) GetBalance(ctx context.Context, userID int64) (*model.PointBalance, error) {
	balance, err := s.balanceRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询积分余额失败: %w", err)
	}
	return balance, nil
}

// ListLedger 按时间倒序分页查询流水，entryType 为空时不过滤
func (s *PointService) ListLedger(ctx context.Context, userID int64, entryType string, page, pageSize int) ([]*model.PointLedger, int64, error) {
	return s.ledgerRepo.ListByUserID(ctx, userID, entryType, page, pageSize)
}

// ListWithdrawals 按时间倒序分页查询提现记录
func (s *PointService) ListWithdrawals(ctx context.Context, userID int64, page, pageSize int) ([]*model.PointWithdrawal, int64, error) {
	return s.withdrawalRepo.ListByUserID(ctx, userID, page, pageSize)
}

// ReconcileResult 对账结果
type ReconcileResult struct {
	UserID     int64 `json:"user_id"`
	LedgerSum  int64 `json:"ledger_sum"`
	Balance    int64 `json:"balance"`
	Consistent bool  `json:"consistent"`
}

// Reconcile 对账：流水增量之和必须等于当前余额
// 不一致说明出现过绕开流水的余额变更，需要人工介入
func (s *PointService) Reconcile(ctx context.Context, userID int64) (*ReconcileResult, error) {
	balance, err := s.balanceRepo.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("查询积分余额失败: %w", err)
	}

	ledgerSum, err := s.ledgerRepo.SumAmountByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("汇总积分流水失败: %w", err)
	}

	result := &ReconcileResult{
		UserID:     userID,
		LedgerSum:  ledgerSum,
		Balance:    balance.Balance,
		Consistent: ledgerSum == balance.Balance,
	}
	if !result.Consistent {
		log.Printf("[Point] 对账不一致: userID=%d, ledgerSum=%d, balance=%d", userID, ledgerSum, balance.Balance)
	}
	return result, nil
}

// ConvertRequest 积分转现金请求
type ConvertRequest struct {
	UserID    int64  `json:"user_id" binding:"required"`
	Points    int64  `json:"points" binding:"required,gt=0"`
	AccountID *int64 `json:"account_id"` // 不传时使用默认出金账户
}

// Convert 积分转现金
//
// 【关键点】整个流程分两段：
// 1. 前置校验（账户、政策上下限、当日限额）—— 普通读，不加锁。
//    当日限额是"先读后扣"，两笔几乎同时的请求可能都通过限额检查，
//    这里保留了这个窄窗口（见 DESIGN.md），余额行锁仍然保证不会透支。
// 2. 原子单元 —— 行锁内扣减、落提现单、写 CONVERT 流水、写发件箱，
//    任何一步失败整体回滚，不存在"扣了积分却没有流水/提现单"的状态
func (s *PointService) Convert(ctx context.Context, req *ConvertRequest) (*model.PointWithdrawal, error) {
	if req.Points <= 0 {
		return nil, ErrInvalidAmount
	}

	// 出金账户：指定账户或默认账户，必须已认证
	account, err := s.resolveAccount(ctx, req.UserID, req.AccountID)
	if err != nil {
		return nil, err
	}

	// 政策每次现读，管理端调整立即生效
	policy, err := s.policyRepo.GetActive(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrPolicyNotFound) {
			log.Printf("[Point] 没有生效的积分政策，拒绝转换: userID=%d", req.UserID)
			return nil, ErrPolicyUnavailable
		}
		return nil, fmt.Errorf("查询积分政策失败: %w", err)
	}

	if req.Points < policy.MinPoints {
		return nil, ErrBelowMinimum
	}
	if req.Points > policy.MaxPoints {
		return nil, ErrAboveMaximum
	}

	// 当日累计限额（不含被拒绝的单）
	todayTotal, err := s.withdrawalRepo.SumPointsSince(ctx, req.UserID, startOfToday())
	if err != nil {
		return nil, fmt.Errorf("统计当日提现失败: %w", err)
	}
	if todayTotal+req.Points > policy.DailyCapPoints {
		return nil, ErrDailyCapExceeded
	}

	// 保证余额行存在，行锁才有加锁对象
	if _, err := s.balanceRepo.GetOrCreate(ctx, req.UserID); err != nil {
		return nil, fmt.Errorf("获取积分余额失败: %w", err)
	}

	release, err := s.locker.Acquire(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	defer release()

	var withdrawal *model.PointWithdrawal

	err = s.db.Transaction(func(tx *gorm.DB) error {
		balance, err := s.balanceRepo.GetByUserIDForUpdate(ctx, tx, req.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrBalanceNotFound) {
				return ErrInsufficientBalance
			}
			return fmt.Errorf("锁定积分余额失败: %w", err)
		}

		if balance.Balance < req.Points {
			return ErrInsufficientBalance
		}

		// 先扣减再算现金侧，单据上的金额永远对应真实存在过的余额
		if err := s.balanceRepo.Debit(ctx, tx, req.UserID, req.Points); err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) {
				return ErrInsufficientBalance
			}
			return fmt.Errorf("扣减积分失败: %w", err)
		}
		balanceAfter := balance.Balance - req.Points

		fee := int64(math.Floor(float64(req.Points) * policy.FeeRate))
		cashAmount := req.Points - fee

		withdrawal = &model.PointWithdrawal{
			WithdrawalNo:  idgen.GenerateWithdrawalNo(),
			UserID:        req.UserID,
			PointsAmount:  req.Points,
			CashAmount:    cashAmount,
			FeeAmount:     fee,
			BankName:      account.BankName,
			AccountMasked: account.AccountMasked,
			Status:        model.WithdrawalStatusRequested,
		}
		if err := s.withdrawalRepo.Create(ctx, tx, withdrawal); err != nil {
			return fmt.Errorf("创建提现单失败: %w", err)
		}

		entry := &model.PointLedger{
			LedgerNo:      idgen.GenerateLedgerNo(),
			UserID:        req.UserID,
			EntryType:     model.LedgerTypeConvert,
			Amount:        -req.Points,
			BalanceAfter:  balanceAfter,
			Description:   fmt.Sprintf("积分转换 (%s %s)", account.BankName, account.AccountMasked),
			ReferenceType: model.ReferenceTypeWithdrawal,
			ReferenceID:   withdrawal.ID,
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录积分流水失败: %w", err)
		}

		// 提现受理事件走发件箱，下游清算流程消费
		msgPayload := map[string]interface{}{
			"withdrawal_no": withdrawal.WithdrawalNo,
			"user_id":       req.UserID,
			"points_amount": req.Points,
			"cash_amount":   cashAmount,
			"fee_amount":    fee,
			"bank_name":     account.BankName,
			"status":        model.WithdrawalStatusRequested,
			"requested_at":  time.Now().Format(time.RFC3339),
		}
		payloadBytes, _ := json.Marshal(msgPayload)

		outboxMsg := &model.OutboxMessage{
			MessageKey: withdrawal.WithdrawalNo,
			Topic:      s.cfg.Kafka.Topic.PointWithdrawal,
			Payload:    string(payloadBytes),
			Status:     model.OutboxStatusPending,
		}
		if err := s.outboxRepo.Create(ctx, tx, outboxMsg); err != nil {
			return fmt.Errorf("写入提现事件失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	s.audit.Record(req.UserID, model.AuditActionCreate, "PointWithdrawal", withdrawal.ID,
		fmt.Sprintf("积分转换申请: %dP -> %d元 (%s)", withdrawal.PointsAmount, withdrawal.CashAmount, withdrawal.BankName))

	log.Printf("积分转换受理: withdrawalNo=%s, userID=%d, points=%d, cash=%d, fee=%d",
		withdrawal.WithdrawalNo, req.UserID, withdrawal.PointsAmount, withdrawal.CashAmount, withdrawal.FeeAmount)

	return withdrawal, nil
}

func (s *PointService) resolveAccount(ctx context.Context, userID int64, accountID *int64) (*model.UserBankAccount, error) {
	var account *model.UserBankAccount
	var err error

	if accountID != nil {
		account, err = s.bankRepo.GetByIDAndUserID(ctx, *accountID, userID)
	} else {
		account, err = s.bankRepo.GetDefault(ctx, userID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrBankAccountMissing) {
			return nil, ErrNoVerifiedAccount
		}
		return nil, fmt.Errorf("查询出金账户失败: %w", err)
	}

	if !account.IsVerified {
		return nil, ErrNoVerifiedAccount
	}
	return account, nil
}

// SpendRequest 积分消费请求（优惠券兑换等非现金场景）
type SpendRequest struct {
	UserID        int64  `json:"user_id" binding:"required"`
	UnitCost      int64  `json:"unit_cost" binding:"required,gt=0"`
	Quantity      int64  `json:"quantity" binding:"required,gt=0"`
	ReferenceType string `json:"reference_type" binding:"required"`
	ReferenceID   int64  `json:"reference_id" binding:"required"`
}

// Spend 消费积分
// 没有手续费、出金账户和当日限额，但锁与"扣减+流水同事务"的纪律
// 和 Convert 完全一致
func (s *PointService) Spend(ctx context.Context, req *SpendRequest) (int64, error) {
	total, err := totalCost(req.UnitCost, req.Quantity)
	if err != nil {
		return 0, err
	}

	if _, err := s.balanceRepo.GetOrCreate(ctx, req.UserID); err != nil {
		return 0, fmt.Errorf("获取积分余额失败: %w", err)
	}

	release, err := s.locker.Acquire(ctx, req.UserID)
	if err != nil {
		return 0, err
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

		entry := &model.PointLedger{
			LedgerNo:      idgen.GenerateLedgerNo(),
			UserID:        req.UserID,
			EntryType:     model.LedgerTypeSpend,
			Amount:        -total,
			BalanceAfter:  balance.Balance - total,
			Description:   fmt.Sprintf("积分消费 (%s/%d, 数量=%d)", req.ReferenceType, req.ReferenceID, req.Quantity),
			ReferenceType: req.ReferenceType,
			ReferenceID:   req.ReferenceID,
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录积分流水失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	s.audit.Record(req.UserID, model.AuditActionCreate, req.ReferenceType, req.ReferenceID,
		fmt.Sprintf("积分消费: %dP (数量=%d)", total, req.Quantity))

	return total, nil
}

// Credit 增加积分（EARN）
func (s *PointService) Credit(ctx context.Context, userID, amount int64, description string) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}

	if _, err := s.balanceRepo.GetOrCreate(ctx, userID); err != nil {
		return 0, fmt.Errorf("获取积分余额失败: %w", err)
	}

	release, err := s.locker.Acquire(ctx, userID)
	if err != nil {
		return 0, err
	}
	defer release()

	var balanceAfter int64

	err = s.db.Transaction(func(tx *gorm.DB) error {
		balance, err := s.balanceRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("锁定积分余额失败: %w", err)
		}

		if err := s.balanceRepo.Credit(ctx, tx, userID, amount); err != nil {
			return fmt.Errorf("增加积分失败: %w", err)
		}
		balanceAfter = balance.Balance + amount

		entry := &model.PointLedger{
			LedgerNo:     idgen.GenerateLedgerNo(),
			UserID:       userID,
			EntryType:    model.LedgerTypeEarn,
			Amount:       amount,
			BalanceAfter: balanceAfter,
			Description:  description,
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录积分流水失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	return balanceAfter, nil
}

// Adjust 管理员调整积分（ADJUST，正负均可）
func (s *PointService) Adjust(ctx context.Context, userID, amount int64, reason string) (int64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}

	if _, err := s.balanceRepo.GetOrCreate(ctx, userID); err != nil {
		return 0, fmt.Errorf("获取积分余额失败: %w", err)
	}

	release, err := s.locker.Acquire(ctx, userID)
	if err != nil {
		return 0, err
	}
	defer release()

	var balanceAfter int64

	err = s.db.Transaction(func(tx *gorm.DB) error {
		balance, err := s.balanceRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return fmt.Errorf("锁定积分余额失败: %w", err)
		}

		if amount < 0 {
			if balance.Balance < -amount {
				return ErrInsufficientBalance
			}
			if err := s.balanceRepo.Debit(ctx, tx, userID, -amount); err != nil {
				if errors.Is(err, repository.ErrBalanceNotEnough) {
					return ErrInsufficientBalance
				}
				return fmt.Errorf("扣减积分失败: %w", err)
			}
		} else {
			if err := s.balanceRepo.Credit(ctx, tx, userID, amount); err != nil {
				return fmt.Errorf("增加积分失败: %w", err)
			}
		}
		balanceAfter = balance.Balance + amount

		entry := &model.PointLedger{
			LedgerNo:     idgen.GenerateLedgerNo(),
			UserID:       userID,
			EntryType:    model.LedgerTypeAdjust,
			Amount:       amount,
			BalanceAfter: balanceAfter,
			Description:  reason,
		}
		if err := s.ledgerRepo.Create(ctx, tx, entry); err != nil {
			return fmt.Errorf("记录积分流水失败: %w", err)
		}

		return nil
	})

	if err != nil {
		return 0, err
	}

	s.audit.Record(userID, model.AuditActionUpdate, "PointBalance", userID,
		fmt.Sprintf("积分调整: %+dP (%s)", amount, reason))

	return balanceAfter, nil
}

// totalCost 单价 × 数量，溢出时拒绝
func totalCost(unitCost, quantity int64) (int64, error) {
	if unitCost <= 0 || quantity <= 0 {
		return 0, ErrInvalidQuantity
	}
	if unitCost > math.MaxInt64/quantity {
		return 0, ErrInvalidQuantity
	}
	return unitCost * quantity, nil
}

func startOfToday() time.Time {
	now := time.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}
