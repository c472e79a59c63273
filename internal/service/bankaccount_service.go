package service

import (
	"context"
	"fmt"

	"mycard/internal/model"
	"mycard/internal/repository"

	"gorm.io/gorm"
)

// BankAccountService 出金账户管理
// 账户认证本身由外部渠道完成，这里只维护记录和认证标记
type BankAccountService struct {
	bankRepo *repository.BankAccountRepository
}

func NewBankAccountService(db *gorm.DB) *BankAccountService {
	return &BankAccountService{
		bankRepo: repository.NewBankAccountRepository(db),
	}
}

// RegisterRequest 账户登记请求
type RegisterRequest struct {
	UserID        int64  `json:"user_id" binding:"required"`
	BankCode      string `json:"bank_code" binding:"required"`
	BankName      string `json:"bank_name" binding:"required"`
	AccountNumber string `json:"account_number" binding:"required"`
	AccountHolder string `json:"account_holder" binding:"required"`
	SetDefault    bool   `json:"set_default"`
}

// Register 登记出金账户
// 明文账号只用于脱敏计算，不落库
func (s *BankAccountService) Register(ctx context.Context, req *RegisterRequest) (*model.UserBankAccount, error) {
	account := &model.UserBankAccount{
		UserID:        req.UserID,
		BankCode:      req.BankCode,
		BankName:      req.BankName,
		AccountMasked: model.MaskAccountNumber(req.AccountNumber),
		AccountHolder: req.AccountHolder,
	}

	if err := s.bankRepo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("登记出金账户失败: %w", err)
	}

	if req.SetDefault {
		if err := s.bankRepo.SetDefault(ctx, req.UserID, account.ID); err != nil {
			return nil, fmt.Errorf("设置默认账户失败: %w", err)
		}
		account.IsDefault = true
	}

	return account, nil
}

func (s *BankAccountService) List(ctx context.Context, userID int64) ([]*model.UserBankAccount, error) {
	return s.bankRepo.ListByUserID(ctx, userID)
}

func (s *BankAccountService) SetDefault(ctx context.Context, userID, accountID int64) error {
	return s.bankRepo.SetDefault(ctx, userID, accountID)
}

func (s *BankAccountService) MarkVerified(ctx context.Context, userID, accountID int64) error {
	return s.bankRepo.MarkVerified(ctx, userID, accountID)
}
