package repository

import (
	"context"
	"errors"

	"mycard/internal/model"

	"gorm.io/gorm"
)

type BankAccountRepository struct {
	db *gorm.DB
}

func NewBankAccountRepository(db *gorm.DB) *BankAccountRepository {
	return &BankAccountRepository{db: db}
}

func (r *BankAccountRepository) Create(ctx context.Context, account *model.UserBankAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *BankAccountRepository) GetByIDAndUserID(ctx context.Context, id, userID int64) (*model.UserBankAccount, error) {
	var account model.UserBankAccount
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBankAccountMissing
		}
		return nil, err
	}
	return &account, nil
}

// GetDefault 取用户的默认出金账户
func (r *BankAccountRepository) GetDefault(ctx context.Context, userID int64) (*model.UserBankAccount, error) {
	var account model.UserBankAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND is_default = ?", userID, true).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBankAccountMissing
		}
		return nil, err
	}
	return &account, nil
}

func (r *BankAccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*model.UserBankAccount, error) {
	var accounts []*model.UserBankAccount
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&accounts).Error
	return accounts, err
}

// SetDefault 把指定账户设为默认，同一用户其余账户取消默认
func (r *BankAccountRepository) SetDefault(ctx context.Context, userID, accountID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.UserBankAccount{}).
			Where("user_id = ?", userID).
			Update("is_default", false).Error; err != nil {
			return err
		}

		result := tx.Model(&model.UserBankAccount{}).
			Where("id = ? AND user_id = ?", accountID, userID).
			Update("is_default", true)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrBankAccountMissing
		}
		return nil
	})
}

// MarkVerified 账户认证通过（认证流程本身由外部完成）
func (r *BankAccountRepository) MarkVerified(ctx context.Context, userID, accountID int64) error {
	result := r.db.WithContext(ctx).
		Model(&model.UserBankAccount{}).
		Where("id = ? AND user_id = ?", accountID, userID).
		Updates(map[string]interface{}{
			"is_verified": true,
			"verified_at": gorm.Expr("NOW()"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBankAccountMissing
	}
	return nil
}
