package repository

import (
	"errors"

	"studhub/internal/models"

	"gorm.io/gorm"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNonPositiveAmount   = errors.New("amount must be positive")
	ErrUserNotFound        = errors.New("user not found")
)

// BalanceRepository mutates the integer balance on the user row. Both
// mutations are single UPDATE statements so concurrent callers touching
// the same user cannot lose updates; the debit predicate doubles as the
// non-negative floor.
type BalanceRepository struct {
	db *gorm.DB
}

func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *BalanceRepository) WithTx(tx *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: tx}
}

func (r *BalanceRepository) Credit(userID uint, amountCents int64) error {
	if amountCents <= 0 {
		return ErrNonPositiveAmount
	}
	res := r.db.Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("balance_cents", gorm.Expr("balance_cents + ?", amountCents))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *BalanceRepository) Debit(userID uint, amountCents int64) error {
	if amountCents <= 0 {
		return ErrNonPositiveAmount
	}
	res := r.db.Model(&models.User{}).
		Where("id = ? AND balance_cents >= ?", userID, amountCents).
		UpdateColumn("balance_cents", gorm.Expr("balance_cents - ?", amountCents))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either no such user or the floor would be crossed.
		var count int64
		if err := r.db.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrUserNotFound
		}
		return ErrInsufficientBalance
	}
	return nil
}

func (r *BalanceRepository) GetBalance(userID uint) (int64, error) {
	var u models.User
	if err := r.db.Select("balance_cents").First(&u, userID).Error; err != nil {
		return 0, err
	}
	return u.BalanceCents, nil
}
