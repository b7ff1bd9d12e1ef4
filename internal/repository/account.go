package repository

import (
	"context"
	"errors"
	"time"

	"github.com/theluxar/auth-service/internal/model"
	ctxutil "github.com/theluxar/auth-service/pkg/context"
	"github.com/theluxar/auth-service/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAccountRepository is the PostgreSQL-backed AccountRepository.
type GormAccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

func (r *GormAccountRepository) GetByID(ctx context.Context, id string) (*model.Account, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "GetByID")

	var account model.Account
	result := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		logger.ErrorWithContext(ctx, "Failed to get account by id").
			String("account_id", id).
			Err(result.Error).
			Log()
		return nil, result.Error
	}
	return &account, nil
}

func (r *GormAccountRepository) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "GetByEmail")

	var account model.Account
	result := r.db.WithContext(ctx).Preload("User").Where("email = ?", email).First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		logger.ErrorWithContext(ctx, "Failed to get account by email").
			String("email", email).
			Err(result.Error).
			Log()
		return nil, result.Error
	}
	return &account, nil
}

func (r *GormAccountRepository) GetByUserID(ctx context.Context, userID string) (*model.Account, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "GetByUserID")

	var account model.Account
	result := r.db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		logger.ErrorWithContext(ctx, "Failed to get account by user id").
			String("user_id", userID).
			Err(result.Error).
			Log()
		return nil, result.Error
	}
	return &account, nil
}

func (r *GormAccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "ExistsByEmail")

	var count int64
	result := r.db.WithContext(ctx).Model(&model.Account{}).Where("email = ?", email).Count(&count)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to check account existence").
			String("email", email).
			Err(result.Error).
			Log()
		return false, result.Error
	}
	return count > 0, nil
}

func (r *GormAccountRepository) Create(ctx context.Context, account *model.Account) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "Create")

	start := time.Now()
	result := r.db.WithContext(ctx).Create(account)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to create account").
			String("email", account.Email).
			Duration("query_time", time.Since(start)).
			Err(result.Error).
			Log()
		return result.Error
	}

	logger.DebugWithContext(ctx, "Account created").
		String("account_id", account.ID).
		String("email", account.Email).
		Duration("query_time", time.Since(start)).
		Log()
	return nil
}

func (r *GormAccountRepository) SetActive(ctx context.Context, id string, active bool) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "SetActive")

	result := r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).
		Update("active", active)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update account active flag").
			String("account_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormAccountRepository) UpdateSession(ctx context.Context, id string, refreshTokenHash string, lastLogin time.Time) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "UpdateSession")

	result := r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"refresh_token": refreshTokenHash,
			"last_login":    lastLogin,
		})
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update account session").
			String("account_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormAccountRepository) ClearSession(ctx context.Context, userID string) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "ClearSession")

	result := r.db.WithContext(ctx).Model(&model.Account{}).Where("user_id = ?", userID).
		Update("refresh_token", nil)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to clear account session").
			String("user_id", userID).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormAccountRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, clearRefresh bool) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "UpdatePassword")

	updates := map[string]interface{}{"password": passwordHash}
	if clearRefresh {
		updates["refresh_token"] = nil
	}

	result := r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update account password").
			String("account_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateRefreshToken runs the compare-and-rotate inside one transaction with
// a row lock, so two concurrent refresh calls holding the same stale token
// cannot both pass the comparison.
func (r *GormAccountRepository) RotateRefreshToken(ctx context.Context, userID string, matches func(storedHash string) bool, newHash string, now time.Time) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "RotateRefreshToken")

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account model.Account
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).First(&account)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return result.Error
		}

		if account.RefreshTokenHash == nil || !matches(*account.RefreshTokenHash) {
			logger.WarnWithContext(ctx, "Refresh token fingerprint mismatch").
				String("user_id", userID).
				Bool("session_active", account.RefreshTokenHash != nil).
				Log()
			return ErrStaleRefreshToken
		}

		return tx.Model(&model.Account{}).Where("id = ?", account.ID).
			Updates(map[string]interface{}{
				"refresh_token": newHash,
				"last_login":    now,
			}).Error
	})
}
