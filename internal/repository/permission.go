package repository

import (
	"context"
	"errors"

	"github.com/theluxar/auth-service/internal/model"
	ctxutil "github.com/theluxar/auth-service/pkg/context"
	"github.com/theluxar/auth-service/pkg/logger"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormPermissionRepository is the PostgreSQL-backed PermissionRepository.
type GormPermissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) *GormPermissionRepository {
	return &GormPermissionRepository{db: db}
}

func (r *GormPermissionRepository) GetByOwnerID(ctx context.Context, ownerID string) (*model.UserPermission, error) {
	ctx = ctxutil.WithOperation(ctx, "repository", "GetByOwnerID")

	var perm model.UserPermission
	result := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&perm)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		logger.ErrorWithContext(ctx, "Failed to get user permissions").
			String("owner_id", ownerID).
			Err(result.Error).
			Log()
		return nil, result.Error
	}
	return &perm, nil
}

func (r *GormPermissionRepository) Create(ctx context.Context, perm *model.UserPermission) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "Create")

	result := r.db.WithContext(ctx).Create(perm)
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to create user permissions").
			String("owner_id", perm.OwnerID).
			Err(result.Error).
			Log()
		return result.Error
	}
	return nil
}

func (r *GormPermissionRepository) UpdatePermissions(ctx context.Context, id string, permissions []string) error {
	ctx = ctxutil.WithOperation(ctx, "repository", "UpdatePermissions")

	result := r.db.WithContext(ctx).Model(&model.UserPermission{}).Where("id = ?", id).
		Update("permissions", datatypes.NewJSONSlice(permissions))
	if result.Error != nil {
		logger.ErrorWithContext(ctx, "Failed to update user permissions").
			String("permission_id", id).
			Err(result.Error).
			Log()
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
