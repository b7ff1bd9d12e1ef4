package service

import (
	"context"
	"errors"
	"sort"
	"strings"

	apperrors "github.com/theluxar/auth-service/internal/errors"
	"github.com/theluxar/auth-service/internal/model"
	"github.com/theluxar/auth-service/internal/repository"
	ctxutil "github.com/theluxar/auth-service/pkg/context"
	"github.com/theluxar/auth-service/pkg/logger"
)

// PermissionService manages per-user permission sets. Permissions are flat
// namespaced strings of the form "<app>_<role>", e.g. "theluxar_admin".
type PermissionService struct {
	perms    repository.PermissionRepository
	users    repository.UserRepository
	sessions SessionStore
}

func NewPermissionService(
	perms repository.PermissionRepository,
	users repository.UserRepository,
	sessions SessionStore,
) *PermissionService {
	return &PermissionService{perms: perms, users: users, sessions: sessions}
}

// GetUserPermissions returns the user's permission strings. A user without a
// permission record gets an empty set, not an error.
func (s *PermissionService) GetUserPermissions(ctx context.Context, userID string) ([]string, error) {
	record, err := s.perms.GetByOwnerID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []string{}, nil
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	return append([]string(nil), record.Permissions...), nil
}

// GetPermissionsForApp returns the user's permissions scoped to one
// application namespace, i.e. those prefixed "<app>_".
func (s *PermissionService) GetPermissionsForApp(ctx context.Context, userID, app string) ([]string, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "GetPermissionsForApp")

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	all, err := s.GetUserPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	prefix := app + "_"
	scoped := make([]string, 0, len(all))
	for _, p := range all {
		if strings.HasPrefix(p, prefix) {
			scoped = append(scoped, p)
		}
	}
	return scoped, nil
}

// AddPermissions merges new permission strings into the user's set. The
// cached session is invalidated first so a stale view can never outlive the
// change.
func (s *PermissionService) AddPermissions(ctx context.Context, userID string, permissions []string) ([]string, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "AddPermissions")

	if err := s.sessions.Invalidate(ctx, userID); err != nil {
		logger.WarnWithContext(ctx, "Failed to invalidate session before permission grant").
			String("user_id", userID).
			Err(err).
			Log()
	}

	record, err := s.perms.GetByOwnerID(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.WrapError(apperrors.ErrInternal, err)
		}
		record = nil
	}

	existing := []string{}
	if record != nil {
		existing = record.Permissions
	}

	merged := mergePermissions(existing, permissions)

	if record == nil {
		if err := s.perms.Create(ctx, &model.UserPermission{
			OwnerID:     userID,
			Permissions: merged,
		}); err != nil {
			return nil, apperrors.WrapError(apperrors.ErrInternal, err)
		}
	} else if err := s.perms.UpdatePermissions(ctx, record.ID, merged); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "Permissions granted").
		String("user_id", userID).
		Int("count", len(permissions)).
		Log()
	return merged, nil
}

// RevokePermissions removes permission strings from the user's set. Unknown
// strings are ignored. The cached session is invalidated first.
func (s *PermissionService) RevokePermissions(ctx context.Context, userID string, permissions []string) ([]string, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "RevokePermissions")

	if err := s.sessions.Invalidate(ctx, userID); err != nil {
		logger.WarnWithContext(ctx, "Failed to invalidate session before permission revoke").
			String("user_id", userID).
			Err(err).
			Log()
	}

	record, err := s.perms.GetByOwnerID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return []string{}, nil
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	drop := make(map[string]struct{}, len(permissions))
	for _, p := range permissions {
		drop[p] = struct{}{}
	}

	kept := make([]string, 0, len(record.Permissions))
	for _, p := range record.Permissions {
		if _, ok := drop[p]; !ok {
			kept = append(kept, p)
		}
	}

	if err := s.perms.UpdatePermissions(ctx, record.ID, kept); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "Permissions revoked").
		String("user_id", userID).
		Int("count", len(permissions)).
		Log()
	return kept, nil
}

// mergePermissions unions two permission lists, deduplicated and sorted for
// stable storage.
func mergePermissions(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(incoming))
	merged := make([]string, 0, len(existing)+len(incoming))
	for _, p := range existing {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		merged = append(merged, p)
	}
	for _, p := range incoming {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		merged = append(merged, p)
	}
	sort.Strings(merged)
	return merged
}
