package repository

import (
	"context"
	"errors"
	"time"

	"github.com/theluxar/auth-service/internal/model"
)

// Sentinel errors shared by every implementation. The service layer matches
// on these instead of driver-specific errors.
var (
	// ErrNotFound is returned when no record matches the criteria.
	ErrNotFound = errors.New("record not found")
	// ErrStaleRefreshToken is returned by RotateRefreshToken when the
	// presented token no longer matches the stored fingerprint, i.e. the
	// token was already spent or never issued.
	ErrStaleRefreshToken = errors.New("stale refresh token")
)

// AccountRepository is the persistence collaborator for Account records.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*model.Account, error)
	// GetByEmail returns the account with its user relation loaded.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// GetByUserID returns the account owning the given user id.
	GetByUserID(ctx context.Context, userID string) (*model.Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, account *model.Account) error
	SetActive(ctx context.Context, id string, active bool) error
	// UpdateSession stores a new refresh-token fingerprint and stamps the
	// login time. Used on every successful token issuance.
	UpdateSession(ctx context.Context, id string, refreshTokenHash string, lastLogin time.Time) error
	// ClearSession drops the stored refresh-token fingerprint for the
	// account owning userID, ending the session.
	ClearSession(ctx context.Context, userID string) error
	// UpdatePassword overwrites the password hash; when clearRefresh is
	// set the stored refresh-token fingerprint is dropped in the same
	// write.
	UpdatePassword(ctx context.Context, id string, passwordHash string, clearRefresh bool) error
	// RotateRefreshToken is an atomic compare-and-rotate: it loads the
	// account owning userID under a write lock, calls matches with the
	// stored fingerprint, and replaces it with newHash only when matches
	// reports true. Returns ErrNotFound or ErrStaleRefreshToken otherwise.
	// Two concurrent calls presenting the same stale token cannot both
	// succeed.
	RotateRefreshToken(ctx context.Context, userID string, matches func(storedHash string) bool, newHash string, now time.Time) error
}

// UserRepository is the persistence collaborator for User profiles. Only
// creation and lookup belong to the auth core.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
}

// PermissionRepository is the persistence collaborator for per-user
// permission sets.
type PermissionRepository interface {
	GetByOwnerID(ctx context.Context, ownerID string) (*model.UserPermission, error)
	Create(ctx context.Context, perm *model.UserPermission) error
	UpdatePermissions(ctx context.Context, id string, permissions []string) error
}
