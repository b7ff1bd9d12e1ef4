package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/theluxar/auth-service/internal/dto"
	"github.com/theluxar/auth-service/internal/email"
	apperrors "github.com/theluxar/auth-service/internal/errors"
	"github.com/theluxar/auth-service/internal/model"
	"github.com/theluxar/auth-service/internal/repository"
	ctxutil "github.com/theluxar/auth-service/pkg/context"
	"github.com/theluxar/auth-service/pkg/logger"
	"gorm.io/datatypes"
)

// TokenPair is the result of every successful token issuance; the password
// and OAuth login paths both converge on it.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AccountPayload is the canonical account representation produced by the
// identity-provider adapters and consumed by RegisterFromAccount.
type AccountPayload struct {
	Email     string
	FirstName string
	LastName  string
	Picture   string
}

// AuthService orchestrates the account lifecycle: registration, activation,
// login, logout, token refresh, password reset and OAuth account linking.
type AuthService struct {
	accounts  repository.AccountRepository
	users     repository.UserRepository
	perms     repository.PermissionRepository
	hasher    *PasswordHasher
	tokens    *TokenService
	sessions  SessionStore
	mailer    email.Mailer
	namespace string
	now       func() time.Time
}

func NewAuthService(
	accounts repository.AccountRepository,
	users repository.UserRepository,
	perms repository.PermissionRepository,
	hasher *PasswordHasher,
	tokens *TokenService,
	sessions SessionStore,
	mailer email.Mailer,
	namespace string,
) *AuthService {
	return &AuthService{
		accounts:  accounts,
		users:     users,
		perms:     perms,
		hasher:    hasher,
		tokens:    tokens,
		sessions:  sessions,
		mailer:    mailer,
		namespace: namespace,
		now:       time.Now,
	}
}

// defaultPermission is the permission granted to every new user, namespaced
// for the consuming application, e.g. "theluxar_user".
func (s *AuthService) defaultPermission() string {
	return fmt.Sprintf("%s_user", s.namespace)
}

// FindByUserID returns the account owning the given user id.
func (s *AuthService) FindByUserID(ctx context.Context, userID string) (*model.Account, error) {
	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	return account, nil
}

// Register creates an inactive account with its user profile and default
// permission set, then triggers the activation email. It returns the created
// account, never tokens: the account cannot log in until activated.
func (s *AuthService) Register(ctx context.Context, req *dto.SignUpRequest) (*model.Account, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Register")

	exists, err := s.accounts.ExistsByEmail(ctx, req.Email)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to check for existing account").
			String("email", req.Email).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	if exists {
		logger.WarnWithContext(ctx, "Registration rejected, email already registered").
			String("email", req.Email).
			Log()
		return nil, apperrors.ErrEmailExists
	}

	user := &model.User{
		FirstName: req.FirstName,
		Email:     req.Email,
		IsActive:  true,
	}
	if req.LastName != "" {
		user.LastName = &req.LastName
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if err := s.perms.Create(ctx, &model.UserPermission{
		OwnerID:     user.ID,
		Permissions: datatypes.NewJSONSlice([]string{s.defaultPermission()}),
	}); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to hash password during registration").
			String("email", req.Email).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	account := &model.Account{
		Email:        req.Email,
		PasswordHash: &passwordHash,
		Active:       false,
		UserID:       user.ID,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}
	account.User = *user

	activationToken, err := s.tokens.Sign(TokenActivation, account.ID)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to sign activation token").
			String("account_id", account.ID).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if err := s.mailer.SendActivationEmail(ctx, account.Email, activationToken); err != nil {
		// The account stays; resend-activation exists for this case.
		logger.ErrorWithContext(ctx, "Failed to queue activation email").
			String("email", account.Email).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "Account registered, activation email sent").
		String("account_id", account.ID).
		String("email", account.Email).
		Log()
	return account, nil
}

// ActivateAccount exchanges a one-time activation token for the active flag.
func (s *AuthService) ActivateAccount(ctx context.Context, token string) error {
	ctx = ctxutil.WithOperation(ctx, "service", "ActivateAccount")

	claims, err := s.tokens.Verify(TokenActivation, token)
	if err != nil {
		logger.WarnWithContext(ctx, "Activation token rejected").
			Err(err).
			Log()
		return err
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrAccountNotFound
		}
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if account.Active {
		return apperrors.ErrAlreadyActivated
	}

	if err := s.accounts.SetActive(ctx, account.ID, true); err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "Account activated").
		String("account_id", account.ID).
		Log()
	return nil
}

// ResendActivationEmail issues a fresh activation token for a pending
// account and resends the email.
func (s *AuthService) ResendActivationEmail(ctx context.Context, emailAddr string) error {
	ctx = ctxutil.WithOperation(ctx, "service", "ResendActivationEmail")

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrAccountNotFound
		}
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if account.Active {
		return apperrors.ErrAlreadyActivated
	}

	activationToken, err := s.tokens.Sign(TokenActivation, account.ID)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if err := s.mailer.SendActivationEmail(ctx, account.Email, activationToken); err != nil {
		logger.ErrorWithContext(ctx, "Failed to queue activation email").
			String("email", account.Email).
			Err(err).
			Log()
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}
	return nil
}

// Authenticate verifies password credentials and returns the owning user.
// The three failure branches are logged with distinguishing context but all
// project onto the same generic unauthorized response, so callers cannot
// probe which check failed.
func (s *AuthService) Authenticate(ctx context.Context, emailAddr, password string) (*model.User, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Authenticate")

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.WarnWithContext(ctx, "Authentication failed, no account for email").
				String("email", emailAddr).
				Log()
			return nil, apperrors.ErrAccessNotGranted
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if !account.Active {
		logger.WarnWithContext(ctx, "Authentication failed, account not active").
			String("account_id", account.ID).
			Log()
		return nil, apperrors.ErrAccountNotActive
	}

	if account.PasswordHash == nil || !s.hasher.Verify(password, *account.PasswordHash) {
		logger.WarnWithContext(ctx, "Authentication failed, invalid password").
			String("account_id", account.ID).
			Log()
		return nil, apperrors.ErrInvalidCredentials
	}

	return &account.User, nil
}

// Login issues an access/refresh token pair for a user, fingerprints the
// refresh token, and stamps the login time. The previous refresh token, if
// any, stops validating from here on.
func (s *AuthService) Login(ctx context.Context, userID string) (*TokenPair, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "Login")

	account, err := s.accounts.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.ErrorWithContext(ctx, "Token issuance refused, account does not exist").
				String("user_id", userID).
				Log()
			return nil, apperrors.ErrInvalidPayload
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	pair, refreshHash, err := s.issueTokens(userID)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to generate tokens").
			String("user_id", userID).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if err := s.accounts.UpdateSession(ctx, account.ID, refreshHash, s.now()); err != nil {
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "Tokens issued").
		String("user_id", userID).
		Log()
	return pair, nil
}

func (s *AuthService) issueTokens(userID string) (*TokenPair, string, error) {
	accessToken, err := s.tokens.Sign(TokenAccess, userID)
	if err != nil {
		return nil, "", err
	}
	refreshToken, err := s.tokens.Sign(TokenRefresh, userID)
	if err != nil {
		return nil, "", err
	}
	refreshHash, err := s.hasher.FingerprintToken(refreshToken)
	if err != nil {
		return nil, "", err
	}
	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, refreshHash, nil
}

// Logout drops the stored refresh-token fingerprint and the cached session,
// returning the account to "active, no session".
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	ctx = ctxutil.WithOperation(ctx, "service", "Logout")

	if err := s.accounts.ClearSession(ctx, userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}
	if err := s.sessions.Invalidate(ctx, userID); err != nil {
		logger.WarnWithContext(ctx, "Failed to invalidate cached session on logout").
			String("user_id", userID).
			Err(err).
			Log()
	}
	return nil
}

// RefreshTokens exchanges a valid refresh token for a new pair. The stored
// fingerprint is compared and rotated in one atomic step, so a refresh token
// spends exactly once: replaying it after rotation fails, which is the
// theft-detection path.
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "RefreshTokens")

	claims, err := s.tokens.Verify(TokenRefresh, refreshToken)
	if err != nil {
		if errors.Is(err, apperrors.ErrTokenExpired) {
			return nil, apperrors.ErrRefreshExpired
		}
		return nil, apperrors.ErrInvalidRefreshToken
	}
	userID := claims.Subject

	pair, newHash, err := s.issueTokens(userID)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to generate tokens on refresh").
			String("user_id", userID).
			Err(err).
			Log()
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	err = s.accounts.RotateRefreshToken(ctx, userID, func(storedHash string) bool {
		return s.hasher.VerifyToken(refreshToken, storedHash)
	}, newHash, s.now())
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			logger.WarnWithContext(ctx, "Refresh rejected, no account for subject").
				String("user_id", userID).
				Log()
			return nil, apperrors.ErrInvalidRefreshToken
		case errors.Is(err, repository.ErrStaleRefreshToken):
			logger.WarnWithContext(ctx, "Refresh rejected, token already rotated").
				String("user_id", userID).
				Log()
			return nil, apperrors.ErrInvalidRefreshToken
		default:
			return nil, apperrors.WrapError(apperrors.ErrInternal, err)
		}
	}

	logger.InfoWithContext(ctx, "Refresh tokens rotated").
		String("user_id", userID).
		Log()
	return pair, nil
}

// RequestPasswordReset issues a reset token and queues the reset email.
// Returns ErrAccountNotFound for unknown emails; the handler converts that
// to a success-shaped response so the endpoint cannot be used to enumerate
// accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	ctx = ctxutil.WithOperation(ctx, "service", "RequestPasswordReset")

	account, err := s.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.InfoWithContext(ctx, "Password reset requested for unknown email").
				String("email", emailAddr).
				Log()
			return apperrors.ErrAccountNotFound
		}
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	resetToken, err := s.tokens.Sign(TokenReset, account.UserID)
	if err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if err := s.mailer.SendPasswordResetEmail(ctx, account.Email, resetToken); err != nil {
		logger.ErrorWithContext(ctx, "Failed to queue password reset email").
			String("email", account.Email).
			Err(err).
			Log()
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "Password reset email queued").
		String("account_id", account.ID).
		Log()
	return nil
}

// ValidateResetToken verifies a reset token and confirms its subject still
// exists.
func (s *AuthService) ValidateResetToken(ctx context.Context, token string) (*TokenClaims, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "ValidateResetToken")

	claims, err := s.tokens.Verify(TokenReset, token)
	if err != nil {
		logger.WarnWithContext(ctx, "Reset token rejected").
			Err(err).
			Log()
		return nil, err
	}

	if _, err := s.accounts.GetByUserID(ctx, claims.Subject); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.WrapError(apperrors.ErrInternal, err)
	}

	return claims, nil
}

// ResetPassword re-validates the token and overwrites the password hash.
// The stored refresh-token fingerprint is cleared in the same write, so a
// refresh token issued under the old password stops working.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx = ctxutil.WithOperation(ctx, "service", "ResetPassword")

	claims, err := s.ValidateResetToken(ctx, token)
	if err != nil {
		return err
	}

	account, err := s.accounts.GetByUserID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.ErrAccountNotFound
		}
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	passwordHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		logger.ErrorWithContext(ctx, "Failed to hash new password").
			String("account_id", account.ID).
			Err(err).
			Log()
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if err := s.accounts.UpdatePassword(ctx, account.ID, passwordHash, true); err != nil {
		return apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "Password reset completed").
		String("account_id", account.ID).
		Log()
	return nil
}

// RegisterFromAccount is the idempotent link-or-create entry point for the
// OAuth adapters. An existing account is reactivated if needed; a new one is
// created already active and password-less. Either way the caller gets a
// user id to hand to the standard Login path.
func (s *AuthService) RegisterFromAccount(ctx context.Context, payload AccountPayload) (string, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "RegisterFromAccount")

	if payload.Email == "" {
		return "", apperrors.ErrMissingEmail
	}

	account, err := s.accounts.GetByEmail(ctx, payload.Email)
	if err == nil {
		if !account.Active {
			if err := s.accounts.SetActive(ctx, account.ID, true); err != nil {
				return "", apperrors.WrapError(apperrors.ErrInternal, err)
			}
		}
		return account.UserID, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	user := &model.User{
		FirstName: payload.FirstName,
		Email:     payload.Email,
		IsActive:  true,
	}
	if payload.LastName != "" {
		user.LastName = &payload.LastName
	}
	if err := s.users.Create(ctx, user); err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	if err := s.perms.Create(ctx, &model.UserPermission{
		OwnerID:     user.ID,
		Permissions: datatypes.NewJSONSlice([]string{s.defaultPermission()}),
	}); err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	newAccount := &model.Account{
		Email:  payload.Email,
		Active: true,
		UserID: user.ID,
	}
	if err := s.accounts.Create(ctx, newAccount); err != nil {
		return "", apperrors.WrapError(apperrors.ErrInternal, err)
	}

	logger.InfoWithContext(ctx, "Account created from provider profile").
		String("account_id", newAccount.ID).
		String("email", payload.Email).
		Log()
	return user.ID, nil
}
