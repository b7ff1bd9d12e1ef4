package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/theluxar/auth-service/internal/dto"
	apperrors "github.com/theluxar/auth-service/internal/errors"
	"golang.org/x/crypto/bcrypt"
)

type authFixture struct {
	svc      *AuthService
	accounts *fakeAccountRepo
	users    *fakeUserRepo
	perms    *fakePermissionRepo
	sessions *MemorySessionStore
	mailer   *recordingMailer
	tokens   *TokenService
	hasher   *PasswordHasher
}

func newAuthFixture() *authFixture {
	users := newFakeUserRepo()
	accounts := newFakeAccountRepo(users)
	perms := newFakePermissionRepo()
	sessions := NewMemorySessionStore()
	mailer := &recordingMailer{}
	hasher := NewPasswordHasher(bcrypt.MinCost)
	tokens := &TokenService{cfg: testTokenConfig(), now: time.Now}

	svc := NewAuthService(accounts, users, perms, hasher, tokens, sessions, mailer, "theluxar")

	return &authFixture{
		svc:      svc,
		accounts: accounts,
		users:    users,
		perms:    perms,
		sessions: sessions,
		mailer:   mailer,
		tokens:   tokens,
		hasher:   hasher,
	}
}

func (f *authFixture) register(t *testing.T, email, password string) string {
	t.Helper()

	account, err := f.svc.Register(context.Background(), &dto.SignUpRequest{
		Email:     email,
		Password:  password,
		FirstName: "Ada",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	return account.UserID
}

func (f *authFixture) registerAndActivate(t *testing.T, email, password string) string {
	t.Helper()

	userID := f.register(t, email, password)

	mail, err := f.mailer.last()
	if err != nil {
		t.Fatalf("Expected activation email: %v", err)
	}
	if err := f.svc.ActivateAccount(context.Background(), mail.token); err != nil {
		t.Fatalf("ActivateAccount returned error: %v", err)
	}
	return userID
}

func TestRegisterCreatesInactiveAccount(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	account, err := f.svc.Register(ctx, &dto.SignUpRequest{
		Email:     "ada@example.com",
		Password:  "password123",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if account.Active {
		t.Error("Expected new account to be inactive until email confirmation")
	}
	if account.PasswordHash == nil || *account.PasswordHash == "password123" {
		t.Error("Expected password to be stored as a hash")
	}

	// Default namespaced permission is granted on registration.
	record, err := f.perms.GetByOwnerID(ctx, account.UserID)
	if err != nil {
		t.Fatalf("Expected permission record: %v", err)
	}
	if len(record.Permissions) != 1 || record.Permissions[0] != "theluxar_user" {
		t.Errorf("Expected default permission theluxar_user, got %v", record.Permissions)
	}

	mail, err := f.mailer.last()
	if err != nil {
		t.Fatalf("Expected activation email: %v", err)
	}
	if mail.kind != "activation" || mail.to != "ada@example.com" {
		t.Errorf("Expected activation mail to ada@example.com, got %+v", mail)
	}

	// The emailed token activates this account.
	claims, err := f.tokens.Verify(TokenActivation, mail.token)
	if err != nil {
		t.Fatalf("Activation token failed verification: %v", err)
	}
	if claims.Subject != account.ID {
		t.Errorf("Expected activation subject %s, got %s", account.ID, claims.Subject)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture()
	f.register(t, "ada@example.com", "password123")

	_, err := f.svc.Register(context.Background(), &dto.SignUpRequest{
		Email:    "ada@example.com",
		Password: "different456",
	})
	if !errors.Is(err, apperrors.ErrEmailExists) {
		t.Errorf("Expected EMAIL_EXISTS, got %v", err)
	}
}

func TestActivateAccount(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.register(t, "ada@example.com", "password123")
	mail, _ := f.mailer.last()

	if err := f.svc.ActivateAccount(ctx, mail.token); err != nil {
		t.Fatalf("ActivateAccount returned error: %v", err)
	}

	account, err := f.accounts.GetByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetByEmail returned error: %v", err)
	}
	if !account.Active {
		t.Error("Expected account to be active after confirmation")
	}

	// Second use of the same link conflicts.
	if err := f.svc.ActivateAccount(ctx, mail.token); !errors.Is(err, apperrors.ErrAlreadyActivated) {
		t.Errorf("Expected ALREADY_ACTIVATED on reuse, got %v", err)
	}
}

func TestActivateAccountRejectsBadTokens(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	if err := f.svc.ActivateAccount(ctx, "garbage"); !errors.Is(err, apperrors.ErrInvalidToken) {
		t.Errorf("Expected INVALID_TOKEN, got %v", err)
	}

	// An access token must not activate anything even with a valid subject.
	f.register(t, "ada@example.com", "password123")
	account, _ := f.accounts.GetByEmail(ctx, "ada@example.com")
	wrongKind, _ := f.tokens.Sign(TokenAccess, account.ID)
	if err := f.svc.ActivateAccount(ctx, wrongKind); !errors.Is(err, apperrors.ErrInvalidToken) {
		t.Errorf("Expected INVALID_TOKEN for wrong kind, got %v", err)
	}
}

func TestResendActivationEmail(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.register(t, "ada@example.com", "password123")
	before := f.mailer.count()

	if err := f.svc.ResendActivationEmail(ctx, "ada@example.com"); err != nil {
		t.Fatalf("ResendActivationEmail returned error: %v", err)
	}
	if f.mailer.count() != before+1 {
		t.Error("Expected a new activation email")
	}

	// The reissued token still activates the account.
	mail, _ := f.mailer.last()
	if err := f.svc.ActivateAccount(ctx, mail.token); err != nil {
		t.Fatalf("Reissued token failed to activate: %v", err)
	}

	if err := f.svc.ResendActivationEmail(ctx, "ada@example.com"); !errors.Is(err, apperrors.ErrAlreadyActivated) {
		t.Errorf("Expected ALREADY_ACTIVATED for active account, got %v", err)
	}
	if err := f.svc.ResendActivationEmail(ctx, "nobody@example.com"); !errors.Is(err, apperrors.ErrAccountNotFound) {
		t.Errorf("Expected ACCOUNT_NOT_FOUND, got %v", err)
	}
}

// Every credential failure must surface the same caller-facing message, so
// the login endpoint cannot be used to discover which emails are registered
// or which accounts are pending activation.
func TestAuthenticateFailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	f.register(t, "pending@example.com", "password123")
	f.registerAndActivate(t, "active@example.com", "password123")

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  *apperrors.DomainError
	}{
		{
			name:     "Unknown email",
			email:    "nobody@example.com",
			password: "password123",
			wantErr:  apperrors.ErrAccessNotGranted,
		},
		{
			name:     "Account pending activation",
			email:    "pending@example.com",
			password: "password123",
			wantErr:  apperrors.ErrAccountNotActive,
		},
		{
			name:     "Wrong password",
			email:    "active@example.com",
			password: "wrong-password",
			wantErr:  apperrors.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Authenticate(ctx, tt.email, tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected %s, got %v", tt.wantErr.Code, err)
			}
			if got := apperrors.GetErrorMessage(err); got != "invalid credentials" {
				t.Errorf("Expected generic message, got %q", got)
			}
			if apperrors.ToHTTPStatus(err) != 401 {
				t.Errorf("Expected status 401, got %d", apperrors.ToHTTPStatus(err))
			}
		})
	}
}

func TestAuthenticateSuccess(t *testing.T) {
	f := newAuthFixture()
	userID := f.registerAndActivate(t, "ada@example.com", "password123")

	user, err := f.svc.Authenticate(context.Background(), "ada@example.com", "password123")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if user.ID != userID {
		t.Errorf("Expected user %s, got %s", userID, user.ID)
	}
}

func TestLoginIssuesTokensAndFingerprint(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	userID := f.registerAndActivate(t, "ada@example.com", "password123")

	pair, err := f.svc.Login(ctx, userID)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	accessClaims, err := f.tokens.Verify(TokenAccess, pair.AccessToken)
	if err != nil {
		t.Fatalf("Access token failed verification: %v", err)
	}
	if accessClaims.Subject != userID {
		t.Errorf("Expected access subject %s, got %s", userID, accessClaims.Subject)
	}
	if _, err := f.tokens.Verify(TokenRefresh, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh token failed verification: %v", err)
	}

	account, _ := f.accounts.GetByUserID(ctx, userID)
	if account.RefreshTokenHash == nil {
		t.Fatal("Expected stored refresh-token fingerprint")
	}
	if *account.RefreshTokenHash == pair.RefreshToken {
		t.Error("Expected fingerprint, not the raw refresh token")
	}
	if !f.hasher.VerifyToken(pair.RefreshToken, *account.RefreshTokenHash) {
		t.Error("Expected fingerprint to match the issued refresh token")
	}
	if account.LastLogin == nil {
		t.Error("Expected last login to be stamped")
	}
}

func TestLoginUnknownUser(t *testing.T) {
	f := newAuthFixture()

	_, err := f.svc.Login(context.Background(), "no-such-user")
	if !errors.Is(err, apperrors.ErrInvalidPayload) {
		t.Errorf("Expected INVALID_PAYLOAD, got %v", err)
	}
}

// A refresh token spends exactly once: after a successful rotation the old
// token must be rejected.
func TestRefreshTokensRotation(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	userID := f.registerAndActivate(t, "ada@example.com", "password123")

	first, err := f.svc.Login(ctx, userID)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	second, err := f.svc.RefreshTokens(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshTokens returned error: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("Expected a new refresh token after rotation")
	}

	// Replay of the spent token fails.
	if _, err := f.svc.RefreshTokens(ctx, first.RefreshToken); !errors.Is(err, apperrors.ErrInvalidRefreshToken) {
		t.Errorf("Expected INVALID_REFRESH_TOKEN on replay, got %v", err)
	}

	// The rotated token still works.
	if _, err := f.svc.RefreshTokens(ctx, second.RefreshToken); err != nil {
		t.Errorf("Expected rotated token to refresh, got %v", err)
	}
}

func TestRefreshTokensRejectsBadInput(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	if _, err := f.svc.RefreshTokens(ctx, "garbage"); !errors.Is(err, apperrors.ErrInvalidRefreshToken) {
		t.Errorf("Expected INVALID_REFRESH_TOKEN for garbage, got %v", err)
	}

	// A structurally valid token whose subject has no account.
	orphan, _ := f.tokens.Sign(TokenRefresh, "ghost-user")
	if _, err := f.svc.RefreshTokens(ctx, orphan); !errors.Is(err, apperrors.ErrInvalidRefreshToken) {
		t.Errorf("Expected INVALID_REFRESH_TOKEN for orphan subject, got %v", err)
	}
}

func TestRefreshTokensExpired(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	userID := f.registerAndActivate(t, "ada@example.com", "password123")

	pair, err := f.svc.Login(ctx, userID)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	// Move the token service clock past the refresh TTL.
	f.tokens.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }

	if _, err := f.svc.RefreshTokens(ctx, pair.RefreshToken); !errors.Is(err, apperrors.ErrRefreshExpired) {
		t.Errorf("Expected REFRESH_TOKEN_EXPIRED, got %v", err)
	}
}

func TestLogoutEndsSession(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	userID := f.registerAndActivate(t, "ada@example.com", "password123")

	pair, err := f.svc.Login(ctx, userID)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	_ = f.sessions.Put(ctx, userID, sampleView(userID), time.Minute)

	if err := f.svc.Logout(ctx, userID); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}

	account, _ := f.accounts.GetByUserID(ctx, userID)
	if account.RefreshTokenHash != nil {
		t.Error("Expected stored fingerprint to be cleared")
	}
	if view, _ := f.sessions.Get(ctx, userID); view != nil {
		t.Error("Expected cached session to be invalidated")
	}

	// The pre-logout refresh token no longer rotates.
	if _, err := f.svc.RefreshTokens(ctx, pair.RefreshToken); !errors.Is(err, apperrors.ErrInvalidRefreshToken) {
		t.Errorf("Expected INVALID_REFRESH_TOKEN after logout, got %v", err)
	}

	// Logout is idempotent.
	if err := f.svc.Logout(ctx, userID); err != nil {
		t.Errorf("Expected repeated logout to succeed, got %v", err)
	}
}

func TestRequestPasswordReset(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	userID := f.registerAndActivate(t, "ada@example.com", "password123")

	if err := f.svc.RequestPasswordReset(ctx, "ada@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset returned error: %v", err)
	}

	mail, err := f.mailer.last()
	if err != nil {
		t.Fatalf("Expected reset email: %v", err)
	}
	if mail.kind != "reset" || mail.to != "ada@example.com" {
		t.Errorf("Expected reset mail to ada@example.com, got %+v", mail)
	}

	claims, err := f.tokens.Verify(TokenReset, mail.token)
	if err != nil {
		t.Fatalf("Reset token failed verification: %v", err)
	}
	if claims.Subject != userID {
		t.Errorf("Expected reset subject %s, got %s", userID, claims.Subject)
	}

	// Unknown email surfaces internally; the handler hides it.
	if err := f.svc.RequestPasswordReset(ctx, "nobody@example.com"); !errors.Is(err, apperrors.ErrAccountNotFound) {
		t.Errorf("Expected ACCOUNT_NOT_FOUND, got %v", err)
	}
}

func TestValidateResetToken(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	userID := f.registerAndActivate(t, "ada@example.com", "password123")

	token, _ := f.tokens.Sign(TokenReset, userID)
	claims, err := f.svc.ValidateResetToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateResetToken returned error: %v", err)
	}
	if claims.Subject != userID {
		t.Errorf("Expected subject %s, got %s", userID, claims.Subject)
	}

	if _, err := f.svc.ValidateResetToken(ctx, "garbage"); !errors.Is(err, apperrors.ErrInvalidToken) {
		t.Errorf("Expected INVALID_TOKEN, got %v", err)
	}

	orphan, _ := f.tokens.Sign(TokenReset, "ghost-user")
	if _, err := f.svc.ValidateResetToken(ctx, orphan); !errors.Is(err, apperrors.ErrAccountNotFound) {
		t.Errorf("Expected ACCOUNT_NOT_FOUND for orphan subject, got %v", err)
	}
}

func TestResetPasswordInvalidatesOldCredentials(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()
	userID := f.registerAndActivate(t, "ada@example.com", "password123")

	pair, err := f.svc.Login(ctx, userID)
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}

	token, _ := f.tokens.Sign(TokenReset, userID)
	if err := f.svc.ResetPassword(ctx, token, "newpassword456"); err != nil {
		t.Fatalf("ResetPassword returned error: %v", err)
	}

	// Old password stops working, new one authenticates.
	if _, err := f.svc.Authenticate(ctx, "ada@example.com", "password123"); err == nil {
		t.Error("Expected old password to be rejected")
	}
	if _, err := f.svc.Authenticate(ctx, "ada@example.com", "newpassword456"); err != nil {
		t.Errorf("Expected new password to authenticate, got %v", err)
	}

	// The refresh token issued before the reset is dead.
	if _, err := f.svc.RefreshTokens(ctx, pair.RefreshToken); !errors.Is(err, apperrors.ErrInvalidRefreshToken) {
		t.Errorf("Expected INVALID_REFRESH_TOKEN after reset, got %v", err)
	}
}

func TestRegisterFromAccount(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	userID, err := f.svc.RegisterFromAccount(ctx, AccountPayload{
		Email:     "oauth@example.com",
		FirstName: "Grace",
		LastName:  "Hopper",
	})
	if err != nil {
		t.Fatalf("RegisterFromAccount returned error: %v", err)
	}

	account, err := f.accounts.GetByUserID(ctx, userID)
	if err != nil {
		t.Fatalf("GetByUserID returned error: %v", err)
	}
	if !account.Active {
		t.Error("Expected provider-backed account to be active immediately")
	}
	if account.PasswordHash != nil {
		t.Error("Expected provider-backed account to have no password")
	}

	record, err := f.perms.GetByOwnerID(ctx, userID)
	if err != nil {
		t.Fatalf("Expected permission record: %v", err)
	}
	if len(record.Permissions) != 1 || record.Permissions[0] != "theluxar_user" {
		t.Errorf("Expected default permission, got %v", record.Permissions)
	}

	// Same payload again links to the existing account.
	again, err := f.svc.RegisterFromAccount(ctx, AccountPayload{Email: "oauth@example.com", FirstName: "Grace"})
	if err != nil {
		t.Fatalf("Second RegisterFromAccount returned error: %v", err)
	}
	if again != userID {
		t.Errorf("Expected idempotent link to user %s, got %s", userID, again)
	}

	if _, err := f.svc.RegisterFromAccount(ctx, AccountPayload{FirstName: "NoEmail"}); !errors.Is(err, apperrors.ErrMissingEmail) {
		t.Errorf("Expected MISSING_EMAIL, got %v", err)
	}
}

func TestRegisterFromAccountReactivates(t *testing.T) {
	f := newAuthFixture()
	ctx := context.Background()

	// A password signup pending activation logs in through the provider.
	f.register(t, "ada@example.com", "password123")

	userID, err := f.svc.RegisterFromAccount(ctx, AccountPayload{Email: "ada@example.com", FirstName: "Ada"})
	if err != nil {
		t.Fatalf("RegisterFromAccount returned error: %v", err)
	}

	account, _ := f.accounts.GetByUserID(ctx, userID)
	if !account.Active {
		t.Error("Expected provider login to activate the pending account")
	}
}
