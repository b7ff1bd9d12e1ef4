package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/theluxar/auth-service/config"
	apperrors "github.com/theluxar/auth-service/internal/errors"
)

// TokenKind selects which secret and TTL a token is signed and verified
// with. A token signed for one kind never verifies as another.
type TokenKind string

const (
	TokenAccess     TokenKind = "access"
	TokenRefresh    TokenKind = "refresh"
	TokenActivation TokenKind = "activation"
	TokenReset      TokenKind = "reset"
)

// TokenClaims is the payload carried by every issued token: the standard
// registered claims plus the kind, which is checked on verification in
// addition to the per-kind secret.
type TokenClaims struct {
	jwt.RegisteredClaims
	Kind string `json:"kind"`
}

// TokenService issues and verifies the four token kinds. Each kind has its
// own secret and TTL, injected once from configuration.
type TokenService struct {
	cfg config.TokenConfig
	now func() time.Time
}

func NewTokenService(cfg config.TokenConfig) *TokenService {
	return &TokenService{cfg: cfg, now: time.Now}
}

func (s *TokenService) secret(kind TokenKind) ([]byte, error) {
	switch kind {
	case TokenAccess:
		return []byte(s.cfg.AccessSecret), nil
	case TokenRefresh:
		return []byte(s.cfg.RefreshSecret), nil
	case TokenActivation:
		return []byte(s.cfg.ActivationSecret), nil
	case TokenReset:
		return []byte(s.cfg.ResetSecret), nil
	default:
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}
}

// TTL returns the configured lifetime for a token kind.
func (s *TokenService) TTL(kind TokenKind) time.Duration {
	switch kind {
	case TokenAccess:
		return s.cfg.AccessTTL
	case TokenRefresh:
		return s.cfg.RefreshTTL
	case TokenActivation:
		return s.cfg.ActivationTTL
	case TokenReset:
		return s.cfg.ResetTTL
	default:
		return 0
	}
}

// Sign issues a token of the given kind for the subject id.
func (s *TokenService) Sign(kind TokenKind, subject string) (string, error) {
	secret, err := s.secret(kind)
	if err != nil {
		return "", err
	}

	// The jti keeps two tokens for the same subject distinct even when
	// issued within the same second.
	now := s.now()
	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.TTL(kind))),
		},
		Kind: string(kind),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify checks signature, expiry and kind. Expired and malformed tokens are
// distinguishable error kinds because callers report them differently.
func (s *TokenService) Verify(kind TokenKind, tokenString string) (*TokenClaims, error) {
	secret, err := s.secret(kind)
	if err != nil {
		return nil, err
	}

	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperrors.WrapError(apperrors.ErrTokenExpired, err)
		}
		return nil, apperrors.WrapError(apperrors.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Kind != string(kind) {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}
