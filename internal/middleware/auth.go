package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/theluxar/auth-service/config"
	"github.com/theluxar/auth-service/internal/constants"
	apperrors "github.com/theluxar/auth-service/internal/errors"
	"github.com/theluxar/auth-service/internal/repository"
	"github.com/theluxar/auth-service/internal/service"
	ctxutil "github.com/theluxar/auth-service/pkg/context"
	"github.com/theluxar/auth-service/pkg/logger"
)

// AccessGuard authenticates requests from an access token and attaches a
// SessionIdentity to the gin context. The session cache fronts the database:
// on a miss the identity is rebuilt from the account and permission records
// and cached for the remaining lifetime of the access token, so a cache
// entry can never outlive the token that produced it.
type AccessGuard struct {
	cfg      *config.Config
	tokens   *service.TokenService
	sessions service.SessionStore
	accounts repository.AccountRepository
	perms    *service.PermissionService
}

func NewAccessGuard(
	cfg *config.Config,
	tokens *service.TokenService,
	sessions service.SessionStore,
	accounts repository.AccountRepository,
	perms *service.PermissionService,
) *AccessGuard {
	return &AccessGuard{
		cfg:      cfg,
		tokens:   tokens,
		sessions: sessions,
		accounts: accounts,
		perms:    perms,
	}
}

// bearerToken pulls the access token from the Authorization header, falling
// back to the access cookie for browser clients.
func (g *AccessGuard) bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
		return ""
	}

	cookie, err := c.Cookie(g.cfg.Cookie.AccessName)
	if err != nil {
		return ""
	}
	return cookie
}

func (g *AccessGuard) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := ctxutil.WithOperation(c.Request.Context(), "middleware", "RequireAuth")

		tokenString := g.bearerToken(c)
		if tokenString == "" {
			logger.WarnWithContext(ctx, "Missing access token").
				String("path", c.Request.URL.Path).
				String("method", c.Request.Method).
				Log()
			abortUnauthorized(c)
			return
		}

		claims, err := g.tokens.Verify(service.TokenAccess, tokenString)
		if err != nil {
			logger.WarnWithContext(ctx, "Access token rejected").
				String("path", c.Request.URL.Path).
				String("method", c.Request.Method).
				Err(err).
				Log()
			abortUnauthorized(c)
			return
		}
		subjectID := claims.Subject

		view, err := g.sessions.Get(ctx, subjectID)
		if err != nil {
			logger.WarnWithContext(ctx, "Session cache lookup failed, falling back to database").
				String("user_id", subjectID).
				Err(err).
				Log()
			view = nil
		}

		if view == nil {
			view, err = g.rebuildSession(c, subjectID, claims.ExpiresAt.Time)
			if err != nil {
				logger.WarnWithContext(ctx, "Session rebuild failed").
					String("user_id", subjectID).
					Err(err).
					Log()
				abortUnauthorized(c)
				return
			}
		}

		identity := service.SessionIdentity{
			SubjectID:   view.SubjectID,
			Permissions: view.Permissions,
		}
		c.Set(constants.GinKeyIdentity, identity)
		c.Request = c.Request.WithContext(ctxutil.WithUserID(c.Request.Context(), subjectID))

		c.Next()
	}
}

// rebuildSession loads the account and permissions from the database and
// caches the view until the presented access token expires.
func (g *AccessGuard) rebuildSession(c *gin.Context, subjectID string, tokenExpiry time.Time) (*service.SessionView, error) {
	ctx := c.Request.Context()

	account, err := g.accounts.GetByUserID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, err
	}
	if !account.Active {
		return nil, apperrors.ErrAccountNotActive
	}

	permissions, err := g.perms.GetUserPermissions(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	view := &service.SessionView{
		SubjectID:   subjectID,
		CreatedAt:   account.CreatedAt,
		LastLogin:   account.LastLogin,
		Permissions: permissions,
	}

	ttl := time.Until(tokenExpiry)
	if err := g.sessions.Put(ctx, subjectID, view, ttl); err != nil {
		logger.WarnWithContext(ctx, "Failed to cache session view").
			String("user_id", subjectID).
			Err(err).
			Log()
	}
	return view, nil
}

// RequirePermissions gates a route on the identity carrying every listed
// permission. Must run after RequireAuth.
func (g *AccessGuard) RequirePermissions(required ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		if !ok {
			abortUnauthorized(c)
			return
		}

		for _, permission := range required {
			if !identity.HasPermission(permission) {
				logger.WarnWithContext(c.Request.Context(), "Permission denied").
					String("user_id", identity.SubjectID).
					String("required", permission).
					String("path", c.Request.URL.Path).
					Log()
				c.JSON(http.StatusForbidden, constants.BuildErrorResponse(apperrors.ErrForbidden.Message, ""))
				c.Abort()
				return
			}
		}

		c.Next()
	}
}

// IdentityFromContext returns the identity attached by RequireAuth.
func IdentityFromContext(c *gin.Context) (service.SessionIdentity, bool) {
	value, exists := c.Get(constants.GinKeyIdentity)
	if !exists {
		return service.SessionIdentity{}, false
	}
	identity, ok := value.(service.SessionIdentity)
	return identity, ok
}

func abortUnauthorized(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(apperrors.ErrUnauthorized.Message, ""))
	c.Abort()
}
