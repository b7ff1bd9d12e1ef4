package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/theluxar/auth-service/config"
	"github.com/theluxar/auth-service/internal/constants"
	"github.com/theluxar/auth-service/internal/dto"
	apperrors "github.com/theluxar/auth-service/internal/errors"
	"github.com/theluxar/auth-service/internal/middleware"
	"github.com/theluxar/auth-service/internal/model"
	"github.com/theluxar/auth-service/internal/service"
	ctxutil "github.com/theluxar/auth-service/pkg/context"
	"github.com/theluxar/auth-service/pkg/logger"
)

type AuthHandler struct {
	cfg          *config.Config
	authService  *service.AuthService
	oauthService *service.OAuthService
	tokenService *service.TokenService
}

func NewAuthHandler(
	cfg *config.Config,
	authService *service.AuthService,
	oauthService *service.OAuthService,
	tokenService *service.TokenService,
) *AuthHandler {
	return &AuthHandler{
		cfg:          cfg,
		authService:  authService,
		oauthService: oauthService,
		tokenService: tokenService,
	}
}

// setTokenCookies attaches the token pair as HttpOnly cookies. Secure and
// SameSite=None in production so the SPA on another origin can send them;
// Lax in development where everything runs on localhost.
func (h *AuthHandler) setTokenCookies(c *gin.Context, pair *service.TokenPair) {
	secure := h.cfg.IsProduction()
	if secure {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}

	c.SetCookie(
		h.cfg.Cookie.AccessName,
		pair.AccessToken,
		int(h.tokenService.TTL(service.TokenAccess).Seconds()),
		"/",
		h.cfg.Cookie.Domain,
		secure,
		true,
	)
	c.SetCookie(
		h.cfg.Cookie.RefreshName,
		pair.RefreshToken,
		int(h.tokenService.TTL(service.TokenRefresh).Seconds()),
		"/",
		h.cfg.Cookie.Domain,
		secure,
		true,
	)
}

// clearTokenCookies expires both token cookies.
func (h *AuthHandler) clearTokenCookies(c *gin.Context) {
	secure := h.cfg.IsProduction()
	if secure {
		c.SetSameSite(http.SameSiteNoneMode)
	} else {
		c.SetSameSite(http.SameSiteLaxMode)
	}
	c.SetCookie(h.cfg.Cookie.AccessName, "", -1, "/", h.cfg.Cookie.Domain, secure, true)
	c.SetCookie(h.cfg.Cookie.RefreshName, "", -1, "/", h.cfg.Cookie.Domain, secure, true)
}

func (h *AuthHandler) tokenResponse(pair *service.TokenPair) dto.TokenResponse {
	return dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int(h.tokenService.TTL(service.TokenAccess).Seconds()),
	}
}

func userResponse(account *model.Account) dto.UserResponse {
	resp := dto.UserResponse{
		ID:        account.UserID,
		Email:     account.Email,
		FirstName: account.User.FirstName,
		LastLogin: account.LastLogin,
		CreatedAt: account.User.CreatedAt,
	}
	if account.User.LastName != nil {
		resp.LastName = *account.User.LastName
	}
	return resp
}

// Signup handles account registration. The created account is inactive
// until the emailed activation link is followed.
func (h *AuthHandler) Signup(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "Signup")

	var req dto.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnWithContext(ctx, "Invalid signup request").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	account, err := h.authService.Register(ctx, &req)
	if err != nil {
		logger.WarnWithContext(ctx, "Signup failed").
			String("email", req.Email).
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Registration failed", apperrors.GetErrorMessage(err)))
		return
	}

	logger.InfoWithContext(ctx, "Account registered").
		String("email", req.Email).
		Log()

	c.JSON(http.StatusCreated, constants.BuildSuccessResponse(
		"Registration successful, check your email to activate the account",
		userResponse(account),
	))
}

// ConfirmEmail activates the account identified by the token in the query
// string. This is the target of the emailed activation link.
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "ConfirmEmail")

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Activation failed", "token is required"))
		return
	}

	if err := h.authService.ActivateAccount(ctx, token); err != nil {
		logger.WarnWithContext(ctx, "Activation failed").
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Activation failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Account activated", nil))
}

// ResendActivation issues a fresh activation email for a pending account.
func (h *AuthHandler) ResendActivation(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "ResendActivation")

	var req dto.ResendActivationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	if err := h.authService.ResendActivationEmail(ctx, req.Email); err != nil {
		logger.WarnWithContext(ctx, "Resend activation failed").
			String("email", req.Email).
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Resend failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Activation email sent", nil))
}

// Login handles password authentication and issues the token pair.
func (h *AuthHandler) Login(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "Login")

	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WarnWithContext(ctx, "Invalid login request").
			Err(err).
			Log()
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	user, err := h.authService.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Authentication failed", apperrors.GetErrorMessage(err)))
		return
	}

	pair, err := h.authService.Login(ctx, user.ID)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Authentication failed", apperrors.GetErrorMessage(err)))
		return
	}

	account, err := h.authService.FindByUserID(ctx, user.ID)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Authentication failed", apperrors.GetErrorMessage(err)))
		return
	}

	h.setTokenCookies(c, pair)

	logger.InfoWithContext(ctx, "User logged in").
		String("user_id", user.ID).
		Log()

	c.JSON(http.StatusOK, dto.LoginResponse{
		TokenResponse: h.tokenResponse(pair),
		User:          userResponse(account),
	})
}

// Logout ends the authenticated session and clears the token cookies.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "Logout")

	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(apperrors.ErrUnauthorized.Message, ""))
		return
	}

	if err := h.authService.Logout(ctx, identity.SubjectID); err != nil {
		logger.ErrorWithContext(ctx, "Logout failed").
			String("user_id", identity.SubjectID).
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Logout failed", apperrors.GetErrorMessage(err)))
		return
	}

	h.clearTokenCookies(c)
	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Logout successful", nil))
}

// Refresh rotates the refresh token and issues a new pair. The token comes
// from the request body or, for browser clients, the refresh cookie. On any
// failure both cookies are cleared so a broken browser session resets
// cleanly.
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "Refresh")

	var req dto.RefreshTokenRequest
	_ = c.ShouldBindJSON(&req)

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		if cookie, err := c.Cookie(h.cfg.Cookie.RefreshName); err == nil {
			refreshToken = cookie
		}
	}
	if refreshToken == "" {
		h.clearTokenCookies(c)
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse("Token refresh failed", apperrors.ErrInvalidRefreshToken.Message))
		return
	}

	pair, err := h.authService.RefreshTokens(ctx, refreshToken)
	if err != nil {
		logger.WarnWithContext(ctx, "Token refresh failed").
			Err(err).
			Log()
		h.clearTokenCookies(c)
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Token refresh failed", apperrors.GetErrorMessage(err)))
		return
	}

	h.setTokenCookies(c, pair)
	c.JSON(http.StatusOK, h.tokenResponse(pair))
}

// ForgotPassword queues a password reset email. The response is
// success-shaped even for unknown emails so the endpoint cannot be used to
// probe which addresses have accounts.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "ForgotPassword")

	var req dto.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	if err := h.authService.RequestPasswordReset(ctx, req.Email); err != nil {
		if !errors.Is(err, apperrors.ErrAccountNotFound) {
			logger.ErrorWithContext(ctx, "Password reset request failed").
				String("email", req.Email).
				Err(err).
				Log()
			status := apperrors.ToHTTPStatus(err)
			c.JSON(status, constants.BuildErrorResponse("Request failed", apperrors.GetErrorMessage(err)))
			return
		}
		// Unknown email falls through to the generic success response.
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse(
		"If the email is registered, a reset link has been sent",
		nil,
	))
}

// ValidateResetToken lets the reset form check a token before showing the
// new-password fields.
func (h *AuthHandler) ValidateResetToken(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "ValidateResetToken")

	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Validation failed", "token is required"))
		return
	}

	if _, err := h.authService.ValidateResetToken(ctx, token); err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Validation failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Token is valid", nil))
}

// ResetPassword sets a new password from a valid reset token. Existing
// refresh tokens stop working.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "ResetPassword")

	var req dto.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Invalid request format", err.Error()))
		return
	}

	if err := h.authService.ResetPassword(ctx, req.Token, req.NewPassword); err != nil {
		logger.WarnWithContext(ctx, "Password reset failed").
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Password reset failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Password updated", nil))
}

// Verify reports the identity behind the presented access token. Runs behind
// the access guard, so reaching the handler means the session is valid.
func (h *AuthHandler) Verify(c *gin.Context) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "Verify")

	identity, ok := middleware.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, constants.BuildErrorResponse(apperrors.ErrUnauthorized.Message, ""))
		return
	}

	account, err := h.authService.FindByUserID(ctx, identity.SubjectID)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Verification failed", apperrors.GetErrorMessage(err)))
		return
	}

	c.JSON(http.StatusOK, constants.BuildSuccessResponse("Session is valid", gin.H{
		"user":        userResponse(account),
		"permissions": identity.Permissions,
	}))
}

// GoogleLogin redirects the browser to Google's consent screen.
func (h *AuthHandler) GoogleLogin(c *gin.Context) {
	h.oauthRedirect(c, service.ProviderGoogle)
}

// GitHubLogin redirects the browser to GitHub's consent screen.
func (h *AuthHandler) GitHubLogin(c *gin.Context) {
	h.oauthRedirect(c, service.ProviderGitHub)
}

func (h *AuthHandler) oauthRedirect(c *gin.Context, provider string) {
	state := c.Query("state")
	target, err := h.oauthService.AuthCodeURL(provider, state)
	if err != nil {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Login failed", apperrors.GetErrorMessage(err)))
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, target)
}

// GoogleCallback completes the Google authorization-code flow.
func (h *AuthHandler) GoogleCallback(c *gin.Context) {
	h.oauthCallback(c, service.ProviderGoogle)
}

// GitHubCallback completes the GitHub authorization-code flow.
func (h *AuthHandler) GitHubCallback(c *gin.Context) {
	h.oauthCallback(c, service.ProviderGitHub)
}

func (h *AuthHandler) oauthCallback(c *gin.Context, provider string) {
	ctx := ctxutil.NewContextWithRequest(c.Request.Context(), c.Request, "handler", "OAuthCallback")

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, constants.BuildErrorResponse("Login failed", "code is required"))
		return
	}

	pair, userID, err := h.oauthService.LoginWithCode(ctx, provider, code)
	if err != nil {
		logger.WarnWithContext(ctx, "Provider login failed").
			String("provider", provider).
			Err(err).
			Log()
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Login failed", apperrors.GetErrorMessage(err)))
		return
	}

	account, err := h.authService.FindByUserID(ctx, userID)
	if err != nil {
		status := apperrors.ToHTTPStatus(err)
		c.JSON(status, constants.BuildErrorResponse("Login failed", apperrors.GetErrorMessage(err)))
		return
	}

	h.setTokenCookies(c, pair)

	c.JSON(http.StatusOK, dto.LoginResponse{
		TokenResponse: h.tokenResponse(pair),
		User:          userResponse(account),
	})
}
