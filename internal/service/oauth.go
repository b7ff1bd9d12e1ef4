package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/theluxar/auth-service/config"
	apperrors "github.com/theluxar/auth-service/internal/errors"
	ctxutil "github.com/theluxar/auth-service/pkg/context"
	"github.com/theluxar/auth-service/pkg/logger"
)

// Provider names accepted by the OAuth endpoints.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
)

// GoogleProfile is the subset of Google's userinfo response we consume.
type GoogleProfile struct {
	Email      string `json:"email"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Picture    string `json:"picture"`
}

// GitHubProfile is the subset of GitHub's /user response we consume. Email
// may be empty when the user hides it; Login never is.
type GitHubProfile struct {
	Login     string `json:"login"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// NormalizeGoogleProfile maps a Google profile onto the canonical account
// payload. Email and given name are mandatory.
func NormalizeGoogleProfile(p GoogleProfile) (AccountPayload, error) {
	if p.Email == "" {
		return AccountPayload{}, apperrors.ErrMissingEmail
	}
	if p.GivenName == "" {
		return AccountPayload{}, apperrors.ErrMissingProfile
	}
	return AccountPayload{
		Email:     p.Email,
		FirstName: p.GivenName,
		LastName:  p.FamilyName,
		Picture:   p.Picture,
	}, nil
}

// NormalizeGitHubProfile maps a GitHub profile onto the canonical account
// payload. A hidden email falls back to the login-derived placeholder so the
// account still gets a stable unique address.
func NormalizeGitHubProfile(p GitHubProfile) (AccountPayload, error) {
	if p.Login == "" {
		return AccountPayload{}, apperrors.ErrMissingProfile
	}

	emailAddr := p.Email
	if emailAddr == "" {
		emailAddr = fmt.Sprintf("%s@github.com", p.Login)
	}

	firstName := p.Name
	lastName := ""
	if firstName == "" {
		firstName = p.Login
	} else if idx := strings.IndexByte(firstName, ' '); idx > 0 {
		lastName = firstName[idx+1:]
		firstName = firstName[:idx]
	}

	return AccountPayload{
		Email:     emailAddr,
		FirstName: firstName,
		LastName:  lastName,
		Picture:   p.AvatarURL,
	}, nil
}

// tokenExchangeResponse is the shape both providers return from their token
// endpoint when asked for JSON.
type tokenExchangeResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
}

// OAuthService drives the authorization-code flow against the configured
// identity providers and hands the normalized profile to the lifecycle
// manager. Provider endpoints come from configuration so tests can point at
// a local stub.
type OAuthService struct {
	cfg    config.OAuthConfig
	auth   *AuthService
	client *http.Client
}

func NewOAuthService(cfg config.OAuthConfig, auth *AuthService) *OAuthService {
	return &OAuthService{
		cfg:    cfg,
		auth:   auth,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *OAuthService) provider(name string) (config.OAuthProviderConfig, error) {
	switch name {
	case ProviderGoogle:
		return s.cfg.Google, nil
	case ProviderGitHub:
		return s.cfg.GitHub, nil
	default:
		return config.OAuthProviderConfig{}, apperrors.NewDomainError("INVALID_PROVIDER", fmt.Sprintf("unknown oauth provider: %s", name))
	}
}

// AuthCodeURL builds the provider's consent-screen URL for the redirect
// endpoint.
func (s *OAuthService) AuthCodeURL(providerName, state string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}

	q := url.Values{}
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURL)
	q.Set("response_type", "code")
	q.Set("state", state)
	switch providerName {
	case ProviderGoogle:
		q.Set("scope", "openid email profile")
	case ProviderGitHub:
		q.Set("scope", "read:user user:email")
	}
	return p.AuthURL + "?" + q.Encode(), nil
}

// LoginWithCode completes the authorization-code flow: exchanges the code,
// fetches the profile, links or creates the local account, and issues the
// standard token pair.
func (s *OAuthService) LoginWithCode(ctx context.Context, providerName, code string) (*TokenPair, string, error) {
	ctx = ctxutil.WithOperation(ctx, "service", "LoginWithCode")

	p, err := s.provider(providerName)
	if err != nil {
		return nil, "", err
	}

	accessToken, err := s.exchangeCode(ctx, p, code)
	if err != nil {
		logger.WarnWithContext(ctx, "Code exchange failed").
			String("provider", providerName).
			Err(err).
			Log()
		return nil, "", apperrors.WrapError(apperrors.ErrUnauthorized, err)
	}

	payload, err := s.fetchProfile(ctx, providerName, p, accessToken)
	if err != nil {
		logger.WarnWithContext(ctx, "Profile fetch failed").
			String("provider", providerName).
			Err(err).
			Log()
		return nil, "", err
	}

	userID, err := s.auth.RegisterFromAccount(ctx, payload)
	if err != nil {
		return nil, "", err
	}

	pair, err := s.auth.Login(ctx, userID)
	if err != nil {
		return nil, "", err
	}

	logger.InfoWithContext(ctx, "Provider login completed").
		String("provider", providerName).
		String("user_id", userID).
		Log()
	return pair, userID, nil
}

// exchangeCode trades the authorization code for the provider access token.
// Both providers accept a form POST and return JSON when asked.
func (s *OAuthService) exchangeCode(ctx context.Context, p config.OAuthProviderConfig, code string) (string, error) {
	form := url.Values{}
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", p.ClientSecret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", p.RedirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var exchange tokenExchangeResponse
	if err := json.Unmarshal(body, &exchange); err != nil {
		return "", fmt.Errorf("undecodable token response: %w", err)
	}
	if exchange.Error != "" {
		return "", fmt.Errorf("token endpoint error: %s", exchange.Error)
	}
	if exchange.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token")
	}
	return exchange.AccessToken, nil
}

// fetchProfile loads the provider profile with the bearer token and
// normalizes it.
func (s *OAuthService) fetchProfile(ctx context.Context, providerName string, p config.OAuthProviderConfig, accessToken string) (AccountPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return AccountPayload{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return AccountPayload{}, fmt.Errorf("userinfo endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return AccountPayload{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return AccountPayload{}, fmt.Errorf("userinfo endpoint returned %d", resp.StatusCode)
	}

	switch providerName {
	case ProviderGoogle:
		var profile GoogleProfile
		if err := json.Unmarshal(body, &profile); err != nil {
			return AccountPayload{}, apperrors.WrapError(apperrors.ErrInvalidPayload, err)
		}
		return NormalizeGoogleProfile(profile)
	case ProviderGitHub:
		var profile GitHubProfile
		if err := json.Unmarshal(body, &profile); err != nil {
			return AccountPayload{}, apperrors.WrapError(apperrors.ErrInvalidPayload, err)
		}
		return NormalizeGitHubProfile(profile)
	default:
		return AccountPayload{}, apperrors.ErrInvalidPayload
	}
}
