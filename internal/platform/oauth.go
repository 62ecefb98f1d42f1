package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"crosslister/pkg/log"
	"crosslister/pkg/utils"
)

const defaultRefreshThreshold = 5 * time.Minute

// TokenManager OAuth2 token holder with refresh-before-expiry. Vinted is the
// only adapter using it today but it is platform-agnostic.
type TokenManager struct {
	clientID      string
	clientSecret  string
	tokenEndpoint string

	refreshThreshold time.Duration
	httpClient       *http.Client
	now              func() time.Time

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	tokenType    string
	expiresAt    time.Time
}

// TokenManagerOptions optional settings for NewTokenManager
type TokenManagerOptions struct {
	RefreshThreshold time.Duration
	HTTPClient       *http.Client
	Now              func() time.Time
}

// NewTokenManager creates a token manager for the given OAuth client
func NewTokenManager(clientID, clientSecret, tokenEndpoint string, opts *TokenManagerOptions) *TokenManager {
	tm := &TokenManager{
		clientID:         clientID,
		clientSecret:     clientSecret,
		tokenEndpoint:    tokenEndpoint,
		refreshThreshold: defaultRefreshThreshold,
		httpClient:       &http.Client{Timeout: defaultRequestTimeout},
		now:              time.Now,
		tokenType:        "Bearer",
	}
	if opts != nil {
		if opts.RefreshThreshold > 0 {
			tm.refreshThreshold = opts.RefreshThreshold
		}
		if opts.HTTPClient != nil {
			tm.httpClient = opts.HTTPClient
		}
		if opts.Now != nil {
			tm.now = opts.Now
		}
	}
	return tm
}

// SetTokens seeds tokens obtained out of band. expiresIn of zero means the
// token never expires as far as we can tell.
func (tm *TokenManager) SetTokens(accessToken, refreshToken string, expiresIn time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.accessToken = accessToken
	tm.refreshToken = refreshToken
	if expiresIn > 0 {
		tm.expiresAt = tm.now().Add(expiresIn)
	} else {
		tm.expiresAt = time.Time{}
	}
}

// Valid reports whether a usable access token is held
func (tm *TokenManager) Valid() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.accessToken == "" {
		return false
	}
	if tm.expiresAt.IsZero() {
		return true
	}
	return tm.now().Before(tm.expiresAt)
}

// AuthorizationHeader returns the header value for API requests, refreshing
// the access token first when it is close to expiry.
func (tm *TokenManager) AuthorizationHeader(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.accessToken == "" {
		return "", NewError("oauth", KindAuthRequired, "no access token available")
	}

	if tm.shouldRefreshLocked() {
		if err := tm.refreshLocked(ctx); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%s %s", tm.tokenType, tm.accessToken), nil
}

func (tm *TokenManager) shouldRefreshLocked() bool {
	if tm.expiresAt.IsZero() || tm.refreshToken == "" {
		return false
	}
	return tm.expiresAt.Sub(tm.now()) <= tm.refreshThreshold
}

func (tm *TokenManager) refreshLocked(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {tm.refreshToken},
		"client_id":     {tm.clientID},
		"client_secret": {tm.clientSecret},
	}

	log.Info("Refreshing OAuth access token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tm.tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := tm.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("token refresh failed: status %d: %s", resp.StatusCode, string(body))
	}

	var token struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}

	tm.accessToken = token.AccessToken
	if token.RefreshToken != "" {
		tm.refreshToken = token.RefreshToken
	}
	if token.TokenType != "" {
		tm.tokenType = token.TokenType
	}
	if token.ExpiresIn > 0 {
		tm.expiresAt = tm.now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	log.Info("OAuth token refreshed")
	return nil
}

// ValidateWebhookSignature verifies an HMAC-SHA256 webhook signature signed
// with the client secret.
func (tm *TokenManager) ValidateWebhookSignature(payload, signature string) bool {
	if tm.clientSecret == "" {
		return false
	}
	expected := utils.HMACSHA256(tm.clientSecret, payload)
	return utils.SecureCompare(signature, expected)
}
