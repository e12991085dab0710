// Package token implements the OAuth2 client-credentials flow with a
// process-lifetime token cache.
package token

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/softslim/soapbridge/internal/errors"
	"github.com/softslim/soapbridge/internal/logging"
)

const (
	// expirySafetyWindow is subtracted from expires_in so a token is never
	// presented to the backend moments before it lapses.
	expirySafetyWindow = 30 * time.Second

	defaultExpiresIn = 300 * time.Second
)

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// Manager acquires and caches bearer tokens. Entries are keyed by
// tokenURI|clientID|scope and live until they expire; concurrent fetches for
// the same key may race, in which case the last write wins.
type Manager struct {
	client *http.Client

	mu    sync.RWMutex
	cache map[string]cachedToken

	now func() time.Time
}

// NewManager creates a token manager with a dedicated HTTP client.
func NewManager() *Manager {
	return &Manager{
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  make(map[string]cachedToken),
		now:    time.Now,
	}
}

// AccessToken returns a cached token when one is still valid, otherwise it
// performs a client-credentials POST against tokenURI and caches the result.
func (m *Manager) AccessToken(ctx context.Context, tokenURI, clientID, clientSecret, scope string) (string, error) {
	key := cacheKey(tokenURI, clientID, scope)

	m.mu.RLock()
	cached, ok := m.cache[key]
	m.mu.RUnlock()
	if ok && m.now().Before(cached.expiresAt) {
		return cached.token, nil
	}

	logging.Debug("requesting OAuth2 token", zap.String("client_id", clientID))
	return m.fetch(ctx, key, tokenURI, clientID, clientSecret, scope)
}

func (m *Manager) fetch(ctx context.Context, key, tokenURI, clientID, clientSecret, scope string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)
	if strings.TrimSpace(scope) != "" {
		form.Set("scope", scope)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Configurationf("invalid OAuth2 token URI %q", tokenURI).Wrap(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", errors.Configurationf("OAuth2 token request failed").Wrap(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Configurationf("failed to read OAuth2 token response").Wrap(err)
	}
	if len(body) == 0 {
		return "", errors.Configurationf("empty OAuth2 token response")
	}
	if !gjson.ValidBytes(body) {
		return "", errors.Configurationf("OAuth2 token response is not valid JSON")
	}

	accessToken := gjson.GetBytes(body, "access_token").String()
	if accessToken == "" {
		return "", errors.Configurationf("OAuth2 token response has no access_token")
	}

	expiresIn := defaultExpiresIn
	if v := gjson.GetBytes(body, "expires_in"); v.Exists() {
		expiresIn = time.Duration(v.Int()) * time.Second
	}
	ttl := expiresIn - expirySafetyWindow
	if ttl < time.Second {
		ttl = time.Second
	}

	m.mu.Lock()
	m.cache[key] = cachedToken{token: accessToken, expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()

	return accessToken, nil
}

func cacheKey(tokenURI, clientID, scope string) string {
	return tokenURI + "|" + clientID + "|" + scope
}
