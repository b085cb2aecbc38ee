package permit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

const jwksPath = "/.well-known/jwks.json"

// errJWKSBadStatus marks a non-200 JWKS response that is not a credentials
// rejection.
var errJWKSBadStatus = stderrors.New("jwks endpoint returned unexpected status")

// KeySource resolves a token's key id to a public key for one tenant. The
// underlying JWKS is fetched lazily on first use and refreshed in the
// background afterwards, so constructing a KeySource never touches the
// network and a fetch failure surfaces as a verification error instead.
type KeySource struct {
	url    string
	opts   keyfunc.Options
	logger Logger

	mu   sync.Mutex
	jwks *keyfunc.JWKS
}

func newKeySource(cfg Config) *KeySource {
	logger := cfg.logger()
	basic := base64.StdEncoding.EncodeToString([]byte(cfg.ClientID + ":" + cfg.ClientSecret))

	opts := keyfunc.Options{
		RefreshInterval:   cfg.cacheTTL(),
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			logger.Error("JWKS background refresh failed", "error", err)
		},
		RequestFactory: func(ctx context.Context, urlAddress string) (*http.Request, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlAddress, nil)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Basic "+basic)
			return req, nil
		},
		ResponseExtractor: func(ctx context.Context, resp *http.Response) (json.RawMessage, error) {
			switch resp.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				return nil, errJWKSUnauthorized
			case http.StatusOK:
				return keyfunc.ResponseExtractorStatusOK(ctx, resp)
			default:
				return nil, fmt.Errorf("%w: %d", errJWKSBadStatus, resp.StatusCode)
			}
		},
	}

	return &KeySource{
		url:    cfg.baseURL() + jwksPath,
		opts:   opts,
		logger: logger,
	}
}

// Keyfunc satisfies jwt.Keyfunc. The first call performs the JWKS fetch; a
// failed fetch is not cached, the next verification retries.
func (k *KeySource) Keyfunc(token *jwt.Token) (any, error) {
	k.mu.Lock()
	if k.jwks == nil {
		jwks, err := keyfunc.Get(k.url, k.opts)
		if err != nil {
			k.mu.Unlock()
			return nil, err
		}
		k.jwks = jwks
	}
	jwks := k.jwks
	k.mu.Unlock()

	return jwks.Keyfunc(token)
}

// end stops the background refresh goroutine, if one was ever started
func (k *KeySource) end() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.jwks != nil {
		k.jwks.EndBackground()
		k.jwks = nil
	}
}

// JWKSCache hands out one KeySource per (baseURL, clientId) pair. Distinct
// tenants never share key material; repeated lookups for the same pair
// return the identical handle.
type JWKSCache struct {
	mu      sync.RWMutex
	sources map[string]*KeySource
}

func NewJWKSCache() *JWKSCache {
	return &JWKSCache{sources: make(map[string]*KeySource)}
}

// KeySource returns the cached handle for the configuration, creating it on
// first use. Creation is cheap and network free.
func (c *JWKSCache) KeySource(cfg Config) *KeySource {
	key := cfg.cacheKey()

	c.mu.RLock()
	ks, ok := c.sources[key]
	c.mu.RUnlock()
	if ok {
		return ks
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ks, ok := c.sources[key]; ok {
		return ks
	}
	ks = newKeySource(cfg)
	c.sources[key] = ks
	return ks
}

// Clear drops every cached handle. Use it in tests or to force an immediate
// key rotation pickup.
func (c *JWKSCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ks := range c.sources {
		ks.end()
	}
	c.sources = make(map[string]*KeySource)
}
