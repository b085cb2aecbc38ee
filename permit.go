package permit

import (
	"context"

	"github.com/goliatone/go-errors"
)

// Auth verifies Permit access tokens for one tenant configuration. It owns
// its JWKS cache, so two Auth instances never share key material even when
// configured identically.
type Auth struct {
	config Config
	cache  *JWKSCache
	logger Logger
}

// New builds the verification facade. Missing credentials are a deployment
// mistake, so construction fails instead of deferring to per-call errors.
// No network I/O happens here.
func New(cfg Config) (*Auth, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid permit configuration").
			WithTextCode(TextCodeCredentialsRequired)
	}

	return &Auth{
		config: cfg,
		cache:  NewJWKSCache(),
		logger: cfg.logger(),
	}, nil
}

// VerifyToken validates a bearer token's signature, issuer, and expiry and
// maps the outcome onto the wire taxonomy. It never returns a Go error.
// The context is accepted for API symmetry with the transport-facing
// callers; a verification attempt that already holds key material does not
// block.
func (a *Auth) VerifyToken(ctx context.Context, token string) VerificationResult {
	_ = ctx
	return verifyWithCache(token, a.config, a.cache)
}

// ClearCache drops the cached JWKS handles. Useful for tests and to force
// an immediate key rotation pickup.
func (a *Auth) ClearCache() {
	a.cache.Clear()
}

// Config returns a copy of the facade configuration.
func (a *Auth) Config() Config {
	return a.config
}

// defaultCache backs the functional VerifyToken form. Handles are shared
// per (baseURL, clientId) across calls, mirroring Auth's behavior without
// requiring a facade instance.
var defaultCache = NewJWKSCache()

// VerifyToken is the standalone functional form of (*Auth).VerifyToken.
func VerifyToken(ctx context.Context, token string, cfg Config) VerificationResult {
	_ = ctx
	return verifyWithCache(token, cfg, defaultCache)
}

// ClearCache drops the JWKS handles behind the functional VerifyToken form.
func ClearCache() {
	defaultCache.Clear()
}
