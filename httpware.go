package permit

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

var userCtxKey = &contextKey{"permit_user"}

type contextKey struct {
	name string
}

// WithContext sets the verified User in the given context
func WithContext(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// FromContext finds the verified user in the context
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

const (
	// DefaultHeaderName is where the bearer token is looked up
	DefaultHeaderName = "Authorization"
	// DefaultTokenPrefix is stripped from the header value before verification
	DefaultTokenPrefix = "Bearer "
)

// MiddlewareConfig tunes the net/http adapter
type MiddlewareConfig struct {
	// HeaderName overrides the token header (default Authorization)
	HeaderName string
	// TokenPrefix overrides the stripped prefix (default "Bearer ")
	TokenPrefix string
	// OnError replaces the default 401 JSON responder
	OnError func(w http.ResponseWriter, r *http.Request, resp ErrorResponse)
}

func (cfg *MiddlewareConfig) defaults() {
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.TokenPrefix == "" {
		cfg.TokenPrefix = DefaultTokenPrefix
	}
	if cfg.OnError == nil {
		cfg.OnError = func(w http.ResponseWriter, r *http.Request, resp ErrorResponse) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(resp)
		}
	}
}

// Middleware wraps a net/http handler with token verification. A missing
// header is rejected with MISSING_TOKEN before the verifier runs; any
// verification failure is rejected with the result's code; on success the
// resolved user is attached to the request context.
func Middleware(a *Auth, config ...MiddlewareConfig) func(http.Handler) http.Handler {
	var cfg MiddlewareConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	cfg.defaults()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get(cfg.HeaderName)
			if header == "" {
				cfg.OnError(w, r, ErrorResponse{
					Error: ErrMissingToken.Message,
					Code:  ErrMissingToken.TextCode,
				})
				return
			}

			token := header
			if cfg.TokenPrefix != "" && strings.HasPrefix(header, cfg.TokenPrefix) {
				token = header[len(cfg.TokenPrefix):]
			}

			result := a.VerifyToken(r.Context(), token)
			if !result.Valid {
				cfg.OnError(w, r, ErrorResponse{
					Error: result.Error,
					Code:  result.ErrorCode,
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), result.User)))
		})
	}
}
