package permitware

import (
	"context"
	"strings"

	"github.com/goliatone/go-permit"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// Verifier is the narrow facade contract the middleware needs, kept as an
// interface so tests can stub verification without network fixtures.
type Verifier interface {
	VerifyToken(ctx context.Context, token string) permit.VerificationResult
}

type Config struct {
	// Verifier is required
	Verifier Verifier
	// Filter skips the middleware when it returns true
	Filter func(router.Context) bool
	// SuccessHandler runs after the user has been attached to the context
	SuccessHandler router.HandlerFunc
	// ErrorHandler turns a rejection into a response
	ErrorHandler func(router.Context, permit.ErrorResponse) error
	// ContextKey is where the resolved user lands in router locals
	ContextKey string
	// HeaderName is the token header (default Authorization)
	HeaderName string
	// TokenPrefix is stripped from the header value (default "Bearer ")
	TokenPrefix string
	// Logger receives rejection diagnostics
	Logger permit.Logger
}

// New returns a go-router middleware enforcing token verification. A
// missing header short-circuits with MISSING_TOKEN, a failed verification
// responds with the result's code, and a verified user is stored both in
// router locals and the standard request context.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			token, ok := extractToken(ctx, cfg.HeaderName, cfg.TokenPrefix)
			if !ok {
				return cfg.reject(ctx, permit.ErrorResponse{
					Error: permit.ErrMissingToken.Message,
					Code:  permit.ErrMissingToken.TextCode,
				})
			}

			result := cfg.Verifier.VerifyToken(ctx.Context(), token)
			if !result.Valid {
				return cfg.reject(ctx, permit.ErrorResponse{
					Error: result.Error,
					Code:  result.ErrorCode,
				})
			}

			ctx.Locals(cfg.ContextKey, result.User)
			ctx.SetContext(permit.WithContext(ctx.Context(), result.User))

			return cfg.SuccessHandler(ctx)
		}
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Verifier == nil {
		panic("PERMIT: middleware configuration: Verifier is required.")
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(c router.Context, resp permit.ErrorResponse) error {
			return c.JSON(router.StatusUnauthorized, resp)
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "permit_user"
	}

	if cfg.HeaderName == "" {
		cfg.HeaderName = router.HeaderAuthorization
	}

	if cfg.TokenPrefix == "" {
		cfg.TokenPrefix = permit.DefaultTokenPrefix
	}

	return cfg
}

func (cfg Config) reject(ctx router.Context, resp permit.ErrorResponse) error {
	if cfg.Logger != nil {
		cfg.Logger.Debug("Request rejected", "details", print.MaybePrettyJSON(resp))
	}
	return cfg.ErrorHandler(ctx, resp)
}

func extractToken(ctx router.Context, header, prefix string) (string, bool) {
	value := ctx.GetString(header, "")
	if value == "" {
		return "", false
	}
	if prefix != "" && strings.HasPrefix(value, prefix) {
		return strings.TrimSpace(value[len(prefix):]), true
	}
	return value, true
}

// UserFromRouter extracts the verified user from router locals
func UserFromRouter(ctx router.Context, key string) (*permit.User, bool) {
	if key == "" {
		key = "permit_user"
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	user, ok := raw.(*permit.User)
	return user, ok
}
