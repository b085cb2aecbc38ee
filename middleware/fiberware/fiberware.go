// Package fiberware adapts Permit token verification to fiber handlers for
// hosts that mount fiber directly instead of going through go-router.
package fiberware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-permit"
)

// Verifier mirrors the facade contract, see permitware.Verifier
type Verifier interface {
	VerifyToken(ctx context.Context, token string) permit.VerificationResult
}

type Config struct {
	Verifier    Verifier
	HeaderName  string
	TokenPrefix string
	ContextKey  string
	// OnError replaces the default 401 JSON responder
	OnError func(c *fiber.Ctx, resp permit.ErrorResponse) error
}

// New returns a fiber handler enforcing token verification
func New(config Config) fiber.Handler {
	if config.Verifier == nil {
		panic("PERMIT: fiber middleware configuration: Verifier is required.")
	}
	if config.HeaderName == "" {
		config.HeaderName = fiber.HeaderAuthorization
	}
	if config.TokenPrefix == "" {
		config.TokenPrefix = permit.DefaultTokenPrefix
	}
	if config.ContextKey == "" {
		config.ContextKey = "permit_user"
	}
	if config.OnError == nil {
		config.OnError = func(c *fiber.Ctx, resp permit.ErrorResponse) error {
			return c.Status(fiber.StatusUnauthorized).JSON(resp)
		}
	}

	return func(c *fiber.Ctx) error {
		header := c.Get(config.HeaderName)
		if header == "" {
			return config.OnError(c, permit.ErrorResponse{
				Error: permit.ErrMissingToken.Message,
				Code:  permit.ErrMissingToken.TextCode,
			})
		}

		token := header
		if strings.HasPrefix(header, config.TokenPrefix) {
			token = strings.TrimSpace(header[len(config.TokenPrefix):])
		}

		result := config.Verifier.VerifyToken(c.UserContext(), token)
		if !result.Valid {
			return config.OnError(c, permit.ErrorResponse{
				Error: result.Error,
				Code:  result.ErrorCode,
			})
		}

		c.Locals(config.ContextKey, result.User)
		c.SetUserContext(permit.WithContext(c.UserContext(), result.User))

		return c.Next()
	}
}

// UserFromCtx extracts the verified user stored by the middleware
func UserFromCtx(c *fiber.Ctx, key string) (*permit.User, bool) {
	if key == "" {
		key = "permit_user"
	}
	raw := c.Locals(key)
	if raw == nil {
		return nil, false
	}
	user, ok := raw.(*permit.User)
	return user, ok
}
