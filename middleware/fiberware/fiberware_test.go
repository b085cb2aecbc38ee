package fiberware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-permit"
	"github.com/goliatone/go-permit/middleware/fiberware"
)

type stubVerifier struct {
	result    permit.VerificationResult
	lastToken string
	calls     int
}

func (s *stubVerifier) VerifyToken(ctx context.Context, token string) permit.VerificationResult {
	s.calls++
	s.lastToken = token
	return s.result
}

func newApp(cfg fiberware.Config) (*fiber.App, *struct {
	user *permit.User
	ok   bool
}) {
	captured := &struct {
		user *permit.User
		ok   bool
	}{}

	app := fiber.New()
	app.Use(fiberware.New(cfg))
	app.Get("/protected", func(c *fiber.Ctx) error {
		captured.user, captured.ok = fiberware.UserFromCtx(c, cfg.ContextKey)
		return c.SendStatus(fiber.StatusOK)
	})
	return app, captured
}

func TestFiberware_ValidToken(t *testing.T) {
	verifier := &stubVerifier{result: permit.VerificationResult{
		Valid: true,
		User:  &permit.User{UserID: "usr_123", Email: "ada@example.com"},
	}}
	app, captured := newApp(fiberware.Config{Verifier: verifier})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer token-abc")

	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "token-abc", verifier.lastToken)
	assert.True(t, captured.ok)
	assert.Equal(t, "usr_123", captured.user.UserID)
}

func TestFiberware_MissingToken(t *testing.T) {
	verifier := &stubVerifier{result: permit.VerificationResult{Valid: true}}
	app, _ := newApp(fiberware.Config{Verifier: verifier})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, verifier.calls)

	var body permit.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, permit.TextCodeMissingToken, body.Code)
}

func TestFiberware_RejectedToken(t *testing.T) {
	verifier := &stubVerifier{result: permit.VerificationResult{
		Valid:     false,
		Error:     "Invalid token signature",
		ErrorCode: permit.TextCodeInvalidSignature,
	}}
	app, captured := newApp(fiberware.Config{Verifier: verifier})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad-token")

	resp, err := app.Test(req)
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.False(t, captured.ok)

	var body permit.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, permit.TextCodeInvalidSignature, body.Code)
	assert.Equal(t, "Invalid token signature", body.Error)
}

func TestFiberware_CustomConfig(t *testing.T) {
	verifier := &stubVerifier{result: permit.VerificationResult{
		Valid: true,
		User:  &permit.User{UserID: "usr_123"},
	}}

	var onErrorCode string
	app, captured := newApp(fiberware.Config{
		Verifier:    verifier,
		HeaderName:  "X-Api-Token",
		TokenPrefix: "Token ",
		ContextKey:  "current_user",
		OnError: func(c *fiber.Ctx, resp permit.ErrorResponse) error {
			onErrorCode = resp.Code
			return c.SendStatus(fiber.StatusForbidden)
		},
	})

	t.Run("reads the configured header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("X-Api-Token", "Token raw-value")

		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "raw-value", verifier.lastToken)
		assert.True(t, captured.ok)
	})

	t.Run("custom responder controls the rejection", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)

		resp, err := app.Test(req)
		require.NoError(t, err)

		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		assert.Equal(t, permit.TextCodeMissingToken, onErrorCode)
	})
}

func TestFiberware_RequiresVerifier(t *testing.T) {
	assert.Panics(t, func() {
		fiberware.New(fiberware.Config{})
	})
}
