package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-permit"
)

// ErrUnauthorized is returned when the API rejects the presented token or
// refresh token. It is a definitive signal, callers must not retry.
var ErrUnauthorized = errors.New("permit api: unauthorized")

// ErrProjectNotFound is returned when the widget configuration lookup hits
// an unknown project id.
var ErrProjectNotFound = errors.New("permit api: invalid project id")

// TokenPair is the rotated credential pair returned by the refresh exchange.
// The previous refresh token is one-shot: it is consumed by the call.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// WidgetConfig is the project's widget presentation settings, flattened
// from the API's nested theme payload.
type WidgetConfig struct {
	Title                string
	Subtitle             string
	EnabledProviders     []string
	PrimaryColor         string
	LogoURL              string
	ShowSecuredBadge     bool
	TermsURL             string
	PrivacyURL           string
	DefaultEnvironmentID string
}

// API is the thin HTTP client behind the session components. Every response
// travels in the standard envelope {data, error:{code, message}}.
type API struct {
	baseURL string
	client  *http.Client
	logger  permit.Logger
}

func NewAPI(cfg Config) *API {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &API{
		baseURL: strings.TrimSuffix(cfg.apiURL(), "/"),
		client:  client,
		logger:  cfg.logger(),
	}
}

type apiEnvelope struct {
	Data  json.RawMessage `json:"data"`
	Error *apiError       `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Me confirms the access token against the whoami endpoint. A 401 means the
// token has been revoked or expired server-side, which a local inspection
// cannot detect.
func (a *API) Me(ctx context.Context, token string) (*User, error) {
	user := &User{}
	err := a.do(ctx, http.MethodGet, "/auth/me", token, nil, user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Refresh exchanges the refresh token for a rotated pair
func (a *API) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body := map[string]string{"refreshToken": refreshToken}
	pair := &TokenPair{}
	if err := a.do(ctx, http.MethodPost, "/auth/refresh", "", body, pair); err != nil {
		return nil, err
	}
	return pair, nil
}

// Logout asks the server to invalidate the session. Callers treat it as
// best-effort: local state is cleared regardless of the outcome.
func (a *API) Logout(ctx context.Context, token string) error {
	return a.do(ctx, http.MethodPost, "/auth/logout", token, nil, nil)
}

// FetchWidgetConfig loads the project's widget settings; a 404 surfaces as
// ErrProjectNotFound so the session can report a setup problem.
func (a *API) FetchWidgetConfig(ctx context.Context, projectID string) (*WidgetConfig, error) {
	payload := &struct {
		Title            string   `json:"title"`
		Subtitle         string   `json:"subtitle"`
		EnabledProviders []string `json:"enabledProviders"`
		ThemeConfig      struct {
			PrimaryColor     string `json:"primaryColor"`
			LogoURL          string `json:"logoUrl"`
			ShowSecuredBadge *bool  `json:"showSecuredBadge"`
			TermsURL         string `json:"termsUrl"`
			PrivacyURL       string `json:"privacyUrl"`
		} `json:"themeConfig"`
		DefaultEnvironmentID string `json:"defaultEnvironmentId"`
	}{}

	if err := a.do(ctx, http.MethodGet, "/projects/"+projectID+"/widget", "", nil, payload); err != nil {
		return nil, err
	}

	showBadge := true
	if payload.ThemeConfig.ShowSecuredBadge != nil {
		showBadge = *payload.ThemeConfig.ShowSecuredBadge
	}

	return &WidgetConfig{
		Title:                payload.Title,
		Subtitle:             payload.Subtitle,
		EnabledProviders:     payload.EnabledProviders,
		PrimaryColor:         payload.ThemeConfig.PrimaryColor,
		LogoURL:              payload.ThemeConfig.LogoURL,
		ShowSecuredBadge:     showBadge,
		TermsURL:             payload.ThemeConfig.TermsURL,
		PrivacyURL:           payload.ThemeConfig.PrivacyURL,
		DefaultEnvironmentID: payload.DefaultEnvironmentID,
	}, nil
}

func (a *API) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrProjectNotFound
	case resp.StatusCode >= 400:
		return a.envelopeError(resp)
	}

	if out == nil {
		return nil
	}

	envelope := apiEnvelope{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if envelope.Error != nil {
		return fmt.Errorf("permit api: %s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return json.Unmarshal(envelope.Data, out)
}

func (a *API) envelopeError(resp *http.Response) error {
	envelope := apiEnvelope{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Error != nil {
		return fmt.Errorf("permit api: %s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("permit api: unexpected status %d", resp.StatusCode)
}
