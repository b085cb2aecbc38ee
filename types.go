package permit

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultIssuer is the issuer claim every Permit token carries.
	DefaultIssuer = "permit"
	// DefaultBaseURL is the Permit API host serving the JWKS endpoint.
	DefaultBaseURL = "https://api.permit.dev"
	// DefaultCacheTTL is how long JWKS key material is reused before a
	// background refresh.
	DefaultCacheTTL = 24 * time.Hour
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds the credentials and endpoints used to verify tokens
type Config struct {
	// ClientID is the public client identifier (pk_...)
	ClientID string
	// ClientSecret is the secret key (sk_...), never expose it to clients
	ClientSecret string
	// BaseURL overrides the Permit API host
	BaseURL string
	// CacheTTL overrides how long JWKS keys are cached
	CacheTTL time.Duration
	// Logger receives cache refresh and verification diagnostics
	Logger Logger
}

// Validate checks the configuration is usable before any network call
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ClientID, validation.Required),
		validation.Field(&c.ClientSecret, validation.Required),
		validation.Field(&c.BaseURL, is.URL),
	)
}

func (c Config) baseURL() string {
	if c.BaseURL != "" {
		return strings.TrimSuffix(c.BaseURL, "/")
	}
	return DefaultBaseURL
}

func (c Config) cacheTTL() time.Duration {
	if c.CacheTTL > 0 {
		return c.CacheTTL
	}
	return DefaultCacheTTL
}

// cacheKey scopes JWKS handles so tenants never share key material
func (c Config) cacheKey() string {
	return c.baseURL() + ":" + c.ClientID
}

func (c Config) logger() Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return defLogger{}
}

// TokenClaims is the signed payload of a Permit access token
type TokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	UID           string `json:"uid,omitempty"`
	ProjectID     string `json:"pid,omitempty"`
	EnvironmentID string `json:"eid,omitempty"`
	Provider      string `json:"provider,omitempty"`
}

// UserID returns uid when present, falling back to the subject claim
func (c *TokenClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// User is the identity extracted from a validated token. Claims are the
// authoritative source; no other request field is trusted.
type User struct {
	UserID        string         `json:"userId"`
	Email         string         `json:"email"`
	AppID         string         `json:"appId"`
	EnvironmentID string         `json:"environmentId,omitempty"`
	Provider      string         `json:"provider"`
	IssuedAt      time.Time      `json:"issuedAt"`
	ExpiresAt     time.Time      `json:"expiresAt"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// VerificationResult is the outcome of a single VerifyToken call. It is
// never partially valid: User is set only when Valid is true, and the
// error pair is set only when it is false.
type VerificationResult struct {
	Valid     bool   `json:"valid"`
	User      *User  `json:"user,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// ErrorResponse is the 401 body the middleware adapters emit
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] PERMIT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] PERMIT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] PERMIT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
