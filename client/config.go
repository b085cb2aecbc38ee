package client

import (
	"net/http"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-permit"
)

const (
	// DefaultAPIURL is the Permit API root the SDK talks to
	DefaultAPIURL = "https://api.permit.dev/api/v1"
	// DefaultRefreshMargin is how long before expiry the scheduler fires
	DefaultRefreshMargin = 60 * time.Second
)

// Config holds the embedding-side SDK settings
type Config struct {
	// APIURL is the Permit API root
	APIURL string `env:"PERMIT_API_URL" envDefault:"https://api.permit.dev/api/v1"`
	// ProjectID scopes stored credentials and the widget configuration
	ProjectID string `env:"PERMIT_PROJECT_ID"`
	// RefreshMargin overrides how early the proactive refresh fires
	RefreshMargin time.Duration `env:"PERMIT_REFRESH_MARGIN" envDefault:"60s"`
	// HTTPClient overrides the transport used for API calls
	HTTPClient *http.Client `env:"-"`
	// Logger receives lifecycle diagnostics
	Logger permit.Logger `env:"-"`
}

// FromEnv loads the configuration from PERMIT_* environment variables
func FromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration before the session starts
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.ProjectID, validation.Required),
		validation.Field(&c.APIURL, is.URL),
	)
}

func (c Config) apiURL() string {
	if c.APIURL != "" {
		return c.APIURL
	}
	return DefaultAPIURL
}

func (c Config) refreshMargin() time.Duration {
	if c.RefreshMargin > 0 {
		return c.RefreshMargin
	}
	return DefaultRefreshMargin
}

func (c Config) logger() permit.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return nopLogger{}
}

// nopLogger keeps the client quiet unless the host injects a logger
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
