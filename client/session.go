package client

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-permit"
	"github.com/google/uuid"
)

// State is the session lifecycle position
type State int

const (
	StateUninitialized State = iota
	StateHydrating
	StateUnauthenticated
	StatePendingValidation
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHydrating:
		return "hydrating"
	case StateUnauthenticated:
		return "unauthenticated"
	case StatePendingValidation:
		return "pending_validation"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// SessionOptions carries the optional session collaborators
type SessionOptions struct {
	// OnLogin is invoked by Login when no session exists. It signals the
	// embedding application to present its credential collection flow;
	// that flow reports back through SaveCredentials.
	OnLogin func()
}

// Session orchestrates the client-side token lifecycle: it hydrates stored
// credentials on start, confirms them against the server, keeps the access
// token fresh through the scheduler, and degrades to a logged-out state
// when nothing else works.
//
// The embedding application observes only IsAuthenticated, IsLoading, User
// and ConfigError; internal error codes never escape.
type Session struct {
	cfg       Config
	store     CredentialStore
	api       *API
	validator *Validation
	scheduler *Scheduler
	logger    permit.Logger
	onLogin   func()

	mu           sync.Mutex
	state        State
	user         *User
	accessToken  string
	refreshToken string
	// epoch identifies the current session generation; async results are
	// discarded when it no longer matches, so an in-flight response can
	// never resurrect a session cleared in the meantime
	epoch uuid.UUID
	// refreshEpoch is the generation the in-flight refresh exchange
	// belongs to, captured when the scheduler reads the refresh token at
	// exchange start
	refreshEpoch uuid.UUID
	widgetConfig *WidgetConfig
	configError  string
}

// NewSession builds the controller. It performs no I/O; call Start to
// hydrate.
func NewSession(cfg Config, store CredentialStore, opts ...SessionOptions) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("credential store is required")
	}

	api := NewAPI(cfg)
	s := &Session{
		cfg:       cfg,
		store:     store,
		api:       api,
		validator: NewValidation(api),
		logger:    cfg.logger(),
		state:     StateUninitialized,
		epoch:     uuid.New(),
	}
	s.refreshEpoch = s.epoch
	if len(opts) > 0 {
		s.onLogin = opts[0].OnLogin
	}

	s.scheduler = NewScheduler(api, SchedulerOptions{
		RefreshToken: s.refreshTokenForExchange,
		OnRefresh:    s.applyRefresh,
		OnFailure:    s.handleRefreshFailure,
		Margin:       cfg.refreshMargin(),
		Logger:       s.logger,
	})

	return s, nil
}

// Start hydrates the session from the credential store. With credentials
// present it enters pending-validation and confirms the token against the
// server in the background; without them it settles unauthenticated.
// Absence of stored data is not an error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateHydrating
	s.mu.Unlock()

	go s.loadWidgetConfig(ctx)

	creds, err := s.store.Load(s.cfg.ProjectID)
	if err != nil {
		s.logger.Error("Credential hydration failed", "error", err)
		creds = nil
	}

	s.mu.Lock()
	if creds == nil || creds.AccessToken == "" {
		s.state = StateUnauthenticated
		s.mu.Unlock()
		return nil
	}

	s.accessToken = creds.AccessToken
	s.refreshToken = creds.RefreshToken
	user := creds.User
	s.user = &user
	s.state = StatePendingValidation
	epoch := s.epoch
	token := creds.AccessToken
	s.mu.Unlock()

	s.scheduler.Schedule(token)
	go s.validate(ctx, epoch, token)
	return nil
}

// validate confirms the hydrated token server-side. On rejection it spends
// the single refresh attempt before giving up on the session.
func (s *Session) validate(ctx context.Context, epoch uuid.UUID, token string) {
	user, err := s.validator.Validate(ctx, token)
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	if s.epoch != epoch || s.accessToken != token {
		// session changed while the request was in flight
		s.mu.Unlock()
		return
	}

	if err == nil {
		s.user = user
		s.state = StateAuthenticated
		s.mu.Unlock()
		return
	}

	refreshToken := s.refreshToken
	s.mu.Unlock()

	s.logger.Info("Token validation failed", "error", err)

	if refreshToken == "" {
		s.clearSession()
		return
	}

	// one refresh attempt; its callbacks either re-authenticate the
	// session or clear it
	s.scheduler.DoRefresh(ctx)
}

// applyRefresh installs a rotated token pair. The new pair came from a
// successful exchange, so it is trusted directly without another whoami
// round trip.
func (s *Session) applyRefresh(accessToken, refreshToken string) {
	s.mu.Lock()
	if s.epoch != s.refreshEpoch {
		// the pair belongs to a generation that ended while the
		// exchange was in flight
		s.mu.Unlock()
		return
	}

	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.state = StateAuthenticated
	s.mu.Unlock()

	if err := s.store.Update(s.cfg.ProjectID, accessToken, refreshToken); err != nil {
		s.logger.Error("Credential update failed", "error", err)
	}

	s.scheduler.Schedule(accessToken)
}

func (s *Session) handleRefreshFailure() {
	s.mu.Lock()
	stale := s.epoch != s.refreshEpoch
	s.mu.Unlock()
	if stale {
		return
	}
	s.clearSession()
}

// SaveCredentials installs the outcome of a completed OTP or OAuth
// exchange and re-arms the refresh scheduler for the new access token.
func (s *Session) SaveCredentials(accessToken, refreshToken string, user User) error {
	if err := s.store.Save(s.cfg.ProjectID, Credentials{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}); err != nil {
		return err
	}

	s.mu.Lock()
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.user = &user
	s.state = StateAuthenticated
	s.epoch = uuid.New()
	s.mu.Unlock()

	s.scheduler.Schedule(accessToken)
	return nil
}

// Login signals the embedding application to start its credential flow.
// It is a no-op when a session is already established.
func (s *Session) Login() {
	s.mu.Lock()
	if s.state == StateAuthenticated || s.state == StatePendingValidation {
		s.mu.Unlock()
		return
	}
	fn := s.onLogin
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Logout clears local state unconditionally and asks the server to
// invalidate the session on a best-effort basis. The local clear never
// waits on, or fails with, the server call.
func (s *Session) Logout() {
	s.mu.Lock()
	token := s.accessToken
	s.mu.Unlock()

	s.clearSession()

	if token != "" {
		go func() {
			if err := s.api.Logout(context.Background(), token); err != nil {
				s.logger.Debug("Server-side logout failed", "error", err)
			}
		}()
	}
}

// clearSession drops credentials, rotates the epoch, and cancels the
// pending refresh timer.
func (s *Session) clearSession() {
	s.mu.Lock()
	s.accessToken = ""
	s.refreshToken = ""
	s.user = nil
	s.state = StateUnauthenticated
	s.epoch = uuid.New()
	s.mu.Unlock()

	s.scheduler.Stop()
	s.validator.Reset()

	if err := s.store.Clear(s.cfg.ProjectID); err != nil {
		s.logger.Error("Credential clear failed", "error", err)
	}
}

// Close cancels background work. An in-flight network call is not aborted;
// its eventual result is discarded by the epoch guard.
func (s *Session) Close() {
	s.scheduler.Stop()
}

func (s *Session) loadWidgetConfig(ctx context.Context) {
	wc, err := s.api.FetchWidgetConfig(ctx, s.cfg.ProjectID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		if errors.Is(err, ErrProjectNotFound) {
			s.configError = "Invalid project ID"
		} else if ctx.Err() == nil {
			s.configError = "Failed to load project configuration"
		}
		return
	}
	s.widgetConfig = wc
	s.configError = ""
}

// refreshTokenForExchange hands the scheduler the refresh token for an
// exchange that is starting right now. The scheduler calls it exactly
// once per exchange, so it doubles as the point where the exchange is
// pinned to the current generation.
func (s *Session) refreshTokenForExchange() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshEpoch = s.epoch
	return s.refreshToken
}

// IsAuthenticated reports whether the session holds a confirmed identity
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateAuthenticated
}

// IsLoading reports whether hydration or validation is still in progress
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateHydrating || s.state == StatePendingValidation
}

// State returns the current lifecycle position
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns a copy of the current identity, or nil when logged out
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	user := *s.user
	return &user
}

// AccessToken returns the current access token, empty when logged out
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// WidgetConfig returns the project widget settings once loaded
func (s *Session) WidgetConfig() *WidgetConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.widgetConfig
}

// ConfigError returns a human readable setup problem, if any
func (s *Session) ConfigError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configError
}
