package client

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-permit"
)

// SchedulerOptions wires the refresh scheduler to its session.
//
// RefreshToken is an accessor rather than a value: the refresh token
// rotates on every exchange, and reading it at fire-time means rotation
// alone never forces a reschedule. Only the access token's identity does.
// The scheduler calls it exactly once per exchange, after the in-flight
// guard engages, so the session can tie each exchange to the generation
// it started under.
type SchedulerOptions struct {
	RefreshToken func() string
	OnRefresh    func(accessToken, refreshToken string)
	OnFailure    func()
	Margin       time.Duration
	Logger       permit.Logger
}

// Scheduler performs the proactive token refresh: it decodes the current
// access token's expiry, arms a single one-shot timer shortly before it,
// and runs the refresh exchange. At most one refresh call is in flight per
// scheduler, a timer fire and a manual trigger serialize through the same
// guard.
type Scheduler struct {
	api          *API
	margin       time.Duration
	refreshToken func() string
	onRefresh    func(accessToken, refreshToken string)
	onFailure    func()
	logger       permit.Logger
	now          func() time.Time

	mu       sync.Mutex
	timer    *time.Timer
	inFlight bool
}

func NewScheduler(api *API, opts SchedulerOptions) *Scheduler {
	margin := opts.Margin
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}
	logger := opts.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Scheduler{
		api:          api,
		margin:       margin,
		refreshToken: opts.RefreshToken,
		onRefresh:    opts.OnRefresh,
		onFailure:    opts.OnFailure,
		logger:       logger,
		now:          time.Now,
	}
}

// Schedule arms the refresh timer for the given access token, cancelling
// any previously pending timer first. Call it every time the access token
// changes: fresh login or a completed refresh. A token already inside the
// refresh margin triggers an immediate refresh instead of a timer. A
// missing refresh token is discovered at fire time, where the exchange is
// skipped; the refresh token is deliberately not read here.
//
// The exp claim is decoded without signature verification; the client holds
// no keys and the value is used purely for scheduling, never for trust.
func (s *Scheduler) Schedule(accessToken string) {
	s.mu.Lock()
	s.stopTimerLocked()

	if accessToken == "" {
		s.mu.Unlock()
		return
	}

	exp, ok := tokenExpiry(accessToken)
	if !ok {
		s.mu.Unlock()
		return
	}

	delay := exp.Add(-s.margin).Sub(s.now())
	if delay <= 0 {
		s.mu.Unlock()
		go s.DoRefresh(context.Background())
		return
	}

	s.logger.Debug("Refresh scheduled", "in", delay)
	s.timer = time.AfterFunc(delay, func() {
		s.DoRefresh(context.Background())
	})
	s.mu.Unlock()
}

// Stop cancels any pending timer. An exchange already in flight is not
// aborted; its result is the caller's to ignore.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
}

// DoRefresh runs one refresh exchange with the current refresh token. A
// second call while one is in flight is a no-op. Success reports the
// rotated pair through OnRefresh; any failure reports through OnFailure
// with no retry.
func (s *Scheduler) DoRefresh(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return
	}
	refreshToken := s.refreshToken()
	if refreshToken == "" {
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	pair, err := s.api.Refresh(ctx, refreshToken)

	s.mu.Lock()
	s.inFlight = false
	s.mu.Unlock()

	if err != nil {
		s.logger.Info("Token refresh failed", "error", err)
		s.onFailure()
		return
	}

	s.onRefresh(pair.AccessToken, pair.RefreshToken)
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// tokenExpiry reads the exp claim without verifying the signature
func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
