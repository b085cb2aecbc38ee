package client

import (
	"context"
	"sync"
)

// Validation confirms access tokens against the whoami endpoint and
// memoizes the outcome per token value. Keying on the token itself means a
// rotated token never inherits a stale verdict from before the rotation.
// Failures are definitive: there is no retry, a rejected token stays
// rejected until the session replaces it.
type Validation struct {
	api *API

	mu       sync.Mutex
	outcomes map[string]validationOutcome
}

type validationOutcome struct {
	user *User
	err  error
}

func NewValidation(api *API) *Validation {
	return &Validation{
		api:      api,
		outcomes: make(map[string]validationOutcome),
	}
}

// Validate resolves the token to the server-side identity, or an error when
// the server rejects it. Context cancellation aborts an in-flight call
// without recording an outcome.
func (v *Validation) Validate(ctx context.Context, token string) (*User, error) {
	v.mu.Lock()
	if outcome, ok := v.outcomes[token]; ok {
		v.mu.Unlock()
		return outcome.user, outcome.err
	}
	v.mu.Unlock()

	user, err := v.api.Me(ctx, token)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	v.mu.Lock()
	v.outcomes[token] = validationOutcome{user: user, err: err}
	v.mu.Unlock()

	return user, err
}

// Reset drops every memoized outcome. The session calls it on logout so a
// later login with a reissued token starts clean.
func (v *Validation) Reset() {
	v.mu.Lock()
	v.outcomes = make(map[string]validationOutcome)
	v.mu.Unlock()
}
