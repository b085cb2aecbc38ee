package client_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-permit/client"
)

func TestValidation_Memoizes(t *testing.T) {
	var hits atomic.Int64
	api := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeEnvelope(w, map[string]string{"id": "usr_123", "email": "ada@example.com"})
	}))
	v := client.NewValidation(api)

	for i := 0; i < 3; i++ {
		user, err := v.Validate(context.Background(), "token-abc")
		require.NoError(t, err)
		assert.Equal(t, "usr_123", user.ID)
	}

	// one round trip, two cache hits
	assert.EqualValues(t, 1, hits.Load())
}

func TestValidation_RejectionIsDefinitive(t *testing.T) {
	var hits atomic.Int64
	api := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	v := client.NewValidation(api)

	for i := 0; i < 3; i++ {
		user, err := v.Validate(context.Background(), "revoked-token")
		assert.ErrorIs(t, err, client.ErrUnauthorized)
		assert.Nil(t, user)
	}

	assert.EqualValues(t, 1, hits.Load())
}

func TestValidation_KeyedByTokenValue(t *testing.T) {
	api := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer good-token" {
			writeEnvelope(w, map[string]string{"id": "usr_123"})
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	v := client.NewValidation(api)

	_, err := v.Validate(context.Background(), "bad-token")
	assert.ErrorIs(t, err, client.ErrUnauthorized)

	// a rotated token gets its own verdict, not the stale one
	user, err := v.Validate(context.Background(), "good-token")
	require.NoError(t, err)
	assert.Equal(t, "usr_123", user.ID)
}

func TestValidation_Reset(t *testing.T) {
	var hits atomic.Int64
	api := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeEnvelope(w, map[string]string{"id": "usr_123"})
	}))
	v := client.NewValidation(api)

	_, err := v.Validate(context.Background(), "token-abc")
	require.NoError(t, err)

	v.Reset()

	_, err = v.Validate(context.Background(), "token-abc")
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestValidation_CancelledContextNotRecorded(t *testing.T) {
	var hits atomic.Int64
	api := newAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeEnvelope(w, map[string]string{"id": "usr_123"})
	}))
	v := client.NewValidation(api)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Validate(ctx, "token-abc")
	assert.Error(t, err)

	// the aborted attempt left no verdict behind
	user, err := v.Validate(context.Background(), "token-abc")
	require.NoError(t, err)
	assert.Equal(t, "usr_123", user.ID)
}
