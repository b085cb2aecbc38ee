package permit

import (
	stderrors "errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// verifyWithCache runs a single verification attempt. It never returns a Go
// error: any failure is mapped onto the wire taxonomy. Retry policy belongs
// to the caller.
func verifyWithCache(token string, cfg Config, cache *JWKSCache) VerificationResult {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return failure(ErrCredentialsRequired)
	}

	ks := cache.KeySource(cfg)

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(token, claims, ks.Keyfunc,
		jwt.WithIssuer(DefaultIssuer),
	)
	if err != nil {
		// an expired token reports TOKEN_EXPIRED even when its signature
		// is also bad; jwt.Parse short-circuits on the signature, so the
		// expiry has to be checked separately here
		if stderrors.Is(err, jwt.ErrTokenSignatureInvalid) && expiredUnverified(token) {
			return failure(withSource(ErrTokenExpired, err))
		}
		return failure(classifyVerificationError(err))
	}

	return VerificationResult{
		Valid: true,
		User: &User{
			UserID:        claims.UserID(),
			Email:         claims.Email,
			AppID:         claims.ProjectID,
			EnvironmentID: claims.EnvironmentID,
			Provider:      claims.Provider,
			IssuedAt:      claimTime(claims.IssuedAt),
			ExpiresAt:     claimTime(claims.ExpiresAt),
		},
	}
}

// expiredUnverified reports whether a structurally valid token carries an
// exp claim in the past. Signature state is deliberately ignored.
func expiredUnverified(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}

func claimTime(d *jwt.NumericDate) time.Time {
	if d == nil {
		return time.Unix(0, 0).UTC()
	}
	return d.Time
}
