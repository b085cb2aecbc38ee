package permit

import (
	stderrors "errors"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// Wire error codes. The set is closed: middleware and clients key off these
// values, so changing them is a breaking change.
const (
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeInvalidSignature    = "INVALID_SIGNATURE"
	TextCodeInvalidIssuer       = "INVALID_ISSUER"
	TextCodeInvalidAudience     = "INVALID_AUDIENCE"
	TextCodeMalformedToken      = "MALFORMED_TOKEN"
	TextCodeJWKSFetchFailed     = "JWKS_FETCH_FAILED"
	TextCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	TextCodeCredentialsRequired = "CREDENTIALS_REQUIRED"
	TextCodeMissingToken        = "MISSING_TOKEN"
)

var (
	// ErrTokenExpired means the token's exp claim has passed
	ErrTokenExpired = errors.New("Token has expired", errors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(errors.CodeUnauthorized)

	// ErrInvalidIssuer means claim validation failed on iss
	ErrInvalidIssuer = errors.New("Invalid token issuer", errors.CategoryAuth).
				WithTextCode(TextCodeInvalidIssuer).
				WithCode(errors.CodeUnauthorized)

	// ErrInvalidAudience means claim validation failed on aud
	ErrInvalidAudience = errors.New("Invalid token audience", errors.CategoryAuth).
				WithTextCode(TextCodeInvalidAudience).
				WithCode(errors.CodeUnauthorized)

	// ErrInvalidSignature means the signature does not verify against any
	// published key
	ErrInvalidSignature = errors.New("Invalid token signature", errors.CategoryAuth).
				WithTextCode(TextCodeInvalidSignature).
				WithCode(errors.CodeUnauthorized)

	// ErrMalformedToken means the string is not a structurally valid JWT.
	// It doubles as the fallback for unrecognized verification failures,
	// which keeps the wire taxonomy compatible with existing consumers.
	ErrMalformedToken = errors.New("Malformed token", errors.CategoryAuth).
				WithTextCode(TextCodeMalformedToken).
				WithCode(errors.CodeUnauthorized)

	// ErrJWKSFetchFailed means key material could not be retrieved
	ErrJWKSFetchFailed = errors.New("Failed to fetch JWKS keys", errors.CategoryInternal).
				WithTextCode(TextCodeJWKSFetchFailed).
				WithCode(errors.CodeUnauthorized)

	// ErrInvalidCredentials means the JWKS endpoint rejected the client
	// credentials
	ErrInvalidCredentials = errors.New("Invalid API credentials", errors.CategoryAuth).
				WithTextCode(TextCodeInvalidCredentials).
				WithCode(errors.CodeUnauthorized)

	// ErrCredentialsRequired means clientId or clientSecret was absent at
	// call time
	ErrCredentialsRequired = errors.New("Missing clientId or clientSecret", errors.CategoryBadInput).
				WithTextCode(TextCodeCredentialsRequired).
				WithCode(errors.CodeUnauthorized)

	// ErrMissingToken means the request carried no bearer token at all
	ErrMissingToken = errors.New("Missing authorization header", errors.CategoryAuth).
			WithTextCode(TextCodeMissingToken).
			WithCode(errors.CodeUnauthorized)
)

// errJWKSUnauthorized marks a 401/403 from the JWKS endpoint. It is a plain
// sentinel so it can travel through keyfunc's error wrapping.
var errJWKSUnauthorized = stderrors.New("jwks endpoint rejected client credentials")

// classifyVerificationError maps a raw verification failure onto the wire
// taxonomy. Expiry is checked first so an expired token reports
// TOKEN_EXPIRED regardless of what else went wrong.
func classifyVerificationError(err error) *errors.Error {
	switch {
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return withSource(ErrTokenExpired, err)
	case stderrors.Is(err, jwt.ErrTokenInvalidIssuer):
		return withSource(ErrInvalidIssuer, err)
	case stderrors.Is(err, jwt.ErrTokenInvalidAudience):
		return withSource(ErrInvalidAudience, err)
	case stderrors.Is(err, jwt.ErrTokenSignatureInvalid):
		return withSource(ErrInvalidSignature, err)
	case stderrors.Is(err, jwt.ErrTokenMalformed):
		return withSource(ErrMalformedToken, err)
	case stderrors.Is(err, errJWKSUnauthorized):
		return withSource(ErrInvalidCredentials, err)
	case isFetchError(err):
		return withSource(ErrJWKSFetchFailed, err)
	}

	return errors.Wrap(err, ErrMalformedToken.Category, "Token verification failed: "+err.Error()).
		WithTextCode(ErrMalformedToken.TextCode).
		WithCode(errors.CodeUnauthorized)
}

// isFetchError recognizes transport level failures while retrieving the JWKS
func isFetchError(err error) bool {
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return true
	}
	return stderrors.Is(err, errJWKSBadStatus)
}

func withSource(rich *errors.Error, cause error) *errors.Error {
	clone := rich.Clone()
	clone.Source = cause
	return clone
}

// failure builds the invalid half of a VerificationResult from a rich error
func failure(rich *errors.Error) VerificationResult {
	return VerificationResult{
		Valid:     false,
		Error:     rich.Message,
		ErrorCode: rich.TextCode,
	}
}
