// Package permit provides server-side verification of Permit-issued access
// tokens plus the building blocks host applications embed around it.
//
// Verification:
//   - Auth is the entry point. Construct it once per (clientId, clientSecret)
//     pair; construction fails fast on missing credentials and performs no
//     network I/O. VerifyToken never returns a Go error: every outcome is a
//     VerificationResult carrying a machine-readable code from the closed
//     taxonomy in errors.go.
//   - Signing keys are fetched from the tenant's JWKS endpoint, authenticated
//     with Basic credentials, and cached per (baseURL, clientId) with a TTL.
//     The first fetch is deferred until a token actually needs a key, so a
//     broken network surfaces as a verification failure, never a panic.
//
// Host integration:
//   - Middleware (httpware.go) wraps plain net/http handlers.
//   - middleware/permitware provides the go-router variant.
//   - middleware/fiberware provides the fiber variant.
//
// The client-side session lifecycle (credential storage, whoami validation,
// proactive refresh) lives in the client subpackage.
package permit
