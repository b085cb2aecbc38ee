// Package client implements the embedding-side session lifecycle for Permit
// authentication: credential persistence scoped by project, server-side
// token validation (whoami), proactive refresh ahead of expiry, and the
// session controller that orchestrates them.
//
// The client never verifies signatures, it holds no keys. Local token
// inspection is limited to reading the exp claim for refresh scheduling;
// trust decisions always come from the whoami or refresh exchange.
//
// Lifecycle, as driven by Session:
//
//	uninitialized -> hydrating -> unauthenticated
//	                           -> pending validation -> authenticated
//	                                                 -> (refresh attempt) -> authenticated
//	                                                                      -> unauthenticated
//
// Failures degrade silently to a logged-out state; the embedding
// application only ever observes IsAuthenticated, IsLoading, User, and the
// setup-time ConfigError.
package client
