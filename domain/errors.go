package domain

import "errors"

// Error taxonomy for the discovery service. Upstream-collaborator failures
// (ErrUpstreamUnavailable) are absorbed locally with a documented fallback;
// only caller-input validation and not-found conditions surface as request
// failures.
var (
	ErrNotFound            = errors.New("agent not found or TTL expired")
	ErrInvalidSignature    = errors.New("signature verification failed")
	ErrMalformedRecord     = errors.New("missing or invalid required record fields")
	ErrUpstreamUnavailable = errors.New("upstream collaborator unavailable")
)
