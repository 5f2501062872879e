package domain

import "errors"

var (
	// ErrAuth means the feed rejected our credentials. Fatal: the loop halts
	// new trading and waits for operator intervention.
	ErrAuth = errors.New("authentication rejected")

	// ErrTransient marks network-level failures that are safe to retry with
	// backoff (timeouts, 5xx, connection resets).
	ErrTransient = errors.New("transient failure")

	// ErrStaleCursor means the changes cursor is too old for the feed to diff
	// against. The only recovery is a full re-bootstrap; re-polling with the
	// same cursor is never valid.
	ErrStaleCursor = errors.New("stale cursor")

	// ErrMalformedData marks payloads or records that could not be decoded.
	ErrMalformedData = errors.New("malformed data")

	// ErrRiskLimit is returned when opening a position would breach a
	// configured exposure limit. The intent is rejected; no position exists.
	ErrRiskLimit = errors.New("risk limit exceeded")

	// ErrAdvisoryTimeout marks an advisory call that did not answer in time.
	// Callers treat it as a rejection, never an acceptance.
	ErrAdvisoryTimeout = errors.New("advisory timeout")

	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrClosed       = errors.New("already closed")
)
