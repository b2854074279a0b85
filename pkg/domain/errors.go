package domain

import "errors"

// Common domain errors
var (
	// ErrDecode marks malformed wire bytes. The whole batch is rejected and
	// nothing is persisted.
	ErrDecode = errors.New("malformed telemetry payload")

	// ErrUnsupportedContentType marks a request body encoding the decoder
	// does not speak.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrUnsupportedChangeType marks a schema change outside the additive set.
	ErrUnsupportedChangeType = errors.New("unsupported schema change type")

	// ErrDestructiveDDL marks generated SQL that matched the destructive
	// pattern guard. The promotion is never persisted.
	ErrDestructiveDDL = errors.New("destructive DDL rejected")

	// ErrInvalidIdentifier marks a table, column, or type name outside the
	// SQL-safe subset. The promotion is never persisted.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrNotFound marks an unknown promotion, session, or trace id.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState marks an attempt to re-execute a promotion that has
	// already left pending.
	ErrInvalidState = errors.New("invalid promotion state")

	// ErrStorage marks a failure at the storage engine level.
	ErrStorage = errors.New("storage failure")

	// ErrBroadcasterClosed marks a subscribe attempt after shutdown.
	ErrBroadcasterClosed = errors.New("broadcaster closed")
)

// ErrorResponse defines the standard JSON error model returned by the HTTP
// API. It intentionally avoids exposing internals while providing a stable
// machine-readable code.
type ErrorResponse struct {
	Code    string `json:"code"`    // Machine-readable error code (e.g., DECODE_ERROR, NOT_FOUND)
	Message string `json:"message"` // Human-readable message (safe for logs)
}
