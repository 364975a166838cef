package model

import "errors"

// Sentinel errors for the resolution engine. Callers match with errors.Is;
// eris wrapping at call sites preserves the chain.
var (
	// ErrInvalidScope means the caller omitted a required scope identifier.
	// Rejected before any store access.
	ErrInvalidScope = errors.New("scope missing required identifiers")

	// ErrPublishConflict means a concurrent publish for the same house type
	// advanced the version first. Retry with refreshed state.
	ErrPublishConflict = errors.New("profile version advanced concurrently")

	// ErrEmptyProfile means a publish found zero eligible facts. The existing
	// current version is left untouched.
	ErrEmptyProfile = errors.New("no eligible facts to publish")

	// ErrPassNotOpen means facts were recorded or finalize was called against
	// a pass that is not open.
	ErrPassNotOpen = errors.New("extraction pass is not open")

	// ErrUnknownFunction means a retrieval function name has no registered
	// implementation. A programming error, fatal at startup.
	ErrUnknownFunction = errors.New("retrieval function not registered")
)
