package store

import "github.com/rotisserie/eris"

// Sentinel errors returned by Store implementations. The accounting service
// maps these onto its caller-facing taxonomy; callers classify with eris.Is.
var (
	// ErrNotFound indicates the referenced row does not exist (or, for
	// conditional updates, exists in a state the operation excludes).
	ErrNotFound = eris.New("store: not found")

	// ErrDuplicateActiveSession indicates the partial unique index on
	// active sessions rejected an insert: the user already has one.
	ErrDuplicateActiveSession = eris.New("store: user already has an active session")
)
