package accounting

import "github.com/rotisserie/eris"

// Caller-facing error taxonomy. Operations return these sentinels, wrapped
// with context; callers classify with eris.Is and translate to user-visible
// messages themselves. Expected conditions (missing budget, conflicting
// session) are values, never panics.
var (
	// ErrConflict: a session start collided with an existing active
	// session for the same user.
	ErrConflict = eris.New("accounting: an active session already exists")

	// ErrNotFound: the referenced budget or session does not exist.
	ErrNotFound = eris.New("accounting: not found")

	// ErrInvalidState: the entity exists but its state forbids the
	// operation, e.g. re-ending a session with a different final cost.
	ErrInvalidState = eris.New("accounting: operation not allowed in current state")

	// ErrValidation: a caller-supplied amount or id fails validation.
	ErrValidation = eris.New("accounting: invalid argument")
)
