package sentinel

import "errors"

// Sentinel errors for persistence facts. Stores return these (optionally
// wrapped) and services translate them into domain errors:
//   - ErrNotFound: no row for the key
//   - ErrConflict: a uniqueness or compare-and-swap check failed
//   - ErrInvalidState: the row exists but its state forbids the write
//   - ErrUnavailable: the backing system could not be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
