package sentinel

import "errors"

// Sentinel errors for storage facts. Record stores return these (optionally
// wrapped) and services translate them into coded domain errors:
// - ErrNotFound: no record with that kind and id
// - ErrConflict: a write-once record already exists
// - ErrInvalidState: the record cannot change from its current state
// - ErrUnavailable: the backend cannot be reached
//
// Input validation failures use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
