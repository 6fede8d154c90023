package shared

import "errors"

var (
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller's role is insufficient.
	ErrForbidden = errors.New("forbidden")
	// ErrIntegrity indicates a stored invariant cannot be satisfied.
	ErrIntegrity = errors.New("integrity violation")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
