package domain

import "errors"

var (
	// ErrNoSession means the caller is not signed in.
	ErrNoSession = errors.New("not signed in")
	// ErrInvalidInput means a write was refused locally, before any remote call.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means a delete matched no row the caller owns.
	ErrNotFound = errors.New("bookmark not found or not owned by you")
)
