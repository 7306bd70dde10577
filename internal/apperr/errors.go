// Package apperr holds the sentinel errors shared across layers.
package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidKind     = errors.New("invalid tile kind")
	ErrInvalidGeometry = errors.New("invalid geometry")
)
