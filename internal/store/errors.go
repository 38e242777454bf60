package store

import (
	domainerrors "github.com/lutrinapp/lutrin/internal/errors"
)

// Sentinel errors. They alias the domain taxonomy so API handlers can map
// store failures without importing this package.
var (
	ErrNotFound      = domainerrors.ErrNotFound
	ErrAlreadyExists = domainerrors.ErrConflict
)

// documentNotFound builds the not found error for a document id.
func documentNotFound(id int64) error {
	return domainerrors.NotFoundf("document %d not found", id)
}
