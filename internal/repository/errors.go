package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicate indicates a uniqueness conflict, e.g. a template
	// keyword that already exists.
	ErrDuplicate = errors.New("repository: duplicate")
)
