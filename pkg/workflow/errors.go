package workflow

import "errors"

var (
	// ErrInvalidForm is returned when a submitted form does not validate or
	// the forms do not describe a consistent document. Nothing is written.
	ErrInvalidForm = errors.New("invalid form")

	// ErrRevisionConflict is returned when another writer created a revision
	// of the same document concurrently. The caller may reload and retry.
	ErrRevisionConflict = errors.New("revision conflict")

	// ErrDuplicateKey is returned when the document key is already used in
	// the category.
	ErrDuplicateKey = errors.New("document key already exists")
)
