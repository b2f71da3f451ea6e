// Package storage holds the files referenced by revisions, transmittal
// packages and export archives. Names are slash separated and relative to
// the storage root.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrNotExist is returned when a named file does not exist.
var ErrNotExist = errors.New("file does not exist")

// Storage is a flat namespace of files addressed by slash separated names.
// Directories are implied by name prefixes.
type Storage interface {
	// Open returns the content of a file.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Put writes a file, replacing any previous content.
	Put(ctx context.Context, name string, r io.Reader) error

	// Exists reports whether a file exists.
	Exists(ctx context.Context, name string) (bool, error)

	// List returns the names of the files under dir, sorted.
	List(ctx context.Context, dir string) ([]string, error)

	// Copy copies a single file.
	Copy(ctx context.Context, src, dst string) error

	// MoveDir moves every file under src to the same relative name under
	// dst.
	MoveDir(ctx context.Context, src, dst string) error

	// Remove deletes a file. Removing a missing file is not an error.
	Remove(ctx context.Context, name string) error
}

// Clean normalizes a storage name. Leading slashes and dot segments are
// dropped so names cannot escape the root.
func Clean(name string) string {
	name = path.Clean("/" + strings.ReplaceAll(name, "\\", "/"))
	return strings.TrimPrefix(name, "/")
}

// Join joins name elements into a storage name.
func Join(elem ...string) string {
	return Clean(path.Join(elem...))
}

// Base returns the last element of a storage name.
func Base(name string) string {
	return path.Base(Clean(name))
}
