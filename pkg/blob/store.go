// Package blob stores bill attachment payloads. Bills hold only a reference;
// access control happens at the bill layer, the store itself is a dumb
// content-addressed adapter.
package blob

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no blob exists for a reference
var ErrNotFound = errors.New("blob not found")

// Object is a stored attachment payload with its descriptive metadata
type Object struct {
	Ref         string
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// Store persists attachment payloads keyed by an opaque reference
type Store interface {
	// Upload stores the payload and returns the reference to persist on the bill
	Upload(ctx context.Context, filename, contentType string, data []byte) (string, error)

	// Download retrieves a previously stored payload by reference
	Download(ctx context.Context, ref string) (*Object, error)

	// Delete removes a stored payload. Deleting a missing reference is not an error.
	Delete(ctx context.Context, ref string) error
}
