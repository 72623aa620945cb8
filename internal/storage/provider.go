// Package storage defines the object store used to persist discovered link sets.
// Implementations live in the local, gcs and memory subpackages.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound reports that no object exists under the requested name.
var ErrNotFound = errors.New("object not found")

// Provider saves and loads whole objects by name.
type Provider interface {
	// Save replaces the object stored under name.
	Save(ctx context.Context, name string, data []byte) error
	// Load returns the object stored under name, or an error wrapping ErrNotFound.
	Load(ctx context.Context, name string) ([]byte, error)
}
