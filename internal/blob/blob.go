// Package blob abstracts the byte store behind file metadata. Objects live
// in per-user namespaces keyed by the owner's username; backends never see
// database state.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound indicates the named object does not exist in the store.
var ErrNotFound = errors.New("blob: object not found")

// Info describes a stored object as the backend sees it right now.
type Info struct {
	Size    int64     // Object size in bytes.
	ModTime time.Time // Last modification time.
}

// Store persists raw object bytes in per-namespace buckets.
type Store interface {
	// Write replaces the object's bytes with the reader's contents.
	Write(ctx context.Context, namespace, name string, r io.Reader) (int64, error)
	// Open returns a reader over the object's bytes.
	Open(ctx context.Context, namespace, name string) (io.ReadCloser, error)
	// Stat reports the object's current size and modification time.
	Stat(ctx context.Context, namespace, name string) (Info, error)
	// Rename moves the object to a new name inside the same namespace.
	Rename(ctx context.Context, namespace, oldName, newName string) error
	// Delete removes the object.
	Delete(ctx context.Context, namespace, name string) error
	// DeleteNamespace removes a namespace and everything under it.
	DeleteNamespace(ctx context.Context, namespace string) error
}
