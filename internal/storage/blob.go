// Package storage holds the blob store used for profile photos.
package storage

import (
	"context"
	"io"
	"time"
)

// ObjectRef describes a stored object.
type ObjectRef struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// BlobStore stores opaque objects by key.
type BlobStore interface {
	Upload(ctx context.Context, key string, r io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectRef, error)
}
