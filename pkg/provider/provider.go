// Package provider defines the storage targets that persisted artifacts can
// be mirrored to.
//
// The durable artifact directory is always local; a provider is a secondary
// copy (a shared volume or an S3 bucket) that download requests fall back to
// when the local file is gone. Authentication uses SDK default credential
// chains; providers do not implement custom auth logic.
package provider

import (
	"context"
	"io"
	"time"
)

// Provider is the minimal surface every mirror target supports.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Head returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	Head(ctx context.Context, key string) (*ObjectMeta, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ObjectPutter can create or overwrite objects.
type ObjectPutter interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error
}

// ObjectGetter can download objects as a stream.
type ObjectGetter interface {
	GetObject(ctx context.Context, key string) (body io.ReadCloser, contentLength int64, err error)
}

// ObjectDeleter can delete objects. Deleting a missing object is not an error.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, key string) error
}

// ObjectStore is a provider that supports the full artifact mirror lifecycle.
type ObjectStore interface {
	Provider
	ObjectPutter
	ObjectGetter
	ObjectDeleter
}

// ObjectMeta contains metadata for a single object.
type ObjectMeta struct {
	// Key is the full object key (path) within the provider.
	Key string

	// Size is the object size in bytes.
	Size int64

	// ETag is the entity tag when the provider supplies one.
	ETag string

	// LastModified is when the object was last modified.
	LastModified time.Time

	// ContentType is the MIME type of the object, if known.
	ContentType string
}

// ProviderType identifies a storage provider.
type ProviderType string

const (
	// ProviderS3 represents AWS S3 or S3-compatible storage.
	ProviderS3 ProviderType = "s3"

	// ProviderFile represents a local or mounted directory.
	ProviderFile ProviderType = "file"
)

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}
