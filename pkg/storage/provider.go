// Package storage defines the byte-store abstraction used by the file
// registry and the processing pipeline.
//
// A Provider is an opaque byte store keyed by string paths. Keys are
// constructed by the registry as <workspaceId>/<projectId>/<pool>/<random>
// with pool one of uploads, files or artifacts; providers treat them as
// opaque printable strings up to MaxKeyLength bytes.
package storage

import (
	"context"
	"errors"
	"io"
)

// MaxKeyLength is the longest key a provider must accept, in bytes.
const MaxKeyLength = 1000

// Common errors for storage operations.
var (
	// ErrNotFound indicates the key holds no bytes.
	ErrNotFound = errors.New("storage key not found")

	// ErrKeyTooLong indicates the key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("storage key exceeds maximum length")

	// ErrStoreClosed indicates the provider has been closed.
	ErrStoreClosed = errors.New("storage provider is closed")
)

// Provider is an opaque byte store keyed by string paths.
//
// Put must be all-or-nothing from a reader's perspective: a concurrent
// reader observes either the previous bytes or the complete new bytes,
// never a torn write. Providers tolerate concurrent Put of distinct keys;
// duplicate-key writes are only required for upload session temp keys,
// which are owned by a single session.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Put atomically persists the stream under key. contentType may be
	// empty; providers that store it do so best effort.
	Put(ctx context.Context, key string, r io.Reader, contentType string) error

	// OpenRead returns a reader over the bytes at key.
	// Returns ErrNotFound if the key is absent. The caller must close the
	// reader on every exit path.
	OpenRead(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the bytes at key. Deleting an absent key is not an
	// error (idempotent).
	Delete(ctx context.Context, key string) error

	// Exists reports whether the key holds bytes.
	Exists(ctx context.Context, key string) (bool, error)

	// Size returns the byte length at key, or ErrNotFound if absent.
	Size(ctx context.Context, key string) (int64, error)

	// ProviderID is the stable identifier recorded on each file row so
	// that multiple providers may coexist.
	ProviderID() string
}

// ValidateKey rejects keys a conforming provider is not required to accept.
func ValidateKey(key string) error {
	if len(key) == 0 || len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return errors.New("storage key contains non-printable characters")
		}
	}
	return nil
}
