// Package storage provides the durable blob stores the caches persist to.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key is not found
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when operating on a closed store
	ErrClosed = errors.New("storage closed")

	// ErrReadOnly is returned when attempting to write to a read-only store
	ErrReadOnly = errors.New("storage is read-only")
)

// BlobStore persists opaque values under string keys.
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// ReadBlob returns the stored value or ErrNotFound
	ReadBlob(ctx context.Context, key string) ([]byte, error)

	// WriteBlob replaces the stored value
	WriteBlob(ctx context.Context, key string, value []byte) error

	// DeleteBlob removes the value. Deleting a missing key is not an error.
	DeleteBlob(ctx context.Context, key string) error

	// Close releases resources
	Close() error
}

// Config holds PebbleDB configuration
type Config struct {
	// Path to the database directory
	Path string

	// Cache size in MB (default: 16)
	Cache int

	// MaxOpenFiles is the maximum number of open files (default: 500)
	MaxOpenFiles int

	// ReadOnly opens the database in read-only mode
	ReadOnly bool
}

// DefaultConfig returns the default PebbleDB configuration for path
func DefaultConfig(path string) *Config {
	return &Config{
		Path:         path,
		Cache:        16,
		MaxOpenFiles: 500,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Path == "" {
		return errors.New("path cannot be empty")
	}
	if c.Cache < 0 {
		return errors.New("cache size cannot be negative")
	}
	if c.MaxOpenFiles < 0 {
		return errors.New("max open files cannot be negative")
	}
	return nil
}
