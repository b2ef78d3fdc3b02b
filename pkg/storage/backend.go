package storage

import (
	"context"
	"io"
	"io/fs"
	"time"
)

// FileInfo represents metadata about a file
type FileInfo struct {
	Path         string
	Size         int64
	ModTime      time.Time
	IsDir        bool
	Permissions  uint32
	RelativePath string
}

// WalkFunc is called for every directory and regular file below the root.
// RelativePath is forward-slash separated. Returning SkipDir for a
// directory prunes it.
type WalkFunc func(info FileInfo) error

// SkipDir can be returned by a WalkFunc to skip a directory's contents
var SkipDir = fs.SkipDir

// Backend defines the interface for storage operations.
// All paths are forward-slash and relative to the backend root.
type Backend interface {
	// Root returns the absolute root path of the backend
	Root() string

	// Walk visits directories and regular files in lexical order.
	// Symlinks and special files are never reported.
	Walk(ctx context.Context, fn WalkFunc) error

	// Read opens a file for reading
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write creates or overwrites a file with the given content.
	// If metadata is provided, attempts to preserve timestamps and permissions.
	Write(ctx context.Context, path string, reader io.Reader, size int64, metadata *FileInfo) error

	// Delete removes a single file
	Delete(ctx context.Context, path string) error

	// Exists checks if a file or directory exists. Deletes use it to tell
	// a missing target from a failure.
	Exists(ctx context.Context, path string) (bool, error)

	// Stat returns file metadata
	Stat(ctx context.Context, path string) (*FileInfo, error)

	// RemoveEmptyParents removes the parent directories of path that are
	// empty, walking upwards and stopping at the first non-empty one.
	// The root itself is never removed.
	RemoveEmptyParents(ctx context.Context, path string) (int, error)

	// Close releases any resources held by the backend
	Close() error
}
