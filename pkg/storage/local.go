package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// TempSuffix is appended to the hidden temporary file a Write goes through
// before it is renamed over its target.
const TempSuffix = ".reposync-tmp"

// Local is a filesystem-based storage backend
type Local struct {
	fs       afero.Fs
	rootPath string
}

// NewLocal creates a new local filesystem backend
func NewLocal(rootPath string) (*Local, error) {
	return NewLocalFs(afero.NewOsFs(), rootPath)
}

// NewLocalFs creates a backend on an arbitrary afero filesystem.
// Tests use it with in-memory or fault-injecting filesystems.
func NewLocalFs(fsys afero.Fs, rootPath string) (*Local, error) {
	absPath, err := filepath.Abs(rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := fsys.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to access path: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("path is not a directory: %s", absPath)
	}

	return &Local{fs: fsys, rootPath: absPath}, nil
}

// Root returns the absolute root path
func (l *Local) Root() string {
	return l.rootPath
}

// Fs exposes the underlying filesystem
func (l *Local) Fs() afero.Fs {
	return l.fs
}

func (l *Local) full(rel string) string {
	return filepath.Join(l.rootPath, filepath.FromSlash(rel))
}

// Walk visits the tree below the root
func (l *Local) Walk(ctx context.Context, fn WalkFunc) error {
	info, err := l.fs.Stat(l.rootPath)
	if err != nil {
		return fmt.Errorf("failed to access root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", l.rootPath)
	}

	return afero.Walk(l.fs, l.rootPath, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Check context cancellation
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p == l.rootPath {
			return nil
		}

		mode := info.Mode()
		if mode&os.ModeSymlink != 0 || (!mode.IsRegular() && !mode.IsDir()) {
			return nil
		}

		relPath, err := filepath.Rel(l.rootPath, p)
		if err != nil {
			return err
		}

		return fn(FileInfo{
			Path:         p,
			Size:         info.Size(),
			ModTime:      info.ModTime(),
			IsDir:        info.IsDir(),
			Permissions:  uint32(mode.Perm()),
			RelativePath: filepath.ToSlash(relPath),
		})
	})
}

// Read opens a file for reading
func (l *Local) Read(ctx context.Context, path string) (io.ReadCloser, error) {
	file, err := l.fs.Open(l.full(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Write creates or overwrites a file. Content goes to a temporary sibling
// first so an interrupted copy never leaves a truncated target behind.
func (l *Local) Write(ctx context.Context, path string, reader io.Reader, size int64, metadata *FileInfo) error {
	fullPath := l.full(path)

	// Ensure parent directory exists
	dir := filepath.Dir(fullPath)
	if err := l.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := filepath.Join(dir, "."+filepath.Base(fullPath)+TempSuffix)
	if err := l.writeTemp(tmpPath, reader, size, metadata); err != nil {
		_ = l.fs.Remove(tmpPath)
		return err
	}

	if err := l.fs.Rename(tmpPath, fullPath); err != nil {
		_ = l.fs.Remove(tmpPath)
		return fmt.Errorf("failed to replace file: %w", err)
	}

	return nil
}

func (l *Local) writeTemp(tmpPath string, reader io.Reader, size int64, metadata *FileInfo) error {
	file, err := l.fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}

	written, err := io.Copy(file, reader)
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}

	if written != size {
		file.Close()
		return fmt.Errorf("incomplete write: expected %d bytes, wrote %d", size, written)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}

	// Preserve metadata if provided
	if metadata != nil {
		if metadata.Permissions != 0 {
			if err := l.fs.Chmod(tmpPath, os.FileMode(metadata.Permissions)); err != nil {
				return fmt.Errorf("failed to set permissions: %w", err)
			}
		}

		if !metadata.ModTime.IsZero() {
			if err := l.fs.Chtimes(tmpPath, metadata.ModTime, metadata.ModTime); err != nil {
				return fmt.Errorf("failed to set modification time: %w", err)
			}
		}
	}

	return nil
}

// Delete removes a single file
func (l *Local) Delete(ctx context.Context, path string) error {
	if err := l.fs.Remove(l.full(path)); err != nil {
		return fmt.Errorf("failed to delete: %w", err)
	}

	return nil
}

// Exists checks if a file or directory exists
func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	ok, err := afero.Exists(l.fs, l.full(path))
	if err != nil {
		return false, fmt.Errorf("failed to check existence: %w", err)
	}
	return ok, nil
}

// Stat returns file metadata
func (l *Local) Stat(ctx context.Context, path string) (*FileInfo, error) {
	fullPath := l.full(path)

	info, err := l.fs.Stat(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	relPath, err := filepath.Rel(l.rootPath, fullPath)
	if err != nil {
		return nil, err
	}

	return &FileInfo{
		Path:         fullPath,
		Size:         info.Size(),
		ModTime:      info.ModTime(),
		IsDir:        info.IsDir(),
		Permissions:  uint32(info.Mode().Perm()),
		RelativePath: filepath.ToSlash(relPath),
	}, nil
}

// RemoveEmptyParents removes the now-empty directories above path
func (l *Local) RemoveEmptyParents(ctx context.Context, rel string) (int, error) {
	removed := 0
	dir := path.Dir(strings.TrimPrefix(rel, "/"))

	for dir != "." && dir != "/" && dir != "" {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		fullPath := l.full(dir)
		empty, err := afero.IsEmpty(l.fs, fullPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				dir = path.Dir(dir)
				continue
			}
			return removed, fmt.Errorf("failed to read directory %s: %w", dir, err)
		}
		if !empty {
			break
		}

		if err := l.fs.Remove(fullPath); err != nil {
			return removed, fmt.Errorf("failed to remove directory %s: %w", dir, err)
		}
		removed++
		dir = path.Dir(dir)
	}

	return removed, nil
}

// Close releases resources (no-op for local filesystem)
func (l *Local) Close() error {
	return nil
}
