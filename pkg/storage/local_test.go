package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOSFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

// TestNewLocal tests the Local backend constructor
func TestNewLocal(t *testing.T) {
	t.Run("ValidDirectory", func(t *testing.T) {
		local, err := NewLocal(t.TempDir())
		require.NoError(t, err)
		defer local.Close()
		assert.True(t, filepath.IsAbs(local.Root()))
	})

	t.Run("NonExistentPath", func(t *testing.T) {
		_, err := NewLocal("/nonexistent/path/that/does/not/exist")
		assert.Error(t, err)
	})

	t.Run("FileNotDirectory", func(t *testing.T) {
		dir := t.TempDir()
		writeOSFile(t, dir, "file", "x")

		_, err := NewLocal(filepath.Join(dir, "file"))
		assert.Error(t, err)
	})

	t.Run("MemoryFs", func(t *testing.T) {
		fsys := afero.NewMemMapFs()
		require.NoError(t, fsys.MkdirAll("/repo", 0755))

		local, err := NewLocalFs(fsys, "/repo")
		require.NoError(t, err)
		assert.Equal(t, fsys, local.Fs())
	})
}

// TestLocalWalk tests the Walk method
func TestLocalWalk(t *testing.T) {
	dir := t.TempDir()
	writeOSFile(t, dir, "b.txt", "bb")
	writeOSFile(t, dir, "a/one.txt", "1")
	writeOSFile(t, dir, "a/deep/two.txt", "22")
	writeOSFile(t, dir, "skip/me.txt", "x")

	local, err := NewLocal(dir)
	require.NoError(t, err)

	t.Run("VisitsInLexicalOrder", func(t *testing.T) {
		var seen []string
		err := local.Walk(context.Background(), func(info FileInfo) error {
			seen = append(seen, info.RelativePath)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "a/deep", "a/deep/two.txt", "a/one.txt", "b.txt", "skip", "skip/me.txt"}, seen)
	})

	t.Run("SkipDir", func(t *testing.T) {
		var files []string
		err := local.Walk(context.Background(), func(info FileInfo) error {
			if info.IsDir {
				if info.RelativePath == "skip" {
					return SkipDir
				}
				return nil
			}
			files = append(files, info.RelativePath)
			return nil
		})
		require.NoError(t, err)
		assert.NotContains(t, files, "skip/me.txt")
		assert.Len(t, files, 3)
	})

	t.Run("Cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := local.Walk(ctx, func(info FileInfo) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("CallbackError", func(t *testing.T) {
		boom := errors.New("boom")
		err := local.Walk(context.Background(), func(info FileInfo) error { return boom })
		assert.ErrorIs(t, err, boom)
	})
}

func TestLocalWalkSkipsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	dir := t.TempDir()
	writeOSFile(t, dir, "real.txt", "data")
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.txt"), filepath.Join(dir, "link.txt")))
	require.NoError(t, os.Symlink(dir, filepath.Join(dir, "loop")))

	local, err := NewLocal(dir)
	require.NoError(t, err)

	var seen []string
	require.NoError(t, local.Walk(context.Background(), func(info FileInfo) error {
		seen = append(seen, info.RelativePath)
		return nil
	}))
	assert.Equal(t, []string{"real.txt"}, seen)
}

// TestLocalRead tests the Read method
func TestLocalRead(t *testing.T) {
	dir := t.TempDir()
	writeOSFile(t, dir, "sub/file.txt", "hello")

	local, err := NewLocal(dir)
	require.NoError(t, err)

	rc, err := local.Read(context.Background(), "sub/file.txt")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, err = local.Read(context.Background(), "missing.txt")
	assert.Error(t, err)
}

// TestLocalWrite tests the Write method
func TestLocalWrite(t *testing.T) {
	t.Run("CreatesParentsAndPreservesMetadata", func(t *testing.T) {
		dir := t.TempDir()
		local, err := NewLocal(dir)
		require.NoError(t, err)

		mtime := time.Date(2023, 6, 15, 12, 30, 0, 0, time.UTC)
		content := []byte("payload")
		err = local.Write(context.Background(), "x/y/z.txt", bytes.NewReader(content), int64(len(content)), &FileInfo{
			ModTime:     mtime,
			Permissions: 0600,
		})
		require.NoError(t, err)

		info, err := local.Stat(context.Background(), "x/y/z.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(len(content)), info.Size)
		assert.True(t, info.ModTime.Equal(mtime), "mtime %v, want %v", info.ModTime, mtime)
		if runtime.GOOS != "windows" {
			assert.Equal(t, uint32(0600), info.Permissions)
		}

		entries, err := os.ReadDir(filepath.Join(dir, "x", "y"))
		require.NoError(t, err)
		assert.Len(t, entries, 1, "temporary file must not be left behind")
	})

	t.Run("Overwrite", func(t *testing.T) {
		dir := t.TempDir()
		writeOSFile(t, dir, "f.txt", "old content")
		local, err := NewLocal(dir)
		require.NoError(t, err)

		require.NoError(t, local.Write(context.Background(), "f.txt", strings.NewReader("new"), 3, nil))

		data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})

	t.Run("SizeMismatchKeepsTarget", func(t *testing.T) {
		dir := t.TempDir()
		writeOSFile(t, dir, "f.txt", "original")
		local, err := NewLocal(dir)
		require.NoError(t, err)

		err = local.Write(context.Background(), "f.txt", strings.NewReader("abc"), 10, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "incomplete write")

		data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
		require.NoError(t, err)
		assert.Equal(t, "original", string(data))

		_, err = os.Stat(filepath.Join(dir, ".f.txt"+TempSuffix))
		assert.True(t, os.IsNotExist(err))
	})
}

// TestLocalDelete tests the Delete method
func TestLocalDelete(t *testing.T) {
	dir := t.TempDir()
	writeOSFile(t, dir, "gone.txt", "x")
	local, err := NewLocal(dir)
	require.NoError(t, err)

	require.NoError(t, local.Delete(context.Background(), "gone.txt"))
	ok, err := local.Exists(context.Background(), "gone.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, local.Delete(context.Background(), "gone.txt"))
}

// TestLocalStat tests the Stat method
func TestLocalStat(t *testing.T) {
	dir := t.TempDir()
	writeOSFile(t, dir, "d/f.txt", "12345")
	local, err := NewLocal(dir)
	require.NoError(t, err)

	info, err := local.Stat(context.Background(), "d/f.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.Equal(t, "d/f.txt", info.RelativePath)
	assert.False(t, info.IsDir)

	info, err = local.Stat(context.Background(), "d")
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	_, err = local.Stat(context.Background(), "nope")
	assert.Error(t, err)
}

// TestLocalRemoveEmptyParents tests directory cleanup after deletes
func TestLocalRemoveEmptyParents(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/root/a/b/c", 0755))
	require.NoError(t, afero.WriteFile(fsys, "/root/a/keep.txt", []byte("k"), 0644))

	local, err := NewLocalFs(fsys, "/root")
	require.NoError(t, err)

	removed, err := local.RemoveEmptyParents(context.Background(), "a/b/c/deleted.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	ok, _ := afero.DirExists(fsys, "/root/a/b")
	assert.False(t, ok)
	ok, _ = afero.DirExists(fsys, "/root/a")
	assert.True(t, ok, "directory with remaining files must stay")

	t.Run("NeverRemovesRoot", func(t *testing.T) {
		require.NoError(t, fsys.MkdirAll("/other/x", 0755))
		other, err := NewLocalFs(fsys, "/other")
		require.NoError(t, err)

		removed, err := other.RemoveEmptyParents(context.Background(), "x/f.txt")
		require.NoError(t, err)
		assert.Equal(t, 1, removed)

		ok, _ := afero.DirExists(fsys, "/other")
		assert.True(t, ok)
	})

	t.Run("TopLevelFile", func(t *testing.T) {
		removed, err := local.RemoveEmptyParents(context.Background(), "top.txt")
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}

// TestBackendInterface ensures Local implements Backend
func TestBackendInterface(t *testing.T) {
	var _ Backend = (*Local)(nil)
}
