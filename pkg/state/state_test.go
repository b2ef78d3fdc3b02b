package state

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/reposync/pkg/models"
	"github.com/sdejongh/reposync/pkg/storage/storagetest"
)

var t0 = time.Date(2024, 2, 10, 9, 30, 15, 123456789, time.UTC)

func sampleState() *SyncState {
	s := New()
	s.SetSide(RepositorySide, Side{
		"a.txt":     t0,
		"dir/b.txt": t0.Add(time.Minute),
	})
	s.SetSide("laptop", Side{
		"a.txt": t0.Add(time.Second),
	})
	return s
}

func TestBootstrap(t *testing.T) {
	repo := models.Snapshot{"x": {Path: "x", ModTime: t0}}
	source := models.Snapshot{
		"x": {Path: "x", ModTime: t0.Add(time.Hour)},
		"y": {Path: "y", ModTime: t0},
	}

	s := Bootstrap(repo, source, "desk")

	assert.Equal(t, []string{"desk", RepositorySide}, s.SideNames())
	r, src, known := s.Baseline("desk")
	require.True(t, known)
	assert.Len(t, r, 1)
	assert.Len(t, src, 2)
	assert.True(t, src["x"].Equal(t0.Add(time.Hour)))
}

func TestBaseline(t *testing.T) {
	s := sampleState()

	t.Run("KnownMachine", func(t *testing.T) {
		repo, source, known := s.Baseline("laptop")
		require.True(t, known)
		assert.Len(t, repo, 2)
		assert.Len(t, source, 1)
	})

	t.Run("UnknownMachine", func(t *testing.T) {
		repo, source, known := s.Baseline("server")
		assert.False(t, known)
		assert.Len(t, repo, 2, "the repository side is shared")
		assert.Empty(t, source)
	})
}

func TestSetSideStoresUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	s := New()
	s.SetSide("m", Side{"f": t0.In(loc)})

	got := s.Sides["m"]["f"]
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(t0))
}

func TestClone(t *testing.T) {
	s := sampleState()
	c := s.Clone()
	c.Sides["laptop"]["new"] = t0
	delete(c.Sides[RepositorySide], "a.txt")

	assert.NotContains(t, s.Sides["laptop"], "new")
	assert.Contains(t, s.Sides[RepositorySide], "a.txt")
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := Path(dir)

	original := sampleState()
	require.NoError(t, Save(original, path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, original.SideNames(), loaded.SideNames())
	for _, name := range original.SideNames() {
		want := original.Sides[name]
		got := loaded.Sides[name]
		require.Len(t, got, len(want), "side %s", name)
		for p, ts := range want {
			assert.True(t, got[p].Equal(ts), "side %s path %s: %v != %v", name, p, got[p], ts)
		}
	}

	_, err = os.Stat(filepath.Join(dir, TempFileName))
	assert.True(t, os.IsNotExist(err), "temp file must be gone after save")
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	assert.ErrorIs(t, err, models.ErrStateNotFound)
}

func TestLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`{"version": 1, "sides": {`), 0644))

	_, err := Load(path)
	var perr *models.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, path, perr.Path)
}

func TestLoadForwardCompatible(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	data := `{
  "version": 7,
  "writer": "reposync 9.0",
  "sides": {
    "repository": {"a.txt": "2024-02-10T09:30:15Z"},
    "laptop": null
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, s.Version)
	assert.Len(t, s.Sides[RepositorySide], 1)
	assert.NotNil(t, s.Sides["laptop"])
}

func TestSaveFailureLeavesTargetUntouched(t *testing.T) {
	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll("/repo", 0755))

	faulty := storagetest.NewFaultFs(mem)
	store := NewStore(faulty)
	path := "/repo/" + FileName

	require.NoError(t, store.Save(sampleState(), path))
	before, err := afero.ReadFile(mem, path)
	require.NoError(t, err)

	t.Run("RenameFails", func(t *testing.T) {
		faulty.Fail(storagetest.OpRename, FileName, fs.ErrPermission)
		defer faulty.Reset()

		changed := sampleState()
		changed.SetSide("other", Side{"z": t0})

		err := store.Save(changed, path)
		var ioErr *models.IOError
		require.ErrorAs(t, err, &ioErr)

		after, err := afero.ReadFile(mem, path)
		require.NoError(t, err)
		assert.Equal(t, before, after)

		exists, _ := afero.Exists(mem, "/repo/"+TempFileName)
		assert.False(t, exists)
	})

	t.Run("TempWriteFails", func(t *testing.T) {
		faulty.Fail(storagetest.OpOpenFile, TempFileName, fs.ErrPermission)
		defer faulty.Reset()

		require.Error(t, store.Save(New(), path))

		after, err := afero.ReadFile(mem, path)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

func TestClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, Save(New(), path))

	require.NoError(t, Clear(path))
	_, err := Load(path)
	assert.ErrorIs(t, err, models.ErrStateNotFound)

	// Already gone
	assert.NoError(t, Clear(path))
}

func TestLock(t *testing.T) {
	dir := t.TempDir()

	first := NewLock(dir)
	require.NoError(t, first.Acquire(context.Background(), 0))

	second := NewLock(dir)
	assert.ErrorIs(t, second.Acquire(context.Background(), 0), ErrLocked)
	assert.ErrorIs(t, second.Acquire(context.Background(), 150*time.Millisecond), ErrLocked)
	assert.NoError(t, second.Release(), "releasing an unheld lock is a no-op")

	require.NoError(t, first.Release())
	require.NoError(t, second.Acquire(context.Background(), 0))
	require.NoError(t, second.Release())

	_, err := os.Stat(filepath.Join(dir, LockFileName))
	assert.True(t, os.IsNotExist(err))
}
