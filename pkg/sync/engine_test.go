package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/reposync/pkg/exclude"
	"github.com/sdejongh/reposync/pkg/models"
	"github.com/sdejongh/reposync/pkg/state"
	"github.com/sdejongh/reposync/pkg/storage/storagetest"
)

var (
	t1 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Hour)
)

func newEngine(t *testing.T, fsys afero.Fs, machine string) *Engine {
	t.Helper()
	require.NoError(t, fsys.MkdirAll("/repo", 0755))
	require.NoError(t, fsys.MkdirAll("/home/src", 0755))

	e, err := NewEngine(Options{
		RepoPath:   "/repo",
		SourcePath: "/home/src",
		Machine:    machine,
		Rules:      exclude.MustNew(nil, []string{"*.tmp"}),
		Fs:         fsys,
	})
	require.NoError(t, err)
	return e
}

func TestNewEngineValidation(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/repo", 0755))

	tests := []struct {
		name  string
		opts  Options
		field string
	}{
		{"no machine", Options{RepoPath: "/repo", SourcePath: "/repo"}, "machine"},
		{"no repository", Options{Machine: "m", SourcePath: "/repo"}, "repository"},
		{"no source", Options{Machine: "m", RepoPath: "/repo"}, "source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Fs = fsys
			_, err := NewEngine(tt.opts)
			var vErr *models.ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	_, err := NewEngine(Options{Machine: "m", RepoPath: "/repo", SourcePath: "/missing", Fs: fsys})
	assert.Error(t, err)
}

func TestFirstRunBootstraps(t *testing.T) {
	fsys := afero.NewMemMapFs()
	e := newEngine(t, fsys, "desk")
	require.NoError(t, storagetest.WriteFile(fsys, "/repo/a.txt", "a", t1))
	require.NoError(t, storagetest.WriteFile(fsys, "/home/src/b.txt", "b", t1))

	ins, err := e.Inspect(context.Background())
	require.NoError(t, err)

	assert.True(t, ins.Bootstrapped)
	assert.True(t, ins.KnownMachine)
	assert.False(t, ins.ChangeSet.HasActions())

	st, err := e.LoadState()
	require.NoError(t, err)
	assert.Equal(t, []string{"desk", state.RepositorySide}, st.SideNames())
	assert.Contains(t, st.Sides[state.RepositorySide], "a.txt")
	assert.Contains(t, st.Sides["desk"], "b.txt")
}

func TestInspectApplyConverges(t *testing.T) {
	fsys := afero.NewMemMapFs()
	e := newEngine(t, fsys, "desk")
	require.NoError(t, storagetest.WriteFile(fsys, "/repo/shared.txt", "v1", t1))
	require.NoError(t, storagetest.WriteFile(fsys, "/home/src/shared.txt", "v1", t1))

	ctx := context.Background()
	_, err := e.Inspect(ctx)
	require.NoError(t, err)

	require.NoError(t, storagetest.WriteFile(fsys, "/home/src/shared.txt", "v2", t2))
	require.NoError(t, storagetest.WriteFile(fsys, "/home/src/notes/new.md", "new", t2))
	require.NoError(t, storagetest.WriteFile(fsys, "/home/src/scratch.tmp", "junk", t2))

	ins, err := e.Inspect(ctx)
	require.NoError(t, err)
	assert.False(t, ins.Bootstrapped)
	assert.NotContains(t, ins.Source, "scratch.tmp")
	assert.NotContains(t, ins.Repo, state.FileName)

	stats := ins.ChangeSet.Stats()
	assert.Equal(t, 2, stats.UseSource)
	assert.Equal(t, 2, stats.Actions())

	report, err := e.Apply(ctx, ins)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, report.Status)
	assert.Equal(t, 2, report.FilesCopied)

	data, err := afero.ReadFile(fsys, "/repo/shared.txt")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	again, err := e.Inspect(ctx)
	require.NoError(t, err)
	assert.False(t, again.ChangeSet.HasActions())
}

func TestUnknownMachine(t *testing.T) {
	fsys := afero.NewMemMapFs()
	first := newEngine(t, fsys, "desk")
	require.NoError(t, storagetest.WriteFile(fsys, "/repo/both.txt", "r", t1))
	_, err := first.Inspect(context.Background())
	require.NoError(t, err)

	require.NoError(t, storagetest.WriteFile(fsys, "/home/src/both.txt", "s", t2))
	require.NoError(t, storagetest.WriteFile(fsys, "/home/src/only-here.txt", "x", t1))

	laptop := newEngine(t, fsys, "laptop")
	ins, err := laptop.Inspect(context.Background())
	require.NoError(t, err)
	assert.False(t, ins.KnownMachine)

	e, ok := ins.ChangeSet.Get("both.txt")
	require.True(t, ok)
	assert.True(t, e.IsConflict())
	assert.Equal(t, models.ConflictCreateCreate, e.ConflictType)

	e, ok = ins.ChangeSet.Get("only-here.txt")
	require.True(t, ok)
	assert.Equal(t, models.OpUseSource, e.Operation)
}

func TestExcluded(t *testing.T) {
	e := newEngine(t, afero.NewMemMapFs(), "desk")

	assert.True(t, e.Excluded("scratch.tmp"))
	assert.True(t, e.Excluded(state.FileName))
	assert.True(t, e.Excluded(state.LockFileName))
	assert.False(t, e.Excluded("notes/plan.md"))
}

func TestInspectCancelled(t *testing.T) {
	fsys := afero.NewMemMapFs()
	e := newEngine(t, fsys, "desk")
	require.NoError(t, storagetest.WriteFile(fsys, "/repo/a.txt", "a", t1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Inspect(ctx)
	assert.ErrorIs(t, err, models.ErrCancelled)

	_, err = e.LoadState()
	assert.ErrorIs(t, err, models.ErrStateNotFound, "a cancelled inspection records nothing")
}

func TestResetState(t *testing.T) {
	fsys := afero.NewMemMapFs()
	e := newEngine(t, fsys, "desk")
	_, err := e.Inspect(context.Background())
	require.NoError(t, err)

	require.NoError(t, e.ResetState())
	_, err = e.LoadState()
	assert.ErrorIs(t, err, models.ErrStateNotFound)

	require.NoError(t, e.ResetState(), "resetting twice is fine")
}

func TestApplyWithoutInspection(t *testing.T) {
	e := newEngine(t, afero.NewMemMapFs(), "desk")
	_, err := e.Apply(context.Background(), nil)
	assert.Error(t, err)
}
