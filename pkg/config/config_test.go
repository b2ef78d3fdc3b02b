package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdejongh/reposync/pkg/models"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultIgnoreFile, cfg.Exclude.IgnoreFile)
	assert.Equal(t, 100*time.Millisecond, cfg.Performance.ProgressInterval)

	n, err := cfg.BandwidthBytes()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad output format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"bad color", func(c *Config) { c.Output.Color = "sometimes" }, "output.color"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad bandwidth", func(c *Config) { c.Performance.BandwidthLimit = "fast" }, "performance.bandwidth_limit"},
		{"negative interval", func(c *Config) { c.Performance.ProgressInterval = -time.Second }, "performance.progress_interval"},
		{"bad regex", func(c *Config) { c.Exclude.Regex = []string{"("} }, "exclude"},
		{"unnamed directory", func(c *Config) {
			c.Repository.Directories = []Directory{{Path: "/x"}}
		}, "repository.directories[0].name"},
		{"duplicate directory", func(c *Config) {
			c.Repository.Directories = []Directory{{Name: "a", Path: "/x"}, {Name: "a", Path: "/y"}}
		}, "repository.directories[1].name"},
		{"relative path without repository", func(c *Config) {
			c.Repository.Directories = []Directory{{Name: "a", Path: "docs"}}
		}, "repository.directories[0].path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			var vErr *models.ValidationError
			require.True(t, errors.As(err, &vErr), "got %v", err)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestBandwidthBytes(t *testing.T) {
	cfg := Default()
	cfg.Performance.BandwidthLimit = "2 MiB"
	n, err := cfg.BandwidthBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(2*1024*1024), n)
}

func TestDirectory(t *testing.T) {
	cfg := Default()
	_, err := cfg.Directory("")
	assert.Error(t, err)

	cfg.Repository.Path = "/srv/repo"
	cfg.Repository.Directories = []Directory{
		{Name: "docs", Path: "docs", Sources: map[string]string{"desk": "/home/me/docs"}},
	}

	d, err := cfg.Directory("")
	require.NoError(t, err)
	assert.Equal(t, "docs", d.Name)
	assert.Equal(t, filepath.Join("/srv/repo", "docs"), cfg.RepoPath(d))

	src, ok := d.Source("desk")
	assert.True(t, ok)
	assert.Equal(t, "/home/me/docs", src)
	_, ok = d.Source("laptop")
	assert.False(t, ok)

	cfg.Repository.Directories = append(cfg.Repository.Directories, Directory{Name: "music", Path: "/abs/music"})
	_, err = cfg.Directory("")
	assert.Error(t, err, "ambiguous without a name")

	d, err = cfg.Directory("music")
	require.NoError(t, err)
	assert.Equal(t, "/abs/music", cfg.RepoPath(d))

	_, err = cfg.Directory("photos")
	assert.Error(t, err)
}

func TestRulesMergesDirectoryPatterns(t *testing.T) {
	cfg := Default()
	d := &Directory{Name: "docs", Path: "/x", IgnoreGlob: []string{"*.bak"}, IgnoreRegex: []string{`^drafts/`}}

	rules, err := cfg.Rules(d)
	require.NoError(t, err)
	assert.Equal(t, DefaultIgnoreFile, rules.IgnoreFile)
	assert.True(t, rules.Match("a.tmp", false))
	assert.True(t, rules.Match("old.bak", false))
	assert.True(t, rules.Match("drafts/x.md", false))
	assert.False(t, rules.Match("final.md", false))

	global, err := cfg.Rules(nil)
	require.NoError(t, err)
	assert.False(t, global.Match("old.bak", false))
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Machine = "desk"
	cfg.Repository.Path = "/srv/repo"
	cfg.Repository.Directories = []Directory{
		{Name: "docs", Path: "docs", Sources: map[string]string{"desk": "/home/me/docs"}},
	}
	cfg.Performance.ProgressInterval = 250 * time.Millisecond
	require.NoError(t, SaveToFile(cfg, path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFromFilePartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
machine: laptop
performance:
  bandwidth_limit: 5MB
  progress_interval: 50ms
output:
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "laptop", cfg.Machine)
	assert.Equal(t, "json", cfg.Output.Format)
	assert.Equal(t, 50*time.Millisecond, cfg.Performance.ProgressInterval)
	assert.Equal(t, "auto", cfg.Output.Color, "defaults fill missing keys")

	n, err := cfg.BandwidthBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(5_000_000), n)
}

func TestLoadFromFileInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  format: xml\n"), 0644))

	_, err := LoadFromFile(path)
	var vErr *models.ValidationError
	assert.True(t, errors.As(err, &vErr))

	_, err = LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFilesRejectUnknownKeys(t *testing.T) {
	files := NewFiles(afero.NewMemMapFs())
	require.NoError(t, afero.WriteFile(files.fs, "/etc/reposync.yaml", []byte("outptu:\n  format: json\n"), 0644))

	_, err := files.Load("/etc/reposync.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outptu")
}

func TestFilesEmptyFileYieldsDefaults(t *testing.T) {
	files := NewFiles(afero.NewMemMapFs())
	require.NoError(t, afero.WriteFile(files.fs, "/empty.yaml", nil, 0644))

	cfg, err := files.Load("/empty.yaml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestFilesSaveWritesHeader(t *testing.T) {
	files := NewFiles(afero.NewMemMapFs())
	require.NoError(t, files.Save(Default(), "/home/me/.config/reposync/config.yaml"))

	data, err := afero.ReadFile(files.fs, "/home/me/.config/reposync/config.yaml")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), fileHeader))
	assert.Contains(t, string(data), "progress_interval: 100ms")
}
