package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sdejongh/reposync/pkg/exclude"
	"github.com/sdejongh/reposync/pkg/models"
)

// DefaultIgnoreFile is the gitignore-style file read from each scanned root
const DefaultIgnoreFile = ".reposyncignore"

// Config represents the application configuration
type Config struct {
	// Machine overrides the machine name, default is the lower-cased hostname
	Machine     string            `yaml:"machine,omitempty"`
	Repository  RepositoryConfig  `yaml:"repository"`
	Exclude     ExcludeConfig     `yaml:"exclude"`
	Performance PerformanceConfig `yaml:"performance"`
	Output      OutputConfig      `yaml:"output"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// RepositoryConfig describes the repository and its synchronized directories
type RepositoryConfig struct {
	Path        string      `yaml:"path"`
	Directories []Directory `yaml:"directories"`
}

// Directory is one repository directory and where each machine keeps its
// working copy
type Directory struct {
	Name        string            `yaml:"name"`
	Path        string            `yaml:"path"` // relative to repository.path unless absolute
	IgnoreRegex []string          `yaml:"ignore_regex,omitempty"`
	IgnoreGlob  []string          `yaml:"ignore_glob,omitempty"`
	Sources     map[string]string `yaml:"sources"` // machine name -> source path
}

// ExcludeConfig holds exclusion rules applied to every directory
type ExcludeConfig struct {
	Regex      []string `yaml:"regex,omitempty"`
	Glob       []string `yaml:"glob,omitempty"`
	IgnoreFile string   `yaml:"ignore_file"`
}

// PerformanceConfig holds performance-related settings
type PerformanceConfig struct {
	BandwidthLimit   string        `yaml:"bandwidth_limit,omitempty"` // e.g. "10MB", empty = unlimited
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

// OutputConfig holds output-related settings
type OutputConfig struct {
	Format   string `yaml:"format"`   // "human" or "json"
	Progress bool   `yaml:"progress"` // Show progress bars
	Color    string `yaml:"color"`    // "auto", "always" or "never"
}

// LoggingConfig holds logging-related settings
type LoggingConfig struct {
	Level      string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format     string `yaml:"format"` // "json" or "text", file only
	File       string `yaml:"file"`   // Log file path (empty = console only)
	MaxSize    string `yaml:"max_size,omitempty"`
	MaxBackups int    `yaml:"max_backups"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Exclude: ExcludeConfig{
			Glob: []string{
				"*.tmp",
				".git/",
				".DS_Store",
				"Thumbs.db",
			},
			IgnoreFile: DefaultIgnoreFile,
		},
		Performance: PerformanceConfig{
			ProgressInterval: 100 * time.Millisecond,
		},
		Output: OutputConfig{
			Format:   "human",
			Progress: true,
			Color:    "auto",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSize:    "10MB",
			MaxBackups: 3,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, d := range c.Repository.Directories {
		field := fmt.Sprintf("repository.directories[%d]", i)
		if d.Name == "" {
			return &models.ValidationError{Field: field + ".name", Message: "is required"}
		}
		if seen[d.Name] {
			return &models.ValidationError{Field: field + ".name", Message: fmt.Sprintf("duplicate directory %q", d.Name)}
		}
		seen[d.Name] = true

		if d.Path == "" {
			return &models.ValidationError{Field: field + ".path", Message: "is required"}
		}
		if !filepath.IsAbs(d.Path) && c.Repository.Path == "" {
			return &models.ValidationError{Field: field + ".path", Message: "relative path needs repository.path"}
		}
		if _, err := exclude.New(d.IgnoreRegex, d.IgnoreGlob); err != nil {
			return &models.ValidationError{Field: field, Message: err.Error()}
		}
	}

	if _, err := exclude.New(c.Exclude.Regex, c.Exclude.Glob); err != nil {
		return &models.ValidationError{Field: "exclude", Message: err.Error()}
	}

	if _, err := c.BandwidthBytes(); err != nil {
		return &models.ValidationError{
			Field:   "performance.bandwidth_limit",
			Message: err.Error(),
		}
	}

	if c.Performance.ProgressInterval < 0 {
		return &models.ValidationError{
			Field:   "performance.progress_interval",
			Message: "must not be negative",
		}
	}

	validFormats := map[string]bool{"human": true, "json": true}
	if !validFormats[c.Output.Format] {
		return &models.ValidationError{
			Field:   "output.format",
			Message: "must be 'human' or 'json'",
		}
	}

	validColors := map[string]bool{"auto": true, "always": true, "never": true}
	if !validColors[c.Output.Color] {
		return &models.ValidationError{
			Field:   "output.color",
			Message: "must be 'auto', 'always', or 'never'",
		}
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return &models.ValidationError{
			Field:   "logging.format",
			Message: "must be 'json' or 'text'",
		}
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return &models.ValidationError{
			Field:   "logging.level",
			Message: "must be 'debug', 'info', 'warn', or 'error'",
		}
	}

	if _, err := c.LogMaxSize(); err != nil {
		return &models.ValidationError{Field: "logging.max_size", Message: err.Error()}
	}

	if c.Logging.MaxBackups < 0 {
		return &models.ValidationError{Field: "logging.max_backups", Message: "must not be negative"}
	}

	return nil
}

// BandwidthBytes returns the bandwidth limit in bytes per second, 0 when
// unlimited
func (c *Config) BandwidthBytes() (int64, error) {
	return parseSize(c.Performance.BandwidthLimit)
}

// LogMaxSize returns the log rotation size in bytes, 0 disables rotation
func (c *Config) LogMaxSize() (int64, error) {
	return parseSize(c.Logging.MaxSize)
}

func parseSize(s string) (int64, error) {
	if s == "" || s == "0" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return int64(n), nil
}

// Directory returns the named directory. An empty name selects the only
// configured directory.
func (c *Config) Directory(name string) (*Directory, error) {
	if name == "" {
		switch len(c.Repository.Directories) {
		case 0:
			return nil, &models.ValidationError{Field: "repository.directories", Message: "no directory configured"}
		case 1:
			return &c.Repository.Directories[0], nil
		default:
			return nil, &models.ValidationError{Field: "directory", Message: "several directories configured, choose one with --directory"}
		}
	}

	for i := range c.Repository.Directories {
		if c.Repository.Directories[i].Name == name {
			return &c.Repository.Directories[i], nil
		}
	}
	return nil, &models.ValidationError{Field: "directory", Message: fmt.Sprintf("unknown directory %q", name)}
}

// RepoPath returns the directory inside the repository
func (c *Config) RepoPath(d *Directory) string {
	if filepath.IsAbs(d.Path) {
		return filepath.Clean(d.Path)
	}
	return filepath.Join(c.Repository.Path, d.Path)
}

// Source returns where machine keeps its copy of the directory
func (d *Directory) Source(machine string) (string, bool) {
	p, ok := d.Sources[machine]
	return p, ok && p != ""
}

// Rules compiles the global and per-directory exclusion rules. d may be nil.
func (c *Config) Rules(d *Directory) (*exclude.Rules, error) {
	regexes := append([]string{}, c.Exclude.Regex...)
	globs := append([]string{}, c.Exclude.Glob...)
	if d != nil {
		regexes = append(regexes, d.IgnoreRegex...)
		globs = append(globs, d.IgnoreGlob...)
	}

	rules, err := exclude.New(regexes, globs)
	if err != nil {
		return nil, err
	}
	rules.IgnoreFile = c.Exclude.IgnoreFile
	return rules, nil
}
