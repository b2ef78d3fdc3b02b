package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sdejongh/reposync/internal/platform"
	"github.com/sdejongh/reposync/pkg/config"
	"github.com/sdejongh/reposync/pkg/exclude"
	"github.com/sdejongh/reposync/pkg/models"
)

// target is the resolved repository directory and source of a run
type target struct {
	Repo    string
	Source  string
	Machine string
	Rules   *exclude.Rules
}

// loadConfig loads configuration from file or returns default, then
// applies the global flags
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(globalFlags.ConfigFile)
	if err != nil {
		return nil, err
	}

	// Output format
	if globalFlags.Output != "" {
		cfg.Output.Format = globalFlags.Output
	}

	// Disable progress in quiet mode
	if globalFlags.Quiet {
		cfg.Output.Progress = false
	}

	if globalFlags.Verbose {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveMachine picks the machine name from the flag, the config or the host
func resolveMachine(cfg *config.Config, flag string) (string, error) {
	if name := platform.NormalizeMachineName(flag); name != "" {
		return name, nil
	}
	if name := platform.NormalizeMachineName(cfg.Machine); name != "" {
		return name, nil
	}
	return platform.MachineName()
}

// resolveTarget turns the target flags and the configuration into paths.
// Explicit --repo/--source win over the configured directory.
func resolveTarget(cfg *config.Config, flags TargetFlags) (*target, error) {
	machine, err := resolveMachine(cfg, flags.Machine)
	if err != nil {
		return nil, err
	}

	t := &target{Machine: machine}

	if flags.Repo != "" || flags.Source != "" {
		if flags.Repo == "" || flags.Source == "" {
			return nil, &models.ValidationError{Field: "repo", Message: "--repo and --source must be given together"}
		}
		t.Repo, t.Source = flags.Repo, flags.Source
		if t.Rules, err = cfg.Rules(nil); err != nil {
			return nil, err
		}
	} else {
		dir, err := cfg.Directory(flags.Directory)
		if err != nil {
			return nil, err
		}
		source, ok := dir.Source(machine)
		if !ok {
			return nil, &models.ValidationError{
				Field:   "sources",
				Message: fmt.Sprintf("directory %q has no source configured for machine %q", dir.Name, machine),
			}
		}
		t.Repo, t.Source = cfg.RepoPath(dir), source
		if t.Rules, err = cfg.Rules(dir); err != nil {
			return nil, err
		}
	}

	if t.Repo, err = platform.ResolvePath(t.Repo); err != nil {
		return nil, err
	}
	if t.Source, err = platform.ResolvePath(t.Source); err != nil {
		return nil, err
	}

	if err := validatePaths(t.Repo, t.Source); err != nil {
		return nil, err
	}
	return t, nil
}

// validatePaths checks both roots exist and do not overlap
func validatePaths(repo, source string) error {
	for _, p := range []struct{ name, path string }{{"repository", repo}, {"source", source}} {
		info, err := os.Stat(p.path)
		if os.IsNotExist(err) {
			return fmt.Errorf("%s path does not exist: %s", p.name, p.path)
		} else if err != nil {
			return fmt.Errorf("failed to access %s path: %w", p.name, err)
		} else if !info.IsDir() {
			return fmt.Errorf("%s path exists but is not a directory: %s", p.name, p.path)
		}
	}

	repoAbs, err := filepath.Abs(repo)
	if err != nil {
		return fmt.Errorf("failed to resolve repository path: %w", err)
	}
	sourceAbs, err := filepath.Abs(source)
	if err != nil {
		return fmt.Errorf("failed to resolve source path: %w", err)
	}

	if repoAbs == sourceAbs {
		return fmt.Errorf("repository and source cannot be the same: %s", repoAbs)
	}

	// Validate paths are not nested
	if strings.HasPrefix(sourceAbs, repoAbs+string(filepath.Separator)) {
		return fmt.Errorf("source cannot be inside the repository directory")
	}
	if strings.HasPrefix(repoAbs, sourceAbs+string(filepath.Separator)) {
		return fmt.Errorf("repository directory cannot be inside the source")
	}

	return nil
}

// override is one --set path=Operation edit
type override struct {
	Path string
	Op   models.FileOperation
}

// parseOverrides parses --set values. Paths use forward slashes relative
// to the roots; the last edit of a path wins.
func parseOverrides(values []string) ([]override, error) {
	out := make([]override, 0, len(values))
	for _, v := range values {
		i := strings.LastIndex(v, "=")
		if i <= 0 || i == len(v)-1 {
			return nil, &models.ValidationError{Field: "set", Message: fmt.Sprintf("expected path=Operation, got %q", v)}
		}

		op, err := models.ParseFileOperation(v[i+1:])
		if err != nil {
			return nil, err
		}
		path := strings.TrimPrefix(filepath.ToSlash(filepath.Clean(v[:i])), "./")
		out = append(out, override{Path: path, Op: op})
	}
	return out, nil
}
