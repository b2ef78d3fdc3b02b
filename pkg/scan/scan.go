// Package scan enumerates the regular files of a tree into a snapshot.
package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/sdejongh/reposync/pkg/exclude"
	"github.com/sdejongh/reposync/pkg/models"
	"github.com/sdejongh/reposync/pkg/progress"
	"github.com/sdejongh/reposync/pkg/storage"
)

// Options tune a scan
type Options struct {
	// Rules excludes paths from the snapshot; nil excludes nothing
	Rules *exclude.Rules

	// Progress receives (found, progress.Unknown, path)
	Progress progress.Func

	// Interval between progress callbacks, 0 for progress.DefaultInterval
	Interval time.Duration
}

// Scan walks the backend root and returns a snapshot of every regular file
// that is not excluded. Symlinks and special files are skipped.
// A cancelled context or a progress callback answering false yields
// models.ErrCancelled; any filesystem failure yields a *models.IOError.
func Scan(ctx context.Context, backend storage.Backend, opts Options) (models.Snapshot, error) {
	rules, err := loadIgnoreFile(ctx, backend, opts.Rules)
	if err != nil {
		return nil, err
	}

	throttle := progress.NewThrottle(opts.Progress, opts.Interval)
	snap := make(models.Snapshot)

	err = backend.Walk(ctx, func(info storage.FileInfo) error {
		if err := throttle.Report(ctx, len(snap), progress.Unknown, info.RelativePath); err != nil {
			return err
		}

		if rules.MatchEntry(info.RelativePath, info.IsDir) {
			if info.IsDir {
				return storage.SkipDir
			}
			return nil
		}

		if info.IsDir {
			return nil
		}

		snap[info.RelativePath] = models.FileMetadata{
			Path:    info.RelativePath,
			Size:    info.Size,
			ModTime: info.ModTime,
		}
		return nil
	})

	if err != nil {
		if errors.Is(err, models.ErrCancelled) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, models.ErrCancelled
		}
		return nil, models.NewIOError("scan", backend.Root(), err)
	}

	throttle.Done(len(snap), len(snap), "")
	return snap, nil
}

// loadIgnoreFile extends rules with the root's ignore file, when configured
// and present.
func loadIgnoreFile(ctx context.Context, backend storage.Backend, rules *exclude.Rules) (*exclude.Rules, error) {
	if rules == nil || rules.IgnoreFile == "" {
		return rules, nil
	}
	rules = rules.Reserve(rules.IgnoreFile)

	rc, err := backend.Read(ctx, rules.IgnoreFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return rules, nil
		}
		return nil, models.NewIOError("read", rules.IgnoreFile, err)
	}
	defer rc.Close()

	var lines []string
	sc := bufio.NewScanner(rc)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, models.NewIOError("read", rules.IgnoreFile, fmt.Errorf("failed to read ignore file: %w", err))
	}

	return rules.WithIgnoreLines(lines), nil
}
