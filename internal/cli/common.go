package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/sdejongh/reposync/pkg/config"
	"github.com/sdejongh/reposync/pkg/logging"
	"github.com/sdejongh/reposync/pkg/output"
	"github.com/sdejongh/reposync/pkg/state"
	"github.com/sdejongh/reposync/pkg/sync"
)

// ExitError carries a process exit code out of a command
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// createLogger creates a logger based on configuration. Console logs go to
// stderr; a log file is added when configured.
func createLogger(cfg *config.Config) (logging.Logger, error) {
	level := logging.ParseLevel(cfg.Logging.Level)

	var handlers []slog.Handler
	var closers []io.Closer

	if !globalFlags.Quiet {
		consoleLevel := logging.WarnLevel
		if globalFlags.Verbose {
			consoleLevel = level
		}
		handlers = append(handlers, logging.NewConsoleHandler(os.Stderr, consoleLevel))
	}

	if cfg.Logging.File != "" {
		maxSize, err := cfg.LogMaxSize()
		if err != nil {
			return nil, err
		}

		var format logging.Format
		switch cfg.Logging.Format {
		case "json":
			format = logging.FormatJSON
		default:
			format = logging.FormatText
		}

		h, closer, err := logging.NewFileHandler(logging.FileLoggerConfig{
			Path:       cfg.Logging.File,
			Format:     format,
			Level:      level,
			MaxSize:    maxSize,
			MaxBackups: cfg.Logging.MaxBackups,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		handlers = append(handlers, h)
		closers = append(closers, closer)
	}

	switch len(handlers) {
	case 0:
		return logging.NewNullLogger(), nil
	case 1:
		return logging.NewSlogLogger(handlers[0], closers...), nil
	default:
		return logging.NewSlogLogger(logging.NewMultiHandler(handlers...), closers...), nil
	}
}

// createFormatter picks the output formatter; colors follow output.color
func createFormatter(cfg *config.Config) (output.Formatter, error) {
	useColor := false
	switch cfg.Output.Color {
	case "always":
		useColor = true
	case "auto":
		useColor = !color.NoColor
	}
	return output.New(cfg.Output.Format, useColor)
}

// createProgress returns a progress reporter when bars make sense: human
// output, progress enabled and stderr is a terminal
func createProgress(cfg *config.Config) *output.ProgressReporter {
	if !cfg.Output.Progress || cfg.Output.Format != "human" {
		return nil
	}
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return nil
	}
	return output.NewProgressReporter(os.Stderr)
}

// session bundles what every repository command needs
type session struct {
	cfg       *config.Config
	target    *target
	logger    logging.Logger
	formatter output.Formatter
	progress  *output.ProgressReporter
	engine    *sync.Engine
	lock      *state.Lock
}

// openSession loads the configuration, resolves the target and builds the
// engine. close must be called when done.
func openSession(flags TargetFlags) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	t, err := resolveTarget(cfg, flags)
	if err != nil {
		return nil, err
	}

	formatter, err := createFormatter(cfg)
	if err != nil {
		return nil, err
	}

	logger, err := createLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	bandwidth, err := cfg.BandwidthBytes()
	if err != nil {
		logger.Close()
		return nil, err
	}

	s := &session{
		cfg:       cfg,
		target:    t,
		logger:    logger,
		formatter: formatter,
		progress:  createProgress(cfg),
	}

	opts := sync.Options{
		RepoPath:       t.Repo,
		SourcePath:     t.Source,
		Machine:        t.Machine,
		Rules:          t.Rules,
		Interval:       cfg.Performance.ProgressInterval,
		BandwidthLimit: bandwidth,
		Logger:         logger,
	}
	if s.progress != nil {
		opts.RepoScanProgress = s.progress.Func("scanning", "repository")
		opts.SourceScanProgress = s.progress.Func("scanning", "source")
		opts.InspectProgress = s.progress.Func("comparing", "")
		opts.ApplyProgress = s.progress.Func("applying", "")
	}

	s.engine, err = sync.NewEngine(opts)
	if err != nil {
		logger.Close()
		return nil, err
	}
	return s, nil
}

// lockRepository takes the repository lock for the rest of the session
func (s *session) lockRepository(ctx context.Context) error {
	lock := s.engine.Lock()
	if err := lock.Acquire(ctx, 0); err != nil {
		if errors.Is(err, state.ErrLocked) {
			return fmt.Errorf("%w: %s", err, s.target.Repo)
		}
		return err
	}
	s.lock = lock
	return nil
}

func (s *session) finishProgress() {
	if s.progress != nil {
		s.progress.Finish()
	}
}

func (s *session) close() {
	s.finishProgress()
	if s.lock != nil {
		if err := s.lock.Release(); err != nil {
			s.logger.Warn(context.Background(), "failed to release repository lock", logging.Fields{"error": err})
		}
	}
	s.logger.Close()
}

// confirm asks a yes/no question on the command's streams
func confirm(cmd *cobra.Command, question string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)

	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes", nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
