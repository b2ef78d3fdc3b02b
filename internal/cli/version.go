package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/sdejongh/reposync/pkg/state"
)

// Set through -ldflags at release time. Unset values are filled from the
// module build info when the binary was built from a VCS checkout.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// buildInfo describes the running binary
type buildInfo struct {
	Version      string `json:"version"`
	Module       string `json:"module,omitempty"`
	Commit       string `json:"commit"`
	Modified     bool   `json:"modified,omitempty"`
	BuildDate    string `json:"build_date"`
	GoVersion    string `json:"go_version"`
	Platform     string `json:"platform"`
	StateVersion int    `json:"state_version"`
}

func currentBuild() buildInfo {
	b := buildInfo{
		Version:      Version,
		Commit:       Commit,
		BuildDate:    BuildDate,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		StateVersion: state.CurrentVersion,
	}

	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	b.Module = info.Main.Path
	if b.Version == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
		b.Version = info.Main.Version
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			if b.Commit == "none" {
				b.Commit = s.Value
			}
		case "vcs.time":
			if b.BuildDate == "unknown" {
				b.BuildDate = s.Value
			}
		case "vcs.modified":
			b.Modified = s.Value == "true"
		}
	}
	return b
}

func (b buildInfo) write(w io.Writer) {
	commit := b.Commit
	if b.Modified {
		commit += " (modified)"
	}
	fmt.Fprintf(w, "reposync %s\n", b.Version)
	if b.Module != "" {
		fmt.Fprintf(w, "  Module:        %s\n", b.Module)
	}
	fmt.Fprintf(w, "  Commit:        %s\n", commit)
	fmt.Fprintf(w, "  Built:         %s\n", b.BuildDate)
	fmt.Fprintf(w, "  Go:            %s (%s)\n", b.GoVersion, b.Platform)
	fmt.Fprintf(w, "  State format:  v%d\n", b.StateVersion)
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Print the reposync version, the commit it was built from and the sync state format it writes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b := currentBuild()
			out := cmd.OutOrStdout()

			switch {
			case short:
				fmt.Fprintln(out, b.Version)
			case globalFlags.Output == "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(b)
			default:
				b.write(out)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")

	return cmd
}
