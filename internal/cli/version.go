package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// BuildInfo carries the version metadata injected at link time.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

//nolint:gochecknoglobals // Set once from main before the command runs
var buildInfo BuildInfo

// SetBuildInfo records the binary's build metadata.
func SetBuildInfo(info BuildInfo) {
	buildInfo = info
	rootCmd.Version = FormatVersion(info)
}

// FormatVersion renders build metadata, substituting placeholders for
// missing fields.
func FormatVersion(info BuildInfo) string {
	version, commit, date := info.Version, info.Commit, info.Date
	switch {
	case version == "":
		version = "dev"
	case !strings.HasPrefix(version, "v"):
		version = "v" + version
	}
	if commit == "" {
		commit = "unknown"
	}
	if date == "" {
		date = "unknown"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)
}

// versionCmd prints the build metadata.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:     "version",
	Short:   "Show version information",
	Long:    `Print the version, commit and build date of this binary.`,
	Example: `  finora version
  finora version -o json`,
	GroupID: groupConfig,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cc := commandContext(cmd)
		return cc.Fmt.Emit(buildInfo, func(w io.Writer) error {
			outln(w, "finora "+FormatVersion(buildInfo))
			return nil
		})
	},
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
}
