package cli

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/koltyakov/fixinit/internal/versionutil"
)

// Version is set at build time via -ldflags.
var Version = versionutil.Dev

func init() {
	Version = versionutil.Resolve(Version, func() (string, error) {
		out, err := exec.Command("git", "describe", "--tags", "--always").Output()
		return string(out), err
	})
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "fixinit", Version)
			return err
		},
	}
}
