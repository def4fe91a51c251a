// Package cli implements the fixinit command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Run is the main CLI entry point. It executes the command named by args
// and returns a process exit code.
func Run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "fixinit:", err)
		return 1
	}
	return 0
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "fixinit",
		Short:         "FIX initiator client with password rotation and message routing",
		Long:          "fixinit connects to a FIX acceptor as an initiator, rotates the session password when configured, and fans inbound messages out to a journal and a live monitor feed.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default ./fixinit.toml)")

	rootCmd.AddCommand(
		newRunCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}
