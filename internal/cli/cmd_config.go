package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/koltyakov/fixinit/internal/auth"
	"github.com/koltyakov/fixinit/internal/config"
)

const defaultConfigFile = "fixinit.toml"

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the fixinit config file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file with a fresh relay token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := opts.configPath
			if path == "" {
				path = defaultConfigFile
			}
			cfg := config.Default()
			token, err := auth.GenerateToken()
			if err != nil {
				return fmt.Errorf("generate relay token: %w", err)
			}
			cfg.Relay.Token = token
			if err := config.Write(path, cfg, force); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "wrote", path)
			return err
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
