package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/waabox/pakdeck/internal/config"
)

// starterConfig is written by pakdeck init.
func starterConfig() config.Config {
	return config.Config{
		LogLevel:  "info",
		LogFormat: "text",
		Platforms: map[string]config.PlatformConfig{
			"npm": {
				Validate: "npm pack --dry-run",
				Build:    "npm run build --if-present",
				Test:     "npm test",
				Deploy:   "npm publish",
				Verify:   "npm view {name}@{version} version",
				Rollback: "npm dist-tag add {name}@{previous} latest",
			},
		},
	}
}

func newInitCommand(flags *rootFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := flags.configPath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(path, starterConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
