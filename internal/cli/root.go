// Package cli implements the pakdeck command line.
package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/waabox/pakdeck/internal/config"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

// NewRootCommand builds the pakdeck command tree.
func NewRootCommand(version string) *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "pakdeck",
		Short: "Deploy a package to several registries in one run",
		Long: `pakdeck runs a package through a pipeline of stages (validation, build,
deploy, verification) on every requested platform, records each run as a
session, and rolls completed platforms back when a run fails.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", config.DefaultConfigPath(), "config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newRunCommand(flags, runDeploy),
		newRunCommand(flags, runBuild),
		newRunCommand(flags, runTest),
		newRunCommand(flags, runRollback),
		newStatusCommand(flags),
		newLogsCommand(flags),
		newSessionsCommand(flags),
		newCleanupCommand(flags),
		newPipelinesCommand(flags),
		newPlatformsCommand(flags),
		newWatchCommand(flags),
		newServeCommand(flags),
		newInitCommand(flags),
	)
	return root
}

// Execute runs the command line until it finishes or the process is interrupted.
func Execute(version string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand(version).ExecuteContext(ctx)
}

// withApp opens the engine for the duration of fn.
func withApp(cmd *cobra.Command, flags *rootFlags, withSinks bool, fn func(*app) error) error {
	a, err := openApp(cmd.Context(), flags, cmd.ErrOrStderr(), withSinks)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(cmd.Context()); cerr != nil {
			a.logger.Warn("closing sinks", "err", cerr)
		}
	}()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
