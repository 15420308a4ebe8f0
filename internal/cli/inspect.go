package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/engine"
)

func newStatusCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status <package>",
		Short: "Print the latest session of a package as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, false, func(a *app) error {
				sess, err := a.engine.Status(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), sess)
			})
		},
	}
}

func newLogsCommand(flags *rootFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "logs <package>",
		Short: "Print the stage transitions and errors of every session of a package",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, false, func(a *app) error {
				entries, err := a.engine.Logs(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), entries)
				}
				w := cmd.OutOrStdout()
				for _, e := range entries {
					fmt.Fprintln(w, formatLogEntry(e))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print entries as JSON")
	return cmd
}

func formatLogEntry(e engine.LogEntry) string {
	ts := e.Timestamp.Format(time.RFC3339Nano)
	if e.Kind == engine.LogError {
		return fmt.Sprintf("%s %s %-10s error: %s", ts, e.SessionID, e.Version, e.Message)
	}
	return fmt.Sprintf("%s %s %-10s %s %s", ts, e.SessionID, e.Version, e.Stage, e.Status)
}

func newSessionsCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions <package>",
		Short: "List every session of a package, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, false, func(a *app) error {
				sessions, err := a.engine.Sessions(args[0])
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tVERSION\tPIPELINE\tSTATUS\tSTARTED\tPLATFORMS")
				for _, s := range sessions {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						s.ID, s.Version, s.PipelineName, s.Status,
						s.StartedAt.Format(time.RFC3339), strings.Join(s.Platforms, ","))
				}
				return tw.Flush()
			})
		},
	}
}

func newCleanupCommand(flags *rootFlags) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "cleanup <package>",
		Short: "Delete finished sessions older than a cutoff",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, false, func(a *app) error {
				n, err := a.engine.Cleanup(args[0], olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d session(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "only delete sessions that started before now minus this duration")
	return cmd
}

func newPipelinesCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List the available pipelines and their stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, false, func(a *app) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSTAGES\tROLLBACK\tCONTINUE\tDESCRIPTION")
				for _, def := range a.engine.Pipelines() {
					stages := make([]string, len(def.Stages))
					for i, s := range def.Stages {
						stages[i] = string(s.Name)
						if s.Mode == domain.ModeParallel {
							stages[i] += "*"
						}
					}
					fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n",
						def.Name, strings.Join(stages, ","), def.RollbackOnFailure,
						def.ContinueOnPlatformFailure, def.Description)
				}
				return tw.Flush()
			})
		},
	}
}

func newPlatformsCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List the configured platforms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, false, func(a *app) error {
				for _, p := range a.engine.Platforms() {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			})
		},
	}
}
