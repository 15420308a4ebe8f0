package cli

import (
	"github.com/spf13/cobra"
	"github.com/waabox/pakdeck/internal/tui"
)

func newWatchCommand(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <package>",
		Short: "Follow a package's sessions in an interactive viewer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, flags, false, func(a *app) error {
				return tui.Run(args[0], a.engine)
			})
		},
	}
}
