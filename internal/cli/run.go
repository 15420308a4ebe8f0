package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/waabox/pakdeck/internal/domain"
	"github.com/waabox/pakdeck/internal/engine"
	"github.com/waabox/pakdeck/internal/manifest"
)

// runKind describes one of the commands that start a session.
type runKind struct {
	name     string
	short    string
	pipeline bool
	call     func(e *engine.Engine, ctx context.Context, req engine.Request) (domain.Session, error)
}

var (
	runDeploy = runKind{
		name:     "deploy",
		short:    "Run a deployment pipeline for a package version",
		pipeline: true,
		call:     (*engine.Engine).Deploy,
	}
	runBuild = runKind{
		name:  "build",
		short: "Build a package on each platform",
		call:  (*engine.Engine).Build,
	}
	runTest = runKind{
		name:  "test",
		short: "Run a package's tests on each platform",
		call:  (*engine.Engine).Test,
	}
	runRollback = runKind{
		name:  "rollback",
		short: "Restore each platform to the version deployed before this one",
		call:  (*engine.Engine).Rollback,
	}
)

func newRunCommand(flags *rootFlags, kind runKind) *cobra.Command {
	var (
		dir       string
		platforms []string
		pipeline  string
	)
	cmd := &cobra.Command{
		Use:   kind.name + " [<package> [<version>]]",
		Short: kind.short,
		Long: kind.short + `.

When the package or version is omitted it is read from the manifest in
--dir (package.json, pyproject.toml or Cargo.toml).`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs, err := absDir(dir)
			if err != nil {
				return err
			}
			pkg, version, err := identify(abs, args)
			if err != nil {
				return err
			}
			req := engine.Request{
				Package:   pkg,
				Version:   version,
				Dir:       abs,
				Platforms: platforms,
				Pipeline:  pipeline,
			}
			return withApp(cmd, flags, true, func(a *app) error {
				sess, runErr := kind.call(a.engine, cmd.Context(), req)
				if sess.ID == "" {
					return runErr
				}
				if err := printJSON(cmd.OutOrStdout(), sess); err != nil {
					return err
				}
				if errors.Is(runErr, domain.ErrSessionFailed) {
					return fmt.Errorf("%s %s@%s: %w", kind.name, req.Package, req.Version, runErr)
				}
				return runErr
			})
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "package directory")
	cmd.Flags().StringSliceVarP(&platforms, "platform", "p", nil, "target platform (repeatable or comma separated)")
	_ = cmd.MarkFlagRequired("platform")
	if kind.pipeline {
		cmd.Flags().StringVar(&pipeline, "pipeline", engine.DefaultPipeline, "pipeline name")
	}
	return cmd
}

// identify fills the package and version missing from args using the
// manifest in dir.
func identify(dir string, args []string) (pkg, version string, err error) {
	if len(args) == 2 {
		return args[0], args[1], nil
	}
	m, err := manifest.Detect(dir)
	if err != nil {
		return "", "", fmt.Errorf("package and version not given: %w", err)
	}
	pkg, version = m.Name, m.Version
	if len(args) == 1 {
		pkg = args[0]
	}
	if version == "" {
		return "", "", fmt.Errorf("%s has no version; pass it as an argument", m.File)
	}
	return pkg, version, nil
}
