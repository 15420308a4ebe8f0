// Package command implements a platform adapter driven by shell command
// templates, one per capability.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/waabox/pakdeck/internal/domain"
)

// Spec holds the command templates for one platform. Templates may use the
// placeholders {name}, {version}, {previous} and {dir}; values are shell-quoted.
type Spec struct {
	Validate string
	Build    string
	Test     string
	Deploy   string
	Verify   string
	Rollback string
	Hooks    map[string]string
	Env      map[string]string
}

// outputTail bounds how much command output is carried in a diagnostic.
const outputTail = 2048

// Adapter implements domain.Adapter by running shell commands.
type Adapter struct {
	platform string
	spec     Spec
	shell    string
}

// Ensure Adapter implements Adapter and Hooks.
var (
	_ domain.Adapter = (*Adapter)(nil)
	_ domain.Hooks   = (*Adapter)(nil)
)

// NewAdapter creates a command adapter for platform.
func NewAdapter(platform string, spec Spec) *Adapter {
	return &Adapter{platform: platform, spec: spec, shell: "sh"}
}

// Validate runs the validate command. An unset command succeeds.
func (a *Adapter) Validate(ctx context.Context, art domain.Artifact) error {
	return a.runOptional(ctx, "validate", a.spec.Validate, art, "")
}

// Build runs the build command. An unset command succeeds.
func (a *Adapter) Build(ctx context.Context, art domain.Artifact) error {
	return a.runOptional(ctx, "build", a.spec.Build, art, "")
}

// Test runs the test command. An unset command succeeds.
func (a *Adapter) Test(ctx context.Context, art domain.Artifact) error {
	return a.runOptional(ctx, "test", a.spec.Test, art, "")
}

// Deploy runs the deploy command, which must be configured.
func (a *Adapter) Deploy(ctx context.Context, art domain.Artifact) error {
	return a.runRequired(ctx, "deploy", a.spec.Deploy, art, "")
}

// Verify runs the verify command. An unset command succeeds.
func (a *Adapter) Verify(ctx context.Context, art domain.Artifact) error {
	return a.runOptional(ctx, "verify", a.spec.Verify, art, "")
}

// Rollback runs the rollback command, which must be configured.
func (a *Adapter) Rollback(ctx context.Context, art domain.Artifact, previousVersion string) error {
	return a.runRequired(ctx, "rollback", a.spec.Rollback, art, previousVersion)
}

// Hook runs the configured hook for stage. Without one, pre_deploy falls back
// to the build command and every other stage succeeds.
func (a *Adapter) Hook(ctx context.Context, stage domain.StageName, art domain.Artifact) error {
	if tmpl := a.spec.Hooks[string(stage)]; tmpl != "" {
		return a.run(ctx, "hook "+string(stage), tmpl, art, "")
	}
	if stage == domain.StagePreDeploy {
		return a.Build(ctx, art)
	}
	return nil
}

func (a *Adapter) runOptional(ctx context.Context, op, tmpl string, art domain.Artifact, prev string) error {
	if tmpl == "" {
		return nil
	}
	return a.run(ctx, op, tmpl, art, prev)
}

func (a *Adapter) runRequired(ctx context.Context, op, tmpl string, art domain.Artifact, prev string) error {
	if tmpl == "" {
		return fmt.Errorf("%s: no %s command configured", a.platform, op)
	}
	return a.run(ctx, op, tmpl, art, prev)
}

func (a *Adapter) run(ctx context.Context, op, tmpl string, art domain.Artifact, prev string) error {
	line := Expand(tmpl, art, prev)

	cmd := exec.CommandContext(ctx, a.shell, "-c", line)
	cmd.Dir = art.Dir
	cmd.WaitDelay = 2 * time.Second
	cmd.Env = append(os.Environ(),
		"PAKDECK_PLATFORM="+a.platform,
		"PAKDECK_PACKAGE="+art.Name,
		"PAKDECK_VERSION="+art.Version,
		"PAKDECK_PREVIOUS_VERSION="+prev,
	)
	for k, v := range a.spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.DeadlineExceeded) {
			err = ctxErr
		}
		return fmt.Errorf("%s %s: %w%s", a.platform, op, err, formatTail(out.String()))
	}
	return nil
}

// Expand substitutes placeholders in tmpl with shell-quoted artifact values.
func Expand(tmpl string, art domain.Artifact, previousVersion string) string {
	r := strings.NewReplacer(
		"{name}", shellQuote(art.Name),
		"{version}", shellQuote(art.Version),
		"{previous}", shellQuote(previousVersion),
		"{dir}", shellQuote(art.Dir),
	)
	return r.Replace(tmpl)
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func formatTail(output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	if len(output) > outputTail {
		start := len(output) - outputTail
		for start < len(output) && !utf8.RuneStart(output[start]) {
			start++
		}
		output = "…" + output[start:]
	}
	return ": " + output
}
