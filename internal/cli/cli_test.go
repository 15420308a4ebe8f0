package cli_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/waabox/pakdeck/internal/cli"
	"github.com/waabox/pakdeck/internal/domain"
)

const testConfig = `
log_level = "error"

[platforms.shell]
validate = "test -d {dir}"
deploy = "echo published {name}@{version}"
rollback = "true"

[platforms.broken]
deploy = "echo registry unreachable >&2; exit 3"
rollback = "true"
`

// setup writes a config pointing at a fresh data dir and clears env
// overrides that would enable external sinks.
func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(testConfig), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PAKDECK_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("PAKDECK_PIPELINES_DIR", "")
	t.Setenv("PAKDECK_LOG_LEVEL", "")
	t.Setenv("PAKDECK_DATABASE_URL", "")
	return path
}

// execute runs the command tree with args and returns captured output.
func execute(t *testing.T, configPath string, args ...string) (string, error) {
	t.Helper()
	root := cli.NewRootCommand("test")
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", configPath}, args...))
	err := root.Execute()
	return stdout.String(), err
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := cli.NewRootCommand("test")
	got := map[string]bool{}
	for _, c := range root.Commands() {
		got[c.Name()] = true
	}
	for _, want := range []string{"deploy", "build", "test", "rollback", "status", "logs", "sessions", "cleanup", "pipelines", "platforms", "watch", "serve", "init"} {
		if !got[want] {
			t.Errorf("missing subcommand %q", want)
		}
	}
}

func TestDeployThenInspect(t *testing.T) {
	cfg := setup(t)
	pkgDir := t.TempDir()

	out, err := execute(t, cfg, "deploy", "demo", "1.0.0", "-p", "shell", "--pipeline", "quick", "-d", pkgDir)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	var sess domain.Session
	if err := json.Unmarshal([]byte(out), &sess); err != nil {
		t.Fatalf("decoding deploy output: %v\n%s", err, out)
	}
	if sess.Status != domain.SessionCompleted {
		t.Fatalf("status = %s, errors %v", sess.Status, sess.Errors)
	}
	if sess.PlatformStatus["shell"].Status != domain.PlatformCompleted {
		t.Errorf("shell = %+v", sess.PlatformStatus["shell"])
	}

	out, err = execute(t, cfg, "status", "demo")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var latest domain.Session
	if err := json.Unmarshal([]byte(out), &latest); err != nil {
		t.Fatalf("decoding status output: %v", err)
	}
	if latest.ID != sess.ID {
		t.Errorf("status returned %s, want %s", latest.ID, sess.ID)
	}

	out, err = execute(t, cfg, "logs", "demo")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(out, "validation started") || !strings.Contains(out, "deploy completed") {
		t.Errorf("logs missing stage entries:\n%s", out)
	}

	out, err = execute(t, cfg, "sessions", "demo")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, sess.ID) || !strings.Contains(out, "quick") {
		t.Errorf("sessions output:\n%s", out)
	}
}

func TestDeployFailureExitsWithError(t *testing.T) {
	cfg := setup(t)

	out, err := execute(t, cfg, "deploy", "demo", "2.0.0", "-p", "broken", "--pipeline", "quick", "-d", t.TempDir())
	if !errors.Is(err, domain.ErrSessionFailed) {
		t.Fatalf("err = %v, want ErrSessionFailed", err)
	}
	var sess domain.Session
	if err := json.Unmarshal([]byte(out), &sess); err != nil {
		t.Fatalf("decoding deploy output: %v\n%s", err, out)
	}
	if sess.Status != domain.SessionFailed {
		t.Errorf("status = %s", sess.Status)
	}
	if len(sess.Errors) == 0 || !strings.Contains(sess.Errors[0].Error, "registry unreachable") {
		t.Errorf("errors = %v", sess.Errors)
	}
}

func TestDeployUnknownPipeline(t *testing.T) {
	cfg := setup(t)
	out, err := execute(t, cfg, "deploy", "demo", "1.0.0", "-p", "shell", "--pipeline", "nightly")
	if !errors.Is(err, domain.ErrPipelineNotFound) {
		t.Fatalf("err = %v, want ErrPipelineNotFound", err)
	}
	if out != "" {
		t.Errorf("expected no session output, got:\n%s", out)
	}
}

func TestDeployRequiresPlatform(t *testing.T) {
	cfg := setup(t)
	if _, err := execute(t, cfg, "deploy", "demo", "1.0.0"); err == nil {
		t.Fatal("expected missing --platform to fail")
	}
}

func TestStatusUnknownPackage(t *testing.T) {
	cfg := setup(t)
	_, err := execute(t, cfg, "status", "nothing-here")
	if !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestCatalogCommands(t *testing.T) {
	cfg := setup(t)

	out, err := execute(t, cfg, "pipelines")
	if err != nil {
		t.Fatalf("pipelines: %v", err)
	}
	for _, want := range []string{"standard", "parallel", "quick"} {
		if !strings.Contains(out, want) {
			t.Errorf("pipelines output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, cfg, "platforms")
	if err != nil {
		t.Fatalf("platforms: %v", err)
	}
	if out != "broken\nshell\n" {
		t.Errorf("platforms output = %q", out)
	}
}

func TestCleanupKeepsRecentSessions(t *testing.T) {
	cfg := setup(t)
	if _, err := execute(t, cfg, "deploy", "demo", "1.0.0", "-p", "shell", "--pipeline", "quick", "-d", t.TempDir()); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	out, err := execute(t, cfg, "cleanup", "demo")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !strings.Contains(out, "removed 0 session(s)") {
		t.Errorf("cleanup output = %q", out)
	}

	out, err = execute(t, cfg, "cleanup", "demo", "--older-than", "0s")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !strings.Contains(out, "removed 1 session(s)") {
		t.Errorf("cleanup output = %q", out)
	}
}

func TestInitWritesStarterConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pakdeck", "config.toml")

	if _, err := execute(t, path, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[platforms.npm]") {
		t.Errorf("starter config:\n%s", data)
	}
	if _, err := execute(t, path, "init"); err == nil {
		t.Error("expected init to refuse overwriting an existing file")
	}
	if _, err := execute(t, path, "init", "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestDeployReadsIdentityFromManifest(t *testing.T) {
	cfg := setup(t)
	pkgDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(pkgDir, "package.json"), []byte(`{"name": "from-manifest", "version": "3.2.1"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, cfg, "deploy", "-p", "shell", "--pipeline", "quick", "-d", pkgDir)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	var sess domain.Session
	if err := json.Unmarshal([]byte(out), &sess); err != nil {
		t.Fatalf("decoding deploy output: %v", err)
	}
	if sess.Package != "from-manifest" || sess.Version != "3.2.1" {
		t.Errorf("session identity = %s@%s", sess.Package, sess.Version)
	}
}

func TestDeployWithoutManifestNeedsArguments(t *testing.T) {
	cfg := setup(t)
	_, err := execute(t, cfg, "deploy", "-p", "shell", "-d", t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "no package manifest found") {
		t.Fatalf("err = %v", err)
	}
}
