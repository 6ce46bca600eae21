package cmd_test

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pomdtr/assetpipe/internal/assets"
	"github.com/pomdtr/assetpipe/internal/cmd"
	"github.com/pomdtr/assetpipe/internal/config"
	"github.com/pomdtr/assetpipe/internal/logfeed"
	"github.com/pomdtr/assetpipe/internal/manifest"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := cmd.NewCmdRoot()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeFile(t *testing.T, fp string, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(fp, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestInitAndEntries(t *testing.T) {
	dir := t.TempDir()

	if _, stderr, err := run(t, "init", "--dir", dir, "--theme", "my-theme"); err != nil {
		t.Fatalf("init failed: %v\n%s", err, stderr)
	}

	for _, name := range []string{"assetpipe.jsonc", "styles/my-theme.scss", "static/images/.gitkeep"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to be created: %v", name, err)
		}
	}

	_, _, err := run(t, "init", "--dir", dir)
	var exitErr cmd.ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 1 {
		t.Errorf("expected init to refuse overwriting, got %v", err)
	}

	stdout, stderr, err := run(t, "entries", "--json", "--dir", dir)
	if err != nil {
		t.Fatalf("entries failed: %v\n%s", err, stderr)
	}

	var entries map[string]string
	if err := json.Unmarshal([]byte(stdout), &entries); err != nil {
		t.Fatalf("invalid json %q: %v", stdout, err)
	}

	want := map[string]string{
		"themes_my_theme": filepath.Join(dir, "styles", "my-theme.scss"),
	}

	if diff := cmp.Diff(want, entries); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildAndLogs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "assetpipe.yaml"), `
env: production
build:
  onError: skip
logs:
  database: data/builds.db
themes:
  dark:
    stylesheet: styles/dark.scss
`)
	writeFile(t, filepath.Join(dir, "styles", "dark.scss"), "body {}")
	writeFile(t, filepath.Join(dir, "static", "images", "logo.png"), "logo")
	writeFile(t, filepath.Join(dir, "static", "fonts", "icons.ttf"), "icons")

	stdout, stderr, err := run(t, "build", "--json", "--dir", dir)
	if err != nil {
		t.Fatalf("build failed: %v\n%s", err, stderr)
	}

	var res assets.Result
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("invalid json %q: %v", stdout, err)
	}

	if res.Env != config.EnvProduction {
		t.Errorf("expected production env, got %q", res.Env)
	}

	if len(res.Assets) != 2 {
		t.Errorf("expected 2 assets, got %v", res.Assets)
	}

	if _, err := manifest.Load(filepath.Join(dir, "static", "dist", manifest.FileName)); err != nil {
		t.Errorf("expected manifest to be written: %v", err)
	}

	stdout, stderr, err = run(t, "logs", "--json", "--dir", dir, "--build", res.BuildID, "--kind", assets.KindAsset)
	if err != nil {
		t.Fatalf("logs failed: %v\n%s", err, stderr)
	}

	var snapshot logfeed.Snapshot
	if err := json.Unmarshal([]byte(stdout), &snapshot); err != nil {
		t.Fatalf("invalid json %q: %v", stdout, err)
	}

	if len(snapshot.Entries) != 2 || snapshot.CurrentPage != 1 || snapshot.Pages != 1 {
		t.Errorf("unexpected snapshot %+v", snapshot)
	}

	for _, e := range snapshot.Entries {
		if e.Kind != assets.KindAsset || e.BuildID != res.BuildID {
			t.Errorf("unexpected entry %+v", e)
		}
	}
}

func TestEnvFlagOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "assetpipe.json"), `{"env": "production"}`)

	stdout, stderr, err := run(t, "config", "--json", "--dir", dir, "--env", "development")
	if err != nil {
		t.Fatalf("config failed: %v\n%s", err, stderr)
	}

	var cfg config.Config
	if err := json.Unmarshal([]byte(stdout), &cfg); err != nil {
		t.Fatalf("invalid json %q: %v", stdout, err)
	}

	if cfg.Env != config.EnvDevelopment {
		t.Errorf("expected flag to win, got %q", cfg.Env)
	}

	if cfg.Build.StaticPath != filepath.Join(dir, "static") {
		t.Errorf("expected default static path, got %q", cfg.Build.StaticPath)
	}
}

func TestRewrite(t *testing.T) {
	dir := t.TempDir()
	chunks := filepath.Join(dir, "chunks.json")
	writeFile(t, chunks, `[{"name": "main.js", "path": "/dist/js/main.bundle.js", "renderedHash": "0123456789abcdef"}]`)

	if _, stderr, err := run(t, "rewrite", chunks); err != nil {
		t.Fatalf("rewrite failed: %v\n%s", err, stderr)
	}

	entries, err := manifest.ReadEntries(chunks)
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 1 || entries[0].Path != "/dist/v/01234567/js/main.bundle.js" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestFingerprint(t *testing.T) {
	dir := t.TempDir()
	logo := filepath.Join(dir, "images", "logo.png")
	writeFile(t, logo, "logo")

	stdout, stderr, err := run(t, "fingerprint", "--root", dir, logo)
	if err != nil {
		t.Fatalf("fingerprint failed: %v\n%s", err, stderr)
	}

	sum := md5.Sum([]byte("logo"))
	if want := "images/v/" + hex.EncodeToString(sum[:])[:8] + "/logo.png\n"; stdout != want {
		t.Errorf("expected %q, got %q", want, stdout)
	}
}

func TestMissingConfig(t *testing.T) {
	dir := t.TempDir()

	_, stderr, err := run(t, "build", "--dir", dir)
	var exitErr cmd.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected exit error, got %v", err)
	}

	if stderr == "" {
		t.Error("expected an error message")
	}
}

func TestWatchRoots(t *testing.T) {
	dir := t.TempDir()
	project := filepath.Join(dir, "plugin")
	core := filepath.Join(dir, "core")
	for _, d := range []string{
		filepath.Join(project, "client"),
		filepath.Join(project, "static"),
		filepath.Join(core, "client"),
	} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	cfg := &config.Config{
		Dir: project,
		Build: config.Build{
			ClientPath: filepath.Join(project, "client"),
			StaticPath: filepath.Join(project, "static"),
		},
		Shared: config.Shared{
			ClientPath: filepath.Join(core, "client"),
			StaticPath: filepath.Join(core, "static"),
		},
	}

	want := []string{filepath.Join(core, "client"), project}
	if diff := cmp.Diff(want, cmd.WatchRoots(cfg)); diff != "" {
		t.Errorf("roots mismatch (-want +got):\n%s", diff)
	}
}
