package assets_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pomdtr/assetpipe/internal/assets"
	"github.com/pomdtr/assetpipe/internal/config"
	"github.com/pomdtr/assetpipe/internal/logfeed"
	"github.com/pomdtr/assetpipe/internal/manifest"
	"github.com/pomdtr/assetpipe/internal/pipeline"
	"github.com/pomdtr/assetpipe/internal/theme"
)

type memoryRecorder struct {
	mu      sync.Mutex
	entries []logfeed.Entry
}

func (r *memoryRecorder) Insert(ctx context.Context, entries ...logfeed.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entries...)
	return nil
}

func (r *memoryRecorder) kinds() map[string]int {
	kinds := make(map[string]int)
	for _, e := range r.entries {
		kinds[e.Kind]++
	}

	return kinds
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

func version(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])[:8]
}

func newConfig(dir string) *config.Config {
	return &config.Config{
		Dir: dir,
		Env: config.EnvDevelopment,
		Build: config.Build{
			RootPath:    dir,
			ClientPath:  filepath.Join(dir, "client"),
			StaticPath:  filepath.Join(dir, "static"),
			StaticDirs:  []string{"images", "fonts"},
			DistPath:    filepath.Join(dir, "static", "dist"),
			DistURL:     "/dist/",
			StaticURL:   "/",
			OnError:     config.OnErrorAbort,
			Concurrency: 2,
		},
		Themes: map[string]theme.Spec{
			"my-theme": {Stylesheet: "styles/my.scss", PrintStylesheet: "styles/print.scss"},
		},
	}
}

func TestBuild(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)

	writeFile(t, filepath.Join(dir, "styles", "my.scss"), "body {}")
	writeFile(t, filepath.Join(dir, "static", "images", "logo.png"), "logo")
	writeFile(t, filepath.Join(dir, "static", "fonts", "icons.woff2"), "font")
	writeFile(t, filepath.Join(dir, "static", "images", "notes.txt"), "ignored")
	writeFile(t, filepath.Join(dir, "static", "dist", "images", "old.png"), "ignored")

	chunks := filepath.Join(dir, "chunks.json")
	writeFile(t, chunks, `[
		{"name": "main.css", "path": "/dist/css/main.css", "renderedHash": "abcdef1234567890"},
		{"name": "logo.svg", "path": "/dist/images/logo.svg"}
	]`)
	cfg.Build.ChunksFile = chunks

	recorder := &memoryRecorder{}
	res, err := assets.NewBuilder(cfg, nil, recorder).Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := manifest.Manifest{
		"fonts/icons.woff2": "/fonts/v/" + version("font") + "/icons.woff2",
		"images/logo.png":   "/images/v/" + version("logo") + "/logo.png",
		"main.css":          "/dist/v/abcdef12/css/main.css",
		"logo.svg":          "/dist/images/logo.svg",
	}

	if diff := cmp.Diff(want, res.Manifest); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}

	written, err := manifest.Load(cfg.ManifestPath())
	if err != nil {
		t.Fatalf("failed to load written manifest: %v", err)
	}

	if diff := cmp.Diff(want, written); diff != "" {
		t.Errorf("written manifest mismatch (-want +got):\n%s", diff)
	}

	if len(res.Entries) != 2 {
		t.Errorf("expected 2 entries, got %v", res.Entries)
	}

	if res.BuildID == "" {
		t.Error("expected a build id")
	}

	kinds := recorder.kinds()
	if kinds[assets.KindAsset] != 2 || kinds[assets.KindTheme] != 2 || kinds[assets.KindChunk] != 2 || kinds[assets.KindBuild] != 1 {
		t.Errorf("unexpected recorded kinds %v", kinds)
	}

	for _, e := range recorder.entries {
		if e.BuildID != res.BuildID {
			t.Errorf("entry recorded under build %s, expected %s", e.BuildID, res.BuildID)
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	cfg.Themes = nil

	for i := 0; i < 20; i++ {
		writeFile(t, filepath.Join(dir, "static", "images", string(rune('a'+i))+".png"), string(rune('a'+i)))
	}

	first, err := assets.NewBuilder(cfg, nil, nil).Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	second, err := assets.NewBuilder(cfg, nil, nil).Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(first.Assets, second.Assets); diff != "" {
		t.Errorf("builds differ (-first +second):\n%s", diff)
	}

	if first.BuildID == second.BuildID {
		t.Error("expected distinct build ids")
	}
}

func TestBuildSharedOverride(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(filepath.Join(dir, "plugin"))
	cfg.Themes = nil
	cfg.Shared.StaticPath = filepath.Join(dir, "core", "static")
	cfg.Shared.StaticURL = "/core/"

	writeFile(t, filepath.Join(dir, "core", "static", "images", "logo.png"), "core logo")
	writeFile(t, filepath.Join(dir, "core", "static", "images", "shared.png"), "shared")
	writeFile(t, filepath.Join(dir, "plugin", "static", "images", "logo.png"), "plugin logo")

	res, err := assets.NewBuilder(cfg, nil, nil).Build(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if got, want := res.Manifest["images/logo.png"], "/images/v/"+version("plugin logo")+"/logo.png"; got != want {
		t.Errorf("expected plugin asset to win: want %s, got %s", want, got)
	}

	if got, want := res.Manifest["images/shared.png"], "/core/images/v/"+version("shared")+"/shared.png"; got != want {
		t.Errorf("expected shared asset: want %s, got %s", want, got)
	}
}

func unreadable(t *testing.T, fp string) {
	t.Helper()

	if runtime.GOOS == "windows" || os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced")
	}

	if err := os.Chmod(fp, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(fp, 0o644) })
}

func TestBuildAbortOnReadError(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	cfg.Themes = nil

	broken := filepath.Join(dir, "static", "images", "broken.png")
	writeFile(t, broken, "x")
	writeFile(t, filepath.Join(dir, "static", "images", "ok.png"), "ok")
	unreadable(t, broken)

	recorder := &memoryRecorder{}
	res, err := assets.NewBuilder(cfg, nil, recorder).Build(context.Background())

	var aerr *assets.AssetError
	if !errors.As(err, &aerr) || aerr.Path != broken {
		t.Fatalf("expected AssetError for %s, got %v", broken, err)
	}

	if !errors.Is(err, fs.ErrPermission) {
		t.Errorf("expected permission error, got %v", err)
	}

	if len(res.Failures) != 1 {
		t.Errorf("expected one failure, got %v", res.Failures)
	}

	if _, err := os.Stat(cfg.ManifestPath()); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("manifest should not be written on abort")
	}

	if recorder.kinds()[assets.KindFailure] != 1 {
		t.Errorf("expected failure to be recorded, got %v", recorder.kinds())
	}
}

func TestBuildSkipOnReadError(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	cfg.Themes = nil
	cfg.Build.OnError = config.OnErrorSkip

	broken := filepath.Join(dir, "static", "images", "broken.png")
	writeFile(t, broken, "x")
	writeFile(t, filepath.Join(dir, "static", "images", "ok.png"), "ok")
	unreadable(t, broken)

	res, err := assets.NewBuilder(cfg, nil, nil).Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Assets) != 1 || res.Assets[0].Name != "images/ok.png" {
		t.Errorf("expected only ok.png, got %v", res.Assets)
	}

	if len(res.Failures) != 1 || res.Failures[0].Path != broken {
		t.Errorf("expected broken.png failure, got %v", res.Failures)
	}
}

func TestBuildMissingStaticRoot(t *testing.T) {
	dir := t.TempDir()
	cfg := newConfig(dir)
	cfg.Themes = nil

	res, err := assets.NewBuilder(cfg, nil, nil).Build(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(res.Assets) != 0 {
		t.Errorf("expected no assets, got %v", res.Assets)
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "images", "b.png"), "b")
	writeFile(t, filepath.Join(root, "images", "a.svg"), "a")
	writeFile(t, filepath.Join(root, "images", ".cache", "c.png"), "c")
	writeFile(t, filepath.Join(root, "fonts", "node_modules", "d.ttf"), "d")
	writeFile(t, filepath.Join(root, "fonts", "e.ttf"), "e")
	writeFile(t, filepath.Join(root, "dist", "images", "f.png"), "f")

	rule, err := pipeline.StaticRule(root, []string{"images", "fonts", "dist"})
	if err != nil {
		t.Fatal(err)
	}

	files, err := assets.Discover(rule, root, filepath.Join(root, "dist"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		filepath.Join(root, "fonts", "e.ttf"),
		filepath.Join(root, "images", "a.svg"),
		filepath.Join(root, "images", "b.png"),
	}

	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("discovered files mismatch (-want +got):\n%s", diff)
	}
}
