package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pomdtr/assetpipe/internal/utils"
)

func TestConfigParser(t *testing.T) {
	var tests = []struct {
		name  string
		input string
	}{
		{"assetpipe.jsonc", "{\n  // comment\n  \"build\": {\"rootPath\": \"web\",},\n}"},
		{"assetpipe.json", `{"build": {"rootPath": "web"}}`},
		{"assetpipe.yaml", "build:\n  rootPath: web\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, err := utils.ConfigParser(tt.name)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			out, err := parser.Unmarshal([]byte(tt.input))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			build, ok := out["build"].(map[string]interface{})
			if !ok {
				t.Fatalf("expected build section, got %#v", out)
			}

			if build["rootPath"] != "web" {
				t.Errorf("expected rootPath %q, got %v", "web", build["rootPath"])
			}
		})
	}

	if _, err := utils.ConfigParser("assetpipe.toml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestFindConfigPath(t *testing.T) {
	dir := t.TempDir()

	if got := utils.FindConfigPath(dir); got != filepath.Join(dir, "assetpipe.jsonc") {
		t.Errorf("expected default path, got %s", got)
	}

	if err := os.WriteFile(filepath.Join(dir, "assetpipe.yaml"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := utils.FindConfigPath(dir); got != filepath.Join(dir, "assetpipe.yaml") {
		t.Errorf("expected yaml path, got %s", got)
	}
}

func TestWriteFileAtomic(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "nested", "manifest.json")

	if err := utils.WriteFileAtomic(fp, []byte("{}"), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := os.ReadFile(fp)
	if err != nil {
		t.Fatal(err)
	}

	if string(b) != "{}" {
		t.Errorf("expected %q, got %q", "{}", b)
	}

	entries, err := os.ReadDir(filepath.Dir(fp))
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 1 {
		t.Errorf("expected temp file to be renamed, found %d entries", len(entries))
	}
}
