package pipeline_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/pomdtr/assetpipe/internal/config"
	"github.com/pomdtr/assetpipe/internal/pipeline"
	"github.com/pomdtr/assetpipe/internal/theme"
)

func testConfig(dir string, env string) *config.Config {
	return &config.Config{
		Dir: dir,
		Env: env,
		Build: config.Build{
			RootPath:   dir,
			ClientPath: filepath.Join(dir, "client"),
			StaticPath: filepath.Join(dir, "static"),
			StaticDirs: []string{"images", "fonts"},
			DistPath:   filepath.Join(dir, "static", "dist"),
			DistURL:    "/dist/",
			StaticURL:  "/",
		},
		Themes: map[string]theme.Spec{
			"my-theme": {Stylesheet: "my.scss", PrintStylesheet: "print.scss"},
		},
	}
}

func TestAssemble(t *testing.T) {
	dir := t.TempDir()

	p, err := pipeline.Assemble(testConfig(dir, config.EnvDevelopment))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var names []string
	for _, rule := range p.Rules {
		names = append(names, rule.Name)
	}

	if want := []string{"js", "css", "scss", "static"}; len(names) != len(want) {
		t.Fatalf("expected rules %v, got %v", want, names)
	} else {
		for i := range want {
			if names[i] != want[i] {
				t.Errorf("rule %d: expected %s, got %s", i, want[i], names[i])
			}
		}
	}

	if len(p.Entry) != 2 {
		t.Errorf("expected 2 entry points, got %v", p.Entry)
	}

	if p.Output.Filename != "js/[name].bundle.js" || p.Output.PublicPath != "/dist/" {
		t.Errorf("unexpected output %+v", p.Output)
	}

	scss, ok := p.Rule("scss")
	if !ok {
		t.Fatal("missing scss rule")
	}

	sass := scss.Use[len(scss.Use)-1]
	if sass.Loader != "sass-loader" || sass.Options.SourceMap == nil || !*sass.Options.SourceMap {
		t.Errorf("expected sass source maps in development, got %+v", sass)
	}

	if _, err := json.Marshal(p); err != nil {
		t.Errorf("pipeline should encode to json: %v", err)
	}
}

func TestAssembleProduction(t *testing.T) {
	p, err := pipeline.Assemble(testConfig(t.TempDir(), config.EnvProduction))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	scss, _ := p.Rule("scss")
	sass := scss.Use[len(scss.Use)-1]
	if sass.Options.SourceMap == nil || *sass.Options.SourceMap {
		t.Errorf("expected sass source maps disabled in production")
	}

	for _, plugin := range p.Plugins {
		if plugin.Name == "environment" && plugin.Options.Environment["NODE_ENV"] != config.EnvProduction {
			t.Errorf("expected NODE_ENV=production, got %v", plugin.Options.Environment)
		}
	}
}

func TestStaticRuleMatch(t *testing.T) {
	root := filepath.Join("/srv", "app", "static")

	rule, err := pipeline.StaticRule(root, []string{"images", "fonts"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var tests = []struct {
		path string
		want bool
	}{
		{filepath.Join(root, "images", "logo.png"), true},
		{filepath.Join(root, "images", "nested", "photo.jpeg"), true},
		{filepath.Join(root, "fonts", "icons.woff2"), true},
		{filepath.Join(root, "fonts", "icons.eot"), true},
		{filepath.Join(root, "images", "readme.txt"), false},
		{filepath.Join(root, "css", "main.png"), false},
		{filepath.Join(root, "logo.png"), false},
		{filepath.Join("/srv", "other", "images", "logo.png"), false},
	}

	for _, tt := range tests {
		if got := rule.Match(tt.path); got != tt.want {
			t.Errorf("Match(%s): expected %v, got %v", tt.path, tt.want, got)
		}
	}
}

func TestRuleExclude(t *testing.T) {
	rule, err := pipeline.NewRule("js", `\.js$`, `node_modules`, pipeline.Loader{Loader: "babel-loader"})
	if err != nil {
		t.Fatal(err)
	}

	if !rule.Match("/src/app.js") {
		t.Error("expected app.js to match")
	}

	if rule.Match("/node_modules/lib/index.js") {
		t.Error("expected node_modules to be excluded")
	}

	if _, err := pipeline.NewRule("bad", `(`, ""); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
