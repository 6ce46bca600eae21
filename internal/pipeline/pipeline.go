// Package pipeline describes the bundler configuration as an ordered list of
// declarative rules and plugins.
package pipeline

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pomdtr/assetpipe/internal/config"
	"github.com/pomdtr/assetpipe/internal/manifest"
	"github.com/pomdtr/assetpipe/internal/theme"
)

// StaticExtensions are the file types handled by the static rule.
var StaticExtensions = []string{"jpg", "jpeg", "png", "gif", "svg", "woff", "woff2", "ttf", "eot"}

type LoaderOptions struct {
	Root         string   `json:"root,omitempty"`
	URL          *bool    `json:"url,omitempty"`
	SourceMap    *bool    `json:"sourceMap,omitempty"`
	IncludePaths []string `json:"includePaths,omitempty"`
	ConfigPath   string   `json:"configPath,omitempty"`
	NamespaceURL string   `json:"namespaceURL,omitempty"`
	Name         string   `json:"name,omitempty"`
	Context      string   `json:"context,omitempty"`
	EmitFile     *bool    `json:"emitFile,omitempty"`
	PublicPath   string   `json:"publicPath,omitempty"`
}

type Loader struct {
	Loader  string        `json:"loader"`
	Options LoaderOptions `json:"options,omitzero"`
}

// Rule applies a chain of loaders to files matching Test and not Exclude.
// When Context is set, paths are matched relative to it with a leading slash.
// Extract marks chains whose output is extracted into standalone css files,
// with Fallback used when extraction is disabled.
type Rule struct {
	Name     string   `json:"name"`
	Test     string   `json:"test"`
	Exclude  string   `json:"exclude,omitempty"`
	Context  string   `json:"context,omitempty"`
	Extract  bool     `json:"extract,omitempty"`
	Fallback string   `json:"fallback,omitempty"`
	Use      []Loader `json:"use"`

	test    *regexp.Regexp
	exclude *regexp.Regexp
}

func NewRule(name, test, exclude string, use ...Loader) (Rule, error) {
	rule := Rule{Name: name, Test: test, Exclude: exclude, Use: use}

	var err error
	if rule.test, err = regexp.Compile(test); err != nil {
		return Rule{}, fmt.Errorf("rule %s: invalid test: %w", name, err)
	}

	if exclude != "" {
		if rule.exclude, err = regexp.Compile(exclude); err != nil {
			return Rule{}, fmt.Errorf("rule %s: invalid exclude: %w", name, err)
		}
	}

	return rule, nil
}

// Match reports whether the slash separated path p is handled by the rule.
func (r Rule) Match(p string) bool {
	if r.test == nil {
		return false
	}

	if r.Context != "" {
		rel, err := filepath.Rel(r.Context, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return false
		}
		p = "/" + rel
	}

	p = filepath.ToSlash(p)
	if r.exclude != nil && r.exclude.MatchString(p) {
		return false
	}

	return r.test.MatchString(p)
}

type PluginOptions struct {
	FileName       string            `json:"fileName,omitempty"`
	PublicPath     string            `json:"publicPath,omitempty"`
	RewriteChunks  bool              `json:"rewriteChunks,omitempty"`
	ResourceRegExp string            `json:"resourceRegExp,omitempty"`
	ContextRegExp  string            `json:"contextRegExp,omitempty"`
	Filename       string            `json:"filename,omitempty"`
	Environment    map[string]string `json:"environment,omitempty"`
	Format         string            `json:"format,omitempty"`
}

type Plugin struct {
	Name    string        `json:"name"`
	Options PluginOptions `json:"options"`
}

type Output struct {
	Path       string `json:"path"`
	Filename   string `json:"filename"`
	PublicPath string `json:"publicPath"`
}

type Alias struct {
	Name       string `json:"name"`
	Alias      string `json:"alias"`
	OnlyModule bool   `json:"onlyModule"`
}

type Stats struct {
	Assets       bool   `json:"assets"`
	Children     bool   `json:"children"`
	Modules      bool   `json:"modules"`
	Chunks       bool   `json:"chunks"`
	ChunkModules bool   `json:"chunkModules"`
	ChunkOrigins bool   `json:"chunkOrigins"`
	ChunksSort   string `json:"chunksSort"`
}

type Pipeline struct {
	Env           string         `json:"env"`
	Devtool       string         `json:"devtool"`
	Context       string         `json:"context"`
	Entry         theme.EntryMap `json:"entry"`
	Output        Output         `json:"output"`
	Rules         []Rule         `json:"rules"`
	Plugins       []Plugin       `json:"plugins"`
	Aliases       []Alias        `json:"aliases"`
	LoaderModules []string       `json:"loaderModules"`
	Stats         Stats          `json:"stats"`
}

func (p Pipeline) Rule(name string) (Rule, bool) {
	for _, rule := range p.Rules {
		if rule.Name == name {
			return rule, true
		}
	}

	return Rule{}, false
}

func boolPtr(b bool) *bool {
	return &b
}

// StaticRule handles images and fonts under the static dirs of root. The file
// loader names each file through the fingerprint namer and does not emit it,
// since static files are served in place.
func StaticRule(root string, staticDirs []string) (Rule, error) {
	dirs := make([]string, 0, len(staticDirs))
	for _, dir := range staticDirs {
		dirs = append(dirs, regexp.QuoteMeta(strings.Trim(filepath.ToSlash(dir), "/")))
	}

	if len(dirs) == 0 {
		return Rule{}, fmt.Errorf("no static dirs configured")
	}

	test := fmt.Sprintf(`^/(%s)/.*\.(%s)$`, strings.Join(dirs, "|"), strings.Join(StaticExtensions, "|"))
	rule, err := NewRule("static", test, "", Loader{
		Loader: "file-loader",
		Options: LoaderOptions{
			Name:       "fingerprint",
			Context:    root,
			EmitFile:   boolPtr(false),
			PublicPath: "/",
		},
	})
	if err != nil {
		return Rule{}, err
	}
	rule.Context = root

	return rule, nil
}

// Assemble builds the pipeline for cfg. The entry map is computed from the
// configured themes.
func Assemble(cfg *config.Config) (Pipeline, error) {
	entries, err := cfg.EntryPoints()
	if err != nil {
		return Pipeline{}, err
	}

	development := cfg.Env == config.EnvDevelopment

	js, err := NewRule("js", `\.js$`, `node_modules`, Loader{Loader: "babel-loader"})
	if err != nil {
		return Pipeline{}, err
	}

	css, err := NewRule("css", `\.css$`, "", Loader{
		Loader: "css-loader",
		Options: LoaderOptions{
			Root: cfg.CSSRoot(),
			URL:  boolPtr(true),
		},
	})
	if err != nil {
		return Pipeline{}, err
	}
	css.Extract, css.Fallback = true, "style-loader"

	scss, err := NewRule("scss", `\.scss$`, "",
		Loader{
			Loader: "css-loader",
			Options: LoaderOptions{
				Root:      cfg.CSSRoot(),
				SourceMap: boolPtr(true),
				URL:       boolPtr(false),
			},
		},
		Loader{
			Loader: "postcss-loader",
			Options: LoaderOptions{
				SourceMap:    boolPtr(true),
				ConfigPath:   cfg.PostcssConfigPath(),
				NamespaceURL: cfg.PluginStaticURL("{name}"),
			},
		},
		Loader{
			Loader: "sass-loader",
			Options: LoaderOptions{
				SourceMap:    boolPtr(development),
				IncludePaths: []string{cfg.ScssIncludePath()},
			},
		},
	)
	if err != nil {
		return Pipeline{}, err
	}
	scss.Extract, scss.Fallback = true, "style-loader"

	static, err := StaticRule(cfg.Build.StaticPath, cfg.Build.StaticDirs)
	if err != nil {
		return Pipeline{}, err
	}

	return Pipeline{
		Env:     cfg.Env,
		Devtool: "source-map",
		Context: cfg.Build.ClientPath,
		Entry:   entries,
		Output: Output{
			Path:       cfg.Build.DistPath,
			Filename:   "js/[name].bundle.js",
			PublicPath: cfg.Build.DistURL,
		},
		Rules: []Rule{js, css, scss, static},
		Plugins: []Plugin{
			{Name: "manifest", Options: PluginOptions{
				FileName:      manifest.FileName,
				PublicPath:    cfg.Build.DistURL,
				RewriteChunks: true,
			}},
			{Name: "ignore", Options: PluginOptions{
				ResourceRegExp: `^\./locale$`,
				ContextRegExp:  `moment$`,
			}},
			{Name: "extract", Options: PluginOptions{
				Filename: "css/[name].css",
			}},
			{Name: "environment", Options: PluginOptions{
				Environment: map[string]string{"NODE_ENV": cfg.Env},
			}},
			{Name: "progress", Options: PluginOptions{
				Format: "[:bar] :percent (:elapsed seconds)",
			}},
		},
		Aliases: []Alias{
			{Name: "jquery", Alias: filepath.Join(cfg.NodeModules(), "jquery", "src", "jquery")},
		},
		LoaderModules: []string{cfg.NodeModules()},
		Stats: Stats{
			Chunks:     true,
			ChunksSort: "name",
		},
	}, nil
}
