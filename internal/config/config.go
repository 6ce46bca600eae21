package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"runtime"

	"github.com/Masterminds/semver"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/v2"
	"github.com/pomdtr/assetpipe/internal/theme"
	"github.com/pomdtr/assetpipe/internal/utils"
)

var (
	ErrConfigNotFound     = errors.New("config not found")
	ErrUnsupportedVersion = errors.New("unsupported assetpipe version")
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	OnErrorAbort = "abort"
	OnErrorSkip  = "skip"
)

type Build struct {
	RootPath    string   `koanf:"rootPath" json:"rootPath"`
	ClientPath  string   `koanf:"clientPath" json:"clientPath"`
	StaticPath  string   `koanf:"staticPath" json:"staticPath"`
	StaticDirs  []string `koanf:"staticDirs" json:"staticDirs"`
	DistPath    string   `koanf:"distPath" json:"distPath"`
	DistURL     string   `koanf:"distURL" json:"distURL"`
	StaticURL   string   `koanf:"staticURL" json:"staticURL"`
	SourcePath  string   `koanf:"sourcePath" json:"sourcePath,omitempty"`
	ChunksFile  string   `koanf:"chunksFile" json:"chunksFile,omitempty"`
	OnError     string   `koanf:"onError" json:"onError"`
	Concurrency int      `koanf:"concurrency" json:"concurrency"`
}

// Shared describes the core tree a plugin builds against.
type Shared struct {
	RootPath   string `koanf:"rootPath" json:"rootPath,omitempty"`
	ClientPath string `koanf:"clientPath" json:"clientPath,omitempty"`
	StaticPath string `koanf:"staticPath" json:"staticPath,omitempty"`
	StaticURL  string `koanf:"staticURL" json:"staticURL,omitempty"`
}

type Logs struct {
	Database string `koanf:"database" json:"database"`
	// Keep is the number of builds kept in the log database.
	Keep int `koanf:"keep" json:"keep"`
}

type Config struct {
	Dir         string                `koanf:"dir" json:"dir"`
	Env         string                `koanf:"env" json:"env"`
	Build       Build                 `koanf:"build" json:"build"`
	Shared      Shared                `koanf:"shared" json:"shared"`
	IsPlugin    bool                  `koanf:"isPlugin" json:"isPlugin"`
	Themes      map[string]theme.Spec `koanf:"themes" json:"themes"`
	ThemePrefix string                `koanf:"themePrefix" json:"themePrefix,omitempty"`
	Logs        Logs                  `koanf:"logs" json:"logs"`
	Requires    string                `koanf:"requires" json:"requires,omitempty"`
}

// Defaults are loaded before the config file.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"env":              EnvDevelopment,
		"build.rootPath":   ".",
		"build.clientPath": "client",
		"build.staticPath": "static",
		"build.staticDirs": []string{"images", "fonts"},
		"build.distPath":   "static/dist",
		"build.distURL":    "/dist/",
		"build.staticURL":  "/",
		"build.onError":    OnErrorAbort,
		"logs.keep":        50,
	}
}

// LoadDotenv loads the .env file next to the config, if any. Variables
// already set in the environment win.
func LoadDotenv(dir string) error {
	dotenvPath := filepath.Join(dir, ".env")
	if !utils.FileExists(dotenvPath) {
		return nil
	}

	if err := godotenv.Load(dotenvPath); err != nil {
		return fmt.Errorf("could not read .env: %w", err)
	}

	return nil
}

// Load decodes k into a Config, resolves relative paths against the project
// dir and validates the result against version.
func Load(k *koanf.Koanf, version string) (*Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Dir == "" {
		return nil, ErrConfigNotFound
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir

	for _, p := range []*string{
		&cfg.Build.RootPath,
		&cfg.Build.ClientPath,
		&cfg.Build.StaticPath,
		&cfg.Build.DistPath,
		&cfg.Build.SourcePath,
		&cfg.Build.ChunksFile,
		&cfg.Shared.RootPath,
		&cfg.Shared.ClientPath,
		&cfg.Shared.StaticPath,
		&cfg.Logs.Database,
	} {
		*p = cfg.abs(*p)
	}

	if cfg.Build.Concurrency <= 0 {
		cfg.Build.Concurrency = runtime.NumCPU()
	}

	if err := cfg.Validate(version); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (me *Config) abs(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(me.Dir, p)
}

func (me *Config) Validate(version string) error {
	switch me.Env {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("invalid env: %s", me.Env)
	}

	switch me.Build.OnError {
	case OnErrorAbort, OnErrorSkip:
	default:
		return fmt.Errorf("invalid build.onError: %s", me.Build.OnError)
	}

	if me.IsPlugin && me.Shared.ClientPath == "" {
		return fmt.Errorf("shared.clientPath is required for plugins")
	}

	for key, spec := range me.Themes {
		if spec.Stylesheet == "" {
			return fmt.Errorf("theme %s has no stylesheet", key)
		}
	}

	return CheckVersion(me.Requires, version)
}

// CheckVersion reports whether version satisfies the constraint. Development
// builds always pass.
func CheckVersion(constraint string, version string) error {
	if constraint == "" || version == "" || version == "dev" {
		return nil
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("invalid requires constraint %q: %w", constraint, err)
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("failed to parse version %q: %w", version, err)
	}

	if !c.Check(v) {
		return fmt.Errorf("%w: %s does not satisfy %s", ErrUnsupportedVersion, version, constraint)
	}

	return nil
}

// SharedStylesPath is the styles directory of the shared client tree, or
// empty when no shared tree is configured.
func (me *Config) SharedStylesPath() string {
	if me.Shared.ClientPath == "" {
		return ""
	}

	return filepath.Join(me.Shared.ClientPath, "styles")
}

func (me *Config) ScssIncludePath() string {
	if me.IsPlugin {
		return filepath.Join(me.Shared.ClientPath, "styles")
	}

	return filepath.Join(me.Build.ClientPath, "styles")
}

// CSSRoot is the root used to resolve absolute urls in stylesheets.
func (me *Config) CSSRoot() string {
	if me.Shared.StaticPath != "" {
		return me.Shared.StaticPath
	}

	return me.Build.StaticPath
}

func (me *Config) PostcssConfigPath() string {
	if me.Shared.RootPath != "" {
		return filepath.Join(me.Shared.RootPath, "postcss.config.js")
	}

	return filepath.Join(me.Build.RootPath, "postcss.config.js")
}

func (me *Config) NodeModules() string {
	if me.Build.SourcePath != "" {
		return filepath.Join(me.Build.SourcePath, "node_modules")
	}

	return filepath.Join(filepath.Dir(me.Build.RootPath), "node_modules")
}

func (me *Config) ManifestPath() string {
	return filepath.Join(me.Build.DistPath, "manifest.json")
}

// PluginStaticURL is the public url of a plugin's static files.
func (me *Config) PluginStaticURL(name string) string {
	base := me.Shared.StaticURL
	if base == "" {
		base = me.Build.StaticURL
	}

	return path.Join(base, "static/plugins", name)
}

func (me *Config) EntryPoints() (theme.EntryMap, error) {
	return theme.EntryPoints(me.Themes, me.Build.RootPath, me.SharedStylesPath(), me.ThemePrefix)
}
