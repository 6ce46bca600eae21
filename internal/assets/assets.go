// Package assets runs a build pass: it resolves theme entry points,
// fingerprints static assets, versions chunk paths and writes the manifest.
package assets

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pomdtr/assetpipe/internal/config"
	"github.com/pomdtr/assetpipe/internal/fingerprint"
	"github.com/pomdtr/assetpipe/internal/logfeed"
	"github.com/pomdtr/assetpipe/internal/manifest"
	"github.com/pomdtr/assetpipe/internal/pipeline"
	"github.com/pomdtr/assetpipe/internal/theme"
	"github.com/pomdtr/assetpipe/internal/utils"
	"golang.org/x/sync/errgroup"
)

const (
	KindTheme   = "theme"
	KindAsset   = "asset"
	KindChunk   = "chunk"
	KindFailure = "failure"
	KindBuild   = "build"
)

// Recorder stores build log entries.
type Recorder interface {
	Insert(ctx context.Context, entries ...logfeed.Entry) error
}

type Asset struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Path   string `json:"path"`
	URL    string `json:"url"`
}

type AssetError struct {
	Path string
	Err  error
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("failed to fingerprint %s: %v", e.Path, e.Err)
}

func (e *AssetError) Unwrap() error {
	return e.Err
}

type Failure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type Result struct {
	BuildID  string            `json:"buildId"`
	Env      string            `json:"env"`
	Entries  theme.EntryMap    `json:"entries"`
	Assets   []Asset           `json:"assets"`
	Chunks   []manifest.Entry  `json:"chunks"`
	Manifest manifest.Manifest `json:"manifest"`
	Failures []Failure         `json:"failures"`
	Duration time.Duration     `json:"duration"`
}

type staticRoot struct {
	path string
	url  string
}

type Builder struct {
	cfg      *config.Config
	logger   *slog.Logger
	recorder Recorder
}

// NewBuilder returns a builder for cfg. recorder may be nil.
func NewBuilder(cfg *config.Config, logger *slog.Logger, recorder Recorder) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Builder{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
	}
}

// roots lists the static roots, shared first so local assets override
// shared ones with the same name.
func (b *Builder) roots() []staticRoot {
	var roots []staticRoot
	if b.cfg.Shared.StaticPath != "" {
		url := b.cfg.Shared.StaticURL
		if url == "" {
			url = b.cfg.Build.StaticURL
		}
		roots = append(roots, staticRoot{path: b.cfg.Shared.StaticPath, url: url})
	}

	return append(roots, staticRoot{path: b.cfg.Build.StaticPath, url: b.cfg.Build.StaticURL})
}

func (b *Builder) Build(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{
		BuildID:  uuid.NewString(),
		Env:      b.cfg.Env,
		Manifest: make(manifest.Manifest),
		Assets:   []Asset{},
		Chunks:   []manifest.Entry{},
		Failures: []Failure{},
	}
	logger := b.logger.With("build", res.BuildID)
	rec := newRecording(res.BuildID)

	err := b.build(ctx, logger, res, rec)
	res.Duration = time.Since(start)

	if err != nil {
		rec.add(slog.LevelError, KindBuild, "build failed", "", err.Error())
	} else {
		rec.add(slog.LevelInfo, KindBuild, fmt.Sprintf("built %d entries, %d assets, %d chunks in %s", len(res.Entries), len(res.Assets), len(res.Chunks), res.Duration.Round(time.Millisecond)), "", "")
	}

	if b.recorder != nil {
		if rerr := b.recorder.Insert(context.WithoutCancel(ctx), rec.entries...); rerr != nil {
			logger.Warn("failed to record build log", "error", rerr)
		}
	}

	if err != nil {
		return res, err
	}

	logger.Info("build completed", "entries", len(res.Entries), "assets", len(res.Assets), "chunks", len(res.Chunks), "failures", len(res.Failures), "duration", res.Duration)
	return res, nil
}

func (b *Builder) build(ctx context.Context, logger *slog.Logger, res *Result, rec *recording) error {
	entries, err := b.cfg.EntryPoints()
	if err != nil {
		return err
	}
	res.Entries = entries

	for _, name := range entries.Names() {
		rec.add(slog.LevelInfo, KindTheme, "resolved entry "+name, entries[name], "")
	}
	logger.Debug("resolved theme entry points", "count", len(entries))

	byName := make(map[string]Asset)
	for _, root := range b.roots() {
		assets, err := b.fingerprintRoot(ctx, logger, root, res, rec)
		if err != nil {
			return err
		}

		for _, asset := range assets {
			byName[asset.Name] = asset
		}
	}

	for _, asset := range byName {
		res.Assets = append(res.Assets, asset)
		res.Manifest[asset.Name] = asset.URL
	}
	sort.Slice(res.Assets, func(i, j int) bool {
		return res.Assets[i].Name < res.Assets[j].Name
	})

	if b.cfg.Build.ChunksFile != "" {
		chunks, err := manifest.ReadEntries(b.cfg.Build.ChunksFile)
		if err != nil {
			return err
		}

		res.Chunks = manifest.Rewrite(chunks)
		res.Manifest.AddEntries(res.Chunks)
		for _, chunk := range res.Chunks {
			rec.add(slog.LevelInfo, KindChunk, "versioned chunk "+chunk.Name, chunk.Path, "")
		}
	}

	if err := res.Manifest.Write(b.cfg.ManifestPath()); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	logger.Debug("wrote manifest", "path", b.cfg.ManifestPath(), "size", len(res.Manifest))

	return nil
}

func (b *Builder) fingerprintRoot(ctx context.Context, logger *slog.Logger, root staticRoot, res *Result, rec *recording) ([]Asset, error) {
	rule, err := pipeline.StaticRule(root.path, b.cfg.Build.StaticDirs)
	if err != nil {
		return nil, err
	}

	if !utils.DirExists(root.path) {
		logger.Warn("static root does not exist", "root", root.path)
		return nil, nil
	}

	files, err := Discover(rule, root.path, b.cfg.Build.DistPath)
	if err != nil {
		return nil, err
	}
	logger.Debug("discovered static assets", "root", root.path, "count", len(files))

	assets := make([]Asset, len(files))
	ok := make([]bool, len(files))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Build.Concurrency)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			p, err := fingerprint.Fingerprint(root.path, file)
			if err != nil {
				aerr := &AssetError{Path: file, Err: err}
				mu.Lock()
				res.Failures = append(res.Failures, Failure{Path: file, Error: err.Error()})
				rec.add(slog.LevelError, KindFailure, aerr.Error(), file, err.Error())
				mu.Unlock()

				if b.cfg.Build.OnError == config.OnErrorSkip {
					logger.Warn("skipping asset", "path", file, "error", err)
					return nil
				}

				return aerr
			}

			name := p.Dir
			if name != "" {
				name += "/"
			}
			name += p.Base

			assets[i] = Asset{
				Name:   name,
				Source: file,
				Path:   p.String(),
				URL:    manifest.URL(root.url, p.String()),
			}
			ok[i] = true

			mu.Lock()
			rec.add(slog.LevelInfo, KindAsset, "fingerprinted "+name, assets[i].URL, p.Version)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var done []Asset
	for i, asset := range assets {
		if ok[i] {
			done = append(done, asset)
		}
	}

	sort.Slice(res.Failures, func(i, j int) bool {
		return res.Failures[i].Path < res.Failures[j].Path
	})

	return done, nil
}

// Discover walks root and returns the files matched by rule, in lexical
// order. Directories listed in skip, hidden directories and node_modules are
// not visited.
func Discover(rule pipeline.Rule, root string, skip ...string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}

			name := d.Name()
			if strings.HasPrefix(name, ".") || name == "node_modules" {
				return filepath.SkipDir
			}

			for _, s := range skip {
				if s != "" && path == s {
					return filepath.SkipDir
				}
			}

			return nil
		}

		if rule.Match(path) {
			files = append(files, path)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover assets in %s: %w", root, err)
	}

	return files, nil
}

type recording struct {
	buildID string
	entries []logfeed.Entry
}

func newRecording(buildID string) *recording {
	return &recording{buildID: buildID}
}

func (r *recording) add(level slog.Level, kind, message, path, detail string) {
	r.entries = append(r.entries, logfeed.Entry{
		BuildID: r.buildID,
		Time:    time.Now(),
		Level:   level.String(),
		Kind:    kind,
		Message: message,
		Path:    path,
		Detail:  detail,
	})
}
