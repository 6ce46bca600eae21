package server

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	sloghttp "github.com/samber/slog-http"

	"github.com/pomdtr/assetpipe/internal/config"
	"github.com/pomdtr/assetpipe/internal/manifest"
)

const (
	ManifestRoute   = "/__assetpipe/manifest"
	LivereloadRoute = "/__assetpipe/livereload"

	ImmutableCacheControl = "public, max-age=31536000, immutable"
	NoCacheControl        = "no-cache"
)

var versionSegment = regexp.MustCompile(`(^|/)v/[0-9a-f]{8}/`)

// Mount serves the files under Root at the URL prefix.
type Mount struct {
	Prefix string
	Root   string
}

type Server struct {
	mounts []Mount
	logger *slog.Logger
	hub    *Hub

	mu       sync.RWMutex
	manifest manifest.Manifest
	buildID  string
}

func NewServer(cfg *config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	mounts := []Mount{
		{Prefix: cfg.Build.DistURL, Root: cfg.Build.DistPath},
		{Prefix: cfg.Build.StaticURL, Root: cfg.Build.StaticPath},
	}

	if cfg.Shared.StaticPath != "" && cfg.Shared.StaticURL != "" {
		mounts = append(mounts, Mount{Prefix: cfg.Shared.StaticURL, Root: cfg.Shared.StaticPath})
	}

	return &Server{
		mounts:   SortMounts(mounts),
		logger:   logger,
		hub:      NewHub(logger.With("logger", "livereload")),
		manifest: manifest.Manifest{},
	}
}

// SortMounts orders mounts longest prefix first so nested mounts win.
func SortMounts(mounts []Mount) []Mount {
	sorted := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		if m.Prefix == "" || m.Root == "" {
			continue
		}

		if !strings.HasSuffix(m.Prefix, "/") {
			m.Prefix += "/"
		}

		sorted = append(sorted, m)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})

	return sorted
}

// Update swaps the served manifest and tells connected browsers to reload.
func (me *Server) Update(buildID string, m manifest.Manifest) {
	me.mu.Lock()
	me.manifest = m
	me.buildID = buildID
	me.mu.Unlock()

	me.hub.Broadcast(Message{Type: MessageReload, BuildID: buildID})
}

func (me *Server) Hub() *Hub {
	return me.hub
}

// Handler wraps the server with access logging. The livereload route is
// kept outside the middleware so the connection can be hijacked.
func (me *Server) Handler() http.Handler {
	logMiddleware := sloghttp.NewWithConfig(me.logger.With("logger", "http"), sloghttp.Config{
		WithRequestID: false,
	})

	logged := logMiddleware(me)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == LivereloadRoute {
			me.hub.ServeHTTP(w, r)
			return
		}

		logged.ServeHTTP(w, r)
	})
}

func (me *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case ManifestRoute:
		me.serveManifest(w, r)
		return
	case LivereloadRoute:
		me.hub.ServeHTTP(w, r)
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	for _, mount := range me.mounts {
		rel, ok := strings.CutPrefix(r.URL.Path, mount.Prefix)
		if !ok {
			continue
		}

		me.serveFile(w, r, mount.Root, rel)
		return
	}

	http.NotFound(w, r)
}

func (me *Server) serveManifest(w http.ResponseWriter, r *http.Request) {
	me.mu.RLock()
	data, err := me.manifest.Marshal()
	buildID := me.buildID
	me.mu.RUnlock()

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", NoCacheControl)
	if buildID != "" {
		w.Header().Set("X-Build-Id", buildID)
	}

	w.Write(data)
}

// Unversion strips the first v/<hash>/ segment from rel. It reports whether
// one was found.
func Unversion(rel string) (string, bool) {
	loc := versionSegment.FindStringSubmatchIndex(rel)
	if loc == nil {
		return rel, false
	}

	// keep the leading slash captured by the group
	return rel[:loc[3]] + rel[loc[1]:], true
}

func (me *Server) serveFile(w http.ResponseWriter, r *http.Request, root string, rel string) {
	for _, segment := range strings.Split(rel, "/") {
		if segment == ".." {
			http.NotFound(w, r)
			return
		}
	}

	rel, versioned := Unversion(rel)
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" {
		http.NotFound(w, r)
		return
	}

	fp := filepath.Join(root, filepath.FromSlash(rel))
	f, err := os.Open(fp)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			me.logger.Warn("could not open file", "path", fp, "error", err)
		}
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	if versioned {
		w.Header().Set("Cache-Control", ImmutableCacheControl)
	} else {
		w.Header().Set("Cache-Control", NoCacheControl)
	}

	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
