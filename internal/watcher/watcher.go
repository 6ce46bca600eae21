package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 200 * time.Millisecond

var ErrWatcherClosed = errors.New("watcher closed")

// SkipDirs are never watched. Build output is excluded through the ignore
// list given to NewWatcher.
var SkipDirs = []string{".git", "node_modules"}

type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	onChange func(paths []string)
	ignore   []string
	logger   *slog.Logger

	Debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// NewWatcher watches root recursively. onChange receives the sorted set of
// paths touched during a debounce window. Paths under any of the ignore
// directories are dropped.
func NewWatcher(root string, onChange func(paths []string), logger *slog.Logger, ignore ...string) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	me := &Watcher{
		watcher:  watcher,
		root:     root,
		onChange: onChange,
		ignore:   ignore,
		logger:   logger,
		Debounce: DefaultDebounce,
		pending:  make(map[string]struct{}),
	}

	if err := me.AddDir(root); err != nil {
		watcher.Close()
		return nil, err
	}

	return me, nil
}

func (me *Watcher) Start(ctx context.Context) error {
	defer me.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-me.watcher.Events:
			if !ok {
				return ErrWatcherClosed
			}

			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}

			if me.ignored(event.Name) {
				continue
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := me.AddDir(event.Name); err != nil {
						me.logger.Warn("could not watch directory", "dir", event.Name, "error", err)
					}
				}
			}

			me.schedule(event.Name)
		case err, ok := <-me.watcher.Errors:
			if !ok {
				return ErrWatcherClosed
			}

			if err != nil {
				return err
			}
		}
	}
}

func (me *Watcher) Stop() error {
	me.stopTimer()
	return me.watcher.Close()
}

func (me *Watcher) schedule(path string) {
	me.mu.Lock()
	defer me.mu.Unlock()

	me.pending[path] = struct{}{}
	if me.timer != nil {
		me.timer.Stop()
	}

	me.timer = time.AfterFunc(me.Debounce, me.flush)
}

func (me *Watcher) flush() {
	me.mu.Lock()
	paths := make([]string, 0, len(me.pending))
	for p := range me.pending {
		paths = append(paths, p)
	}
	me.pending = make(map[string]struct{})
	me.timer = nil
	me.mu.Unlock()

	if len(paths) == 0 {
		return
	}

	sort.Strings(paths)
	me.logger.Debug("files changed", "count", len(paths))
	me.onChange(paths)
}

func (me *Watcher) stopTimer() {
	me.mu.Lock()
	defer me.mu.Unlock()

	if me.timer != nil {
		me.timer.Stop()
		me.timer = nil
	}
}

func (me *Watcher) ignored(path string) bool {
	for _, dir := range me.ignore {
		if within(dir, path) {
			return true
		}
	}

	rel, err := filepath.Rel(me.root, path)
	if err != nil || rel == "." {
		return false
	}

	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if slices.Contains(SkipDirs, part) {
			return true
		}
	}

	return false
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}

	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// AddDir watches dir and every directory below it.
func (me *Watcher) AddDir(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}

		if !d.IsDir() {
			return nil
		}

		if path != me.root && me.ignored(path) {
			return filepath.SkipDir
		}

		return me.watcher.Add(path)
	})
}

// WatchList returns the watched directories.
func (me *Watcher) WatchList() []string {
	list := me.watcher.WatchList()
	sort.Strings(list)
	return list
}
