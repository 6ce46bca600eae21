// Package manifest maps logical asset names to their versioned URLs.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pomdtr/assetpipe/internal/fingerprint"
	"github.com/pomdtr/assetpipe/internal/utils"
)

const (
	FileName = "manifest.json"
	DistDir  = "/dist/"
)

// Entry is a file emitted by the bundler. RenderedHash is only set for files
// belonging to a chunk.
type Entry struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	RenderedHash string `json:"renderedHash,omitempty"`
}

func (e Entry) IsChunk() bool {
	return e.RenderedHash != ""
}

// RewriteChunkPath inserts a v/<hash> segment after the first /dist/
// component of p.
func RewriteChunkPath(p string, renderedHash string) string {
	hash := fingerprint.Short(renderedHash)
	if hash == "" {
		return p
	}

	return strings.Replace(p, DistDir, DistDir+fingerprint.VersionDir+"/"+hash+"/", 1)
}

// Rewrite returns a copy of entries with chunk paths versioned. Other entries
// are left untouched.
func Rewrite(entries []Entry) []Entry {
	rewritten := make([]Entry, len(entries))
	for i, entry := range entries {
		if entry.IsChunk() {
			entry.Path = RewriteChunkPath(entry.Path, entry.RenderedHash)
		}
		rewritten[i] = entry
	}

	return rewritten
}

func ReadEntries(fp string) ([]Entry, error) {
	b, err := os.ReadFile(fp)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk manifest: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse chunk manifest %s: %w", fp, err)
	}

	for i, entry := range entries {
		if entry.Name == "" || entry.Path == "" {
			return nil, fmt.Errorf("chunk manifest %s: entry %d is missing name or path", fp, i)
		}
	}

	return entries, nil
}

func WriteEntries(fp string, entries []Entry) error {
	b, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}

	return utils.WriteFileAtomic(fp, append(b, '\n'), 0o644)
}

// Manifest maps logical names to final URLs.
type Manifest map[string]string

func (m Manifest) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func (m Manifest) AddEntries(entries []Entry) {
	for _, entry := range entries {
		m[entry.Name] = entry.Path
	}
}

// Marshal encodes the manifest with sorted keys.
func (m Manifest) Marshal() ([]byte, error) {
	b, err := json.MarshalIndent(map[string]string(m), "", "  ")
	if err != nil {
		return nil, err
	}

	return append(b, '\n'), nil
}

func (m Manifest) Write(fp string) error {
	b, err := m.Marshal()
	if err != nil {
		return err
	}

	return utils.WriteFileAtomic(fp, b, 0o644)
}

func Load(fp string) (Manifest, error) {
	b, err := os.ReadFile(fp)
	if err != nil {
		return nil, err
	}

	m := make(Manifest)
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", fp, err)
	}

	return m, nil
}

// URL joins a public base URL and a relative path with a single slash.
func URL(base string, p string) string {
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(p, "/")
}
