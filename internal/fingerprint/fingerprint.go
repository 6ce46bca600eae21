// Package fingerprint rewrites static asset paths to embed a content hash,
// so that /css/whatever.css becomes /css/v/123abcde/whatever.css.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	VersionDir = "v"
	VersionLen = 8
)

type Path struct {
	Dir     string `json:"dir"`
	Version string `json:"version"`
	Base    string `json:"base"`
}

// String returns the slash separated output path.
func (p Path) String() string {
	return path.Join(p.Dir, VersionDir, p.Version, p.Base)
}

// Fingerprint hashes the content of file and returns its versioned path
// relative to staticRoot. Parent directory references are replaced by "_" so
// the result never escapes the output tree.
func Fingerprint(staticRoot string, file string) (Path, error) {
	relPath, err := filepath.Rel(staticRoot, file)
	if err != nil {
		return Path{}, fmt.Errorf("could not relativize %s: %w", file, err)
	}

	relPath = filepath.ToSlash(relPath)
	dir, base := path.Split(relPath)

	version, err := HashFile(file)
	if err != nil {
		return Path{}, err
	}

	return Path{
		Dir:     SanitizeDir(strings.TrimSuffix(dir, "/")),
		Version: version,
		Base:    base,
	}, nil
}

// SanitizeDir replaces every ".." with "_".
func SanitizeDir(dir string) string {
	return strings.ReplaceAll(dir, "..", "_")
}

// HashFile returns the first VersionLen hex characters of the md5 digest of
// the file content.
func HashFile(file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("could not read asset: %w", err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("could not read asset: %w", err)
	}

	return Short(hex.EncodeToString(h.Sum(nil))), nil
}

// Short truncates a hex digest to VersionLen characters.
func Short(digest string) string {
	if len(digest) > VersionLen {
		return digest[:VersionLen]
	}

	return digest
}

// Namer computes output names for files under a static root.
type Namer func(file string) (string, error)

func NewNamer(staticRoot string) Namer {
	return func(file string) (string, error) {
		p, err := Fingerprint(staticRoot, file)
		if err != nil {
			return "", err
		}

		return p.String(), nil
	}
}
