// Package theme resolves theme stylesheets into bundler entry points.
//
// A plugin may ship its own copy of a stylesheet or fall back to the one
// provided by the shared client tree.
package theme

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pomdtr/assetpipe/internal/utils"
)

var (
	ErrDuplicateEntry = errors.New("duplicate theme entry")
)

const (
	EntryPrefix = "themes_"
	PrintSuffix = ".print"
)

type Spec struct {
	Stylesheet      string `koanf:"stylesheet" json:"stylesheet"`
	PrintStylesheet string `koanf:"print_stylesheet" json:"print_stylesheet,omitempty"`
}

// EntryMap maps entry point names to absolute stylesheet paths.
type EntryMap map[string]string

func (m EntryMap) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// Resolve returns the shared copy of filePath when sharedClientPath is set,
// the root tree lacks the file and the shared tree has it. Otherwise the root
// path is returned, whether it exists or not.
func Resolve(rootPath, sharedClientPath, filePath string) string {
	sharedPath := filepath.Join(sharedClientPath, filePath)
	rootCandidate := filepath.Join(rootPath, filePath)

	if sharedClientPath != "" && !utils.FileExists(rootCandidate) && utils.FileExists(sharedPath) {
		return sharedPath
	}

	return rootCandidate
}

func EntryName(key string) string {
	return EntryPrefix + strings.ReplaceAll(key, "-", "_")
}

// EntryPoints builds the entry map for every theme. Stylesheet paths are
// appended to prefix as-is.
func EntryPoints(themes map[string]Spec, rootPath, sharedClientPath, prefix string) (EntryMap, error) {
	keys := make([]string, 0, len(themes))
	for key := range themes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	entries := make(EntryMap)
	owners := make(map[string]string)

	add := func(key, name, stylesheet string) error {
		if owner, ok := owners[name]; ok {
			return fmt.Errorf("%w: %q and %q both map to %s", ErrDuplicateEntry, owner, key, name)
		}

		owners[name] = key
		entries[name] = Resolve(rootPath, sharedClientPath, prefix+stylesheet)
		return nil
	}

	for _, key := range keys {
		spec := themes[key]
		if spec.Stylesheet == "" {
			return nil, fmt.Errorf("theme %s has no stylesheet", key)
		}

		name := EntryName(key)
		if err := add(key, name, spec.Stylesheet); err != nil {
			return nil, err
		}

		if spec.PrintStylesheet != "" {
			if err := add(key, name+PrintSuffix, spec.PrintStylesheet); err != nil {
				return nil, err
			}
		}
	}

	return entries, nil
}
