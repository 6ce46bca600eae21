package utils

import (
	"os"
	"path/filepath"
)

var ConfigNames = []string{"assetpipe.jsonc", "assetpipe.json", "assetpipe.yaml", "assetpipe.yml"}

// FindConfigPath returns the first config file found in dir, or the default
// jsonc location when none exists.
func FindConfigPath(dir string) string {
	for _, candidate := range ConfigNames {
		configPath := filepath.Join(dir, candidate)
		if FileExists(configPath) {
			return configPath
		}
	}

	return filepath.Join(dir, ConfigNames[0])
}

// FindProjectDir walks up from the working directory until a config file is
// found.
func FindProjectDir() string {
	currentDir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		for _, candidate := range ConfigNames {
			if FileExists(currentDir, candidate) {
				return currentDir
			}
		}

		parent := filepath.Dir(currentDir)
		if parent == currentDir {
			return ""
		}
		currentDir = parent
	}
}
