package utils

import (
	"os"
	"path/filepath"
)

func FileExists(parts ...string) bool {
	info, err := os.Stat(filepath.Join(parts...))
	return err == nil && !info.IsDir()
}

func DirExists(parts ...string) bool {
	info, err := os.Stat(filepath.Join(parts...))
	return err == nil && info.IsDir()
}

// WriteFileAtomic writes data to a temporary file next to fp and renames it
// into place.
func WriteFileAtomic(fp string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(fp), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(fp), "."+filepath.Base(fp)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Chmod(tmp, perm); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, fp)
}
