package files

import (
	"os"
	"path/filepath"
)

// FindUp looks for name in dir and each of its parents, returning the first match or "".
// name may contain separators, e.g. "dist/calculator-cli".
func FindUp(name, dir string) string {
	curDir := dir
	for {
		candidate := filepath.Join(curDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		newDir := filepath.Dir(curDir)
		if newDir == curDir {
			return ""
		}
		curDir = newDir
	}
}

// ResolveCLIPath makes a relative executable path absolute, searching dir and its parents for it.
// If nothing is found the path is resolved against dir, so spawn errors name a concrete location.
// Bare names are returned unchanged and left to the PATH lookup.
func ResolveCLIPath(path, dir string) string {
	if filepath.IsAbs(path) || filepath.Base(path) == path {
		return path
	}
	if found := FindUp(path, dir); found != "" {
		return found
	}
	return filepath.Join(dir, path)
}
