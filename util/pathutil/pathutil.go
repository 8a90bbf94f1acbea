// Package pathutil resolves user-supplied paths (config values, flags) into
// absolute ones.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Expand expands a leading ~ and environment variables and returns an
// absolute path.
func Expand(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	path = os.ExpandEnv(path)
	return filepath.Abs(path)
}

// CanonicalPath returns the absolute, symlink-resolved path with the case
// stored on disk, so two spellings of one repository compare equal. Paths
// that do not exist are returned absolute but otherwise unchanged.
func CanonicalPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		resolved = absPath
	}

	// Only case-insensitive filesystems need the walk below.
	if runtime.GOOS != "darwin" && runtime.GOOS != "windows" {
		return resolved, nil
	}

	volume := filepath.VolumeName(resolved)
	rest := strings.TrimPrefix(resolved[len(volume):], string(filepath.Separator))
	result := volume + string(filepath.Separator)
	for _, part := range strings.Split(rest, string(filepath.Separator)) {
		if part == "" {
			continue
		}
		next := filepath.Join(result, part)
		if entries, err := os.ReadDir(result); err == nil {
			for _, entry := range entries {
				if strings.EqualFold(entry.Name(), part) {
					next = filepath.Join(result, entry.Name())
					break
				}
			}
		}
		result = next
	}
	return result, nil
}
