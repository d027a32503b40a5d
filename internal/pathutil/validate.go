// Package pathutil resolves user-supplied names and paths against the
// directories convbench is allowed to touch.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/convbench/internal/constants"
)

// ErrOutsideRoot is returned for paths that resolve outside every allowed
// directory.
var ErrOutsideRoot = errors.New("outside allowed directories")

// RedactPath shortens a path to .../<parent>/<basename> for messages.
// "/home/user/.convbench/config.yaml" becomes ".../.convbench/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	base := filepath.Base(cleaned)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return base
	}
	return ".../" + parent + "/" + base
}

// ValidatePath checks that path lies inside one of allowedDirs after
// cleaning and resolving symlinks. The path itself need not exist.
func ValidatePath(path string, allowedDirs []string) error {
	switch {
	case path == "":
		return errors.New("invalid path: empty")
	case len(allowedDirs) == 0:
		return errors.New("invalid path: no allowed directories configured")
	case strings.ContainsRune(path, '\x00'):
		return errors.New("invalid path: contains null byte")
	}

	abs, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	dir, err := resolveExisting(filepath.Dir(abs))
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	resolved := filepath.Join(dir, filepath.Base(abs))

	for _, allowed := range allowedDirs {
		allowedAbs, err := filepath.Abs(filepath.Clean(allowed))
		if err != nil {
			continue
		}
		root, err := resolveExisting(allowedAbs)
		if err != nil {
			continue
		}
		if within(resolved, root) {
			return nil
		}
	}
	return fmt.Errorf("invalid path: %q is %w", RedactPath(abs), ErrOutsideRoot)
}

// ResolveWithin joins name under root and returns the result if it stays
// inside root. Names such as "../x" or symlinks leading out are rejected.
func ResolveWithin(root, name string) (string, error) {
	if name == "" {
		return "", errors.New("invalid name: empty")
	}
	path := filepath.Join(root, name)
	if err := ValidatePath(path, []string{root}); err != nil {
		return "", err
	}
	return path, nil
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of
// dir and re-appends the missing tail.
func resolveExisting(dir string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(dir)
	if parent == dir {
		return "", fmt.Errorf("cannot resolve %s", RedactPath(dir))
	}
	resolved, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, filepath.Base(dir)), nil
}

// within reports whether path is base or below it.
func within(path, base string) bool {
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(os.PathSeparator))
}

// ConfigDir returns ~/.convbench.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, constants.ConfigDirName), nil
}

// DefaultCacheDir returns ~/.convbench/cache, or a .convbench/cache
// directory relative to the working directory when there is no home.
func DefaultCacheDir() string {
	dir, err := ConfigDir()
	if err != nil {
		return filepath.Join(constants.ConfigDirName, constants.CacheDirName)
	}
	return filepath.Join(dir, constants.CacheDirName)
}
