// Package fileutil provides file and scratch-directory utility functions.
package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sentinel errors for file utility operations.
var (
	ErrEmptyName       = errors.New("file name cannot be empty")
	ErrUnsafeName      = errors.New("file name contains path separator or null byte")
	ErrEmptyScratchDir = errors.New("scratch directory path cannot be empty")
)

// NewScratchDir creates a fresh per-run scratch directory under the system
// temp directory. The directory is owned exclusively by the current run.
func NewScratchDir(prefix string) (string, error) {
	if prefix == "" {
		prefix = "texdoctor"
	}
	dir, err := os.MkdirTemp("", prefix+"-*")
	if err != nil {
		return "", fmt.Errorf("creating scratch dir: %w", err)
	}
	return dir, nil
}

// WriteScratchFile writes content to a named file inside the scratch
// directory and returns its full path. The name must be a bare file name,
// not a path, so workers cannot escape the scratch directory.
func WriteScratchFile(dir, name, content string) (string, error) {
	if dir == "" {
		return "", ErrEmptyScratchDir
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("writing scratch file: %w", err)
	}
	return path, nil
}

// ReadFileString reads a whole file as a string. Missing files are returned
// as empty content with the error, so callers can treat absence as data.
func ReadFileString(path string) (string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the current run's scratch dir
	if err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return string(data), nil
}

// ValidateName checks that a name is safe for use inside the scratch dir.
func ValidateName(name string) error {
	if name == "" {
		return ErrEmptyName
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return ErrUnsafeName
	}
	return nil
}

// FileExists returns true if the path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// IsFilePath returns true if the string looks like a file path rather than a
// name. A string containing path separators (/, \) is treated as a path.
func IsFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}
