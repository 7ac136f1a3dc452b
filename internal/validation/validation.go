// Package validation provides input checks shared by the storage and index
// layers: path containment under a storage root, content sniffing for
// compressed sources and bounds on numeric query arguments.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	apperrors "github.com/gremid/faust-app/core/errors"
)

const (
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
	// MaxLimit caps result sizes requested from the index.
	MaxLimit = 10000
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
)

// SanitizePath validates a path relative to baseDir and ensures it does not
// escape it. Returns the cleaned relative path.
func SanitizePath(baseDir, userPath string) (string, error) {
	if err := ValidatePath(userPath); err != nil {
		return "", err
	}

	cleanPath := filepath.Clean(filepath.FromSlash(userPath))

	// Reject paths that try to escape the base directory
	for _, part := range strings.Split(cleanPath, string(filepath.Separator)) {
		if part == ".." {
			return "", ErrPathTraversal
		}
	}
	if filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(baseDir, cleanPath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	relPath, err := filepath.Rel(absBase, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	return cleanPath, nil
}

// IsPathSafe is SanitizePath reduced to a boolean.
func IsPathSafe(baseDir, userPath string) bool {
	_, err := SanitizePath(baseDir, userPath)
	return err == nil
}

// ValidatePath checks length limits and rejects null bytes and control
// characters.
func ValidatePath(path string) error {
	if path == "" {
		return ErrEmptyPath
	}
	if len(path) > MaxPathLength {
		return ErrPathTooLong
	}
	if strings.Contains(path, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}
	for _, r := range path {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}
	return nil
}

var xzMagic = []byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}

// IsXZ reports whether header starts with the xz stream magic.
func IsXZ(header []byte) bool {
	return bytes.HasPrefix(header, xzMagic)
}

// Positive returns a validation error unless n > 0.
func Positive(field string, n int) error {
	if n <= 0 {
		err := apperrors.NewValidation(field, "must be a positive integer")
		err.Value = fmt.Sprint(n)
		return err
	}
	return nil
}

// Limit checks a result limit against MaxLimit.
func Limit(n int) error {
	if err := Positive("limit", n); err != nil {
		return err
	}
	if n > MaxLimit {
		err := apperrors.NewValidation("limit", fmt.Sprintf("must not exceed %d", MaxLimit))
		err.Value = fmt.Sprint(n)
		return err
	}
	return nil
}
