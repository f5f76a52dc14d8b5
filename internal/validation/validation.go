// Package validation checks names and sizes that come from documents or
// users before they touch the filesystem.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/FocuswithJustin/folio/core/errors"
)

const (
	// MaxInputSize is the largest file LoadFile reads (256 MB).
	MaxInputSize = 256 << 20
	// MaxFilenameLength is the maximum length of one path element.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum length of a relative part name.
	MaxPathLength = 4096
)

// Validation errors. All of them match errors.ErrInvalidInput.
var (
	ErrPathTraversal   = fmt.Errorf("%w: path traversal detected", errors.ErrInvalidInput)
	ErrInvalidFilename = fmt.Errorf("%w: invalid filename", errors.ErrInvalidInput)
	ErrPathTooLong     = fmt.Errorf("%w: path too long", errors.ErrInvalidInput)
	ErrEmptyPath       = fmt.Errorf("%w: path cannot be empty", errors.ErrInvalidInput)
	ErrTooLarge        = fmt.Errorf("%w: input too large", errors.ErrInvalidInput)
)

// SanitizePath cleans a slash-separated part name and returns the path
// of the part inside baseDir. Names that are absolute or escape baseDir
// are rejected.
func SanitizePath(baseDir, name string) (string, error) {
	if name == "" {
		return "", ErrEmptyPath
	}
	if len(name) > MaxPathLength {
		return "", ErrPathTooLong
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || strings.HasPrefix(name, "/") || filepath.VolumeName(clean) != "" {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	for _, elem := range strings.Split(clean, string(filepath.Separator)) {
		if err := ValidateFilename(elem); err != nil {
			return "", err
		}
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("resolve base directory: %w", err)
	}
	full := filepath.Join(absBase, clean)
	rel, err := filepath.Rel(absBase, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return filepath.Join(baseDir, clean), nil
}

// ValidateFilename checks a single path element.
func ValidateFilename(name string) error {
	switch {
	case name == "":
		return ErrInvalidFilename
	case len(name) > MaxFilenameLength:
		return fmt.Errorf("%w: filename too long", ErrInvalidFilename)
	case name == "." || name == "..":
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	return nil
}

// CheckSize rejects inputs larger than MaxInputSize.
func CheckSize(path string, size int64) error {
	if size > MaxInputSize {
		return fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrTooLarge, path, size, MaxInputSize)
	}
	return nil
}
