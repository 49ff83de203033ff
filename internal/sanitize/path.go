package sanitize

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrPathTraversal indicates a path contains ".." segments.
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrNotDirectory indicates the content root is not a directory.
	ErrNotDirectory = errors.New("path is not a directory")
)

// ValidateContentRoot cleans root, resolves it to an absolute path, and
// checks that it is an existing directory without traversal segments.
func ValidateContentRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", ErrEmptyPath
	}
	for _, seg := range strings.FieldsFunc(filepath.ToSlash(root), func(r rune) bool { return r == '/' }) {
		if seg == ".." {
			return "", fmt.Errorf("%w: %s", ErrPathTraversal, root)
		}
	}

	abs, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat content root: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, abs)
	}
	return abs, nil
}

const (
	// MaxIdentifierLength is the longest collection name chromem accepts here.
	MaxIdentifierLength = 64

	// DefaultIdentifier is used when sanitization leaves nothing.
	DefaultIdentifier = "default"

	hashSuffixLength = 9 // "_" + 8 hex chars
)

var (
	invalidIdentChars = regexp.MustCompile(`[^a-z0-9_]+`)
	repeatedUnder     = regexp.MustCompile(`_{2,}`)
)

// Identifier turns s into a collection-safe name matching ^[a-z0-9_]{1,64}$.
// Long names keep a hash suffix of the original for uniqueness.
//
//	"/srv/StudentManagement" -> "srv_studentmanagement"
//	"" or "!!!"              -> "default"
func Identifier(s string) string {
	out := invalidIdentChars.ReplaceAllString(strings.ToLower(s), "_")
	out = strings.Trim(repeatedUnder.ReplaceAllString(out, "_"), "_")
	if out == "" {
		return DefaultIdentifier
	}
	if len(out) <= MaxIdentifierLength {
		return out
	}

	sum := sha256.Sum256([]byte(out))
	base := strings.TrimRight(out[:MaxIdentifierLength-hashSuffixLength], "_")
	return base + "_" + hex.EncodeToString(sum[:])[:8]
}
