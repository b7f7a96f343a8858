package grants

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizePath returns the key a grant for path is stored under: absolute,
// cleaned and NFC-normalized (macOS file systems hand out decomposed names).
func NormalizePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", path, err)
	}

	return norm.NFC.String(filepath.Clean(abs)), nil
}
