package intake

import (
	"path/filepath"
	"strings"
)

// IsHidden checks if a file or directory is hidden (starts with '.').
// Partial downloads are hidden, so they never reach the parser.
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".")
}
