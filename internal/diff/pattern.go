package diff

import (
	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPattern matches every file at any depth.
const DefaultPattern = "**/*"

// matchPattern reports whether the slash-separated relative path rel
// matches pattern. "**" matches zero or more whole segments.
func matchPattern(pattern, rel string) (bool, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return false, doublestar.ErrBadPattern
	}
	return doublestar.Match(pattern, rel)
}
