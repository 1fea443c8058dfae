package isolation

import (
	"os"
	"path/filepath"
	"strings"
)

const maxSymlinkDepth = 40

// IsPathAllowed reports whether a tool may touch path. The path is made
// absolute (relative paths are taken from the isolated working directory)
// and resolved through symlinks and ".." segments before any prefix test.
// Rules, in order: the context's own root is allowed; denied prefixes are
// rejected; allowed prefixes are accepted; anything else is rejected.
func (c *Context) IsPathAllowed(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	if !filepath.IsAbs(path) {
		path = c.WorkspacePath() + string(filepath.Separator) + path
	}
	resolved := canonical(path)

	if within(resolved, canonical(c.Root)) {
		return true
	}
	for _, denied := range c.Config.DeniedPaths {
		if within(resolved, canonical(denied)) {
			return false
		}
	}
	for _, allowed := range c.Config.AllowedPaths {
		if within(resolved, canonical(allowed)) {
			return true
		}
	}
	return false
}

// canonical resolves path one component at a time the way the kernel would:
// a symlink is replaced by its target before a following ".." is applied.
// Components that do not exist are kept as written.
func canonical(path string) string {
	if !filepath.IsAbs(path) {
		if wd, err := os.Getwd(); err == nil {
			path = wd + string(filepath.Separator) + path
		}
	}
	return resolve(path, 0)
}

func resolve(path string, depth int) string {
	sep := string(filepath.Separator)
	cur := sep
	for _, part := range strings.Split(path, sep) {
		switch part {
		case "", ".":
			continue
		case "..":
			cur = filepath.Dir(cur)
			continue
		}

		next := filepath.Join(cur, part)
		info, err := os.Lstat(next)
		if err != nil || info.Mode()&os.ModeSymlink == 0 || depth >= maxSymlinkDepth {
			cur = next
			continue
		}
		target, err := os.Readlink(next)
		if err != nil {
			cur = next
			continue
		}
		if !filepath.IsAbs(target) {
			target = cur + sep + target
		}
		cur = resolve(target, depth+1)
	}
	return cur
}

func within(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}
