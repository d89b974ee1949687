package media

import (
	"path/filepath"
	"strings"
)

// URL converts an absolute filesystem path to a /media/ URL by matching it
// against the configured media roots. Returns "" when no root matches.
func URL(roots []string, path string) string {
	if path == "" {
		return ""
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		if strings.HasPrefix(path, root) {
			rel := strings.TrimLeft(path[len(root):], string(filepath.Separator))
			return "/media/" + filepath.ToSlash(rel)
		}
	}
	return ""
}

// UnderRoot reports whether path sits inside one of the given roots. An
// empty root list allows everything.
func UnderRoot(roots []string, path string) bool {
	if len(roots) == 0 {
		return true
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		if path == root || strings.HasPrefix(path, strings.TrimRight(root, string(filepath.Separator))+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Resolve maps a /media/ URL path back to a filesystem path, checking each
// root for an existing file. Returns "" when nothing matches or the path
// tries to climb out of the roots.
func Resolve(roots []string, urlPath string, exists func(string) bool) string {
	if strings.Contains(urlPath, "..") {
		return ""
	}
	for _, root := range roots {
		if root == "" {
			continue
		}
		candidate := filepath.Join(root, filepath.FromSlash(urlPath))
		if exists(candidate) {
			return candidate
		}
	}
	return ""
}
