package trace

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var skipDirs = map[string]struct{}{".git": {}, "node_modules": {}, "vendor": {}, ".idea": {}, ".vscode": {}}

// SkipDir reports whether a directory named name is left out of discovery.
func SkipDir(name string) bool {
	if _, ok := skipDirs[name]; ok {
		return true
	}
	return strings.HasPrefix(name, ".")
}

// Discover expands roots into a sorted, de-duplicated list of Markdown files.
// Directories are walked, skipping hidden and vendored trees; files are kept
// when they carry a .md extension.
func Discover(roots []string) ([]string, error) {
	seen := map[string]struct{}{}
	var files []string

	add := func(path string) {
		if !strings.EqualFold(filepath.Ext(path), ".md") {
			return
		}
		if _, ok := seen[path]; ok {
			return
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && SkipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Strings(files)
	return files, nil
}
