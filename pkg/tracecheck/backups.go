package tracecheck

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkoosis/tracekit/pkg/rules"
	"github.com/dkoosis/tracekit/pkg/sarif"
	"github.com/dkoosis/tracekit/pkg/trace"
)

var backupSuffixes = []string{".bak", ".backup", ".old", ".orig", ".swp", ".swo", "~"}

// IsReportBackup reports whether name looks like an editor or backup copy of
// a Markdown report, such as "f1r.md~", "f1r.md.orig" or ".f1r.md.swp".
func IsReportBackup(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range backupSuffixes {
		if base, ok := strings.CutSuffix(lower, suffix); ok {
			return strings.HasSuffix(base, ".md")
		}
	}
	return false
}

// Backups walks roots and reports stray backup copies of reports. Directories
// are skipped the same way report discovery skips them.
func Backups(roots []string, cfg rules.Config) ([]sarif.Result, error) {
	c := &checker{cfg: cfg}
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != root && trace.SkipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if IsReportBackup(d.Name()) {
				c.rep = &trace.Report{Path: filepath.ToSlash(path)}
				c.add(RuleBackupCopy, 0, nil, "backup copy of a report should not be kept next to it: %s", d.Name())
			}
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return c.results, nil
}
