package workspace

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/codefionn/runpad/internal/apperr"
)

// DefaultMaxImportSize is the largest file ImportDir reads.
const DefaultMaxImportSize = 1 << 20

var binaryExtensions = map[string]struct{}{
	".exe":   {},
	".dll":   {},
	".so":    {},
	".dylib": {},
	".a":     {},
	".o":     {},
	".obj":   {},
	".class": {},
	".wasm":  {},
	".png":   {},
	".jpg":   {},
	".gif":   {},
	".zip":   {},
}

// ImportOptions controls ImportDir.
type ImportOptions struct {
	// Prefix is prepended to every imported path.
	Prefix string
	// MaxFileSize skips larger files. Zero means DefaultMaxImportSize.
	MaxFileSize int64
	// NoGitignore disables .gitignore handling at the import root.
	NoGitignore bool
}

// ImportResult summarizes an ImportDir call.
type ImportResult struct {
	Imported int
	Skipped  []string
}

// ImportDir reads every text file under root into the local store with a
// single AddMany. The .git directory, binaries, oversized files and paths
// excluded by root/.gitignore are skipped.
func (w *Workspace) ImportDir(ctx context.Context, root string, opts ImportOptions) (ImportResult, error) {
	var res ImportResult

	info, err := os.Stat(root)
	if err != nil {
		return res, apperr.Wrapf(err, apperr.KindNotFound, "cannot import %s", root)
	}
	if !info.IsDir() {
		return res, apperr.Errorf(apperr.KindValidation, "%s is not a directory", root)
	}

	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxImportSize
	}

	ignore := &ignoreRules{}
	if !opts.NoGitignore {
		ignore, err = loadIgnoreFile(filepath.Join(root, ".gitignore"))
		if err != nil {
			w.log.Warn("Failed to read .gitignore in %s: %v", root, err)
			ignore = &ignoreRules{}
		}
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if d.Name() == ".git" || ignore.Ignored(rel, true) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignore.Ignored(rel, false) {
			return nil
		}

		content, ok, err := readTextFile(p, maxSize)
		if err != nil {
			return err
		}
		if !ok {
			res.Skipped = append(res.Skipped, rel)
			return nil
		}
		entries = append(entries, Entry{Path: JoinPath(CleanPath(opts.Prefix), rel), Content: content})
		return nil
	})
	if err != nil {
		return res, err
	}

	w.AddMany(entries)
	res.Imported = len(entries)
	w.log.Info("Imported %d files from %s (%d skipped)", res.Imported, root, len(res.Skipped))
	return res, nil
}

// ImportFile reads one file from disk into the local store under name.
func (w *Workspace) ImportFile(name, diskPath string) error {
	content, ok, err := readTextFile(diskPath, DefaultMaxImportSize)
	if err != nil {
		return apperr.Wrapf(err, apperr.KindNotFound, "cannot read %s", diskPath)
	}
	if !ok {
		return apperr.Errorf(apperr.KindValidation, "%s is binary or too large", diskPath)
	}
	return w.Create(name, content)
}

// readTextFile returns ok=false for binary or oversized files.
func readTextFile(p string, maxSize int64) (string, bool, error) {
	if _, bin := binaryExtensions[strings.ToLower(filepath.Ext(p))]; bin {
		return "", false, nil
	}

	info, err := os.Stat(p)
	if err != nil {
		return "", false, err
	}
	if info.Size() > maxSize {
		return "", false, nil
	}

	data, err := os.ReadFile(p)
	if err != nil {
		return "", false, err
	}
	if hasBinaryContent(data) || !utf8.Valid(data) {
		return "", false, nil
	}
	return string(data), true, nil
}

// hasBinaryContent looks for NUL bytes in the first 512 bytes.
func hasBinaryContent(data []byte) bool {
	n := len(data)
	if n > 512 {
		n = 512
	}
	for i := 0; i < n; i++ {
		if data[i] == 0 {
			return true
		}
	}
	return false
}
