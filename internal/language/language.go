// Package language maps file paths to the language identifiers used by the
// editor and the execution services.
package language

import (
	"path"
	"strings"
)

// Plaintext is returned for files without a known extension.
const Plaintext = "plaintext"

var byExtension = map[string]string{
	".py":   "python",
	".c":    "c",
	".cpp":  "cpp",
	".cc":   "cpp",
	".hpp":  "cpp",
	".js":   "javascript",
	".ts":   "typescript",
	".html": "html",
	".css":  "css",
	".json": "json",
	".java": "java",
}

// runnable lists the languages the batch execution service accepts.
var runnable = map[string]bool{
	"python":     true,
	"c":          true,
	"cpp":        true,
	"javascript": true,
	"java":       true,
}

// Detect determines the language from the file extension. Matching is
// case-insensitive on the extension only.
func Detect(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if lang, ok := byExtension[ext]; ok {
		return lang
	}
	return Plaintext
}

// Runnable reports whether files of this language can be submitted for
// execution.
func Runnable(lang string) bool {
	return runnable[lang]
}
