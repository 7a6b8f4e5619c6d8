package workspace

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"
)

// ignoreRules is an ordered list of .gitignore patterns; the last matching
// rule decides, so a later "!pattern" can re-include a path.
type ignoreRules struct {
	rules []ignoreRule
}

type ignoreRule struct {
	re      *regexp.Regexp
	negate  bool
	dirOnly bool
}

// loadIgnoreFile reads a .gitignore. A missing file yields empty rules.
func loadIgnoreFile(name string) (*ignoreRules, error) {
	f, err := os.Open(name)
	if err != nil {
		if os.IsNotExist(err) {
			return &ignoreRules{}, nil
		}
		return nil, err
	}
	defer f.Close()
	return parseIgnore(f)
}

func parseIgnore(r io.Reader) (*ignoreRules, error) {
	out := &ignoreRules{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var rule ignoreRule
		if strings.HasPrefix(line, "!") {
			rule.negate = true
			line = line[1:]
		}
		if strings.HasSuffix(line, "/") {
			rule.dirOnly = true
			line = strings.TrimSuffix(line, "/")
		}
		if line == "" {
			continue
		}

		re, err := regexp.Compile(globToRegexp(line))
		if err != nil {
			continue
		}
		rule.re = re
		out.rules = append(out.rules, rule)
	}
	return out, scanner.Err()
}

// globToRegexp translates one gitignore glob. Patterns with a leading '/'
// are anchored at the import root; others match at any depth.
func globToRegexp(glob string) string {
	anchored := strings.HasPrefix(glob, "/")
	glob = strings.TrimPrefix(glob, "/")

	re := regexp.QuoteMeta(glob)
	re = strings.ReplaceAll(re, `\*\*`, ".*")
	re = strings.ReplaceAll(re, `\*`, "[^/]*")
	re = strings.ReplaceAll(re, `\?`, "[^/]")

	if anchored {
		re = "^" + re
	} else {
		re = "(^|/)" + re
	}
	return re + "($|/)"
}

// Ignored reports whether rel ('/'-separated, relative to the import root)
// is excluded.
func (r *ignoreRules) Ignored(rel string, isDir bool) bool {
	if r == nil {
		return false
	}
	rel = strings.TrimPrefix(rel, "./")

	ignored := false
	for _, rule := range r.rules {
		if rule.dirOnly && !isDir {
			continue
		}
		if rule.re.MatchString(rel) {
			ignored = !rule.negate
		}
	}
	return ignored
}
