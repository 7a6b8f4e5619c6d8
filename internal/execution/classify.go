// Package execution runs workspace files against the external execution
// services: one-shot batch runs over HTTP and interactive sessions over a
// websocket.
package execution

import "regexp"

// Mode is how a program is executed.
type Mode string

const (
	ModeBatch       Mode = "batch"
	ModeInteractive Mode = "interactive"
)

func (m Mode) String() string {
	return string(m)
}

var (
	cStdin    = `\bscanf\s*\(|\bgetchar\s*\(|\bgets\s*\(|\bfgets\s*\([^)]*\bstdin\b`
	cppStdin  = `\bcin\s*>>|\bgetline\s*\(\s*(std::)?cin\b`
	jsStdin   = `\breadline\b|process\.stdin|\bprompt\s*\(`
	javaStdin = `Scanner\s*\(\s*System\.in\s*\)|System\.in\.read|\breadLine\s*\(`
)

// blockingReads maps a language to a pattern for its blocking stdin reads.
var blockingReads = map[string]*regexp.Regexp{
	"python":     regexp.MustCompile(`\binput\s*\(`),
	"c":          regexp.MustCompile(cStdin),
	"cpp":        regexp.MustCompile(cppStdin + `|` + cStdin),
	"java":       regexp.MustCompile(javaStdin),
	"javascript": regexp.MustCompile(jsStdin),
	"typescript": regexp.MustCompile(jsStdin),
}

// Classify decides whether source needs an interactive session.
//
// This is a textual heuristic, not a parse: a read call inside a comment or a
// string literal selects interactive mode, and input wrapped behind a helper
// from another file is missed. Languages without a known read primitive are
// always batch.
func Classify(language, source string) Mode {
	re, ok := blockingReads[language]
	if !ok {
		return ModeBatch
	}
	if re.MatchString(source) {
		return ModeInteractive
	}
	return ModeBatch
}
