package terminal

import (
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// TabID identifies a tab. IDs are never reused within a Multiplexer.
type TabID int

// Process is the execution currently bound to a tab: it receives submitted
// input lines and is torn down when the tab closes.
type Process interface {
	SendLine(line string) error
	Close() error
}

// KeyKind classifies a keystroke.
type KeyKind int

const (
	KeyRune KeyKind = iota
	KeyBackspace
	KeyEnter
)

// Key is one keystroke routed to the active tab.
type Key struct {
	Kind KeyKind
	Rune rune
}

// Tab is one terminal surface: a bounded scroll buffer, the line being
// edited and at most one attached process.
//
// A tab never calls into its process while holding its own lock, so a
// process may write to the tab while holding its own.
type Tab struct {
	id     TabID
	name   string
	prompt string
	notify func(TabID)

	mu       sync.Mutex
	scroll   *Ring[Line]
	cur      Line
	input    []rune
	atPrompt bool
	proc     Process
	closing  bool
	disposed bool
}

func newTab(id TabID, name string, capacity int, prompt string, notify func(TabID)) *Tab {
	return &Tab{
		id:     id,
		name:   name,
		prompt: prompt,
		notify: notify,
		scroll: NewRing[Line](capacity),
	}
}

// ID returns the tab ID.
func (t *Tab) ID() TabID { return t.id }

// Name returns the display name.
func (t *Tab) Name() string { return t.name }

func (t *Tab) changed() {
	if t.notify != nil {
		t.notify(t.id)
	}
}

// update runs fn under the tab lock unless the tab is disposed, then
// notifies listeners.
func (t *Tab) update(fn func()) {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	fn()
	t.mu.Unlock()
	t.changed()
}

// commitLocked moves the current line into the scroll buffer.
func (t *Tab) commitLocked() {
	t.scroll.Push(t.cur)
	t.cur = nil
	t.atPrompt = false
}

func (t *Tab) appendLocked(style Style, text string) {
	if text == "" {
		return
	}
	t.atPrompt = false
	n := len(t.cur)
	if n > 0 && t.cur[n-1].Style == style {
		t.cur[n-1].Text += text
		return
	}
	t.cur = append(t.cur, Segment{Style: style, Text: text})
}

// writeLocked appends text, committing a line at every '\n'.
func (t *Tab) writeLocked(style Style, text string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	for i, part := range parts {
		t.appendLocked(style, part)
		if i < len(parts)-1 {
			t.commitLocked()
		}
	}
}

// lineLocked writes text as whole lines of its own.
func (t *Tab) lineLocked(style Style, text string) {
	if len(t.cur) > 0 {
		t.commitLocked()
	}
	t.writeLocked(style, strings.TrimSuffix(text, "\n"))
	t.commitLocked()
}

// WriteStdout appends program output verbatim.
func (t *Tab) WriteStdout(text string) {
	t.update(func() { t.writeLocked(StyleStdout, text) })
}

// WriteStderr appends program error output verbatim.
func (t *Tab) WriteStderr(text string) {
	t.update(func() { t.writeLocked(StyleStderr, text) })
}

// WriteError appends an error-styled line.
func (t *Tab) WriteError(text string) {
	t.update(func() { t.lineLocked(StyleError, text) })
}

// WriteBanner appends a banner line.
func (t *Tab) WriteBanner(text string) {
	t.update(func() { t.lineLocked(StyleBanner, text) })
}

// ShowPrompt starts a fresh prompt line and discards unsent input. It is a
// no-op when the prompt is already showing with nothing typed.
func (t *Tab) ShowPrompt() {
	t.update(t.showPromptLocked)
}

func (t *Tab) showPromptLocked() {
	if t.atPrompt {
		return
	}
	if len(t.cur) > 0 {
		t.commitLocked()
	}
	t.input = nil
	t.appendLocked(StylePrompt, t.prompt)
	t.atPrompt = true
}

// Clear empties the scroll buffer and redraws the prompt. An attached
// process keeps running.
func (t *Tab) Clear() {
	t.update(func() {
		t.scroll.Clear()
		t.cur = nil
		t.input = nil
		t.atPrompt = false
		t.showPromptLocked()
	})
}

// Attach binds p to the tab, replacing any previous process without closing
// it. It returns false once the tab is closing; p is then not bound and the
// caller owns its teardown.
func (t *Tab) Attach(p Process) bool {
	t.mu.Lock()
	if t.closing || t.disposed {
		t.mu.Unlock()
		return false
	}
	t.proc = p
	t.mu.Unlock()
	t.changed()
	return true
}

// Detach unbinds p if it is still the attached process.
func (t *Tab) Detach(p Process) {
	t.update(func() {
		if t.proc == p {
			t.proc = nil
		}
	})
}

// Process returns the attached process, or nil.
func (t *Tab) Process() Process {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.proc
}

// HandleKey applies line discipline: printable runes are echoed into the
// input line, backspace erases one rune, and Enter submits the whole line
// to the attached process. With no process attached, Enter just redraws the
// prompt.
func (t *Tab) HandleKey(k Key) error {
	var (
		line   string
		submit bool
		proc   Process
	)

	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return nil
	}
	switch k.Kind {
	case KeyRune:
		if !unicode.IsPrint(k.Rune) {
			t.mu.Unlock()
			return nil
		}
		t.input = append(t.input, k.Rune)
		t.appendLocked(StyleInput, string(k.Rune))
	case KeyBackspace:
		if len(t.input) == 0 {
			t.mu.Unlock()
			return nil
		}
		t.input = t.input[:len(t.input)-1]
		t.eraseLocked()
	case KeyEnter:
		line = string(t.input)
		submit = true
		t.input = nil
		t.commitLocked()
		proc = t.proc
	}
	t.mu.Unlock()
	t.changed()

	if !submit {
		return nil
	}
	if proc == nil {
		t.ShowPrompt()
		return nil
	}
	return proc.SendLine(line)
}

// eraseLocked removes the last echoed input rune from the current line.
func (t *Tab) eraseLocked() {
	n := len(t.cur)
	if n == 0 || t.cur[n-1].Style != StyleInput {
		return
	}
	text := t.cur[n-1].Text
	_, size := utf8.DecodeLastRuneInString(text)
	text = text[:len(text)-size]
	if text == "" {
		t.cur = t.cur[:n-1]
		return
	}
	t.cur[n-1].Text = text
}

// Input returns the line typed since the last Enter.
func (t *Tab) Input() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.input)
}

// Lines returns the scroll buffer plus the line being written.
func (t *Tab) Lines() []Line {
	t.mu.Lock()
	defer t.mu.Unlock()
	lines := t.scroll.Items()
	if len(t.cur) > 0 {
		lines = append(lines, append(Line(nil), t.cur...))
	}
	return lines
}

// Text returns the unstyled contents, one line per row.
func (t *Tab) Text() string {
	lines := t.Lines()
	rows := make([]string, len(lines))
	for i, l := range lines {
		rows[i] = l.Plain()
	}
	return strings.Join(rows, "\n")
}

// Render returns the newest height rows rendered with styles. A height of
// zero or less renders everything.
func (t *Tab) Render(styles Styles, height int) string {
	lines := t.Lines()
	if height > 0 && len(lines) > height {
		lines = lines[len(lines)-height:]
	}
	rows := make([]string, len(lines))
	for i, l := range lines {
		rows[i] = styles.RenderLine(l)
	}
	return strings.Join(rows, "\n")
}

// Disposed reports whether the tab was closed.
func (t *Tab) Disposed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disposed
}

// shutdown closes the attached process and then releases the buffer. The
// process is closed before disposal so its final writes land in a live buffer.
func (t *Tab) shutdown() {
	t.mu.Lock()
	proc := t.proc
	t.proc = nil
	t.closing = true
	t.mu.Unlock()

	if proc != nil {
		_ = proc.Close()
	}

	t.mu.Lock()
	t.disposed = true
	t.scroll = NewRing[Line](1)
	t.cur = nil
	t.input = nil
	t.mu.Unlock()
}
