package terminal

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcess struct {
	mu     sync.Mutex
	lines  []string
	closed int
	onStop func()
	err    error
}

func (p *fakeProcess) SendLine(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, line)
	return p.err
}

func (p *fakeProcess) Close() error {
	p.mu.Lock()
	p.closed++
	stop := p.onStop
	p.mu.Unlock()
	if stop != nil {
		stop()
	}
	return nil
}

func (p *fakeProcess) sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}

func typeString(t *testing.T, tab *Tab, s string) {
	t.Helper()
	for _, r := range s {
		require.NoError(t, tab.HandleKey(Key{Kind: KeyRune, Rune: r}))
	}
}

func TestTabOutputSplitsLines(t *testing.T) {
	tab := newTab(1, "t", 100, "$ ", nil)

	tab.WriteStdout("hello ")
	tab.WriteStdout("world\nsecond")
	tab.WriteStderr(" err\n")
	tab.WriteStdout("a\r\nb")

	assert.Equal(t, "hello world\nsecond err\na\nb", tab.Text())

	lines := tab.Lines()
	require.Len(t, lines, 4)
	assert.Equal(t, Line{{Style: StyleStdout, Text: "second"}, {Style: StyleStderr, Text: " err"}}, lines[1])
}

func TestTabErrorAndBannerStartOwnLine(t *testing.T) {
	tab := newTab(1, "t", 100, "$ ", nil)
	tab.WriteStdout("partial")
	tab.WriteError("boom")
	tab.WriteBanner("Execution failed")
	tab.ShowPrompt()

	assert.Equal(t, "partial\nboom\nExecution failed\n$ ", tab.Text())
	lines := tab.Lines()
	assert.Equal(t, StyleError, lines[1][0].Style)
	assert.Equal(t, StyleBanner, lines[2][0].Style)
}

func TestTabShowPromptIsIdempotent(t *testing.T) {
	tab := newTab(1, "t", 100, "$ ", nil)
	tab.ShowPrompt()
	tab.ShowPrompt()
	assert.Equal(t, "$ ", tab.Text())

	typeString(t, tab, "ab")
	tab.ShowPrompt()
	assert.Equal(t, "$ ab\n$ ", tab.Text())
	assert.Empty(t, tab.Input())
}

func TestTabLineDiscipline(t *testing.T) {
	tab := newTab(1, "t", 100, "$ ", nil)
	proc := &fakeProcess{}
	tab.Attach(proc)
	tab.ShowPrompt()

	typeString(t, tab, "abx")
	require.NoError(t, tab.HandleKey(Key{Kind: KeyBackspace}))
	typeString(t, tab, "c")
	assert.Equal(t, "abc", tab.Input())
	assert.Equal(t, "$ abc", tab.Text())
	assert.Empty(t, proc.sent(), "no partial line is sent")

	require.NoError(t, tab.HandleKey(Key{Kind: KeyEnter}))
	assert.Equal(t, []string{"abc"}, proc.sent())
	assert.Empty(t, tab.Input())
	assert.Equal(t, "$ abc", tab.Text(), "enter echoes a newline")
	assert.Len(t, tab.Lines(), 1)
}

func TestTabBackspaceOnEmptyInput(t *testing.T) {
	tab := newTab(1, "t", 100, "$ ", nil)
	tab.ShowPrompt()

	require.NoError(t, tab.HandleKey(Key{Kind: KeyBackspace}))
	assert.Equal(t, "$ ", tab.Text())

	typeString(t, tab, "é")
	require.NoError(t, tab.HandleKey(Key{Kind: KeyBackspace}))
	assert.Equal(t, "$ ", tab.Text())
}

func TestTabIgnoresNonPrintable(t *testing.T) {
	tab := newTab(1, "t", 100, "$ ", nil)
	require.NoError(t, tab.HandleKey(Key{Kind: KeyRune, Rune: '\x07'}))
	assert.Empty(t, tab.Input())
}

func TestTabEnterWithoutProcessRedrawsPrompt(t *testing.T) {
	tab := newTab(1, "t", 100, "$ ", nil)
	tab.ShowPrompt()
	typeString(t, tab, "ls")
	require.NoError(t, tab.HandleKey(Key{Kind: KeyEnter}))

	assert.Equal(t, "$ ls\n$ ", tab.Text())
}

func TestTabEnterReturnsSendError(t *testing.T) {
	tab := newTab(1, "t", 100, "$ ", nil)
	tab.Attach(&fakeProcess{err: errors.New("not running")})
	assert.Error(t, tab.HandleKey(Key{Kind: KeyEnter}))
}

func TestTabScrollbackIsBounded(t *testing.T) {
	tab := newTab(1, "t", 3, "$ ", nil)
	for i := 0; i < 10; i++ {
		tab.WriteStdout(strings.Repeat("x", i) + "\n")
	}
	lines := tab.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "xxxxxxxxx", lines[2].Plain())
}

func TestTabClear(t *testing.T) {
	tab := newTab(1, "t", 100, "$ ", nil)
	proc := &fakeProcess{}
	tab.Attach(proc)
	tab.WriteStdout("old output\n")

	tab.Clear()

	assert.Equal(t, "$ ", tab.Text())
	assert.Equal(t, Process(proc), tab.Process())
	assert.Zero(t, proc.closed)
}

func TestTabDetachOnlyMatchingProcess(t *testing.T) {
	tab := newTab(1, "t", 100, "$ ", nil)
	first, second := &fakeProcess{}, &fakeProcess{}
	tab.Attach(first)
	tab.Attach(second)

	tab.Detach(first)
	assert.Equal(t, Process(second), tab.Process())
	tab.Detach(second)
	assert.Nil(t, tab.Process())
}

func TestTabRender(t *testing.T) {
	tab := newTab(1, "t", 100, "$ ", nil)
	tab.WriteStdout("one\ntwo\nthree\n")
	tab.ShowPrompt()

	out := tab.Render(DefaultStyles(), 2)
	assert.Contains(t, out, "three")
	assert.NotContains(t, out, "two")
}

func TestTabNotifiesOnChange(t *testing.T) {
	var ids []TabID
	tab := newTab(7, "t", 100, "$ ", func(id TabID) { ids = append(ids, id) })
	tab.WriteStdout("x")
	tab.ShowPrompt()
	assert.Equal(t, []TabID{7, 7}, ids)
}
