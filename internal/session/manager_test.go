package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codefionn/runpad/internal/apperr"
	"github.com/codefionn/runpad/internal/execution"
	"github.com/codefionn/runpad/internal/terminal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFiles map[string]string

func (f fakeFiles) Open(_ context.Context, p string) (string, error) {
	content, ok := f[p]
	if !ok {
		return "", apperr.Errorf(apperr.KindNotFound, "file not found: %s", p)
	}
	return content, nil
}

// gatedFiles blocks Open until release is closed.
type gatedFiles struct {
	fakeFiles
	opened  chan struct{}
	release chan struct{}
}

func (g *gatedFiles) Open(ctx context.Context, p string) (string, error) {
	close(g.opened)
	<-g.release
	return g.fakeFiles.Open(ctx, p)
}

type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	result  execution.Result
	err     error
	block   bool
	started chan struct{}
}

func (r *fakeRunner) Run(ctx context.Context, language, code string, timeout time.Duration) (execution.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, language+":"+code)
	r.mu.Unlock()
	if r.block {
		close(r.started)
		<-ctx.Done()
		return execution.Result{}, apperr.Wrap(ctx.Err(), apperr.KindUserCancelled, "run cancelled")
	}
	return r.result, r.err
}

// echoConn answers the program frame with a prompt and echoes every line.
type echoConn struct {
	d       *echoDialer
	frames  chan string
	readErr chan error
	closed  chan struct{}
	once    sync.Once
	gotCode bool
}

func (c *echoConn) WriteText(msg string) error {
	if !c.gotCode {
		c.gotCode = true
		c.push(map[string]string{"stdout": "name? "})
		return nil
	}
	c.push(map[string]string{"stdout": msg + "\n"})
	return nil
}

func (c *echoConn) push(v map[string]string) {
	b, _ := json.Marshal(v)
	c.frames <- string(b)
}

// exit simulates the program terminating.
func (c *echoConn) exit() {
	c.frames <- ""
}

func (c *echoConn) ReadFrame() (string, error) {
	select {
	case f := <-c.frames:
		if f == "" {
			return "", io.EOF
		}
		return f, nil
	case err := <-c.readErr:
		return "", err
	case <-c.closed:
		return "", errors.New("use of closed connection")
	}
}

func (c *echoConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.d.live.Add(-1)
	})
	return nil
}

func (c *echoConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type echoDialer struct {
	live       atomic.Int32
	overlapped atomic.Int32
	err        error

	mu    sync.Mutex
	conns []*echoConn
}

func (d *echoDialer) Dial(_ context.Context, language string) (execution.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	if d.live.Add(1) > 1 {
		d.overlapped.Add(1)
	}
	c := &echoConn{
		d:       d,
		frames:  make(chan string, 16),
		readErr: make(chan error, 1),
		closed:  make(chan struct{}),
	}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *echoDialer) conn(i int) *echoConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

type fixture struct {
	mux    *terminal.Multiplexer
	runner *fakeRunner
	dialer *echoDialer
	mgr    *Manager
	tab    terminal.TabID
}

func newFixture(files Files) *fixture {
	f := &fixture{
		mux:    terminal.NewMultiplexer(terminal.Options{Prompt: "$ "}),
		runner: &fakeRunner{},
		dialer: &echoDialer{},
	}
	f.mgr = NewManager(files, f.mux, f.runner, f.dialer, Options{BatchTimeout: time.Second})
	f.tab = f.mux.CreateTab("")
	return f
}

func (f *fixture) text() string {
	return f.mux.Tab(f.tab).Text()
}

func (f *fixture) typeLine(t *testing.T, s string) {
	t.Helper()
	for _, r := range s {
		require.NoError(t, f.mux.HandleKey(terminal.Key{Kind: terminal.KeyRune, Rune: r}))
	}
	require.NoError(t, f.mux.HandleKey(terminal.Key{Kind: terminal.KeyEnter}))
}

const greeter = "name = input('name? ')\nprint(name)\n"

func TestRunBatchSuccess(t *testing.T) {
	f := newFixture(fakeFiles{"main.py": "print(1+1)"})
	f.runner.result = execution.Result{Stdout: "2\n", Success: true}

	exec, err := f.mgr.Run(context.Background(), f.tab, "main.py")
	require.NoError(t, err)
	require.NotNil(t, exec)

	assert.Equal(t, execution.ModeBatch, exec.Mode)
	assert.Equal(t, "python", exec.Language)
	assert.NotEmpty(t, exec.ID)
	assert.Equal(t, []string{"python:print(1+1)"}, f.runner.calls)
	assert.Equal(t, "$ \nRunning main.py\n2\nExecution completed successfully\n$ ", f.text())

	_, running := f.mgr.Execution(f.tab)
	assert.False(t, running)
	assert.Nil(t, f.mux.Tab(f.tab).Process())
}

func TestRunBatchFailureKeepsOutput(t *testing.T) {
	f := newFixture(fakeFiles{"bad.py": "raise SystemExit(1)"})
	f.runner.result = execution.Result{Stdout: "partial\n", Stderr: "Traceback\nSystemExit: 1\n", Success: false}

	_, err := f.mgr.Run(context.Background(), f.tab, "bad.py")
	require.NoError(t, err)

	text := f.text()
	assert.Contains(t, text, "partial\nTraceback\nSystemExit: 1\nExecution failed\n$ ")
}

func TestRunBatchUnavailable(t *testing.T) {
	f := newFixture(fakeFiles{"main.c": "int main(){return 0;}"})
	f.runner.err = apperr.New(apperr.KindExecutionUnavailable, "execution service unreachable")

	_, err := f.mgr.Run(context.Background(), f.tab, "main.c")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindExecutionUnavailable))

	lines := f.mux.Tab(f.tab).Lines()
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "execution service unreachable", lines[len(lines)-3].Plain())
	assert.Equal(t, terminal.StyleError, lines[len(lines)-3][0].Style)
	assert.Equal(t, "Execution failed", lines[len(lines)-2].Plain())
}

func TestRunMissingFileShownInline(t *testing.T) {
	f := newFixture(fakeFiles{})

	exec, err := f.mgr.Run(context.Background(), f.tab, "ghost.py")
	assert.Nil(t, exec)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	assert.Equal(t, "$ \nfile not found: ghost.py\n$ ", f.text())
	assert.Empty(t, f.runner.calls)
}

func TestRunRejectsUnrunnableLanguage(t *testing.T) {
	f := newFixture(fakeFiles{"notes.txt": "hello"})

	_, err := f.mgr.Run(context.Background(), f.tab, "notes.txt")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Contains(t, f.text(), "cannot run plaintext files")
}

func TestRunUnknownTab(t *testing.T) {
	f := newFixture(fakeFiles{"main.py": ""})
	_, err := f.mgr.Run(context.Background(), 42, "main.py")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestStopBatchIsSilent(t *testing.T) {
	f := newFixture(fakeFiles{"slow.py": "import time; time.sleep(60)"})
	f.runner.block = true
	f.runner.started = make(chan struct{})

	type outcome struct {
		exec *Execution
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		exec, err := f.mgr.Run(context.Background(), f.tab, "slow.py")
		done <- outcome{exec, err}
	}()

	<-f.runner.started
	assert.True(t, f.mgr.Stop(f.tab))

	res := <-done
	require.NoError(t, res.err)
	require.NotNil(t, res.exec)
	assert.Equal(t, "$ \nRunning slow.py\n$ ", f.text())
	assert.False(t, f.mgr.Stop(f.tab))
}

func TestRunInteractiveEcho(t *testing.T) {
	f := newFixture(fakeFiles{"greet.py": greeter})

	exec, err := f.mgr.Run(context.Background(), f.tab, "greet.py")
	require.NoError(t, err)
	assert.Equal(t, execution.ModeInteractive, exec.Mode)
	assert.Equal(t, execution.StateStreaming, f.mgr.State(f.tab))

	assert.Eventually(t, func() bool {
		return strings.HasSuffix(f.text(), "name? ")
	}, time.Second, 5*time.Millisecond)

	f.typeLine(t, "abc")
	assert.Eventually(t, func() bool {
		return strings.HasSuffix(f.text(), "name? abc\nabc")
	}, time.Second, 5*time.Millisecond)

	f.dialer.conn(0).exit()
	assert.Eventually(t, func() bool {
		return f.mux.Tab(f.tab).Process() == nil
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "$ \nRunning greet.py\nname? abc\nabc\n$ ", f.text())
	assert.Equal(t, execution.StateClosed, f.mgr.State(f.tab))
	_, running := f.mgr.Execution(f.tab)
	assert.False(t, running)
}

func TestSecondRunClosesFirstSocket(t *testing.T) {
	f := newFixture(fakeFiles{"greet.py": greeter})

	first, err := f.mgr.Run(context.Background(), f.tab, "greet.py")
	require.NoError(t, err)
	second, err := f.mgr.Run(context.Background(), f.tab, "greet.py")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Zero(t, f.dialer.overlapped.Load(), "two live sockets on one tab")
	assert.True(t, f.dialer.conn(0).isClosed())
	assert.False(t, f.dialer.conn(1).isClosed())
	assert.Equal(t, int32(1), f.dialer.live.Load())

	current, ok := f.mgr.Execution(f.tab)
	require.True(t, ok)
	assert.Equal(t, second.ID, current.ID)
}

func TestCloseTabStopsSocket(t *testing.T) {
	f := newFixture(fakeFiles{"greet.py": greeter})
	_, err := f.mgr.Run(context.Background(), f.tab, "greet.py")
	require.NoError(t, err)

	tab := f.mux.Tab(f.tab)
	require.True(t, f.mux.CloseTab(f.tab))

	assert.True(t, f.dialer.conn(0).isClosed())
	assert.True(t, tab.Disposed())
	assert.Eventually(t, func() bool {
		_, running := f.mgr.Execution(f.tab)
		return !running
	}, time.Second, 5*time.Millisecond)
}

func TestCloseTabWhileFileLoads(t *testing.T) {
	files := &gatedFiles{
		fakeFiles: fakeFiles{"greet.py": greeter},
		opened:    make(chan struct{}),
		release:   make(chan struct{}),
	}
	f := newFixture(files)

	type outcome struct {
		exec *Execution
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		exec, err := f.mgr.Run(context.Background(), f.tab, "greet.py")
		done <- outcome{exec, err}
	}()

	<-files.opened
	require.True(t, f.mux.CloseTab(f.tab))
	close(files.release)

	res := <-done
	assert.NoError(t, res.err)
	assert.Nil(t, res.exec)
	assert.Zero(t, f.dialer.live.Load(), "socket left open for a closed tab")
	_, running := f.mgr.Execution(f.tab)
	assert.False(t, running)
}

func TestSocketErrorWritesFailureBanner(t *testing.T) {
	f := newFixture(fakeFiles{"greet.py": greeter})
	_, err := f.mgr.Run(context.Background(), f.tab, "greet.py")
	require.NoError(t, err)
	assert.Eventually(t, func() bool {
		return strings.HasSuffix(f.text(), "name? ")
	}, time.Second, 5*time.Millisecond)

	f.dialer.conn(0).readErr <- errors.New("connection reset by peer")
	assert.Eventually(t, func() bool {
		return f.mux.Tab(f.tab).Process() == nil
	}, time.Second, 5*time.Millisecond)

	lines := f.mux.Tab(f.tab).Lines()
	require.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "connection reset by peer", lines[len(lines)-3].Plain())
	assert.Equal(t, terminal.StyleError, lines[len(lines)-3][0].Style)
	assert.Equal(t, "Execution failed", lines[len(lines)-2].Plain())
	assert.Equal(t, "$ ", lines[len(lines)-1].Plain())
}

func TestInteractiveDialFailure(t *testing.T) {
	f := newFixture(fakeFiles{"greet.py": greeter})
	f.dialer.err = errors.New("connection refused")

	_, err := f.mgr.Run(context.Background(), f.tab, "greet.py")
	assert.True(t, apperr.IsKind(err, apperr.KindExecutionUnavailable))

	text := f.text()
	assert.Contains(t, text, "connection refused")
	assert.True(t, strings.HasSuffix(text, "Execution failed\n$ "))
	assert.Nil(t, f.mux.Tab(f.tab).Process())
}

func TestBatchRunRejectsInput(t *testing.T) {
	r := &run{exec: Execution{Mode: execution.ModeBatch}}
	assert.True(t, apperr.IsKind(r.SendLine("x"), apperr.KindValidation))
}

func TestStopAll(t *testing.T) {
	f := newFixture(fakeFiles{"greet.py": greeter})
	other := f.mux.CreateTab("")

	_, err := f.mgr.Run(context.Background(), f.tab, "greet.py")
	require.NoError(t, err)
	_, err = f.mgr.Run(context.Background(), other, "greet.py")
	require.NoError(t, err)

	f.mgr.StopAll()
	assert.Equal(t, int32(0), f.dialer.live.Load())
}
