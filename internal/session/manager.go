// Package session binds program executions to terminal tabs: it opens the
// file, picks batch or interactive mode and routes output to the tab.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codefionn/runpad/internal/apperr"
	"github.com/codefionn/runpad/internal/execution"
	"github.com/codefionn/runpad/internal/language"
	"github.com/codefionn/runpad/internal/logger"
	"github.com/codefionn/runpad/internal/metrics"
	"github.com/codefionn/runpad/internal/terminal"
	"github.com/google/uuid"
)

const (
	bannerSuccess = "Execution completed successfully"
	bannerFailure = "Execution failed"
)

// Files resolves program sources. *workspace.Workspace satisfies it.
type Files interface {
	Open(ctx context.Context, p string) (string, error)
}

// Tabs looks up terminal tabs. *terminal.Multiplexer satisfies it.
type Tabs interface {
	Tab(id terminal.TabID) *terminal.Tab
}

// Runner executes whole programs. *execution.BatchRunner satisfies it.
type Runner interface {
	Run(ctx context.Context, language, code string, timeout time.Duration) (execution.Result, error)
}

// Options configures a Manager.
type Options struct {
	BatchTimeout time.Duration
}

// Execution describes one run bound to a tab.
type Execution struct {
	ID       string
	Tab      terminal.TabID
	Path     string
	Language string
	Mode     execution.Mode
	Started  time.Time
}

// Manager starts and stops runs. Each tab has at most one run; starting a
// new one closes the previous run first.
type Manager struct {
	files   Files
	tabs    Tabs
	batch   Runner
	dialer  execution.Dialer
	timeout time.Duration
	log     *logger.Logger

	mu   sync.Mutex
	runs map[terminal.TabID]*run
}

// NewManager creates a Manager.
func NewManager(files Files, tabs Tabs, batch Runner, dialer execution.Dialer, opts Options) *Manager {
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = execution.DefaultBatchTimeout
	}
	return &Manager{
		files:   files,
		tabs:    tabs,
		batch:   batch,
		dialer:  dialer,
		timeout: opts.BatchTimeout,
		log:     logger.Global().WithPrefix("runs"),
		runs:    make(map[terminal.TabID]*run),
	}
}

// run is the tab's view of an execution. It is attached to the tab as its
// process, so closing the tab tears the execution down.
type run struct {
	exec   Execution
	tab    *terminal.Tab
	cancel context.CancelFunc
	sess   *execution.Session // nil in batch mode

	mu       sync.Mutex
	closed   bool
	recorded bool
}

func (r *run) SendLine(line string) error {
	if r.sess == nil {
		return apperr.New(apperr.KindValidation, "batch programs do not read input")
	}
	return r.sess.SendLine(line)
}

// Close stops the execution. Batch output that arrives afterwards is dropped.
func (r *run) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.cancel()
	if r.sess != nil {
		return r.sess.Close()
	}
	r.tab.ShowPrompt()
	return nil
}

// write runs fn unless the run was closed.
func (r *run) write(fn func(t *terminal.Tab)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		fn(r.tab)
	}
}

func (r *run) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// record reports the outcome once.
func (r *run) record(outcome string) {
	r.mu.Lock()
	done := r.recorded
	r.recorded = true
	r.mu.Unlock()
	if !done {
		metrics.RecordRun(string(r.exec.Mode), outcome)
	}
}

// Run executes the file at p in tab id. Batch runs block until the result
// is written; interactive runs return once the socket is streaming.
// Failures are written to the tab and returned, except cancellation, which
// returns the execution and a nil error.
func (m *Manager) Run(ctx context.Context, id terminal.TabID, p string) (*Execution, error) {
	tab := m.tabs.Tab(id)
	if tab == nil {
		return nil, apperr.Errorf(apperr.KindValidation, "no such tab: %d", id)
	}
	m.Stop(id)

	code, err := m.files.Open(ctx, p)
	if err != nil {
		if apperr.IsKind(err, apperr.KindUserCancelled) {
			return nil, nil
		}
		tab.WriteError(err.Error())
		tab.ShowPrompt()
		return nil, err
	}

	lang := language.Detect(p)
	if !language.Runnable(lang) {
		err := apperr.Errorf(apperr.KindValidation, "cannot run %s files: %s", lang, p)
		tab.WriteError(err.Error())
		tab.ShowPrompt()
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &run{
		exec: Execution{
			ID:       uuid.NewString(),
			Tab:      id,
			Path:     p,
			Language: lang,
			Mode:     execution.Classify(lang, code),
			Started:  time.Now(),
		},
		tab:    tab,
		cancel: cancel,
	}
	if r.exec.Mode == execution.ModeInteractive {
		r.sess = execution.NewSession(m.dialer, tab)
		r.sess.OnFailure(func(error) {
			r.write(func(t *terminal.Tab) { t.WriteBanner(bannerFailure) })
		})
	}

	m.mu.Lock()
	prev := m.runs[id]
	m.runs[id] = r
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	if !tab.Attach(r) {
		// closed while the file was loading
		m.release(r)
		r.Close()
		return nil, nil
	}

	m.log.Info("Run %s: %s (%s, %s)", r.exec.ID, p, lang, r.exec.Mode)
	r.write(func(t *terminal.Tab) { t.WriteBanner(fmt.Sprintf("Running %s", p)) })

	exec := r.exec
	if r.sess == nil {
		err = m.runBatch(runCtx, r, code)
	} else {
		err = m.runInteractive(runCtx, r, code)
	}
	if apperr.IsKind(err, apperr.KindUserCancelled) {
		return &exec, nil
	}
	return &exec, err
}

func (m *Manager) runBatch(ctx context.Context, r *run, code string) error {
	defer m.release(r)

	res, err := m.batch.Run(ctx, r.exec.Language, code, m.timeout)
	if err != nil {
		if apperr.IsKind(err, apperr.KindUserCancelled) || r.isClosed() {
			r.record("cancelled")
			return apperr.Wrap(err, apperr.KindUserCancelled, "run stopped")
		}
		m.log.Warn("Batch run %s failed: %v", r.exec.ID, err)
		r.record("error")
		r.write(func(t *terminal.Tab) {
			t.WriteError(err.Error())
			t.WriteBanner(bannerFailure)
			t.ShowPrompt()
		})
		return err
	}

	outcome, banner := "success", bannerSuccess
	if !res.Success {
		outcome, banner = "failure", bannerFailure
	}
	r.record(outcome)
	r.write(func(t *terminal.Tab) {
		t.WriteStdout(res.Stdout)
		t.WriteStderr(res.Stderr)
		t.WriteBanner(banner)
		t.ShowPrompt()
	})
	return nil
}

func (m *Manager) runInteractive(ctx context.Context, r *run, code string) error {
	err := r.sess.Open(ctx, r.exec.Language, code)
	if err == nil && r.isClosed() {
		// stopped before Open registered the connection
		r.sess.Close()
		err = apperr.New(apperr.KindUserCancelled, "run stopped")
	}
	if err != nil {
		m.release(r)
		if apperr.IsKind(err, apperr.KindUserCancelled) {
			r.record("cancelled")
			return err
		}
		m.log.Warn("Interactive run %s failed to start: %v", r.exec.ID, err)
		r.record("error")
		r.write(func(t *terminal.Tab) {
			t.WriteError(err.Error())
			t.WriteBanner(bannerFailure)
			t.ShowPrompt()
		})
		return err
	}

	done := r.sess.Done()
	go func() {
		<-done
		m.release(r)
		switch {
		case r.isClosed():
			r.record("cancelled")
		case r.sess.Err() != nil:
			r.record("error")
		default:
			r.record("success")
		}
		m.log.Debug("Interactive run %s ended", r.exec.ID)
	}()
	return nil
}

// release forgets r if it is still the tab's run.
func (m *Manager) release(r *run) {
	r.cancel()
	m.mu.Lock()
	if m.runs[r.exec.Tab] == r {
		delete(m.runs, r.exec.Tab)
	}
	m.mu.Unlock()
	r.tab.Detach(r)
}

// Stop closes the run bound to tab id. It reports whether there was one.
func (m *Manager) Stop(id terminal.TabID) bool {
	m.mu.Lock()
	r := m.runs[id]
	delete(m.runs, id)
	m.mu.Unlock()
	if r == nil {
		return false
	}
	r.tab.Detach(r)
	if err := r.Close(); err != nil {
		m.log.Debug("Closing run %s: %v", r.exec.ID, err)
	}
	return true
}

// StopAll closes every run.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]terminal.TabID, 0, len(m.runs))
	for id := range m.runs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Stop(id)
	}
}

// Execution returns the run bound to tab id.
func (m *Manager) Execution(id terminal.TabID) (Execution, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return Execution{}, false
	}
	return r.exec, true
}

// State returns the socket state of tab id's run; batch runs and idle tabs
// report closed.
func (m *Manager) State(id terminal.TabID) execution.State {
	m.mu.Lock()
	r := m.runs[id]
	m.mu.Unlock()
	if r == nil || r.sess == nil {
		return execution.StateClosed
	}
	return r.sess.State()
}
