package execution

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/codefionn/runpad/internal/apperr"
	"github.com/codefionn/runpad/internal/logger"
	"github.com/codefionn/runpad/internal/metrics"
)

// State is the lifecycle state of an interactive session.
type State int

const (
	StateClosed State = iota
	StateConnecting
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// event drives the session state machine.
type event int

const (
	evOpen event = iota
	evEstablished
	evFailed
	evClose
)

// transition is the complete state table:
//
//	closed     --open-->        connecting
//	connecting --established--> streaming
//	connecting --failed-->      closed
//	streaming  --failed-->      closed   (socket error or remote close)
//	any        --close-->       closed
func transition(from State, ev event) (State, bool) {
	switch {
	case ev == evClose:
		return StateClosed, true
	case from == StateClosed && ev == evOpen:
		return StateConnecting, true
	case from == StateConnecting && ev == evEstablished:
		return StateStreaming, true
	case from == StateConnecting && ev == evFailed,
		from == StateStreaming && ev == evFailed:
		return StateClosed, true
	}
	return from, false
}

// Conn is one established duplex connection to the interactive service.
// ReadFrame is only called from a single goroutine; WriteText is never
// called concurrently with itself; Close may be called at any time and must
// unblock a pending ReadFrame. ReadFrame returns io.EOF on a normal close.
type Conn interface {
	WriteText(msg string) error
	ReadFrame() (string, error)
	Close() error
}

// Dialer opens connections to the interactive service for a language.
type Dialer interface {
	Dial(ctx context.Context, language string) (Conn, error)
}

// Sink receives a session's output. It is the bound terminal tab.
type Sink interface {
	WriteStdout(text string)
	WriteStderr(text string)
	WriteError(text string)
	ShowPrompt()
}

// Session is one interactive execution bound to a sink.
//
// All sink writes happen with s.mu held and after checking that the frame
// belongs to the current connection, so once Close returns the sink sees no
// further output from earlier connections.
type Session struct {
	dialer Dialer
	sink   Sink
	log    *logger.Logger

	mu     sync.Mutex
	state  State
	conn   Conn
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
	err    error
	onFail func(err error)
}

// NewSession creates a closed session writing to sink.
func NewSession(dialer Dialer, sink Sink) *Session {
	done := make(chan struct{})
	close(done)
	return &Session{
		dialer: dialer,
		sink:   sink,
		log:    logger.Global().WithPrefix("session"),
		done:   done,
	}
}

// OnFailure registers fn to run when a streaming connection fails with an
// error, after the error line and before the prompt. fn runs with the
// session lock held and must not call back into the session.
func (s *Session) OnFailure(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFail = fn
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed when the current (or last) connection reaches closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns why the last connection ended; nil for a normal end or Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// fire applies ev and reports whether it was legal. Callers hold s.mu.
func (s *Session) fire(ev event) bool {
	next, ok := transition(s.state, ev)
	if !ok {
		return false
	}
	prev := s.state
	s.state = next
	if next == StateClosed && prev != StateClosed {
		close(s.done)
	}
	return true
}

// Open dials the interactive service and sends the program source. The
// session is streaming once this returns nil. On failure the session is
// closed and nothing was written to the sink.
func (s *Session) Open(ctx context.Context, language, code string) error {
	s.mu.Lock()
	if !s.fire(evOpen) {
		state := s.state
		s.mu.Unlock()
		return apperr.Errorf(apperr.KindValidation, "session is already %s", state)
	}
	s.gen++
	gen := s.gen
	s.done = make(chan struct{})
	s.err = nil
	dialCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	conn, dialErr := s.dialer.Dial(dialCtx, language)

	s.mu.Lock()
	defer s.mu.Unlock()
	cancel()
	s.cancel = nil

	if s.gen != gen || s.state != StateConnecting {
		// closed while dialing
		if conn != nil {
			conn.Close()
		}
		return apperr.New(apperr.KindUserCancelled, "session closed while connecting")
	}
	if dialErr != nil {
		s.err = dialErr
		s.fire(evFailed)
		if ctx.Err() != nil {
			return apperr.Wrap(ctx.Err(), apperr.KindUserCancelled, "connect cancelled")
		}
		return apperr.Wrap(dialErr, apperr.KindExecutionUnavailable, "interactive service unreachable")
	}

	first, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		conn.Close()
		s.fire(evFailed)
		return apperr.Wrap(err, apperr.KindInternal, "failed to encode program")
	}
	if err := conn.WriteText(string(first)); err != nil {
		conn.Close()
		s.err = err
		s.fire(evFailed)
		return apperr.Wrap(err, apperr.KindSocket, "failed to send program")
	}

	s.fire(evEstablished)
	s.conn = conn
	metrics.SocketOpened()
	s.log.Debug("Streaming %s session (generation %d)", language, gen)

	go s.readPump(conn, gen)
	return nil
}

// SendLine writes one complete input line to the running program.
func (s *Session) SendLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateStreaming {
		return apperr.Errorf(apperr.KindValidation, "no running program (session %s)", s.state)
	}
	if err := s.conn.WriteText(line); err != nil {
		s.failLocked(err)
		return apperr.Wrap(err, apperr.KindSocket, "failed to send input")
	}
	return nil
}

// Close terminates the connection if any, moves to closed and re-displays
// the idle prompt. It is safe to call in any state.
func (s *Session) Close() error {
	s.mu.Lock()

	var conn Conn
	switch s.state {
	case StateConnecting:
		if s.cancel != nil {
			s.cancel()
		}
	case StateStreaming:
		conn = s.conn
		s.conn = nil
		metrics.SocketClosed()
	}
	s.gen++
	s.fire(evClose)
	s.sink.ShowPrompt()
	s.mu.Unlock()

	// The generation bump already drops frames from conn, so the close
	// handshake runs without the lock.
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// failLocked ends a streaming connection because of err. Callers hold s.mu.
func (s *Session) failLocked(err error) {
	s.conn.Close()
	s.conn = nil
	metrics.SocketClosed()
	s.fire(evFailed)

	if err != nil && !errors.Is(err, io.EOF) {
		s.err = err
		s.log.Warn("Interactive socket failed: %v", err)
		s.sink.WriteError(err.Error())
		if s.onFail != nil {
			s.onFail(err)
		}
	}
	s.sink.ShowPrompt()
}

func (s *Session) readPump(conn Conn, gen uint64) {
	for {
		msg, err := conn.ReadFrame()

		s.mu.Lock()
		if s.gen != gen || s.state != StateStreaming {
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.failLocked(err)
			s.mu.Unlock()
			return
		}
		s.deliverLocked(msg)
		s.mu.Unlock()
	}
}

type frame struct {
	Stdout *string `json:"stdout"`
	Stderr *string `json:"stderr"`
}

// deliverLocked writes one inbound frame. JSON objects with a stdout or
// stderr string are output fragments; anything else is shown verbatim.
func (s *Session) deliverLocked(raw string) {
	var f frame
	if err := json.Unmarshal([]byte(raw), &f); err != nil || (f.Stdout == nil && f.Stderr == nil) {
		s.sink.WriteStdout(raw)
		return
	}
	if f.Stdout != nil {
		s.sink.WriteStdout(*f.Stdout)
	}
	if f.Stderr != nil {
		s.sink.WriteStderr(*f.Stderr)
	}
}
