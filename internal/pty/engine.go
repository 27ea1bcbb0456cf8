package pty

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog"

	"github.com/dispatch-sh/dispatcher/internal/logger"
	"github.com/dispatch-sh/dispatcher/internal/recovery"
)

const (
	readBufferSize  = 4096
	chunkQueueDepth = 64
	// maxPoolSize caps the warm pool regardless of what WarmPool asks for.
	maxPoolSize = 3

	termGrace          = 100 * time.Millisecond
	shutdownJoinBudget = 500 * time.Millisecond
)

// OutputSink receives PTY output chunks for one terminal. Chunk boundaries
// are arbitrary; order within a terminal is preserved and each chunk is
// delivered exactly once.
type OutputSink func(data []byte)

// ExitEvent is published when a PTY's child terminates. ExitCode is nil when
// the process died abnormally or the exit status could not be collected.
type ExitEvent struct {
	TerminalID string
	ExitCode   *int
}

// router switches a reader's output between pool buffering and live
// streaming. Pooled PTYs buffer everything until adopted; adopted PTYs
// stream straight to the caller's sink.
type router struct {
	mu         sync.Mutex
	sink       OutputSink
	terminalID string
	buffer     []byte
}

func (r *router) deliver(p []byte) {
	r.mu.Lock()
	if r.sink == nil {
		r.buffer = append(r.buffer, p...)
		r.mu.Unlock()
		return
	}
	sink := r.sink
	r.mu.Unlock()
	sink(p)
}

// assign switches the router to streaming mode. When replay is true any
// buffered pool output (the initial prompt) is flushed to the sink first;
// otherwise it is discarded because a cd+clear will repaint the screen.
func (r *router) assign(terminalID string, sink OutputSink, replay bool) {
	r.mu.Lock()
	buffered := r.buffer
	r.buffer = nil
	r.terminalID = terminalID
	r.sink = sink
	r.mu.Unlock()

	if replay && len(buffered) > 0 {
		sink(buffered)
	}
}

func (r *router) assignedID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminalID
}

// session is one live PTY: master file, child process, and the reader
// plumbing that forwards output through a bounded chunk queue.
type session struct {
	ptmx         *os.File
	cmd          *exec.Cmd
	rt           *router
	chunks       chan []byte
	readerDone   chan struct{}
	dispatchDone chan struct{}
	closeOnce    sync.Once
}

// Engine owns every OS-level PTY. It is an id-keyed registry guarded by a
// lock; only Create and Close take the write path.
type Engine struct {
	log   zerolog.Logger
	shell string

	mu       sync.RWMutex
	sessions map[string]*session

	poolMu sync.Mutex
	pool   []*session

	exitCh   chan ExitEvent
	shutdown chan struct{}
	once     sync.Once
}

// NewEngine creates a PTY engine spawning the given shell command. An empty
// shell falls back to /bin/bash.
func NewEngine(shell string) *Engine {
	if shell == "" {
		shell = "/bin/bash"
	}
	return &Engine{
		log:      logger.Component("pty"),
		shell:    shell,
		sessions: make(map[string]*session),
		exitCh:   make(chan ExitEvent, chunkQueueDepth),
		shutdown: make(chan struct{}),
	}
}

// Exits returns the channel carrying one ExitEvent per terminated PTY that
// was ever adopted under a terminal id.
func (e *Engine) Exits() <-chan ExitEvent {
	return e.exitCh
}

// Create spawns (or adopts from the warm pool) a PTY for the given terminal
// id and begins forwarding its output to sink. Returns once the spawn is
// acknowledged.
func (e *Engine) Create(id, cwd string, cols, rows uint16, sink OutputSink) error {
	select {
	case <-e.shutdown:
		return ErrEngineClosed
	default:
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.sessions[id]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	// Try the pool first; even with a cwd override we can cd into place.
	if s := e.claimPooled(); s != nil {
		s.rt.assign(id, sink, cwd == "")
		if err := pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols}); err != nil {
			e.log.Warn().Err(err).Str("terminal_id", id).Msg("failed to resize adopted PTY")
		}
		e.sessions[id] = s
		if cwd != "" {
			if _, err := s.ptmx.Write([]byte(CdCommand(cwd))); err != nil {
				e.log.Warn().Err(err).Str("terminal_id", id).Msg("failed to cd adopted PTY")
			}
		}
		e.log.Debug().Str("terminal_id", id).Msg("adopted pooled PTY")
		return nil
	}

	s, err := e.spawn(cwd, cols, rows)
	if err != nil {
		return err
	}
	s.rt.assign(id, sink, false)
	e.sessions[id] = s

	e.log.Debug().Str("terminal_id", id).Str("cwd", cwd).Msg("spawned PTY")
	return nil
}

// spawn starts a fresh shell under a new PTY and wires up the reader and
// dispatch goroutines. The returned session streams nowhere until its
// router is assigned.
func (e *Engine) spawn(cwd string, cols, rows uint16) (*session, error) {
	cmd := exec.Command(e.shell)
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	if cwd != "" {
		cmd.Dir = cwd
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: rows, Cols: cols})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	s := &session{
		ptmx:         ptmx,
		cmd:          cmd,
		rt:           &router{},
		chunks:       make(chan []byte, chunkQueueDepth),
		readerDone:   make(chan struct{}),
		dispatchDone: make(chan struct{}),
	}

	recovery.SafeGoWithCleanup("pty-reader", func() {
		e.readLoop(s)
	}, func() {
		close(s.readerDone)
	})
	recovery.SafeGo("pty-dispatch", func() {
		e.dispatchLoop(s)
	})

	return s, nil
}

// readLoop blocks on the PTY master and pushes chunk copies into the
// bounded queue. A full queue blocks the read, letting the kernel PTY
// buffer apply backpressure to the child.
func (e *Engine) readLoop(s *session) {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.chunks <- chunk
		}
		if err != nil {
			close(s.chunks)
			return
		}
	}
}

// dispatchLoop drains the chunk queue into the session's router and, once
// the reader has finished, reaps the child and publishes the exit event.
func (e *Engine) dispatchLoop(s *session) {
	for chunk := range s.chunks {
		s.rt.deliver(chunk)
	}
	close(s.dispatchDone)

	var exitCode *int
	if err := s.cmd.Wait(); err == nil {
		code := 0
		exitCode = &code
	} else if s.cmd.ProcessState != nil {
		if code := s.cmd.ProcessState.ExitCode(); code >= 0 {
			exitCode = &code
		}
	}
	_ = s.ptmx.Close()

	id := s.rt.assignedID()
	if id == "" {
		// Never-adopted pool entry; nobody is listening for it.
		return
	}

	e.mu.Lock()
	if current, ok := e.sessions[id]; ok && current == s {
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	e.emitExit(ExitEvent{TerminalID: id, ExitCode: exitCode})
}

func (e *Engine) emitExit(ev ExitEvent) {
	select {
	case e.exitCh <- ev:
	default:
		e.log.Warn().Str("terminal_id", ev.TerminalID).Msg("exit channel full, dropping event")
	}
}

// Write queues bytes to the PTY master. Writes to a dead PTY fail silently;
// the session will soon be destroyed by its exit event.
func (e *Engine) Write(id string, data []byte) error {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTerminalNotFound, id)
	}
	if _, err := s.ptmx.Write(data); err != nil {
		e.log.Debug().Err(err).Str("terminal_id", id).Msg("write to dead PTY ignored")
	}
	return nil
}

// Resize applies TIOCSWINSZ to the PTY.
func (e *Engine) Resize(id string, cols, rows uint16) error {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTerminalNotFound, id)
	}
	return pty.Setsize(s.ptmx, &pty.Winsize{Rows: rows, Cols: cols})
}

// Cwd returns the current working directory of the PTY's child process,
// best-effort. Introspection failures return an empty string, never an error.
func (e *Engine) Cwd(id string) (string, error) {
	e.mu.RLock()
	s, ok := e.sessions[id]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrTerminalNotFound, id)
	}
	if s.cmd.Process == nil {
		return "", nil
	}
	return processCwd(s.cmd.Process.Pid), nil
}

// Close terminates the PTY with a SIGTERM then SIGKILL ladder, joins the
// reader, and removes the registry entry. Closing an unknown id is a no-op.
func (e *Engine) Close(id string) error {
	e.mu.Lock()
	s, ok := e.sessions[id]
	if ok {
		delete(e.sessions, id)
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}
	e.terminate(s, shutdownJoinBudget)
	e.log.Debug().Str("terminal_id", id).Msg("closed PTY")
	return nil
}

func (e *Engine) terminate(s *session, joinBudget time.Duration) {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(syscall.SIGTERM)
			select {
			case <-s.readerDone:
			case <-time.After(termGrace):
				_ = s.cmd.Process.Kill()
			}
		}
		// Closing the master unblocks a reader stuck in Read.
		_ = s.ptmx.Close()
		select {
		case <-s.dispatchDone:
		case <-time.After(joinBudget):
			e.log.Warn().Msg("PTY reader did not exit within join budget")
		}
	})
}

// WarmPool tops the pre-spawned PTY pool up to n entries (capped) in the
// background. The pool is non-essential; spawn failures only log.
func (e *Engine) WarmPool(n int) {
	if n > maxPoolSize {
		n = maxPoolSize
	}
	recovery.SafeGo("pty-warm-pool", func() {
		for {
			select {
			case <-e.shutdown:
				return
			default:
			}
			e.poolMu.Lock()
			depth := len(e.pool)
			e.poolMu.Unlock()
			if depth >= n {
				return
			}
			s, err := e.spawn("", 80, 24)
			if err != nil {
				e.log.Warn().Err(err).Msg("warm pool spawn failed")
				return
			}
			e.poolMu.Lock()
			e.pool = append(e.pool, s)
			e.poolMu.Unlock()
			e.log.Debug().Int("depth", depth+1).Msg("warmed PTY pool")
		}
	})
}

// PoolDepth reports the number of idle pre-spawned PTYs.
func (e *Engine) PoolDepth() int {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	return len(e.pool)
}

func (e *Engine) claimPooled() *session {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	for len(e.pool) > 0 {
		s := e.pool[len(e.pool)-1]
		e.pool = e.pool[:len(e.pool)-1]
		select {
		case <-s.dispatchDone:
			// Shell died while pooled; discard and keep looking.
			continue
		default:
			return s
		}
	}
	return nil
}

// Shutdown closes every PTY, joining each reader within a 500 ms budget.
func (e *Engine) Shutdown(ctx context.Context) {
	e.once.Do(func() { close(e.shutdown) })

	e.mu.Lock()
	sessions := make([]*session, 0, len(e.sessions))
	for id, s := range e.sessions {
		sessions = append(sessions, s)
		delete(e.sessions, id)
	}
	e.mu.Unlock()

	e.poolMu.Lock()
	pooled := e.pool
	e.pool = nil
	e.poolMu.Unlock()

	var wg sync.WaitGroup
	for _, s := range append(sessions, pooled...) {
		wg.Add(1)
		go func(s *session) {
			defer wg.Done()
			e.terminate(s, shutdownJoinBudget)
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		e.log.Warn().Msg("engine shutdown interrupted by context")
	}
}

// CdCommand builds the history-hygienic cd used when a PTY is adopted with a
// cwd override or when a new pane inherits a sibling's directory. The leading
// space keeps it out of shell history under HISTCONTROL=ignorespace.
func CdCommand(dir string) string {
	escaped := strings.ReplaceAll(dir, "'", `'\''`)
	return fmt.Sprintf(" cd '%s' && clear\n", escaped)
}
