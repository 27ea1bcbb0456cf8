package handlers

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/dispatch-sh/dispatcher/internal/logger"
	"github.com/dispatch-sh/dispatcher/internal/models"
	"github.com/dispatch-sh/dispatcher/internal/pty"
	"github.com/dispatch-sh/dispatcher/internal/recovery"
	"github.com/dispatch-sh/dispatcher/internal/shellintegration"
	"github.com/dispatch-sh/dispatcher/internal/workspace"
)

// maxReplayBuffer bounds the per-terminal scrollback replayed to a socket
// that attaches after output already flowed.
const maxReplayBuffer = 256 * 1024

// TerminalHub wires every live terminal: engine output flows through shell
// integration into per-terminal subscriber lists, and status transitions
// flow into the workspace and the event bus. It is the workspace's PTY
// runtime.
type TerminalHub struct {
	engine *pty.Engine
	shell  *shellintegration.Manager
	events *EventBus
	log    zerolog.Logger

	mu      sync.Mutex
	subs    map[string]map[chan []byte]struct{}
	replay  map[string][]byte
	statusW *workspace.Workspace
}

// NewTerminalHub creates a hub over an engine and event bus.
func NewTerminalHub(engine *pty.Engine, events *EventBus) *TerminalHub {
	return &TerminalHub{
		engine: engine,
		shell:  shellintegration.NewManager(),
		events: events,
		log:    logger.Component("hub"),
		subs:   make(map[string]map[chan []byte]struct{}),
		replay: make(map[string][]byte),
	}
}

// BindWorkspace points status transitions at the workspace store. Called
// once during server assembly, before any terminal exists.
func (h *TerminalHub) BindWorkspace(ws *workspace.Workspace) {
	h.mu.Lock()
	h.statusW = ws
	h.mu.Unlock()
}

// Create spawns (or adopts) a PTY and installs the processing pipeline for
// it, then injects the shell hooks.
func (h *TerminalHub) Create(id, cwd string, cols, rows uint16) error {
	sink := h.shell.Attach(id,
		func(p []byte) { h.broadcast(id, p) },
		func(p []byte) {
			if err := h.engine.Write(id, p); err != nil {
				h.log.Debug().Err(err).Str("terminal_id", id).Msg("hook write failed")
			}
		},
		func(status models.SessionStatus, exitCode *int) { h.onStatus(id, status, exitCode) },
	)
	if err := h.engine.Create(id, cwd, cols, rows, sink); err != nil {
		h.shell.Detach(id)
		return err
	}
	h.shell.InjectHooks(id)
	return nil
}

// Write forwards user input to the PTY.
func (h *TerminalHub) Write(id string, data []byte) error {
	return h.engine.Write(id, data)
}

// Resize propagates a window size change.
func (h *TerminalHub) Resize(id string, cols, rows uint16) error {
	return h.engine.Resize(id, cols, rows)
}

// Cwd resolves the terminal's working directory.
func (h *TerminalHub) Cwd(id string) (string, error) {
	return h.engine.Cwd(id)
}

// NotifyEnter feeds the Enter-keypress sub-shell detector.
func (h *TerminalHub) NotifyEnter(id string) {
	h.shell.NotifyEnter(id)
}

// Close terminates the PTY and tears down the pipeline and subscribers.
func (h *TerminalHub) Close(id string) error {
	err := h.engine.Close(id)
	h.shell.Detach(id)

	h.mu.Lock()
	for ch := range h.subs[id] {
		close(ch)
	}
	delete(h.subs, id)
	delete(h.replay, id)
	h.mu.Unlock()
	return err
}

func (h *TerminalHub) onStatus(id string, status models.SessionStatus, exitCode *int) {
	h.mu.Lock()
	ws := h.statusW
	h.mu.Unlock()
	if ws != nil {
		if err := ws.UpdateStatus(id, status, exitCode); err != nil {
			h.log.Debug().Err(err).Str("terminal_id", id).Msg("status update for unknown session")
		}
	}
	h.events.PublishStatus(id, status, exitCode)
}

// broadcast appends to the replay buffer and delivers to every subscriber,
// dropping chunks for subscribers that cannot keep up.
func (h *TerminalHub) broadcast(id string, p []byte) {
	h.mu.Lock()
	buf := append(h.replay[id], p...)
	if len(buf) > maxReplayBuffer {
		buf = buf[len(buf)-maxReplayBuffer:]
	}
	h.replay[id] = buf

	for ch := range h.subs[id] {
		select {
		case ch <- append([]byte(nil), p...):
		default:
			h.log.Warn().Str("terminal_id", id).Msg("dropping output for slow socket")
		}
	}
	h.mu.Unlock()
}

// Subscribe attaches an output channel for a terminal and returns any
// buffered scrollback to replay first.
func (h *TerminalHub) Subscribe(id string) (replay []byte, ch <-chan []byte, cancel func()) {
	out := make(chan []byte, 256)
	h.mu.Lock()
	if h.subs[id] == nil {
		h.subs[id] = make(map[chan []byte]struct{})
	}
	h.subs[id][out] = struct{}{}
	replay = append([]byte(nil), h.replay[id]...)
	h.mu.Unlock()

	cancel = func() {
		h.mu.Lock()
		if set, ok := h.subs[id]; ok {
			if _, ok := set[out]; ok {
				delete(set, out)
				close(out)
			}
		}
		h.mu.Unlock()
	}
	return replay, out, cancel
}

// PumpExits consumes engine exit events until the engine shuts down,
// updating sessions and notifying the UI. An exit without a code means the
// shell died abnormally.
func (h *TerminalHub) PumpExits() {
	recovery.SafeGo("hub-exit-pump", func() {
		for ev := range h.engine.Exits() {
			h.mu.Lock()
			ws := h.statusW
			h.mu.Unlock()

			status := models.StatusDone
			if ev.ExitCode == nil {
				status = models.StatusError
			} else if *ev.ExitCode != 0 {
				status = models.StatusError
			}
			if ws != nil {
				if err := ws.UpdateStatus(ev.TerminalID, status, ev.ExitCode); err != nil {
					h.log.Debug().Str("terminal_id", ev.TerminalID).Msg("exit for unknown session")
				}
			}
			h.events.PublishExit(ev.TerminalID, ev.ExitCode)
		}
	})
}
