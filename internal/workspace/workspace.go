package workspace

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/dispatch-sh/dispatcher/internal/logger"
	"github.com/dispatch-sh/dispatcher/internal/models"
)

// Runtime is the PTY-facing surface the composite operations depend on. The
// engine (wrapped with its output plumbing) satisfies it in production;
// tests substitute a recorder.
type Runtime interface {
	Create(id, cwd string, cols, rows uint16) error
	Write(id string, data []byte) error
	Close(id string) error
	Cwd(id string) (string, error)
}

// Position places a reordered element relative to its target.
type Position string

const (
	Before Position = "before"
	After  Position = "after"
)

// Workspace bundles the three stores (projects+tree, terminal sessions,
// layouts) behind one mutex. Every public operation is atomic with respect
// to observers; reads hand out copies, never interior pointers.
type Workspace struct {
	mu  sync.Mutex
	log zerolog.Logger
	rt  Runtime

	projects        map[string]*models.Project
	nodes           map[string]*models.TreeNode
	activeProjectID string
	projectOrder    []string

	sessions         map[string]*models.TerminalSession
	sessionOrder     []string
	activeTerminalID string
	terminalCounter  int

	layouts map[string]*models.LayoutNode

	// lastFocused maps a tab root terminal id to the pane that last held
	// focus inside that tab, enabling focus restoration when cycling back.
	lastFocused map[string]string

	onChange func()
}

// New creates an empty workspace over the given PTY runtime.
func New(rt Runtime) *Workspace {
	return &Workspace{
		log:         logger.Component("workspace"),
		rt:          rt,
		projects:    make(map[string]*models.Project),
		nodes:       make(map[string]*models.TreeNode),
		sessions:    make(map[string]*models.TerminalSession),
		layouts:     make(map[string]*models.LayoutNode),
		lastFocused: make(map[string]string),
	}
}

// SetOnChange installs a hook invoked after every mutating operation except
// the Restore* loaders, with no locks held. The persistence layer uses it to schedule flushes.
func (w *Workspace) SetOnChange(fn func()) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

func (w *Workspace) changed() {
	w.mu.Lock()
	fn := w.onChange
	w.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// setActiveTerminalLocked updates the active terminal and, when the id lives
// inside a layout, records it as that tab's last focused pane. Caller holds
// w.mu. An empty id clears the active terminal.
func (w *Workspace) setActiveTerminalLocked(id string) {
	w.activeTerminalID = id
	if id == "" {
		return
	}
	if key := w.layoutKeyForTerminalLocked(id); key != "" {
		w.lastFocused[key] = id
	}
}

// ActiveTerminalID returns the focused terminal id, or "" when none.
func (w *Workspace) ActiveTerminalID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeTerminalID
}

// ActiveProjectID returns the focused project id, or "" when none.
func (w *Workspace) ActiveProjectID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.activeProjectID
}
