package workspace

import (
	"fmt"
	"sort"

	"github.com/dispatch-sh/dispatcher/internal/models"
)

// ProjectsState is the serializable form of the project store.
type ProjectsState struct {
	Projects        map[string]*models.Project  `json:"projects"`
	Nodes           map[string]*models.TreeNode `json:"nodes"`
	ActiveProjectID string                      `json:"activeProjectId,omitempty"`
	ProjectOrder    []string                    `json:"projectOrder"`
}

// TerminalsState is the serializable form of the terminal store.
type TerminalsState struct {
	Sessions         map[string]*models.TerminalSession `json:"sessions"`
	ActiveTerminalID string                             `json:"activeTerminalId,omitempty"`
}

// LayoutsState is the serializable form of the layout store.
type LayoutsState struct {
	Layouts map[string]*models.LayoutNode `json:"layouts"`
}

// Snapshot is the full workspace view handed to the UI.
type Snapshot struct {
	Projects  ProjectsState  `json:"projects"`
	Terminals TerminalsState `json:"terminals"`
	Layouts   LayoutsState   `json:"layouts"`
}

// ProjectsSnapshot returns a deep copy of the project store.
func (w *Workspace) ProjectsSnapshot() ProjectsState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.projectsSnapshotLocked()
}

func (w *Workspace) projectsSnapshotLocked() ProjectsState {
	st := ProjectsState{
		Projects:        make(map[string]*models.Project, len(w.projects)),
		Nodes:           make(map[string]*models.TreeNode, len(w.nodes)),
		ActiveProjectID: w.activeProjectID,
		ProjectOrder:    append([]string(nil), w.projectOrder...),
	}
	for id, project := range w.projects {
		cp := *project
		st.Projects[id] = &cp
	}
	for id, node := range w.nodes {
		cp := *node
		cp.Children = append([]string(nil), node.Children...)
		st.Nodes[id] = &cp
	}
	return st
}

// TerminalsSnapshot returns a deep copy of the terminal store.
func (w *Workspace) TerminalsSnapshot() TerminalsState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminalsSnapshotLocked()
}

func (w *Workspace) terminalsSnapshotLocked() TerminalsState {
	st := TerminalsState{
		Sessions:         make(map[string]*models.TerminalSession, len(w.sessions)),
		ActiveTerminalID: w.activeTerminalID,
	}
	for id, session := range w.sessions {
		cp := *session
		if session.ExitCode != nil {
			code := *session.ExitCode
			cp.ExitCode = &code
		}
		st.Sessions[id] = &cp
	}
	return st
}

// LayoutsSnapshot returns a deep copy of the layout store.
func (w *Workspace) LayoutsSnapshot() LayoutsState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.layoutsSnapshotLocked()
}

func (w *Workspace) layoutsSnapshotLocked() LayoutsState {
	st := LayoutsState{Layouts: make(map[string]*models.LayoutNode, len(w.layouts))}
	for key, root := range w.layouts {
		st.Layouts[key] = root.Clone()
	}
	return st
}

// WorkspaceSnapshot returns all three stores in one consistent view.
func (w *Workspace) WorkspaceSnapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Snapshot{
		Projects:  w.projectsSnapshotLocked(),
		Terminals: w.terminalsSnapshotLocked(),
		Layouts:   w.layoutsSnapshotLocked(),
	}
}

// RestoreProjects installs a loaded project store.
func (w *Workspace) RestoreProjects(st ProjectsState) {
	w.mu.Lock()
	w.projects = st.Projects
	if w.projects == nil {
		w.projects = make(map[string]*models.Project)
	}
	w.nodes = st.Nodes
	if w.nodes == nil {
		w.nodes = make(map[string]*models.TreeNode)
	}
	w.projectOrder = st.ProjectOrder
	w.activeProjectID = ""
	if _, ok := w.projects[st.ActiveProjectID]; ok {
		w.activeProjectID = st.ActiveProjectID
	}
	w.mu.Unlock()
}

// RestoreTerminals installs a loaded terminal store and resynchronizes the
// title counter so new terminals never reuse a restored default title.
func (w *Workspace) RestoreTerminals(st TerminalsState) {
	w.mu.Lock()
	w.sessions = st.Sessions
	if w.sessions == nil {
		w.sessions = make(map[string]*models.TerminalSession)
	}
	w.sessionOrder = make([]string, 0, len(w.sessions))
	for id := range w.sessions {
		w.sessionOrder = append(w.sessionOrder, id)
	}
	sort.Strings(w.sessionOrder)

	for _, session := range w.sessions {
		var n int
		if _, err := fmt.Sscanf(session.Title, "Terminal %d", &n); err == nil && n > w.terminalCounter {
			w.terminalCounter = n
		}
	}

	w.activeTerminalID = ""
	if _, ok := w.sessions[st.ActiveTerminalID]; ok {
		w.activeTerminalID = st.ActiveTerminalID
	}
	w.mu.Unlock()
}

// RestoreLayouts installs a loaded layout store.
func (w *Workspace) RestoreLayouts(st LayoutsState) {
	w.mu.Lock()
	w.layouts = st.Layouts
	if w.layouts == nil {
		w.layouts = make(map[string]*models.LayoutNode)
	}
	w.mu.Unlock()
}
