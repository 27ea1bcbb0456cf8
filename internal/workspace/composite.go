package workspace

import (
	"github.com/google/uuid"

	"github.com/dispatch-sh/dispatcher/internal/models"
	"github.com/dispatch-sh/dispatcher/internal/pty"
	"github.com/dispatch-sh/dispatcher/internal/recovery"
)

// CreateProjectWithTerminal spawns a PTY, then installs the project, its
// root group, one tab node, one session and one layout as a single unit.
// Spawn failure leaves the stores untouched.
func (w *Workspace) CreateProjectWithTerminal(name, cwd string, cols, rows uint16) (projectID, terminalID string, err error) {
	terminalID = uuid.NewString()
	if err = w.rt.Create(terminalID, cwd, cols, rows); err != nil {
		return "", "", err
	}

	w.mu.Lock()
	project := w.addProjectLocked(name, cwd)
	w.layouts[terminalID] = newLeaf(terminalID)
	session := w.addSessionLocked(terminalID, "", cwd)
	w.addTabNodeLocked(project.RootGroupID, terminalID, session.Title)
	w.mu.Unlock()
	w.changed()

	return project.ID, terminalID, nil
}

// CreateTerminalInProject opens a new tab in a project. The terminal starts
// in the project directory; once the PTY engine resolves an existing sibling
// tab's working directory, the new shell is steered there.
func (w *Workspace) CreateTerminalInProject(projectID string, cols, rows uint16) (string, error) {
	w.mu.Lock()
	project, ok := w.projects[projectID]
	if !ok {
		w.mu.Unlock()
		return "", ErrProjectNotFound
	}
	cwd := project.Cwd
	sibling := w.firstTabTerminalLocked(project)
	w.mu.Unlock()

	terminalID := uuid.NewString()
	if err := w.rt.Create(terminalID, cwd, cols, rows); err != nil {
		return "", err
	}

	w.mu.Lock()
	project, ok = w.projects[projectID]
	if !ok {
		w.mu.Unlock()
		w.rt.Close(terminalID)
		return "", ErrProjectNotFound
	}
	w.layouts[terminalID] = newLeaf(terminalID)
	session := w.addSessionLocked(terminalID, "", cwd)
	w.addTabNodeLocked(project.RootGroupID, terminalID, session.Title)
	w.mu.Unlock()
	w.changed()

	if sibling != "" {
		w.inheritCwd(sibling, terminalID)
	}
	return terminalID, nil
}

// SplitPane spawns a PTY for a new pane next to targetTerminalID and splits
// the owning layout. No sidebar tree node is created; once the source
// pane's working directory resolves, the new shell is steered there.
func (w *Workspace) SplitPane(targetTerminalID string, dir models.SplitDirection, cols, rows uint16) (string, error) {
	w.mu.Lock()
	key := w.layoutKeyForTerminalLocked(targetTerminalID)
	w.mu.Unlock()
	if key == "" {
		return "", ErrLayoutNotFound
	}

	newID := uuid.NewString()
	if err := w.rt.Create(newID, "", cols, rows); err != nil {
		return "", err
	}

	w.mu.Lock()
	if w.layoutKeyForTerminalLocked(targetTerminalID) != key {
		w.mu.Unlock()
		w.rt.Close(newID)
		return "", ErrLayoutNotFound
	}
	w.splitTerminalLocked(key, targetTerminalID, newID, dir)
	w.addSessionLocked(newID, "", "")
	w.mu.Unlock()
	w.changed()

	w.inheritCwd(targetTerminalID, newID)
	return newID, nil
}

// inheritCwd asks the engine for the source terminal's directory off the
// hot path and steers the destination shell there when it resolves.
func (w *Workspace) inheritCwd(sourceID, destID string) {
	recovery.SafeGo("workspace-inherit-cwd", func() {
		cwd, err := w.rt.Cwd(sourceID)
		if err != nil || cwd == "" {
			return
		}
		if err := w.rt.Write(destID, []byte(pty.CdCommand(cwd))); err != nil {
			w.log.Debug().Err(err).Str("terminal_id", destID).Msg("cwd inheritance write failed")
		}
	})
}

// ClosePane closes one pane: the session always goes; the layout collapses,
// re-keys under a surviving leaf when the tab root itself closed, or
// disappears with its tab node when the pane was alone. A project whose
// last tab closes is removed.
func (w *Workspace) ClosePane(terminalID string) error {
	w.mu.Lock()
	if _, ok := w.sessions[terminalID]; !ok {
		w.mu.Unlock()
		return ErrSessionNotFound
	}

	wasActive := w.activeTerminalID == terminalID
	nextActive := ""

	key := w.layoutKeyForTerminalLocked(terminalID)
	if key != "" {
		root := w.layouts[key]
		if len(TerminalIDs(root)) > 1 {
			nextActive = siblingTerminalID(root, terminalID)
			remaining, _ := removeLeaf(root, terminalID)
			if terminalID == key {
				delete(w.layouts, key)
				newKey := firstLeafID(remaining)
				w.layouts[newKey] = remaining
				if node := w.tabNodeForTerminalLocked(key); node != nil {
					node.TerminalID = newKey
				}
				if focused, ok := w.lastFocused[key]; ok && focused != terminalID {
					w.lastFocused[newKey] = focused
				}
				delete(w.lastFocused, key)
			} else {
				w.layouts[key] = remaining
			}
		} else {
			delete(w.layouts, key)
			w.removeTabNodeLocked(terminalID)
		}
	}

	w.removeSessionLocked(terminalID)
	if wasActive && nextActive != "" {
		w.setActiveTerminalLocked(nextActive)
	}
	w.mu.Unlock()

	w.rt.Close(terminalID)
	w.changed()
	return nil
}

// removeTabNodeLocked deletes the tab node bound to terminalID and, when
// that empties the project's root group, the project itself. Caller holds
// w.mu.
func (w *Workspace) removeTabNodeLocked(terminalID string) {
	node := w.tabNodeForTerminalLocked(terminalID)
	if node == nil {
		return
	}
	parent := w.nodes[node.ParentID]
	if parent != nil {
		parent.Children = removeString(parent.Children, node.ID)
	}
	delete(w.nodes, node.ID)

	if parent != nil && len(parent.Children) == 0 {
		if project := w.projectForGroupLocked(parent.ID); project != nil {
			w.removeProjectLocked(project.ID)
		}
	}
}

// DeleteTab closes every pane in a tab's layout and removes the tab node.
func (w *Workspace) DeleteTab(nodeID string) error {
	w.mu.Lock()
	node, ok := w.nodes[nodeID]
	if !ok || node.Type != models.NodeTypeTerminal {
		w.mu.Unlock()
		return ErrNodeNotFound
	}

	key := node.TerminalID
	ids := []string{key}
	if root, ok := w.layouts[key]; ok {
		ids = TerminalIDs(root)
	}
	delete(w.layouts, key)
	for _, id := range ids {
		if _, ok := w.sessions[id]; ok {
			w.removeSessionLocked(id)
		}
	}
	if parent, ok := w.nodes[node.ParentID]; ok {
		parent.Children = removeString(parent.Children, nodeID)
	}
	delete(w.nodes, nodeID)
	w.mu.Unlock()

	for _, id := range ids {
		w.rt.Close(id)
	}
	w.changed()
	return nil
}

// DeleteProject closes every terminal in every tab of a project, then
// removes its tree and the project itself.
func (w *Workspace) DeleteProject(projectID string) error {
	w.mu.Lock()
	project, ok := w.projects[projectID]
	if !ok {
		w.mu.Unlock()
		return ErrProjectNotFound
	}

	var ids []string
	if group, ok := w.nodes[project.RootGroupID]; ok {
		for _, childID := range group.Children {
			node := w.nodes[childID]
			if node == nil || node.Type != models.NodeTypeTerminal {
				continue
			}
			tabIDs := []string{node.TerminalID}
			if root, ok := w.layouts[node.TerminalID]; ok {
				tabIDs = TerminalIDs(root)
			}
			delete(w.layouts, node.TerminalID)
			ids = append(ids, tabIDs...)
		}
	}
	for _, id := range ids {
		if _, ok := w.sessions[id]; ok {
			w.removeSessionLocked(id)
		}
	}
	w.removeProjectLocked(projectID)
	w.mu.Unlock()

	for _, id := range ids {
		w.rt.Close(id)
	}
	w.changed()
	return nil
}

// MoveTerminal re-homes a tab node under another project's root group. The
// session and layout stay untouched; layouts key by terminal id, not by
// project.
func (w *Workspace) MoveTerminal(nodeID, targetProjectID string) error {
	w.mu.Lock()
	node, ok := w.nodes[nodeID]
	if !ok || node.Type != models.NodeTypeTerminal {
		w.mu.Unlock()
		return ErrNodeNotFound
	}
	target, ok := w.projects[targetProjectID]
	if !ok {
		w.mu.Unlock()
		return ErrProjectNotFound
	}
	group, ok := w.nodes[target.RootGroupID]
	if !ok {
		w.mu.Unlock()
		return ErrInconsistentState
	}
	if oldParent, ok := w.nodes[node.ParentID]; ok {
		oldParent.Children = removeString(oldParent.Children, nodeID)
	}
	group.Children = append(group.Children, nodeID)
	node.ParentID = group.ID
	w.mu.Unlock()
	w.changed()
	return nil
}

// addTabNodeLocked creates a terminal node under a root group. Caller holds
// w.mu.
func (w *Workspace) addTabNodeLocked(rootGroupID, terminalID, name string) *models.TreeNode {
	node := &models.TreeNode{
		ID:         uuid.NewString(),
		Type:       models.NodeTypeTerminal,
		Name:       name,
		ParentID:   rootGroupID,
		TerminalID: terminalID,
	}
	w.nodes[node.ID] = node
	if parent, ok := w.nodes[rootGroupID]; ok {
		parent.Children = append(parent.Children, node.ID)
	}
	return node
}

// tabNodeForTerminalLocked finds the tree node bound to terminalID. Caller
// holds w.mu.
func (w *Workspace) tabNodeForTerminalLocked(terminalID string) *models.TreeNode {
	for _, node := range w.nodes {
		if node.Type == models.NodeTypeTerminal && node.TerminalID == terminalID {
			return node
		}
	}
	return nil
}

// projectForGroupLocked finds the project owning a root group. Caller holds
// w.mu.
func (w *Workspace) projectForGroupLocked(groupID string) *models.Project {
	for _, project := range w.projects {
		if project.RootGroupID == groupID {
			return project
		}
	}
	return nil
}

// firstTabTerminalLocked returns the first tab terminal of a project that
// still has a live session, or "". Caller holds w.mu.
func (w *Workspace) firstTabTerminalLocked(project *models.Project) string {
	group, ok := w.nodes[project.RootGroupID]
	if !ok {
		return ""
	}
	for _, childID := range group.Children {
		node := w.nodes[childID]
		if node == nil || node.Type != models.NodeTypeTerminal {
			continue
		}
		if _, ok := w.sessions[node.TerminalID]; ok {
			return node.TerminalID
		}
	}
	return ""
}
