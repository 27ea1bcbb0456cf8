package workspace

import (
	"github.com/dispatch-sh/dispatcher/internal/models"
)

// InitLayout installs a single-leaf tree for a new tab, keyed by its root
// terminal id.
func (w *Workspace) InitLayout(key, terminalID string) {
	w.mu.Lock()
	w.layouts[key] = newLeaf(terminalID)
	w.mu.Unlock()
	w.changed()
}

// SplitTerminal splits the pane holding targetTerminalID in the layout at
// key. A missing key or absent target is a no-op.
func (w *Workspace) SplitTerminal(key, targetTerminalID, newTerminalID string, dir models.SplitDirection) {
	w.mu.Lock()
	w.splitTerminalLocked(key, targetTerminalID, newTerminalID, dir)
	w.mu.Unlock()
	w.changed()
}

func (w *Workspace) splitTerminalLocked(key, targetTerminalID, newTerminalID string, dir models.SplitDirection) {
	root, ok := w.layouts[key]
	if !ok {
		return
	}
	if next, found := splitAtTerminal(root, targetTerminalID, newTerminalID, dir); found {
		w.layouts[key] = next
	}
}

// RemoveTerminal deletes the pane holding terminalID from the layout at key,
// collapsing any split left with a single child. The map entry is deleted
// when the tree becomes empty.
func (w *Workspace) RemoveTerminal(key, terminalID string) {
	w.mu.Lock()
	w.removeTerminalLocked(key, terminalID)
	w.mu.Unlock()
	w.changed()
}

func (w *Workspace) removeTerminalLocked(key, terminalID string) {
	root, ok := w.layouts[key]
	if !ok {
		return
	}
	next, removed := removeLeaf(root, terminalID)
	if !removed {
		return
	}
	if next == nil {
		delete(w.layouts, key)
		return
	}
	w.layouts[key] = next
}

// SetRatio applies a clamped ratio to the split node with splitNodeID.
func (w *Workspace) SetRatio(key, splitNodeID string, ratio float64) {
	w.mu.Lock()
	if root, ok := w.layouts[key]; ok {
		setSplitRatio(root, splitNodeID, ratio)
	}
	w.mu.Unlock()
	w.changed()
}

// RemoveLayout drops a tab's layout entry.
func (w *Workspace) RemoveLayout(key string) {
	w.mu.Lock()
	delete(w.layouts, key)
	w.mu.Unlock()
	w.changed()
}

// Layout returns a deep copy of the layout at key.
func (w *Workspace) Layout(key string) (*models.LayoutNode, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	root, ok := w.layouts[key]
	if !ok {
		return nil, false
	}
	return root.Clone(), true
}

// FindLayoutKeyForTerminal resolves the tab root owning a terminal: the id
// itself when it keys a layout, else the key of the tree containing it, else
// "".
func (w *Workspace) FindLayoutKeyForTerminal(terminalID string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.layoutKeyForTerminalLocked(terminalID)
}

func (w *Workspace) layoutKeyForTerminalLocked(terminalID string) string {
	if _, ok := w.layouts[terminalID]; ok {
		return terminalID
	}
	for key, root := range w.layouts {
		if containsTerminal(root, terminalID) {
			return key
		}
	}
	return ""
}

// FindSiblingTerminalID returns the nearest other pane in the layout at key,
// or "" when the terminal has no sibling.
func (w *Workspace) FindSiblingTerminalID(key, terminalID string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	root, ok := w.layouts[key]
	if !ok {
		return ""
	}
	return siblingTerminalID(root, terminalID)
}
