package workspace

import (
	"github.com/dispatch-sh/dispatcher/internal/models"
)

// Direction selects which way tab cycling walks the flat tab list.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

type tabEntry struct {
	projectID  string
	terminalID string
}

// tabEntriesLocked flattens the workspace into an ordered tab list: project
// order first, then sidebar order within each expanded project, keeping only
// tabs whose terminal still has a session. Caller holds w.mu.
func (w *Workspace) tabEntriesLocked() []tabEntry {
	var entries []tabEntry
	for _, projectID := range w.projectOrder {
		project := w.projects[projectID]
		if project == nil || !project.Expanded {
			continue
		}
		group := w.nodes[project.RootGroupID]
		if group == nil {
			continue
		}
		for _, childID := range group.Children {
			node := w.nodes[childID]
			if node == nil || node.Type != models.NodeTypeTerminal {
				continue
			}
			if _, ok := w.sessions[node.TerminalID]; !ok {
				continue
			}
			entries = append(entries, tabEntry{projectID: projectID, terminalID: node.TerminalID})
		}
	}
	return entries
}

// CycleTab moves focus to the next or previous tab across projects,
// skipping collapsed ones. A split pane that last held focus inside the
// destination tab is restored instead of the tab root. Fewer than two tabs
// is a no-op.
func (w *Workspace) CycleTab(dir Direction) {
	w.mu.Lock()
	entries := w.tabEntriesLocked()
	n := len(entries)
	if n < 2 {
		w.mu.Unlock()
		return
	}

	current := -1
	for i, entry := range entries {
		if entry.terminalID == w.activeTerminalID {
			current = i
			break
		}
	}
	if current == -1 && w.activeTerminalID != "" {
		tabRoot := w.layoutKeyForTerminalLocked(w.activeTerminalID)
		for i, entry := range entries {
			if entry.terminalID == tabRoot {
				current = i
				break
			}
		}
	}

	var next int
	if dir == Backward {
		if current == -1 {
			next = n - 1
		} else {
			next = (current - 1 + n) % n
		}
	} else {
		if current == -1 {
			next = 0
		} else {
			next = (current + 1) % n
		}
	}

	dest := entries[next]
	w.activeProjectID = dest.projectID
	target := dest.terminalID
	if focused, ok := w.lastFocused[dest.terminalID]; ok {
		target = focused
	}
	w.setActiveTerminalLocked(target)
	w.mu.Unlock()
	w.changed()
}
