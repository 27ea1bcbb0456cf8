package workspace

import (
	"fmt"

	"github.com/dispatch-sh/dispatcher/internal/models"
)

// AddSession registers a terminal session and focuses it. An empty title is
// auto-filled as "Terminal <N>" from the monotonic counter.
func (w *Workspace) AddSession(id, title, cwd string) *models.TerminalSession {
	w.mu.Lock()
	session := w.addSessionLocked(id, title, cwd)
	w.mu.Unlock()
	w.changed()
	return session
}

func (w *Workspace) addSessionLocked(id, title, cwd string) *models.TerminalSession {
	if title == "" {
		w.terminalCounter++
		title = fmt.Sprintf("Terminal %d", w.terminalCounter)
	}
	session := &models.TerminalSession{
		ID:     id,
		Title:  title,
		Status: models.StatusDone,
		Cwd:    cwd,
	}
	w.sessions[id] = session
	w.sessionOrder = append(w.sessionOrder, id)
	w.setActiveTerminalLocked(id)
	return session
}

// RemoveSession drops a session. When it was active, focus falls back to the
// most recently added surviving session, or clears when none remain. Stale
// last-focused entries pointing at the removed id are purged.
func (w *Workspace) RemoveSession(id string) error {
	w.mu.Lock()
	err := w.removeSessionLocked(id)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.changed()
	return nil
}

func (w *Workspace) removeSessionLocked(id string) error {
	if _, ok := w.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(w.sessions, id)
	w.sessionOrder = removeString(w.sessionOrder, id)
	w.purgeLastFocusedLocked(id)
	if w.activeTerminalID == id {
		next := ""
		if len(w.sessionOrder) > 0 {
			next = w.sessionOrder[len(w.sessionOrder)-1]
		}
		w.setActiveTerminalLocked(next)
	}
	return nil
}

// purgeLastFocusedLocked removes entries keyed by or pointing at id, so
// cycling never restores focus to a terminal that is gone. Caller holds w.mu.
func (w *Workspace) purgeLastFocusedLocked(id string) {
	delete(w.lastFocused, id)
	for key, val := range w.lastFocused {
		if val == id {
			delete(w.lastFocused, key)
		}
	}
}

// SetActiveTerminal focuses a terminal; an empty id clears the focus.
func (w *Workspace) SetActiveTerminal(id string) error {
	w.mu.Lock()
	if id != "" {
		if _, ok := w.sessions[id]; !ok {
			w.mu.Unlock()
			return ErrSessionNotFound
		}
	}
	w.setActiveTerminalLocked(id)
	w.mu.Unlock()
	w.changed()
	return nil
}

// UpdateStatus applies a run-state transition reported by shell integration
// or the PTY exit path.
func (w *Workspace) UpdateStatus(id string, status models.SessionStatus, exitCode *int) error {
	w.mu.Lock()
	session, ok := w.sessions[id]
	if !ok {
		w.mu.Unlock()
		return ErrSessionNotFound
	}
	session.Status = status
	session.ExitCode = exitCode
	w.mu.Unlock()
	w.changed()
	return nil
}

// UpdateTitle renames a session.
func (w *Workspace) UpdateTitle(id, title string) error {
	w.mu.Lock()
	session, ok := w.sessions[id]
	if !ok {
		w.mu.Unlock()
		return ErrSessionNotFound
	}
	session.Title = title
	w.mu.Unlock()
	w.changed()
	return nil
}

// UpdateNotes replaces a session's free-form notes.
func (w *Workspace) UpdateNotes(id, notes string) error {
	w.mu.Lock()
	session, ok := w.sessions[id]
	if !ok {
		w.mu.Unlock()
		return ErrSessionNotFound
	}
	session.Notes = notes
	w.mu.Unlock()
	w.changed()
	return nil
}

// Session returns a copy of one session.
func (w *Workspace) Session(id string) (models.TerminalSession, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	session, ok := w.sessions[id]
	if !ok {
		return models.TerminalSession{}, false
	}
	return *session, true
}
