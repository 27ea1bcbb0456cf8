package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/dispatch-sh/dispatcher/internal/logger"
	"github.com/dispatch-sh/dispatcher/internal/models"
	"github.com/dispatch-sh/dispatcher/internal/recovery"
	"github.com/dispatch-sh/dispatcher/internal/workspace"
)

const (
	recordProjects  = "dispatcher-projects.json"
	recordTerminals = "dispatcher-terminals.json"
	recordLayouts   = "dispatcher-layouts.json"
	recordFontSize  = "dispatcher-font-size.json"

	// flushDebounce batches bursts of workspace mutations into one write.
	flushDebounce = 250 * time.Millisecond

	// selfWriteWindow is how long after our own write a watcher event for
	// the same record is ignored instead of triggering a reload.
	selfWriteWindow = time.Second

	MinFontSize     = 8
	MaxFontSize     = 32
	DefaultFontSize = 13
)

type fontRecord struct {
	FontSize int `json:"fontSize"`
}

// Store persists the workspace stores as JSON records in a state directory
// and reloads records that change externally. A missing or unreadable
// record is never fatal; the app simply starts empty.
type Store struct {
	dir string
	log zerolog.Logger
	ws  *workspace.Workspace

	mu        sync.Mutex
	fontSize  int
	timer     *time.Timer
	closed    bool
	selfWrote map[string]time.Time

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStore loads all records from dir into ws, hooks workspace changes to
// debounced flushes and starts watching dir for external edits.
func NewStore(dir string, ws *workspace.Workspace) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		dir:       dir,
		log:       logger.Component("persist"),
		ws:        ws,
		fontSize:  DefaultFontSize,
		selfWrote: make(map[string]time.Time),
		done:      make(chan struct{}),
	}
	s.loadAll()
	ws.SetOnChange(s.scheduleFlush)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn().Err(err).Msg("state watcher unavailable; external edits will not be picked up")
	} else if err := watcher.Add(dir); err != nil {
		s.log.Warn().Err(err).Str("dir", dir).Msg("cannot watch state dir")
		watcher.Close()
	} else {
		s.watcher = watcher
		recovery.SafeGo("persist-watcher", s.watchLoop)
	}
	return s, nil
}

func (s *Store) loadAll() {
	s.loadProjects()
	s.loadTerminals()
	s.loadLayouts()
	s.loadFontSize()
}

func (s *Store) loadProjects() {
	var st workspace.ProjectsState
	if !s.readRecord(recordProjects, &st) {
		return
	}
	if len(st.ProjectOrder) == 0 && len(st.Projects) > 0 {
		for id := range st.Projects {
			st.ProjectOrder = append(st.ProjectOrder, id)
		}
	}
	s.ws.RestoreProjects(st)
}

func (s *Store) loadTerminals() {
	var st workspace.TerminalsState
	if !s.readRecord(recordTerminals, &st) {
		return
	}
	// PTYs do not survive a restart: every restored session comes back as a
	// finished shell with no exit code.
	for _, session := range st.Sessions {
		session.Status = models.StatusDone
		session.ExitCode = nil
	}
	s.ws.RestoreTerminals(st)
}

func (s *Store) loadLayouts() {
	var st workspace.LayoutsState
	if !s.readRecord(recordLayouts, &st) {
		return
	}
	s.ws.RestoreLayouts(st)
}

func (s *Store) loadFontSize() {
	var rec fontRecord
	if !s.readRecord(recordFontSize, &rec) {
		return
	}
	s.mu.Lock()
	s.fontSize = clampFontSize(rec.FontSize)
	s.mu.Unlock()
}

// readRecord unmarshals one record file; false means absent or unreadable.
func (s *Store) readRecord(name string, v any) bool {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Str("record", name).Msg("cannot read state record")
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.log.Warn().Err(err).Str("record", name).Msg("corrupt state record ignored")
		return false
	}
	return true
}

// scheduleFlush arms (or re-arms) the debounced flush.
func (s *Store) scheduleFlush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(flushDebounce, func() {
		if err := s.Flush(); err != nil {
			s.log.Error().Err(err).Msg("state flush failed")
		}
	})
}

// Flush writes all four records synchronously.
func (s *Store) Flush() error {
	if err := s.writeRecord(recordProjects, s.ws.ProjectsSnapshot()); err != nil {
		return err
	}
	if err := s.writeRecord(recordTerminals, s.ws.TerminalsSnapshot()); err != nil {
		return err
	}
	if err := s.writeRecord(recordLayouts, s.ws.LayoutsSnapshot()); err != nil {
		return err
	}
	return s.writeRecord(recordFontSize, fontRecord{FontSize: s.FontSize()})
}

// writeRecord writes a record atomically: temp file in the same directory,
// then rename over the target.
func (s *Store) writeRecord(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-"+name+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	s.mu.Lock()
	s.selfWrote[name] = time.Now()
	s.mu.Unlock()

	return os.Rename(tmp.Name(), filepath.Join(s.dir, name))
}

func (s *Store) watchLoop() {
	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			name := filepath.Base(ev.Name)
			if s.recentSelfWrite(name) {
				continue
			}
			switch name {
			case recordProjects:
				s.log.Info().Str("record", name).Msg("reloading externally changed record")
				s.loadProjects()
			case recordTerminals:
				s.log.Info().Str("record", name).Msg("reloading externally changed record")
				s.loadTerminals()
			case recordLayouts:
				s.log.Info().Str("record", name).Msg("reloading externally changed record")
				s.loadLayouts()
			case recordFontSize:
				s.loadFontSize()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Msg("state watcher error")
		}
	}
}

func (s *Store) recentSelfWrite(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.selfWrote[name]
	return ok && time.Since(at) < selfWriteWindow
}

// FontSize returns the current UI font size.
func (s *Store) FontSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fontSize
}

// SetFontSize clamps and stores a new font size, returning the applied
// value.
func (s *Store) SetFontSize(size int) int {
	s.mu.Lock()
	s.fontSize = clampFontSize(size)
	applied := s.fontSize
	s.mu.Unlock()
	s.scheduleFlush()
	return applied
}

// ResetFontSize restores the default.
func (s *Store) ResetFontSize() int {
	return s.SetFontSize(DefaultFontSize)
}

func clampFontSize(size int) int {
	if size < MinFontSize {
		return MinFontSize
	}
	if size > MaxFontSize {
		return MaxFontSize
	}
	return size
}

// Close stops the debounce timer and the watcher, then writes one final flush.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()

	close(s.done)
	if s.watcher != nil {
		s.watcher.Close()
	}
	return s.Flush()
}
