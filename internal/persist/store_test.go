package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatch-sh/dispatcher/internal/models"
	"github.com/dispatch-sh/dispatcher/internal/workspace"
)

type nullRuntime struct{}

func (nullRuntime) Create(id, cwd string, cols, rows uint16) error { return nil }
func (nullRuntime) Write(id string, data []byte) error             { return nil }
func (nullRuntime) Close(id string) error                          { return nil }
func (nullRuntime) Cwd(id string) (string, error)                  { return "", nil }

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newStore(t *testing.T, dir string) (*Store, *workspace.Workspace) {
	t.Helper()
	ws := workspace.New(nullRuntime{})
	store, err := NewStore(dir, ws)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, ws
}

func TestLoadNormalizesRestoredSessions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, recordTerminals, `{
		"sessions": {
			"t1": {"id": "t1", "title": "Terminal 1", "status": "running", "exitCode": 0},
			"t2": {"id": "t2", "title": "deploy", "status": "error", "exitCode": 7}
		},
		"activeTerminalId": "t2"
	}`)

	_, ws := newStore(t, dir)

	for _, id := range []string{"t1", "t2"} {
		session, ok := ws.Session(id)
		require.True(t, ok)
		assert.Equal(t, models.StatusDone, session.Status, "restored sessions never report a live shell")
		assert.Nil(t, session.ExitCode)
	}
	assert.Equal(t, "t2", ws.ActiveTerminalID())
}

func TestLoadBackfillsProjectOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, recordProjects, `{
		"projects": {
			"p1": {"id": "p1", "name": "one", "cwd": "/a", "rootGroupId": "g1", "expanded": true},
			"p2": {"id": "p2", "name": "two", "cwd": "/b", "rootGroupId": "g2", "expanded": true}
		},
		"nodes": {
			"g1": {"id": "g1", "type": "group"},
			"g2": {"id": "g2", "type": "group"}
		},
		"activeProjectId": "p1"
	}`)

	_, ws := newStore(t, dir)

	st := ws.ProjectsSnapshot()
	assert.ElementsMatch(t, []string{"p1", "p2"}, st.ProjectOrder)
	assert.Equal(t, "p1", st.ActiveProjectID)
}

func TestCorruptRecordIsIgnored(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, recordProjects, `{not json`)

	_, ws := newStore(t, dir)
	assert.Empty(t, ws.ProjectsSnapshot().Projects)
}

func TestFontSizeDefaultsClampsAndResets(t *testing.T) {
	t.Run("missing record defaults", func(t *testing.T) {
		store, _ := newStore(t, t.TempDir())
		assert.Equal(t, DefaultFontSize, store.FontSize())
	})

	t.Run("loaded value is clamped", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, recordFontSize, `{"fontSize": 99}`)
		store, _ := newStore(t, dir)
		assert.Equal(t, MaxFontSize, store.FontSize())
	})

	t.Run("set clamps both ends", func(t *testing.T) {
		store, _ := newStore(t, t.TempDir())
		assert.Equal(t, MinFontSize, store.SetFontSize(2))
		assert.Equal(t, MaxFontSize, store.SetFontSize(60))
		assert.Equal(t, 18, store.SetFontSize(18))
	})

	t.Run("reset returns default", func(t *testing.T) {
		store, _ := newStore(t, t.TempDir())
		store.SetFontSize(20)
		assert.Equal(t, DefaultFontSize, store.ResetFontSize())
	})
}

func TestFlushWritesAllRecords(t *testing.T) {
	dir := t.TempDir()
	store, ws := newStore(t, dir)

	ws.AddProject("api", "/src/api")
	ws.AddSession("t1", "", "/src/api")
	ws.InitLayout("t1", "t1")
	require.NoError(t, store.Flush())

	var terminals workspace.TerminalsState
	data, err := os.ReadFile(filepath.Join(dir, recordTerminals))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &terminals))
	require.NotNil(t, terminals.Sessions["t1"])
	assert.Equal(t, "Terminal 1", terminals.Sessions["t1"].Title)

	var layouts workspace.LayoutsState
	data, err = os.ReadFile(filepath.Join(dir, recordLayouts))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &layouts))
	require.NotNil(t, layouts.Layouts["t1"])

	// Atomic writes leave no temp files behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), ".tmp-"), "stray temp file %s", entry.Name())
	}
}

func TestDebouncedFlushAfterMutation(t *testing.T) {
	dir := t.TempDir()
	_, ws := newStore(t, dir)

	ws.AddSession("t1", "", "")

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(dir, recordTerminals))
		if err != nil {
			return false
		}
		var st workspace.TerminalsState
		return json.Unmarshal(data, &st) == nil && st.Sessions["t1"] != nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherReloadsExternalEdit(t *testing.T) {
	dir := t.TempDir()
	_, ws := newStore(t, dir)

	writeFile(t, dir, recordTerminals, `{
		"sessions": {"ext": {"id": "ext", "title": "external", "status": "done", "exitCode": null}},
		"activeTerminalId": "ext"
	}`)

	require.Eventually(t, func() bool {
		_, ok := ws.Session("ext")
		return ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRoundTripRestoresWorkspace(t *testing.T) {
	dir := t.TempDir()
	store, ws := newStore(t, dir)

	projectID, terminalID, err := ws.CreateProjectWithTerminal("api", "/src/api", 80, 24)
	require.NoError(t, err)
	paneID, err := ws.SplitPane(terminalID, models.SplitVertical, 80, 24)
	require.NoError(t, err)
	require.NoError(t, store.Flush())
	require.NoError(t, store.Close())

	restored := workspace.New(nullRuntime{})
	store2, err := NewStore(dir, restored)
	require.NoError(t, err)
	defer store2.Close()

	st := restored.WorkspaceSnapshot()
	require.NotNil(t, st.Projects.Projects[projectID])
	require.NotNil(t, st.Terminals.Sessions[terminalID])
	require.NotNil(t, st.Terminals.Sessions[paneID])
	root := st.Layouts.Layouts[terminalID]
	require.NotNil(t, root)
	assert.Equal(t, []string{terminalID, paneID}, workspace.TerminalIDs(root))
}
