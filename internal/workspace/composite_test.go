package workspace

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dispatch-sh/dispatcher/internal/models"
	"github.com/dispatch-sh/dispatcher/internal/pty"
)

func TestCreateProjectWithTerminal(t *testing.T) {
	w, rt := newTestWorkspace(t)

	projectID, terminalID, err := w.CreateProjectWithTerminal("api", "/src/api", 80, 24)
	require.NoError(t, err)
	assert.Equal(t, []string{terminalID}, rt.created)

	st := w.WorkspaceSnapshot()
	project := st.Projects.Projects[projectID]
	require.NotNil(t, project)
	assert.Equal(t, "api", project.Name)
	assert.True(t, project.Expanded)
	assert.Equal(t, []string{projectID}, st.Projects.ProjectOrder)
	assert.Equal(t, projectID, st.Projects.ActiveProjectID)

	group := st.Projects.Nodes[project.RootGroupID]
	require.NotNil(t, group)
	require.Len(t, group.Children, 1)
	tab := st.Projects.Nodes[group.Children[0]]
	require.NotNil(t, tab)
	assert.Equal(t, models.NodeTypeTerminal, tab.Type)
	assert.Equal(t, terminalID, tab.TerminalID)

	session := st.Terminals.Sessions[terminalID]
	require.NotNil(t, session)
	assert.Equal(t, "Terminal 1", session.Title)
	assert.Equal(t, terminalID, st.Terminals.ActiveTerminalID)

	layout := st.Layouts.Layouts[terminalID]
	require.NotNil(t, layout)
	assert.True(t, layout.IsLeaf())
	assert.Equal(t, terminalID, layout.TerminalID)
}

func TestCreateTerminalInProjectInheritsSiblingCwd(t *testing.T) {
	w, rt := newTestWorkspace(t)
	projectID, first, err := w.CreateProjectWithTerminal("api", "/src/api", 80, 24)
	require.NoError(t, err)

	rt.mu.Lock()
	rt.cwds[first] = "/src/api/cmd"
	rt.mu.Unlock()

	second, err := w.CreateTerminalInProject(projectID, 80, 24)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	require.Eventually(t, func() bool {
		return rt.writtenTo(second) == pty.CdCommand("/src/api/cmd")
	}, time.Second, 5*time.Millisecond)

	st := w.WorkspaceSnapshot()
	group := st.Projects.Nodes[st.Projects.Projects[projectID].RootGroupID]
	assert.Len(t, group.Children, 2)
	assert.NotNil(t, st.Layouts.Layouts[second])
}

func TestCreateTerminalInUnknownProject(t *testing.T) {
	w, _ := newTestWorkspace(t)
	_, err := w.CreateTerminalInProject("ghost", 80, 24)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestSplitPane(t *testing.T) {
	w, rt := newTestWorkspace(t)
	_, terminalID, err := w.CreateProjectWithTerminal("api", "/src/api", 80, 24)
	require.NoError(t, err)

	rt.mu.Lock()
	rt.cwds[terminalID] = "/src/api/pkg"
	rt.mu.Unlock()

	nodeCount := len(w.ProjectsSnapshot().Nodes)

	paneID, err := w.SplitPane(terminalID, models.SplitVertical, 80, 24)
	require.NoError(t, err)

	st := w.WorkspaceSnapshot()
	assert.Len(t, st.Projects.Nodes, nodeCount, "split panes never appear in the sidebar tree")
	require.NotNil(t, st.Terminals.Sessions[paneID])
	assert.Equal(t, paneID, st.Terminals.ActiveTerminalID)

	root := st.Layouts.Layouts[terminalID]
	require.NotNil(t, root)
	assert.Equal(t, []string{terminalID, paneID}, TerminalIDs(root))

	require.Eventually(t, func() bool {
		return rt.writtenTo(paneID) == pty.CdCommand("/src/api/pkg")
	}, time.Second, 5*time.Millisecond)
}

func TestSplitPaneUnknownTerminal(t *testing.T) {
	w, _ := newTestWorkspace(t)
	_, err := w.SplitPane("ghost", models.SplitVertical, 80, 24)
	assert.ErrorIs(t, err, ErrLayoutNotFound)
}

func TestClosePaneTabRootReKeys(t *testing.T) {
	w, rt := newTestWorkspace(t)
	_, rootID, err := w.CreateProjectWithTerminal("api", "/src/api", 80, 24)
	require.NoError(t, err)
	paneID, err := w.SplitPane(rootID, models.SplitVertical, 80, 24)
	require.NoError(t, err)

	require.NoError(t, w.ClosePane(rootID))

	st := w.WorkspaceSnapshot()
	assert.Nil(t, st.Layouts.Layouts[rootID])
	newRoot := st.Layouts.Layouts[paneID]
	require.NotNil(t, newRoot, "layout re-keyed under the surviving leaf")
	assert.True(t, newRoot.IsLeaf())
	assert.Equal(t, paneID, newRoot.TerminalID)

	var tab *models.TreeNode
	for _, node := range st.Projects.Nodes {
		if node.Type == models.NodeTypeTerminal {
			tab = node
		}
	}
	require.NotNil(t, tab)
	assert.Equal(t, paneID, tab.TerminalID, "tab node follows the re-keyed layout")

	assert.Nil(t, st.Terminals.Sessions[rootID])
	assert.Contains(t, rt.closedIDs(), rootID)
	assert.Equal(t, paneID, st.Terminals.ActiveTerminalID)
}

func TestClosePaneKeepsTabRoot(t *testing.T) {
	w, _ := newTestWorkspace(t)
	_, rootID, err := w.CreateProjectWithTerminal("api", "/src/api", 80, 24)
	require.NoError(t, err)
	paneID, err := w.SplitPane(rootID, models.SplitVertical, 80, 24)
	require.NoError(t, err)

	// The pane is active; closing it focuses its sibling.
	require.NoError(t, w.ClosePane(paneID))

	st := w.WorkspaceSnapshot()
	root := st.Layouts.Layouts[rootID]
	require.NotNil(t, root)
	assert.Equal(t, []string{rootID}, TerminalIDs(root))
	assert.Nil(t, st.Terminals.Sessions[paneID])
	assert.Equal(t, rootID, st.Terminals.ActiveTerminalID)
}

func TestCloseLastPaneRemovesProject(t *testing.T) {
	w, rt := newTestWorkspace(t)
	_, terminalID, err := w.CreateProjectWithTerminal("api", "/src/api", 80, 24)
	require.NoError(t, err)

	require.NoError(t, w.ClosePane(terminalID))

	st := w.WorkspaceSnapshot()
	assert.Empty(t, st.Projects.Projects)
	assert.Empty(t, st.Projects.Nodes)
	assert.Empty(t, st.Projects.ProjectOrder)
	assert.Empty(t, st.Terminals.Sessions)
	assert.Empty(t, st.Layouts.Layouts)
	assert.Empty(t, st.Terminals.ActiveTerminalID)
	assert.Empty(t, st.Projects.ActiveProjectID)
	assert.Equal(t, []string{terminalID}, rt.closedIDs())
}

func TestDeleteTabClosesEveryPane(t *testing.T) {
	w, rt := newTestWorkspace(t)
	projectID, rootID, err := w.CreateProjectWithTerminal("api", "/src/api", 80, 24)
	require.NoError(t, err)
	paneID, err := w.SplitPane(rootID, models.SplitVertical, 80, 24)
	require.NoError(t, err)
	otherID, err := w.CreateTerminalInProject(projectID, 80, 24)
	require.NoError(t, err)

	st := w.ProjectsSnapshot()
	var tabNodeID string
	for id, node := range st.Nodes {
		if node.Type == models.NodeTypeTerminal && node.TerminalID == rootID {
			tabNodeID = id
		}
	}
	require.NotEmpty(t, tabNodeID)

	require.NoError(t, w.DeleteTab(tabNodeID))

	after := w.WorkspaceSnapshot()
	assert.Nil(t, after.Layouts.Layouts[rootID])
	assert.Nil(t, after.Terminals.Sessions[rootID])
	assert.Nil(t, after.Terminals.Sessions[paneID])
	require.NotNil(t, after.Terminals.Sessions[otherID])
	assert.ElementsMatch(t, []string{rootID, paneID}, rt.closedIDs())
}

func TestDeleteProjectClosesEverything(t *testing.T) {
	w, rt := newTestWorkspace(t)
	projectID, rootID, err := w.CreateProjectWithTerminal("api", "/src/api", 80, 24)
	require.NoError(t, err)
	paneID, err := w.SplitPane(rootID, models.SplitVertical, 80, 24)
	require.NoError(t, err)
	otherProjectID, otherID, err := w.CreateProjectWithTerminal("web", "/src/web", 80, 24)
	require.NoError(t, err)

	require.NoError(t, w.DeleteProject(projectID))

	st := w.WorkspaceSnapshot()
	assert.Nil(t, st.Projects.Projects[projectID])
	assert.Equal(t, []string{otherProjectID}, st.Projects.ProjectOrder)
	assert.Nil(t, st.Terminals.Sessions[rootID])
	assert.Nil(t, st.Terminals.Sessions[paneID])
	require.NotNil(t, st.Terminals.Sessions[otherID])
	assert.Nil(t, st.Layouts.Layouts[rootID])
	require.NotNil(t, st.Layouts.Layouts[otherID])
	assert.ElementsMatch(t, []string{rootID, paneID}, rt.closedIDs())
}

func TestMoveTerminalBetweenProjects(t *testing.T) {
	w, _ := newTestWorkspace(t)
	p1, rootID, err := w.CreateProjectWithTerminal("api", "/src/api", 80, 24)
	require.NoError(t, err)
	paneID, err := w.SplitPane(rootID, models.SplitVertical, 80, 24)
	require.NoError(t, err)
	p2, _, err := w.CreateProjectWithTerminal("web", "/src/web", 80, 24)
	require.NoError(t, err)

	st := w.ProjectsSnapshot()
	var tabNodeID string
	for id, node := range st.Nodes {
		if node.Type == models.NodeTypeTerminal && node.TerminalID == rootID {
			tabNodeID = id
		}
	}
	require.NotEmpty(t, tabNodeID)

	before := w.WorkspaceSnapshot()
	require.NoError(t, w.MoveTerminal(tabNodeID, p2))

	after := w.WorkspaceSnapshot()
	assert.Equal(t, before.Layouts.Layouts[rootID], after.Layouts.Layouts[rootID])
	assert.Equal(t, []string{rootID, paneID}, TerminalIDs(after.Layouts.Layouts[rootID]))
	require.NotNil(t, after.Terminals.Sessions[rootID])
	require.NotNil(t, after.Terminals.Sessions[paneID])

	p1Group := after.Projects.Nodes[after.Projects.Projects[p1].RootGroupID]
	p2Group := after.Projects.Nodes[after.Projects.Projects[p2].RootGroupID]
	assert.NotContains(t, p1Group.Children, tabNodeID)
	assert.Contains(t, p2Group.Children, tabNodeID)
}
