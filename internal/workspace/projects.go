package workspace

import (
	"github.com/google/uuid"

	"github.com/dispatch-sh/dispatcher/internal/models"
)

// AddProject creates a project with an empty root group, appends it to the
// project order and makes it active.
func (w *Workspace) AddProject(name, cwd string) *models.Project {
	w.mu.Lock()
	project := w.addProjectLocked(name, cwd)
	w.mu.Unlock()
	w.changed()
	return project
}

func (w *Workspace) addProjectLocked(name, cwd string) *models.Project {
	group := &models.TreeNode{
		ID:   uuid.NewString(),
		Type: models.NodeTypeGroup,
		Name: name,
	}
	project := &models.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Cwd:         cwd,
		RootGroupID: group.ID,
		Expanded:    true,
	}
	w.nodes[group.ID] = group
	w.projects[project.ID] = project
	w.projectOrder = append(w.projectOrder, project.ID)
	w.activeProjectID = project.ID
	return project
}

// RemoveProject drops a project and its node subtree from the stores. It
// does not touch sessions or layouts; DeleteProject is the composite that
// closes terminals first.
func (w *Workspace) RemoveProject(id string) error {
	w.mu.Lock()
	err := w.removeProjectLocked(id)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.changed()
	return nil
}

func (w *Workspace) removeProjectLocked(id string) error {
	project, ok := w.projects[id]
	if !ok {
		return ErrProjectNotFound
	}
	w.removeSubtreeLocked(project.RootGroupID)
	delete(w.projects, id)
	w.projectOrder = removeString(w.projectOrder, id)
	if w.activeProjectID == id {
		w.activeProjectID = ""
		if len(w.projectOrder) > 0 {
			w.activeProjectID = w.projectOrder[0]
		}
	}
	return nil
}

func (w *Workspace) removeSubtreeLocked(nodeID string) {
	node, ok := w.nodes[nodeID]
	if !ok {
		return
	}
	for _, child := range node.Children {
		w.removeSubtreeLocked(child)
	}
	delete(w.nodes, nodeID)
}

// RenameProject sets a project's display name.
func (w *Workspace) RenameProject(id, name string) error {
	w.mu.Lock()
	project, ok := w.projects[id]
	if !ok {
		w.mu.Unlock()
		return ErrProjectNotFound
	}
	project.Name = name
	w.mu.Unlock()
	w.changed()
	return nil
}

// SetActiveProject focuses a project; an empty id clears the focus.
func (w *Workspace) SetActiveProject(id string) error {
	w.mu.Lock()
	if id != "" {
		if _, ok := w.projects[id]; !ok {
			w.mu.Unlock()
			return ErrProjectNotFound
		}
	}
	w.activeProjectID = id
	w.mu.Unlock()
	w.changed()
	return nil
}

// ToggleProjectExpanded flips the sidebar expansion of a project.
func (w *Workspace) ToggleProjectExpanded(id string) error {
	w.mu.Lock()
	project, ok := w.projects[id]
	if !ok {
		w.mu.Unlock()
		return ErrProjectNotFound
	}
	project.Expanded = !project.Expanded
	w.mu.Unlock()
	w.changed()
	return nil
}

// ReorderProject moves id before or after target in the project order.
// Reordering a project relative to itself is a no-op.
func (w *Workspace) ReorderProject(id, target string, pos Position) error {
	w.mu.Lock()
	if id == target {
		w.mu.Unlock()
		return nil
	}
	if _, ok := w.projects[id]; !ok {
		w.mu.Unlock()
		return ErrProjectNotFound
	}
	if _, ok := w.projects[target]; !ok {
		w.mu.Unlock()
		return ErrProjectNotFound
	}
	w.projectOrder = reorder(w.projectOrder, id, target, pos)
	w.mu.Unlock()
	w.changed()
	return nil
}

// AddNode registers a tree node without attaching it anywhere.
func (w *Workspace) AddNode(node *models.TreeNode) {
	w.mu.Lock()
	w.nodes[node.ID] = node
	w.mu.Unlock()
	w.changed()
}

// RemoveNode detaches a node from its parent and deletes its subtree.
func (w *Workspace) RemoveNode(id string) error {
	w.mu.Lock()
	node, ok := w.nodes[id]
	if !ok {
		w.mu.Unlock()
		return ErrNodeNotFound
	}
	if parent, ok := w.nodes[node.ParentID]; ok {
		parent.Children = removeString(parent.Children, id)
	}
	w.removeSubtreeLocked(id)
	w.mu.Unlock()
	w.changed()
	return nil
}

// AddChildToNode appends childID under parentID. Adding a child that is
// already present is a no-op.
func (w *Workspace) AddChildToNode(parentID, childID string) error {
	w.mu.Lock()
	err := w.addChildLocked(parentID, childID)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.changed()
	return nil
}

func (w *Workspace) addChildLocked(parentID, childID string) error {
	parent, ok := w.nodes[parentID]
	if !ok {
		return ErrNodeNotFound
	}
	child, ok := w.nodes[childID]
	if !ok {
		return ErrNodeNotFound
	}
	for _, existing := range parent.Children {
		if existing == childID {
			return nil
		}
	}
	parent.Children = append(parent.Children, childID)
	child.ParentID = parentID
	return nil
}

// RemoveChildFromNode detaches childID from parentID without deleting it.
func (w *Workspace) RemoveChildFromNode(parentID, childID string) error {
	w.mu.Lock()
	parent, ok := w.nodes[parentID]
	if !ok {
		w.mu.Unlock()
		return ErrNodeNotFound
	}
	parent.Children = removeString(parent.Children, childID)
	if child, ok := w.nodes[childID]; ok && child.ParentID == parentID {
		child.ParentID = ""
	}
	w.mu.Unlock()
	w.changed()
	return nil
}

// MoveNode detaches id from its current parent and appends it under
// newParentID, atomically.
func (w *Workspace) MoveNode(id, newParentID string) error {
	w.mu.Lock()
	node, ok := w.nodes[id]
	if !ok {
		w.mu.Unlock()
		return ErrNodeNotFound
	}
	newParent, ok := w.nodes[newParentID]
	if !ok {
		w.mu.Unlock()
		return ErrNodeNotFound
	}
	if oldParent, ok := w.nodes[node.ParentID]; ok {
		oldParent.Children = removeString(oldParent.Children, id)
	}
	newParent.Children = append(newParent.Children, id)
	node.ParentID = newParentID
	w.mu.Unlock()
	w.changed()
	return nil
}

// ReorderChild moves childID before or after targetChildID within parent's
// children. Reordering a child relative to itself is a no-op.
func (w *Workspace) ReorderChild(parentID, childID, targetChildID string, pos Position) error {
	w.mu.Lock()
	if childID == targetChildID {
		w.mu.Unlock()
		return nil
	}
	parent, ok := w.nodes[parentID]
	if !ok {
		w.mu.Unlock()
		return ErrNodeNotFound
	}
	if !contains(parent.Children, childID) || !contains(parent.Children, targetChildID) {
		w.mu.Unlock()
		return ErrNodeNotFound
	}
	parent.Children = reorder(parent.Children, childID, targetChildID, pos)
	w.mu.Unlock()
	w.changed()
	return nil
}

func removeString(s []string, v string) []string {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func contains(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func reorder(s []string, id, target string, pos Position) []string {
	without := make([]string, 0, len(s))
	for _, x := range s {
		if x != id {
			without = append(without, x)
		}
	}
	out := make([]string, 0, len(s))
	for _, x := range without {
		if x == target && pos == Before {
			out = append(out, id)
		}
		out = append(out, x)
		if x == target && pos == After {
			out = append(out, id)
		}
	}
	return out
}
