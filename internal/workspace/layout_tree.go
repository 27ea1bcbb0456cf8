package workspace

import (
	"github.com/google/uuid"

	"github.com/dispatch-sh/dispatcher/internal/models"
)

// TerminalIDs enumerates the leaf terminal ids of a layout tree in order,
// left to right.
func TerminalIDs(n *models.LayoutNode) []string {
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		return []string{n.TerminalID}
	}
	return append(TerminalIDs(n.First), TerminalIDs(n.Second)...)
}

func containsTerminal(n *models.LayoutNode, terminalID string) bool {
	if n == nil {
		return false
	}
	if n.IsLeaf() {
		return n.TerminalID == terminalID
	}
	return containsTerminal(n.First, terminalID) || containsTerminal(n.Second, terminalID)
}

func firstLeafID(n *models.LayoutNode) string {
	for n != nil && !n.IsLeaf() {
		n = n.First
	}
	if n == nil {
		return ""
	}
	return n.TerminalID
}

func lastLeafID(n *models.LayoutNode) string {
	for n != nil && !n.IsLeaf() {
		n = n.Second
	}
	if n == nil {
		return ""
	}
	return n.TerminalID
}

// siblingTerminalID returns the nearest other leaf to target: when target
// sits directly on one side of a split, the closest leaf of the other side;
// otherwise it recurses into the subtree holding target.
func siblingTerminalID(root *models.LayoutNode, target string) string {
	if root == nil || root.IsLeaf() {
		return ""
	}
	if root.First.IsLeaf() && root.First.TerminalID == target {
		return firstLeafID(root.Second)
	}
	if root.Second.IsLeaf() && root.Second.TerminalID == target {
		return lastLeafID(root.First)
	}
	if containsTerminal(root.First, target) {
		return siblingTerminalID(root.First, target)
	}
	if containsTerminal(root.Second, target) {
		return siblingTerminalID(root.Second, target)
	}
	return ""
}

func newLeaf(terminalID string) *models.LayoutNode {
	return &models.LayoutNode{
		Type:       models.LayoutLeaf,
		NodeID:     uuid.NewString(),
		TerminalID: terminalID,
	}
}

// splitAtTerminal replaces the leaf holding target with a split whose first
// child is the original leaf and whose second is a new leaf for newID. The
// returned tree shares unmodified subtrees with the input; found reports
// whether target was present.
func splitAtTerminal(n *models.LayoutNode, target, newID string, dir models.SplitDirection) (*models.LayoutNode, bool) {
	if n == nil {
		return nil, false
	}
	if n.IsLeaf() {
		if n.TerminalID != target {
			return n, false
		}
		return &models.LayoutNode{
			Type:      models.LayoutSplit,
			NodeID:    uuid.NewString(),
			Direction: dir,
			Ratio:     0.5,
			First:     n,
			Second:    newLeaf(newID),
		}, true
	}
	if first, ok := splitAtTerminal(n.First, target, newID, dir); ok {
		cp := *n
		cp.First = first
		return &cp, true
	}
	if second, ok := splitAtTerminal(n.Second, target, newID, dir); ok {
		cp := *n
		cp.Second = second
		return &cp, true
	}
	return n, false
}

// removeLeaf deletes the leaf holding target. A split whose only surviving
// child remains collapses into that child. Returns the new tree (nil when it
// became empty) and whether anything was removed.
func removeLeaf(n *models.LayoutNode, target string) (*models.LayoutNode, bool) {
	if n == nil {
		return nil, false
	}
	if n.IsLeaf() {
		if n.TerminalID == target {
			return nil, true
		}
		return n, false
	}
	if first, ok := removeLeaf(n.First, target); ok {
		if first == nil {
			return n.Second, true
		}
		cp := *n
		cp.First = first
		return &cp, true
	}
	if second, ok := removeLeaf(n.Second, target); ok {
		if second == nil {
			return n.First, true
		}
		cp := *n
		cp.Second = second
		return &cp, true
	}
	return n, false
}

// setSplitRatio clamps and applies ratio on the split with nodeID.
func setSplitRatio(n *models.LayoutNode, nodeID string, ratio float64) bool {
	if n == nil || n.IsLeaf() {
		return false
	}
	if n.NodeID == nodeID {
		n.Ratio = models.ClampRatio(ratio)
		return true
	}
	return setSplitRatio(n.First, nodeID, ratio) || setSplitRatio(n.Second, nodeID, ratio)
}
