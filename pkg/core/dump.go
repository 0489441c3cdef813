package core

import (
	"fmt"
	"io"
	"strings"
)

// Tree is a snapshot of the children relation below one node.
type Tree struct {
	Index    Index  `json:"index"`
	Children []Tree `json:"children,omitempty"`
}

// Dump returns the tree below parent as of the current cursor. A child that is
// already on the path from parent is listed without its subtree, so a record
// added under its own index still dumps in finite depth.
func (t *HistoryTree) Dump(parent Index) Tree {
	return t.dump(parent, map[Index]bool{})
}

func (t *HistoryTree) dump(idx Index, onPath map[Index]bool) Tree {
	node := Tree{Index: idx}
	if onPath[idx] {
		return node
	}
	onPath[idx] = true
	for _, ch := range t.Children(idx) {
		node.Children = append(node.Children, t.dump(ch, onPath))
	}
	delete(onPath, idx)
	return node
}

// Walk visits parent and its descendants depth first. Returning false from fn
// skips the subtree of the visited node. A node already on the current path is
// visited once more but not descended into.
func (t *HistoryTree) Walk(parent Index, fn func(depth int, idx Index) bool) {
	t.walk(parent, 0, map[Index]bool{}, fn)
}

func (t *HistoryTree) walk(idx Index, depth int, onPath map[Index]bool, fn func(int, Index) bool) {
	if !fn(depth, idx) || onPath[idx] {
		return
	}
	onPath[idx] = true
	for _, ch := range t.Children(idx) {
		t.walk(ch, depth+1, onPath, fn)
	}
	delete(onPath, idx)
}

// Print writes the tree below parent using one line per node.
// This is used for debugging.
func (t *HistoryTree) Print(w io.Writer, parent Index) error {
	return PrintFunc(w, t, parent, func(idx Index) string {
		return fmt.Sprint(idx)
	})
}

// String renders the tree from the root.
func (t *HistoryTree) String() string {
	var sb strings.Builder
	_ = t.Print(&sb, t.Root())
	return sb.String()
}

// PrintFunc is Print with a custom label per node, for callers that keep
// payload next to the tree.
func PrintFunc(w io.Writer, t *HistoryTree, parent Index, label func(Index) string) error {
	var err error
	t.Walk(parent, func(depth int, idx Index) bool {
		if err != nil {
			return false
		}
		prefix := ""
		if depth > 0 {
			prefix = strings.Repeat("  ", depth-1) + "|-"
		}
		_, err = fmt.Fprintf(w, "%s%s\n", prefix, label(idx))
		return err == nil
	})
	return err
}
