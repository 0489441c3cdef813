// Package core holds the persistent history tree.
//
// The tree is a function of an append-only record log plus a cursor. Records
// point back to the previous version of their node and to their parent; the
// cursor decides which records are active. Payload is never stored here:
// callers keep it in parallel storage keyed by the same indices.
//
// Add, Change and Delete are O(1). Children is O(N*M) where N is the number
// of versions of the parent and M the number of active records.
//
// A HistoryTree is not safe for concurrent use.
package core

import "slices"

// HistoryTree stores node relations together with a linear undo/redo cursor.
type HistoryTree struct {
	records []Record

	// cursor is meaningful only when fixed is set. Otherwise the cursor
	// follows the last record of the log.
	cursor int
	fixed  bool
}

// New returns a tree holding only the sentinel root record.
func New() *HistoryTree {
	return &HistoryTree{
		records: []Record{{Prev: 0, Parent: 0}},
	}
}

// Root returns the index of the sentinel root.
func (t *HistoryTree) Root() Index { return 0 }

// Cursor returns the effective cursor: every record at or before it is active.
func (t *HistoryTree) Cursor() Index {
	if t.fixed {
		return t.cursor
	}
	return len(t.records) - 1
}

// Latest reports whether the cursor tracks the end of the log.
func (t *HistoryTree) Latest() bool { return !t.fixed }

// Len returns the number of records, undone ones included.
func (t *HistoryTree) Len() int { return len(t.records) }

// Record returns the record stored at i.
func (t *HistoryTree) Record(i Index) (Record, bool) {
	if i < 0 || i >= len(t.records) {
		return Record{}, false
	}
	return t.records[i], true
}

// Records returns a copy of the whole log.
func (t *HistoryTree) Records() []Record {
	return slices.Clone(t.records)
}

// Add appends a new node under parent and returns its index.
// The parent is not validated.
func (t *HistoryTree) Add(parent Index) Index {
	n := t.beginEdit()
	t.records = append(t.records, Record{Prev: n, Parent: parent})
	return n
}

// Change writes a new version of node under the same parent and returns the
// handle of the new version. Children recorded against the old handle stay
// visible under the new one.
func (t *HistoryTree) Change(node Index) Index {
	n := t.beginEdit()
	prev, parent := t.predecessor(node, n)
	t.records = append(t.records, Record{Prev: prev, Parent: parent})
	return n
}

// Delete writes a tombstone for node and returns the tombstone's index.
// The node stops showing up in Children from that point in history on.
func (t *HistoryTree) Delete(node Index) Index {
	n := t.beginEdit()
	prev, parent := t.predecessor(node, n)
	t.records = append(t.records, Record{Prev: prev, Parent: parent, Remove: true})
	return n
}

// beginEdit drops the undone future, resets the cursor to latest and
// returns the index the next record will get.
func (t *HistoryTree) beginEdit() Index {
	t.records = t.records[:t.Cursor()+1]
	t.fixed = false
	return len(t.records)
}

// predecessor resolves the prev and parent links for a new version of node
// stored at n. A handle outside the log yields an origin record under the
// root so that prev never points forward.
func (t *HistoryTree) predecessor(node, n Index) (prev, parent Index) {
	if node < 0 || node >= n {
		return n, t.Root()
	}
	return node, t.records[node].Parent
}

// Children returns the current version of every live child of parent, in
// ascending index order.
func (t *HistoryTree) Children(parent Index) []Index {
	cursor := t.Cursor()
	if parent < 0 || cursor < parent {
		return []Index{}
	}

	versions := t.versions(parent)
	var nodes []Index
	for i := 1; i <= cursor; i++ {
		if _, ok := versions[t.records[i].Parent]; ok {
			nodes = append(nodes, i)
		}
	}

	// Remove the older versions.
	live := make([]bool, len(nodes))
	for i := range live {
		live[i] = true
	}
	for i, a := range nodes {
		r := t.records[a]
		if r.Remove {
			live[i] = false
		}
		if r.IsOrigin(a) {
			continue
		}
		if j, ok := slices.BinarySearch(nodes, r.Prev); ok {
			live[j] = false
		}
	}

	out := make([]Index, 0, len(nodes))
	for i, id := range nodes {
		if live[i] {
			out = append(out, id)
		}
	}
	return out
}

// versions collects node and every earlier version of it.
func (t *HistoryTree) versions(node Index) map[Index]struct{} {
	set := map[Index]struct{}{node: {}}
	for {
		prev := t.records[node].Prev
		if prev == node {
			return set
		}
		node = prev
		set[node] = struct{}{}
	}
}

// Undo moves the cursor one record back. At the root it stays put.
func (t *HistoryTree) Undo() {
	if t.fixed {
		if t.cursor > 0 {
			t.cursor--
		}
		return
	}
	t.fixed = true
	t.cursor = max(len(t.records)-2, 0)
}

// Redo moves the cursor one record forward. Once it reaches the end of the
// log it tracks the latest record again.
func (t *HistoryTree) Redo() {
	if !t.fixed {
		return
	}
	if t.cursor+1 >= len(t.records) {
		t.fixed = false
		return
	}
	t.cursor++
}

// CanUndo reports whether Undo would move the cursor.
func (t *HistoryTree) CanUndo() bool { return t.Cursor() > 0 }

// CanRedo reports whether any undone record can be brought back.
func (t *HistoryTree) CanRedo() bool {
	return t.fixed && t.cursor < len(t.records)-1
}
