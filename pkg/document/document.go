// Package document pairs a history tree with a payload backend so that
// every node version carries a text, and keeps a registry of open documents.
package document

import (
	"errors"
	"fmt"
	"io"
	"time"

	"historytree/pkg/common"
	"historytree/pkg/core"
	"historytree/pkg/monitor"
	"historytree/pkg/storage"
)

var ErrUnknownNode = errors.New("document: unknown node")

// RootText is the payload stored for the sentinel root.
const RootText = "root"

// Document is not safe for concurrent use; Registry serializes access.
type Document struct {
	tree    *core.HistoryTree
	payload storage.Backend
	stats   *monitor.Stats
}

// Node is a tree snapshot that carries the text of every version.
type Node struct {
	Index    common.Index `json:"index"`
	Text     string       `json:"text"`
	Children []Node       `json:"children,omitempty"`
}

func New(payload storage.Backend, stats *monitor.Stats) (*Document, error) {
	d := &Document{
		tree:    core.New(),
		payload: payload,
		stats:   stats,
	}
	if err := payload.Write(d.tree.Root(), []byte(RootText)); err != nil {
		return nil, fmt.Errorf("write root payload: %w", err)
	}
	return d, nil
}

func (d *Document) Root() common.Index { return d.tree.Root() }

func (d *Document) Cursor() common.Index { return d.tree.Cursor() }

func (d *Document) Len() int { return d.tree.Len() }

func (d *Document) CanUndo() bool { return d.tree.CanUndo() }

func (d *Document) CanRedo() bool { return d.tree.CanRedo() }

// Add creates a node under parent holding text.
func (d *Document) Add(text string, parent common.Index) (common.Index, error) {
	if err := d.checkActive(parent, true); err != nil {
		return 0, err
	}
	if err := d.stage(text); err != nil {
		return 0, err
	}
	d.stats.RecordEdit("add")
	return d.tree.Add(parent), nil
}

// Change writes a new version of node holding text and returns its handle.
func (d *Document) Change(text string, node common.Index) (common.Index, error) {
	if err := d.checkActive(node, false); err != nil {
		return 0, err
	}
	if err := d.stage(text); err != nil {
		return 0, err
	}
	d.stats.RecordEdit("change")
	return d.tree.Change(node), nil
}

// Delete hides node from this point in history on.
func (d *Document) Delete(node common.Index) (common.Index, error) {
	if err := d.checkActive(node, false); err != nil {
		return 0, err
	}
	if err := d.payload.TruncateAfter(d.tree.Cursor()); err != nil {
		return 0, fmt.Errorf("truncate payload: %w", err)
	}
	d.stats.RecordEdit("delete")
	return d.tree.Delete(node), nil
}

// stage drops payload of the undone future and writes text at the index the
// next record will get. A failed write leaves both payload and history intact.
func (d *Document) stage(text string) error {
	if err := d.payload.WriteNext(d.tree.Cursor(), []byte(text)); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

func (d *Document) checkActive(idx common.Index, allowRoot bool) error {
	if idx < 0 || idx > d.tree.Cursor() || (!allowRoot && idx == d.tree.Root()) {
		return fmt.Errorf("%w: %d", ErrUnknownNode, idx)
	}
	return nil
}

func (d *Document) Undo() {
	d.stats.RecordMove("undo")
	d.tree.Undo()
}

func (d *Document) Redo() {
	d.stats.RecordMove("redo")
	d.tree.Redo()
}

func (d *Document) Children(parent common.Index) []common.Index {
	start := time.Now()
	kids := d.tree.Children(parent)
	d.stats.ObserveQuery(time.Since(start))
	return kids
}

// Text returns the payload of idx if it is part of the active history.
func (d *Document) Text(idx common.Index) (string, bool) {
	if idx < 0 || idx > d.tree.Cursor() {
		return "", false
	}
	v, ok := d.payload.Read(idx)
	if !ok {
		return "", false
	}
	return string(v), true
}

// Print writes the texts below node using the tree's debug layout.
func (d *Document) Print(w io.Writer, node common.Index) error {
	return core.PrintFunc(w, d.tree, node, func(idx common.Index) string {
		text, _ := d.Text(idx)
		return text
	})
}

// Snapshot returns the subtree below node with texts filled in.
func (d *Document) Snapshot(node common.Index) Node {
	start := time.Now()
	tree := d.tree.Dump(node)
	d.stats.ObserveQuery(time.Since(start))
	return d.fill(tree)
}

func (d *Document) fill(t core.Tree) Node {
	text, _ := d.Text(t.Index)
	n := Node{Index: t.Index, Text: text}
	for _, ch := range t.Children {
		n.Children = append(n.Children, d.fill(ch))
	}
	return n
}

// Export returns the stored payload of the active history in index order.
// Entries of undone records are left out.
func (d *Document) Export() ([]common.Entry, error) {
	all, err := d.payload.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load payload: %w", err)
	}
	cursor := d.tree.Cursor()
	out := make([]common.Entry, 0, len(all))
	for _, e := range all {
		if e.Key <= cursor {
			out = append(out, e)
		}
	}
	return out, nil
}

// Records exposes the raw log, mainly for diagnostics.
func (d *Document) Records() []core.Record { return d.tree.Records() }

func (d *Document) Close() error {
	return d.payload.Close()
}
