package core

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildNotes(t *testing.T) *HistoryTree {
	t.Helper()
	ht := New()
	root := ht.Root()
	ht.Add(root)
	notes := ht.Add(root)
	bar := ht.Add(notes)
	ht.Add(bar)
	ht.Change(bar)
	return ht
}

func TestPrintIndentsChildren(t *testing.T) {
	ht := buildNotes(t)

	var buf bytes.Buffer
	require.NoError(t, ht.Print(&buf, ht.Root()))
	assert.Equal(t, "0\n|-1\n|-2\n  |-5\n    |-4\n", buf.String())
	assert.Equal(t, buf.String(), ht.String())
}

func TestDumpMatchesChildren(t *testing.T) {
	ht := buildNotes(t)

	want := Tree{Index: 0, Children: []Tree{
		{Index: 1},
		{Index: 2, Children: []Tree{
			{Index: 5, Children: []Tree{{Index: 4}}},
		}},
	}}
	assert.Equal(t, want, ht.Dump(ht.Root()))

	ht.Undo()
	assert.Equal(t, []Tree{{Index: 3, Children: []Tree{{Index: 4}}}}, ht.Dump(2).Children)
}

func TestWalkSkipsSubtree(t *testing.T) {
	ht := buildNotes(t)

	var seen []Index
	ht.Walk(ht.Root(), func(depth int, idx Index) bool {
		seen = append(seen, idx)
		return idx != 2
	})
	assert.Equal(t, []Index{0, 1, 2}, seen)
}

func TestPrintFuncUsesLabels(t *testing.T) {
	ht := buildNotes(t)
	labels := map[Index]string{0: "root", 1: "assets", 2: "notes", 4: "baz", 5: "bar"}

	var buf bytes.Buffer
	require.NoError(t, PrintFunc(&buf, ht, 2, func(idx Index) string {
		return labels[idx]
	}))
	assert.Equal(t, "notes\n|-bar\n  |-baz\n", buf.String())
}

type failingWriter struct{ n int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, fmt.Errorf("closed")
	}
	w.n--
	return len(p), nil
}

func TestPrintStopsOnWriteError(t *testing.T) {
	ht := buildNotes(t)
	err := ht.Print(&failingWriter{n: 2}, ht.Root())
	assert.EqualError(t, err, "closed")
}

func TestDumpStopsOnParentCycles(t *testing.T) {
	ht := New()
	self := ht.Add(1)
	require.Equal(t, 1, self)
	assert.Equal(t, []Index{1}, ht.Children(1))
	assert.Equal(t, Tree{Index: 1, Children: []Tree{{Index: 1}}}, ht.Dump(1))

	var buf bytes.Buffer
	require.NoError(t, ht.Print(&buf, 1))
	assert.Equal(t, "1\n|-1\n", buf.String())
	assert.Equal(t, "0\n", ht.String())

	ht = New()
	ht.Add(2)
	ht.Add(1)
	assert.Equal(t, []Index{2}, ht.Children(1))
	assert.Equal(t, []Index{1}, ht.Children(2))
	assert.Equal(t, Tree{Index: 1, Children: []Tree{{Index: 2, Children: []Tree{{Index: 1}}}}}, ht.Dump(1))

	visited := 0
	ht.Walk(2, func(int, Index) bool {
		visited++
		return true
	})
	assert.Equal(t, 3, visited)
}

func TestAddUnderMissingParentStaysHidden(t *testing.T) {
	ht := New()
	idx := ht.Add(99)

	rec, ok := ht.Record(idx)
	require.True(t, ok)
	assert.Equal(t, 99, rec.Parent)
	assert.Empty(t, ht.Children(ht.Root()))
	assert.Empty(t, ht.Children(99))
	assert.Equal(t, Tree{Index: 0}, ht.Dump(ht.Root()))
	assert.Equal(t, "0\n", ht.String())
}
