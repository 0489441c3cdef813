// Package memory keeps node payload in an ordered in-memory table keyed by
// history index.
package memory

import (
	"historytree/pkg/common"
	"sync"

	"github.com/google/btree"
)

type Item struct {
	Key common.Index
	Val []byte
}

func (i Item) Less(than btree.Item) bool {
	return i.Key < than.(Item).Key
}

type MemTable struct {
	tree *btree.BTree
	lock sync.RWMutex
	size int
}

func NewMemTable(degree int) *MemTable {
	if degree < 2 {
		degree = 32
	}
	return &MemTable{
		tree: btree.New(degree),
	}
}

func (mt *MemTable) Put(key common.Index, val []byte) {
	mt.lock.Lock()
	defer mt.lock.Unlock()

	item := Item{Key: key, Val: val}
	if old := mt.tree.ReplaceOrInsert(item); old != nil {
		mt.size -= 8 + len(old.(Item).Val)
	}
	mt.size += 8 + len(val)
}

func (mt *MemTable) Get(key common.Index) ([]byte, bool) {
	mt.lock.RLock()
	defer mt.lock.RUnlock()

	res := mt.tree.Get(Item{Key: key})
	if res == nil {
		return nil, false
	}
	return res.(Item).Val, true
}

// TruncateAfter drops every entry whose key is greater than cursor and
// returns how many were removed.
func (mt *MemTable) TruncateAfter(cursor common.Index) int {
	mt.lock.Lock()
	defer mt.lock.Unlock()

	var doomed []btree.Item
	mt.tree.AscendGreaterOrEqual(Item{Key: cursor + 1}, func(i btree.Item) bool {
		doomed = append(doomed, i)
		return true
	})
	for _, i := range doomed {
		mt.tree.Delete(i)
		mt.size -= 8 + len(i.(Item).Val)
	}
	return len(doomed)
}

// Size is the approximate payload footprint in bytes.
func (mt *MemTable) Size() int {
	mt.lock.RLock()
	defer mt.lock.RUnlock()
	return mt.size
}

func (mt *MemTable) Iterator(fn func(key common.Index, val []byte) bool) {
	mt.lock.RLock()
	defer mt.lock.RUnlock()

	mt.tree.Ascend(func(i btree.Item) bool {
		item := i.(Item)
		return fn(item.Key, item.Val)
	})
}

func (mt *MemTable) Count() int {
	mt.lock.RLock()
	defer mt.lock.RUnlock()
	return mt.tree.Len()
}
