package common

import (
	"fmt"

	"historytree/pkg/core"
)

// Index is the shared key space of history records and node payload.
type Index = core.Index

// Entry is one unit of node payload stored next to the history tree.
type Entry struct {
	Key   Index  `json:"key"`
	Value []byte `json:"value"`
}

// String is handy for debug printing.
func (e *Entry) String() string {
	return fmt.Sprintf("Entry{Key: %d, ValLen: %d}", e.Key, len(e.Value))
}
