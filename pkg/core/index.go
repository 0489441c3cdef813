package core

// Index is the position of a record in the history log. It doubles as the
// handle callers use to address a node version.
type Index = int

// RecordKind tells an origin record apart from a later version of a node.
type RecordKind int

const (
	// Origin marks the first record of a logical node.
	Origin RecordKind = iota
	// Versioned marks a record that supersedes an earlier one via Prev.
	Versioned
)

func (k RecordKind) String() string {
	if k == Origin {
		return "origin"
	}
	return "versioned"
}

// Record is one immutable entry of the history log.
// A record whose Prev equals its own index is the origin of its node.
type Record struct {
	Prev   Index // previous version of the same node
	Parent Index // structural parent when this record was written
	Remove bool  // tombstone for the node
}

// IsOrigin reports whether r, stored at self, has no earlier version.
func (r Record) IsOrigin(self Index) bool {
	return r.Prev == self
}

// Kind classifies r as stored at self.
func (r Record) Kind(self Index) RecordKind {
	if r.IsOrigin(self) {
		return Origin
	}
	return Versioned
}
