// Package bptree implements an in-memory B+Tree secondary index keyed on
// integers. Each key maps to the ordered list of record handles inserted
// under it; handles are opaque tokens issued by an external record store.
//
// Leaves are linked front to back for range scans. Nodes keep no parent
// pointers, so parents are re-derived from the root when a split or merge
// needs them. The tree is not safe for concurrent use.
package bptree

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Key is the indexed attribute.
type Key = int64

// MaxReportedNodes caps the node contents kept in an AccessReport.
const MaxReportedNodes = 5

// --- Error Definitions ---

var (
	ErrInvalidOrder       = errors.New("bptree order must be at least 1")
	ErrKeyNotFound        = errors.New("key not found")
	ErrInvariantViolation = errors.New("bptree invariant violated")
)

type options struct {
	logger *zap.Logger
}

// Option configures a BPlusTree.
type Option func(*options)

// WithLogger sets the logger used for structural events (splits, merges,
// root changes). Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// BPlusTree is a B+Tree of order N: every node holds at most N keys.
type BPlusTree[H comparable] struct {
	order  int
	root   node[H]
	size   int // distinct keys
	logger *zap.Logger
}

// New creates an empty tree whose nodes hold at most order keys.
func New[H comparable](order int, opts ...Option) (*BPlusTree[H], error) {
	if order < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidOrder, order)
	}
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &BPlusTree[H]{
		order:  order,
		logger: o.logger,
	}, nil
}

// Order returns the maximum number of keys per node.
func (t *BPlusTree[H]) Order() int { return t.order }

// MinKeys is the occupancy below which a non-root leaf borrows or merges
// after a removal.
func (t *BPlusTree[H]) MinKeys() int { return (t.order + 1) / 2 }

// Len returns the number of distinct keys.
func (t *BPlusTree[H]) Len() int { return t.size }

// Empty reports whether the tree holds no key.
func (t *BPlusTree[H]) Empty() bool { return t.root == nil }

// Height returns the number of levels, counting nodes rather than edges on a
// root-to-leaf path: 0 for an empty tree, 1 when the root is a leaf. An
// edge-counting height is Height()-1 for a non-empty tree.
func (t *BPlusTree[H]) Height() int {
	h := 0
	for n := t.root; n != nil; {
		h++
		in, ok := n.(*internalNode[H])
		if !ok {
			break
		}
		n = in.children[0]
	}
	return h
}

// NodeCount returns the number of nodes in the tree.
func (t *BPlusTree[H]) NodeCount() int {
	if t.root == nil {
		return 0
	}
	return countNodes[H](t.root)
}

func countNodes[H comparable](n node[H]) int {
	count := 1
	if in, ok := n.(*internalNode[H]); ok {
		for _, c := range in.children {
			count += countNodes[H](c)
		}
	}
	return count
}

// RootKeys returns a copy of the root's keys.
func (t *BPlusTree[H]) RootKeys() []Key {
	if t.root == nil {
		return nil
	}
	return cloneKeys(t.root.nodeKeys())
}

// FirstChildKeys returns a copy of the keys of the root's first child, or nil
// when the root is a leaf.
func (t *BPlusTree[H]) FirstChildKeys() []Key {
	in, ok := t.root.(*internalNode[H])
	if !ok {
		return nil
	}
	return cloneKeys(in.children[0].nodeKeys())
}

// Keys walks the leaf chain and returns every key in ascending order.
func (t *BPlusTree[H]) Keys() []Key {
	if t.size == 0 {
		return nil
	}
	keys := make([]Key, 0, t.size)
	for leaf := leftmostLeaf[H](t.root); leaf != nil; leaf = leaf.next {
		keys = append(keys, leaf.keys...)
	}
	return keys
}

// Clear tears the tree down and returns the number of nodes released. A
// node's children are released before the node itself.
func (t *BPlusTree[H]) Clear() int {
	if t.root == nil {
		return 0
	}
	released := release[H](t.root)
	t.root = nil
	t.size = 0
	return released
}

func release[H comparable](n node[H]) int {
	released := 0
	switch n := n.(type) {
	case *internalNode[H]:
		for _, c := range n.children {
			released += release[H](c)
		}
		n.children = nil
		n.keys = nil
	case *leafNode[H]:
		n.next = nil
		n.values = nil
		n.keys = nil
	}
	return released + 1
}

// AccessReport describes the index nodes visited by a query.
type AccessReport struct {
	// NodesAccessed counts every node visited, internal and leaf.
	NodesAccessed int
	// Contents holds the keys of the first MaxReportedNodes visited nodes.
	Contents [][]Key
}

func (r *AccessReport) visit(keys []Key) {
	if r == nil {
		return
	}
	r.NodesAccessed++
	if len(r.Contents) < MaxReportedNodes {
		r.Contents = append(r.Contents, cloneKeys(keys))
	}
}

func cloneKeys(keys []Key) []Key {
	out := make([]Key, len(keys))
	copy(out, keys)
	return out
}
