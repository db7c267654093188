package bptree

import "sort"

// node is one of *leafNode[H] or *internalNode[H]. Nodes never hold a
// reference to their parent.
type node[H comparable] interface {
	nodeKeys() []Key
}

// leafNode holds the key -> handle list entries. next is the non-owning link
// to the following leaf in key order; nil for the last leaf.
type leafNode[H comparable] struct {
	keys   []Key
	values [][]H
	next   *leafNode[H]
}

// internalNode holds routing keys. len(children) == len(keys)+1 and the node
// exclusively owns its children.
type internalNode[H comparable] struct {
	keys     []Key
	children []node[H]
}

func (n *leafNode[H]) nodeKeys() []Key     { return n.keys }
func (n *internalNode[H]) nodeKeys() []Key { return n.keys }

func newLeafNode[H comparable](capacity int) *leafNode[H] {
	return &leafNode[H]{
		keys:   make([]Key, 0, capacity),
		values: make([][]H, 0, capacity),
	}
}

func newInternalNode[H comparable](capacity int) *internalNode[H] {
	return &internalNode[H]{
		keys:     make([]Key, 0, capacity),
		children: make([]node[H], 0, capacity+1),
	}
}

// childIndex returns the child to follow for key: the first i with
// key < keys[i], or the last child when key is >= every key.
func childIndex(keys []Key, key Key) int {
	return sort.Search(len(keys), func(i int) bool { return key < keys[i] })
}

// lowerBound returns the position of the first key >= key.
func lowerBound(keys []Key, key Key) int {
	return sort.Search(len(keys), func(i int) bool { return keys[i] >= key })
}

// findKey returns the slot holding key in a leaf, if any.
func (n *leafNode[H]) findKey(key Key) (int, bool) {
	i := lowerBound(n.keys, key)
	return i, i < len(n.keys) && n.keys[i] == key
}

// childPosition returns the slot of child in n.children, or -1.
func (n *internalNode[H]) childPosition(child node[H]) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// findParent searches the subtree rooted at cursor for the internal node
// whose children contain child. It returns nil when child is cursor itself or
// is not reachable from cursor.
func findParent[H comparable](cursor, child node[H]) *internalNode[H] {
	in, ok := cursor.(*internalNode[H])
	if !ok {
		return nil
	}
	if in.childPosition(child) >= 0 {
		return in
	}
	// The level above the leaves cannot hold the parent of an internal node.
	if _, leafChildren := in.children[0].(*leafNode[H]); leafChildren {
		return nil
	}
	for _, c := range in.children {
		if parent := findParent[H](c, child); parent != nil {
			return parent
		}
	}
	return nil
}

// findSmallestKeyInSubtree follows child 0 down to a leaf and returns its
// first key. When that path ends in an empty leaf (possible under a keyless
// internal node) the first routing key of the nearest node above it is the
// smallest key, stored or routing, anywhere in the subtree. ok is false when
// the subtree holds no key at all.
func findSmallestKeyInSubtree[H comparable](n node[H]) (Key, bool) {
	switch n := n.(type) {
	case *leafNode[H]:
		if len(n.keys) == 0 {
			return 0, false
		}
		return n.keys[0], true
	case *internalNode[H]:
		if k, ok := findSmallestKeyInSubtree[H](n.children[0]); ok {
			return k, true
		}
		if len(n.keys) > 0 {
			return n.keys[0], true
		}
	}
	return 0, false
}

// leftmostLeaf returns the first leaf of the chain under n.
func leftmostLeaf[H comparable](n node[H]) *leafNode[H] {
	for {
		switch cur := n.(type) {
		case *leafNode[H]:
			return cur
		case *internalNode[H]:
			n = cur.children[0]
		}
	}
}
