package bptree

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Insert adds handle under key. A key already present only gets handle
// appended to its list; a new key may split the target leaf and cascade
// splits up to the root.
func (t *BPlusTree[H]) Insert(key Key, handle H) {
	if t.root == nil {
		leaf := newLeafNode[H](t.order)
		leaf.keys = append(leaf.keys, key)
		leaf.values = append(leaf.values, []H{handle})
		t.root = leaf
		t.size = 1
		return
	}

	leaf, parent, _ := t.descend(key, nil)
	if pos, found := leaf.findKey(key); found {
		leaf.values[pos] = append(leaf.values[pos], handle)
		return
	}
	t.size++

	if len(leaf.keys) < t.order {
		wasEmpty := len(leaf.keys) == 0
		pos := lowerBound(leaf.keys, key)
		leaf.keys = slices.Insert(leaf.keys, pos, key)
		leaf.values = slices.Insert(leaf.values, pos, []H{handle})
		if wasEmpty && parent != nil {
			t.refreshSeparators(key)
		}
		return
	}

	newLeaf := t.splitLeaf(leaf, key, handle)
	separator := newLeaf.keys[0]
	t.logger.Debug("split leaf", zap.Int64("separator", separator))

	if parent == nil {
		t.growRoot(leaf, newLeaf, separator)
		return
	}
	t.insertInternal(separator, parent, newLeaf)
}

// splitLeaf cuts a full leaf plus the new entry into two leaves. The left
// keeps (order+1)/2 entries and the new right leaf takes the rest and the
// old next link.
func (t *BPlusTree[H]) splitLeaf(leaf *leafNode[H], key Key, handle H) *leafNode[H] {
	if len(leaf.keys) != t.order {
		panic(fmt.Sprintf("%v: splitting leaf with %d keys, order %d", ErrInvariantViolation, len(leaf.keys), t.order))
	}

	pos := lowerBound(leaf.keys, key)
	virtualKeys := make([]Key, 0, t.order+1)
	virtualKeys = append(virtualKeys, leaf.keys[:pos]...)
	virtualKeys = append(virtualKeys, key)
	virtualKeys = append(virtualKeys, leaf.keys[pos:]...)

	virtualValues := make([][]H, 0, t.order+1)
	virtualValues = append(virtualValues, leaf.values[:pos]...)
	virtualValues = append(virtualValues, []H{handle})
	virtualValues = append(virtualValues, leaf.values[pos:]...)

	leftSize := (t.order + 1) / 2
	right := newLeafNode[H](t.order)
	right.keys = append(right.keys, virtualKeys[leftSize:]...)
	right.values = append(right.values, virtualValues[leftSize:]...)

	leaf.keys = append(leaf.keys[:0], virtualKeys[:leftSize]...)
	clear(leaf.values)
	leaf.values = append(leaf.values[:0], virtualValues[:leftSize]...)

	right.next = leaf.next
	leaf.next = right
	return right
}

// insertInternal places separator and its right-hand child into cursor,
// splitting cursor when it is already full.
func (t *BPlusTree[H]) insertInternal(separator Key, cursor *internalNode[H], child node[H]) {
	if len(cursor.keys) < t.order {
		pos := lowerBound(cursor.keys, separator)
		cursor.keys = slices.Insert(cursor.keys, pos, separator)
		cursor.children = slices.Insert(cursor.children, pos+1, child)
		return
	}

	right, middle := t.splitInternal(cursor, separator, child)
	// The key pushed up is the smallest key reachable under the new node,
	// not a key stored in either half.
	promoted, ok := findSmallestKeyInSubtree[H](right)
	if !ok {
		promoted = middle
	}
	t.logger.Debug("split internal node", zap.Int64("separator", promoted))

	if node[H](cursor) == t.root {
		t.growRoot(cursor, right, promoted)
		return
	}
	parent := findParent[H](t.root, node[H](cursor))
	if parent == nil {
		panic(fmt.Sprintf("%v: internal node detached from root", ErrInvariantViolation))
	}
	t.insertInternal(promoted, parent, right)
}

// splitInternal splits a full internal node after virtually inserting
// separator and child. cursor keeps (order+1)/2 keys, the new node gets
// order-(order+1)/2 keys; the key between them is returned as middle.
func (t *BPlusTree[H]) splitInternal(cursor *internalNode[H], separator Key, child node[H]) (*internalNode[H], Key) {
	if len(cursor.keys) != t.order {
		panic(fmt.Sprintf("%v: splitting internal node with %d keys, order %d", ErrInvariantViolation, len(cursor.keys), t.order))
	}

	pos := lowerBound(cursor.keys, separator)
	virtualKeys := make([]Key, 0, t.order+1)
	virtualKeys = append(virtualKeys, cursor.keys[:pos]...)
	virtualKeys = append(virtualKeys, separator)
	virtualKeys = append(virtualKeys, cursor.keys[pos:]...)

	virtualChildren := make([]node[H], 0, t.order+2)
	virtualChildren = append(virtualChildren, cursor.children[:pos+1]...)
	virtualChildren = append(virtualChildren, child)
	virtualChildren = append(virtualChildren, cursor.children[pos+1:]...)

	leftSize := (t.order + 1) / 2
	right := newInternalNode[H](t.order)
	right.keys = append(right.keys, virtualKeys[leftSize+1:]...)
	right.children = append(right.children, virtualChildren[leftSize+1:]...)

	cursor.keys = append(cursor.keys[:0], virtualKeys[:leftSize]...)
	clear(cursor.children)
	cursor.children = append(cursor.children[:0], virtualChildren[:leftSize+1]...)

	return right, virtualKeys[leftSize]
}

// growRoot installs a new root above left and right.
func (t *BPlusTree[H]) growRoot(left, right node[H], separator Key) {
	root := newInternalNode[H](t.order)
	root.keys = append(root.keys, separator)
	root.children = append(root.children, left, right)
	t.root = root
	t.logger.Debug("new root", zap.Int64("separator", separator), zap.Int("height", t.Height()))
}
