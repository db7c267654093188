package bptree

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
)

// Remove deletes key together with every handle stored under it. A leaf left
// below MinKeys borrows from a sibling or is merged with one. Internal nodes
// other than the root are not rebalanced when a merge leaves them short.
func (t *BPlusTree[H]) Remove(key Key) error {
	if t.root == nil {
		return fmt.Errorf("%w: %d", ErrKeyNotFound, key)
	}
	leaf, parent, idx := t.descend(key, nil)
	pos, found := leaf.findKey(key)
	if !found {
		return fmt.Errorf("%w: %d", ErrKeyNotFound, key)
	}

	leaf.keys = slices.Delete(leaf.keys, pos, pos+1)
	leaf.values = slices.Delete(leaf.values, pos, pos+1)
	t.size--

	if t.size == 0 {
		// Short internal nodes can keep empty leaves alive under the root.
		released := release[H](t.root)
		t.root = nil
		t.logger.Debug("tree emptied", zap.Int("released_nodes", released))
		return nil
	}
	if parent == nil {
		return nil
	}

	if len(leaf.keys) < t.MinKeys() {
		t.rebalanceLeaf(leaf, parent, idx)
	}
	t.refreshSeparators(key)
	return nil
}

// rebalanceLeaf restores occupancy of leaf, the idx-th child of parent. It
// tries, in order: borrow from the left sibling, borrow from the right
// sibling, merge into the left sibling, merge the right sibling in.
func (t *BPlusTree[H]) rebalanceLeaf(leaf *leafNode[H], parent *internalNode[H], idx int) {
	minKeys := t.MinKeys()
	var left, right *leafNode[H]
	if idx > 0 {
		left = siblingLeaf(parent, idx-1)
	}
	if idx < len(parent.children)-1 {
		right = siblingLeaf(parent, idx+1)
	}

	switch {
	case left != nil && len(left.keys) > minKeys:
		last := len(left.keys) - 1
		leaf.keys = slices.Insert(leaf.keys, 0, left.keys[last])
		leaf.values = slices.Insert(leaf.values, 0, left.values[last])
		left.keys = left.keys[:last]
		left.values[last] = nil
		left.values = left.values[:last]
		parent.keys[idx-1] = leaf.keys[0]
		t.logger.Debug("borrowed from left leaf", zap.Int64("separator", parent.keys[idx-1]))

	case right != nil && len(right.keys) > minKeys:
		leaf.keys = append(leaf.keys, right.keys[0])
		leaf.values = append(leaf.values, right.values[0])
		right.keys = slices.Delete(right.keys, 0, 1)
		right.values = slices.Delete(right.values, 0, 1)
		parent.keys[idx] = right.keys[0]
		t.logger.Debug("borrowed from right leaf", zap.Int64("separator", parent.keys[idx]))

	case left != nil:
		t.mergeLeaves(parent, idx-1, left, leaf)

	case right != nil:
		t.mergeLeaves(parent, idx, leaf, right)

	default:
		// Only child of a short internal node: nothing to borrow from.
		t.logger.Debug("leaf left underfull", zap.Int("keys", len(leaf.keys)))
	}
}

// mergeLeaves folds right into left. The two must be adjacent children of
// parent at slots sepIdx and sepIdx+1.
func (t *BPlusTree[H]) mergeLeaves(parent *internalNode[H], sepIdx int, left, right *leafNode[H]) {
	if parent.children[sepIdx] != node[H](left) || parent.children[sepIdx+1] != node[H](right) {
		panic(fmt.Sprintf("%v: merging leaves that are not adjacent siblings", ErrInvariantViolation))
	}
	left.keys = append(left.keys, right.keys...)
	left.values = append(left.values, right.values...)
	left.next = right.next

	separator := parent.keys[sepIdx]
	t.logger.Debug("merged leaves", zap.Int64("separator", separator), zap.Int("keys", len(left.keys)))
	t.removeInternal(separator, parent, right)
	release[H](right)
}

// removeInternal drops separator and the child to its right from cursor.
// When cursor is the root and ends up with no key, its only child becomes
// the new root.
func (t *BPlusTree[H]) removeInternal(separator Key, cursor *internalNode[H], child node[H]) {
	pos := cursor.childPosition(child)
	if pos < 1 || cursor.keys[pos-1] != separator {
		panic(fmt.Sprintf("%v: separator %d does not precede removed child", ErrInvariantViolation, separator))
	}
	cursor.keys = slices.Delete(cursor.keys, pos-1, pos)
	cursor.children = slices.Delete(cursor.children, pos, pos+1)

	if node[H](cursor) != t.root {
		if len(cursor.keys) < t.MinKeys() {
			t.logger.Debug("internal node below minimum", zap.Int("keys", len(cursor.keys)))
		}
		return
	}
	if len(cursor.keys) == 0 {
		t.root = cursor.children[0]
		cursor.children = nil
		cursor.keys = nil
		t.logger.Debug("root collapsed", zap.Int("height", t.Height()))
	}
}

// refreshSeparators resets each separator on the path of key to the
// smallest key, stored or routing, of the subtree to its right. The path is
// fixed on the way down and repaired bottom up so each separator sees the
// repaired keys below it. A separator only moves up, and never past a routing
// key inside its subtree.
func (t *BPlusTree[H]) refreshSeparators(key Key) {
	var path []pathStep[H]
	cursor := t.root
	for {
		in, ok := cursor.(*internalNode[H])
		if !ok {
			break
		}
		i := childIndex(in.keys, key)
		path = append(path, pathStep[H]{node: in, child: i})
		cursor = in.children[i]
	}

	for _, s := range slices.Backward(path) {
		if s.child == 0 {
			continue
		}
		if smallest, ok := findSmallestKeyInSubtree[H](s.node.children[s.child]); ok {
			s.node.keys[s.child-1] = smallest
		}
	}
}

// pathStep is one internal node on a root-to-leaf path and the child slot
// taken from it.
type pathStep[H comparable] struct {
	node  *internalNode[H]
	child int
}

func siblingLeaf[H comparable](parent *internalNode[H], idx int) *leafNode[H] {
	leaf, ok := parent.children[idx].(*leafNode[H])
	if !ok {
		panic(fmt.Sprintf("%v: sibling at slot %d is not a leaf", ErrInvariantViolation, idx))
	}
	return leaf
}
