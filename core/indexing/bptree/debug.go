package bptree

import (
	"fmt"
	"strings"
)

// String renders the tree level by level, one line per level, e.g.
//
//	[9]
//	[1 5] [9 13]
func (t *BPlusTree[H]) String() string {
	if t.root == nil {
		return "<empty>"
	}
	var sb strings.Builder
	level := []node[H]{t.root}
	for len(level) > 0 {
		var next []node[H]
		for i, n := range level {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprint(&sb, n.nodeKeys())
			if in, ok := n.(*internalNode[H]); ok {
				next = append(next, in.children...)
			}
		}
		sb.WriteByte('\n')
		level = next
	}
	return sb.String()
}

// Check walks the whole tree and verifies its structural invariants: keys
// strictly increasing within every node and bounded by the separators above,
// node sizes within order, every leaf at the same depth, each separator equal
// to the smallest key (stored or routing) of its right subtree, every leaf
// that has a sibling holding at least MinKeys keys, and the leaf chain
// visiting the leaves in key order. An only-child leaf under a short internal
// node may run below MinKeys. It returns nil for an empty tree.
func (t *BPlusTree[H]) Check() error {
	if t.root == nil {
		if t.size != 0 {
			return fmt.Errorf("%w: empty tree reports %d keys", ErrInvariantViolation, t.size)
		}
		return nil
	}

	c := checker[H]{order: t.order, minKeys: t.MinKeys(), leafDepth: -1}
	if err := c.walk(t.root, 0, nil, nil); err != nil {
		return err
	}
	if c.keys != t.size {
		return fmt.Errorf("%w: counted %d keys, tree reports %d", ErrInvariantViolation, c.keys, t.size)
	}

	chained := 0
	for leaf := leftmostLeaf[H](t.root); leaf != nil; leaf = leaf.next {
		if chained >= len(c.leaves) || c.leaves[chained] != leaf {
			return fmt.Errorf("%w: leaf chain diverges from tree order at leaf %d", ErrInvariantViolation, chained)
		}
		chained++
	}
	if chained != len(c.leaves) {
		return fmt.Errorf("%w: leaf chain reaches %d of %d leaves", ErrInvariantViolation, chained, len(c.leaves))
	}
	return nil
}

type checker[H comparable] struct {
	order     int
	minKeys   int
	leafDepth int
	keys      int
	leaves    []*leafNode[H]
}

// walk verifies n, whose keys must lie in [lo, hi) when the bounds are set.
func (c *checker[H]) walk(n node[H], depth int, lo, hi *Key) error {
	keys := n.nodeKeys()
	if len(keys) > c.order {
		return fmt.Errorf("%w: node %v holds more than %d keys", ErrInvariantViolation, keys, c.order)
	}
	for i, k := range keys {
		if i > 0 && keys[i-1] >= k {
			return fmt.Errorf("%w: node %v is not strictly increasing", ErrInvariantViolation, keys)
		}
		if (lo != nil && k < *lo) || (hi != nil && k >= *hi) {
			return fmt.Errorf("%w: key %d of node %v outside its separators", ErrInvariantViolation, k, keys)
		}
	}

	switch n := n.(type) {
	case *leafNode[H]:
		if len(n.values) != len(n.keys) {
			return fmt.Errorf("%w: leaf %v has %d handle lists", ErrInvariantViolation, n.keys, len(n.values))
		}
		for i, v := range n.values {
			if len(v) == 0 {
				return fmt.Errorf("%w: key %d has no handle", ErrInvariantViolation, n.keys[i])
			}
		}
		if c.leafDepth < 0 {
			c.leafDepth = depth
		} else if c.leafDepth != depth {
			return fmt.Errorf("%w: leaf %v at depth %d, expected %d", ErrInvariantViolation, n.keys, depth, c.leafDepth)
		}
		c.keys += len(n.keys)
		c.leaves = append(c.leaves, n)

	case *internalNode[H]:
		if len(n.children) != len(n.keys)+1 {
			return fmt.Errorf("%w: internal node %v has %d children", ErrInvariantViolation, n.keys, len(n.children))
		}
		for i, child := range n.children {
			if leaf, ok := child.(*leafNode[H]); ok && len(n.children) > 1 && len(leaf.keys) < c.minKeys {
				return fmt.Errorf("%w: leaf %v below %d keys beside a sibling", ErrInvariantViolation, leaf.keys, c.minKeys)
			}
			childLo, childHi := lo, hi
			if i > 0 {
				childLo = &n.keys[i-1]
				if smallest, ok := findSmallestKeyInSubtree[H](child); ok && smallest != n.keys[i-1] {
					return fmt.Errorf("%w: separator %d but right subtree starts at %d", ErrInvariantViolation, n.keys[i-1], smallest)
				}
			}
			if i < len(n.keys) {
				childHi = &n.keys[i]
			}
			if err := c.walk(child, depth+1, childLo, childHi); err != nil {
				return err
			}
		}
	}
	return nil
}
