package bptree

// descend walks from the root to the leaf responsible for key. It returns
// the leaf, its parent (nil when the leaf is the root) and the leaf's slot in
// the parent. Every visited node is recorded in report when non-nil.
func (t *BPlusTree[H]) descend(key Key, report *AccessReport) (*leafNode[H], *internalNode[H], int) {
	var parent *internalNode[H]
	idx := 0
	cursor := t.root
	for {
		report.visit(cursor.nodeKeys())
		switch n := cursor.(type) {
		case *leafNode[H]:
			return n, parent, idx
		case *internalNode[H]:
			parent = n
			idx = childIndex(n.keys, key)
			cursor = n.children[idx]
		}
	}
}

// Search returns a copy of the handles stored under key in insertion order,
// or nil when key is absent.
func (t *BPlusTree[H]) Search(key Key) []H {
	handles, _ := t.search(key, nil)
	return handles
}

// SearchWithReport is Search plus the nodes visited on the way down.
func (t *BPlusTree[H]) SearchWithReport(key Key) ([]H, AccessReport) {
	var report AccessReport
	handles, _ := t.search(key, &report)
	return handles, report
}

// Contains reports whether key is present.
func (t *BPlusTree[H]) Contains(key Key) bool {
	_, found := t.search(key, nil)
	return found
}

func (t *BPlusTree[H]) search(key Key, report *AccessReport) ([]H, bool) {
	if t.root == nil {
		return nil, false
	}
	leaf, _, _ := t.descend(key, report)
	pos, found := leaf.findKey(key)
	if !found {
		return nil, false
	}
	out := make([]H, len(leaf.values[pos]))
	copy(out, leaf.values[pos])
	return out, true
}

// SearchRange returns the handles of every key in [lo, hi], in ascending key
// order with each key's handles in insertion order. lo > hi yields nil.
func (t *BPlusTree[H]) SearchRange(lo, hi Key) []H {
	return t.searchRange(lo, hi, nil)
}

// SearchRangeWithReport is SearchRange plus the nodes visited: the descent
// path and every further leaf entered along the chain.
func (t *BPlusTree[H]) SearchRangeWithReport(lo, hi Key) ([]H, AccessReport) {
	var report AccessReport
	handles := t.searchRange(lo, hi, &report)
	return handles, report
}

func (t *BPlusTree[H]) searchRange(lo, hi Key, report *AccessReport) []H {
	if t.root == nil || lo > hi {
		return nil
	}
	leaf, _, _ := t.descend(lo, report)
	pos := lowerBound(leaf.keys, lo)

	var out []H
	for {
		for ; pos < len(leaf.keys); pos++ {
			if leaf.keys[pos] > hi {
				return out
			}
			out = append(out, leaf.values[pos]...)
		}
		leaf = leaf.next
		if leaf == nil {
			return out
		}
		report.visit(leaf.keys)
		pos = 0
	}
}
