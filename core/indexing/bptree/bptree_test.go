package bptree

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- Test Helpers ---

// setupTree creates an empty tree of the given order with a development logger.
func setupTree(t *testing.T, order int) *BPlusTree[int] {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	tree, err := New[int](order, WithLogger(logger))
	require.NoError(t, err)
	return tree
}

// insertKeys inserts every key with handle key*10.
func insertKeys(t *testing.T, tree *BPlusTree[int], keys ...Key) {
	t.Helper()
	for _, k := range keys {
		tree.Insert(k, int(k*10))
	}
	require.NoError(t, tree.Check())
}

// model is the reference the randomized tests compare the tree against.
type model map[Key][]int

func (m model) sortedKeys() []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (m model) rangeHandles(lo, hi Key) []int {
	var out []int
	for _, k := range m.sortedKeys() {
		if k >= lo && k <= hi {
			out = append(out, m[k]...)
		}
	}
	return out
}

// --- Test Cases ---

func TestNew_InvalidOrder(t *testing.T) {
	for _, order := range []int{0, -1, -100} {
		tree, err := New[int](order)
		require.ErrorIs(t, err, ErrInvalidOrder)
		require.Nil(t, tree)
	}

	tree, err := New[int](1)
	require.NoError(t, err)
	require.True(t, tree.Empty())
	require.Equal(t, 0, tree.Height())
	require.Equal(t, 0, tree.NodeCount())
	require.Nil(t, tree.RootKeys())
	require.Nil(t, tree.FirstChildKeys())
	require.NoError(t, tree.Check())
}

func TestMinKeys(t *testing.T) {
	cases := map[int]int{1: 1, 2: 1, 3: 2, 4: 2, 5: 3, 10: 5, 23: 12}
	for order, want := range cases {
		tree := setupTree(t, order)
		require.Equal(t, want, tree.MinKeys(), "order %d", order)
	}
}

// TestInsert_LeafSplit inserts 1, 5, 9, 13 into an order 3 tree: the fourth
// key splits the root leaf into [1 5] and [9 13] under a new root [9].
func TestInsert_LeafSplit(t *testing.T) {
	tree := setupTree(t, 3)
	insertKeys(t, tree, 1, 5, 9)
	require.Equal(t, 1, tree.Height())
	require.Equal(t, []Key{1, 5, 9}, tree.RootKeys())

	insertKeys(t, tree, 13)
	require.Equal(t, 2, tree.Height())
	require.Equal(t, 3, tree.NodeCount())
	require.Equal(t, []Key{9}, tree.RootKeys())
	require.Equal(t, []Key{1, 5}, tree.FirstChildKeys())
	require.Equal(t, []Key{1, 5, 9, 13}, tree.Keys())
	require.Equal(t, "[9]\n[1 5] [9 13]\n", tree.String())

	handles, report := tree.SearchRangeWithReport(2, 10)
	require.Equal(t, []int{50, 90}, handles)
	require.Equal(t, 3, report.NodesAccessed)
	require.Equal(t, [][]Key{{9}, {1, 5}, {9, 13}}, report.Contents)
}

// TestInsert_InternalSplit drives sequential keys through an order 3 tree
// until the root internal node splits and promotes the smallest key of the
// new right half.
func TestInsert_InternalSplit(t *testing.T) {
	tree := setupTree(t, 3)
	insertKeys(t, tree, 1, 2, 3, 4, 5, 6, 7, 8)
	require.Equal(t, []Key{3, 5, 7}, tree.RootKeys())
	require.Equal(t, 2, tree.Height())

	insertKeys(t, tree, 9, 10)
	require.Equal(t, 3, tree.Height())
	require.Equal(t, []Key{7}, tree.RootKeys())
	require.Equal(t, []Key{3, 5}, tree.FirstChildKeys())
	require.Equal(t, "[7]\n[3 5] [9]\n[1 2] [3 4] [5 6] [7 8] [9 10]\n", tree.String())
	require.Equal(t, 8, tree.NodeCount())
	require.Equal(t, 10, tree.Len())
}

func TestInsert_DuplicatesKeepInsertionOrder(t *testing.T) {
	tree := setupTree(t, 3)
	tree.Insert(7, 1)
	tree.Insert(3, 100)
	tree.Insert(7, 2)
	tree.Insert(7, 3)

	require.Equal(t, 2, tree.Len())
	require.Equal(t, 1, tree.NodeCount())
	require.Equal(t, []int{1, 2, 3}, tree.Search(7))
	require.Equal(t, []int{100, 1, 2, 3}, tree.SearchRange(0, 10))
	require.NoError(t, tree.Check())
}

func TestSearch(t *testing.T) {
	tree := setupTree(t, 4)
	require.Nil(t, tree.Search(1))
	require.False(t, tree.Contains(1))

	insertKeys(t, tree, 10, 20, 30, 40, 50, 60, 70)

	t.Run("present", func(t *testing.T) {
		handles, report := tree.SearchWithReport(40)
		require.Equal(t, []int{400}, handles)
		require.Equal(t, tree.Height(), report.NodesAccessed)
		require.Equal(t, tree.RootKeys(), report.Contents[0])
		require.True(t, tree.Contains(40))
	})

	t.Run("absent", func(t *testing.T) {
		require.Empty(t, tree.Search(45))
		require.Empty(t, tree.Search(5))
		require.Empty(t, tree.Search(75))
		require.False(t, tree.Contains(45))
	})

	t.Run("result is a copy", func(t *testing.T) {
		handles := tree.Search(10)
		handles[0] = -1
		require.Equal(t, []int{100}, tree.Search(10))
	})
}

func TestSearchRange(t *testing.T) {
	tree := setupTree(t, 3)
	insertKeys(t, tree, 5, 10, 15, 20, 25, 30, 35, 40)

	require.Equal(t, []int{100, 150, 200}, tree.SearchRange(10, 20))
	require.Equal(t, []int{100, 150, 200}, tree.SearchRange(6, 24))
	require.Equal(t, []int{400}, tree.SearchRange(40, 1000))
	require.Equal(t, []int{50}, tree.SearchRange(-10, 5))
	require.Empty(t, tree.SearchRange(41, 50))
	require.Empty(t, tree.SearchRange(11, 14))
	require.Empty(t, tree.SearchRange(30, 20))

	all, report := tree.SearchRangeWithReport(math.MinInt64, math.MaxInt64)
	require.Len(t, all, 8)
	// descent plus every further leaf on the chain
	require.Greater(t, report.NodesAccessed, tree.Height())
	require.LessOrEqual(t, len(report.Contents), MaxReportedNodes)
}

func TestAccessReport_ContentsCapped(t *testing.T) {
	tree := setupTree(t, 2)
	for k := Key(1); k <= 40; k++ {
		tree.Insert(k, int(k))
	}
	handles, report := tree.SearchRangeWithReport(1, 40)
	require.Len(t, handles, 40)
	require.Greater(t, report.NodesAccessed, MaxReportedNodes)
	require.Len(t, report.Contents, MaxReportedNodes)
	require.Equal(t, tree.RootKeys(), report.Contents[0])
}

// TestRemove_RootCollapse deletes 6 from [2 4] [6 8]: the right leaf merges
// into the left and the root collapses to the single leaf [2 4 8].
func TestRemove_RootCollapse(t *testing.T) {
	tree := setupTree(t, 3)
	insertKeys(t, tree, 2, 4, 6, 8)
	require.Equal(t, []Key{6}, tree.RootKeys())

	require.NoError(t, tree.Remove(6))
	require.NoError(t, tree.Check())
	require.Equal(t, 1, tree.Height())
	require.Equal(t, 1, tree.NodeCount())
	require.Equal(t, []Key{2, 4, 8}, tree.RootKeys())
	require.Nil(t, tree.FirstChildKeys())
	require.Empty(t, tree.Search(6))
}

func TestRemove_BorrowFromLeft(t *testing.T) {
	tree := setupTree(t, 3)
	insertKeys(t, tree, 10, 20, 30, 40, 5)
	require.Equal(t, "[30]\n[5 10 20] [30 40]\n", tree.String())

	require.NoError(t, tree.Remove(40))
	require.NoError(t, tree.Check())
	require.Equal(t, "[20]\n[5 10] [20 30]\n", tree.String())
	require.Equal(t, []int{200}, tree.Search(20))
}

func TestRemove_BorrowFromRight(t *testing.T) {
	tree := setupTree(t, 3)
	insertKeys(t, tree, 10, 20, 30, 40, 50)
	require.Equal(t, "[30]\n[10 20] [30 40 50]\n", tree.String())

	require.NoError(t, tree.Remove(10))
	require.NoError(t, tree.Check())
	require.Equal(t, "[40]\n[20 30] [40 50]\n", tree.String())
}

func TestRemove_MergeRightSibling(t *testing.T) {
	tree := setupTree(t, 3)
	insertKeys(t, tree, 10, 20, 30, 40)

	require.NoError(t, tree.Remove(10))
	require.NoError(t, tree.Check())
	require.Equal(t, "[20 30 40]\n", tree.String())
}

// TestRemove_SeparatorRepair removes the first key of a right leaf without
// underflow; the root separator must follow the leaf's new first key.
func TestRemove_SeparatorRepair(t *testing.T) {
	tree := setupTree(t, 3)
	insertKeys(t, tree, 10, 20, 30, 40, 50)

	require.NoError(t, tree.Remove(30))
	require.NoError(t, tree.Check())
	require.Equal(t, []Key{40}, tree.RootKeys())
	require.Equal(t, []int{400, 500}, tree.SearchRange(30, 50))
}

func TestRemove_Absent(t *testing.T) {
	tree := setupTree(t, 3)
	require.ErrorIs(t, tree.Remove(1), ErrKeyNotFound)

	insertKeys(t, tree, 1, 2, 3, 4, 5)
	before := tree.String()
	require.ErrorIs(t, tree.Remove(42), ErrKeyNotFound)
	require.Equal(t, before, tree.String())
	require.Equal(t, 5, tree.Len())

	require.NoError(t, tree.Remove(3))
	require.ErrorIs(t, tree.Remove(3), ErrKeyNotFound)
}

func TestRemove_DropsEveryHandle(t *testing.T) {
	tree := setupTree(t, 3)
	tree.Insert(5, 1)
	tree.Insert(5, 2)
	tree.Insert(6, 3)

	require.NoError(t, tree.Remove(5))
	require.Empty(t, tree.Search(5))
	require.Equal(t, []int{3}, tree.SearchRange(0, 10))

	require.NoError(t, tree.Remove(6))
	require.True(t, tree.Empty())
	require.Equal(t, 0, tree.Height())
	require.NoError(t, tree.Check())
}

// TestRemove_InternalUnderflowNotRebalanced documents that an internal node
// below the root may be left short (even keyless) by a merge beneath it, and
// that the tree keeps answering queries correctly in that state.
func TestRemove_InternalUnderflowNotRebalanced(t *testing.T) {
	tree := setupTree(t, 3)
	insertKeys(t, tree, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	require.NoError(t, tree.Remove(10))
	require.NoError(t, tree.Check())
	require.Equal(t, "[7]\n[3 5] []\n[1 2] [3 4] [5 6] [7 8 9]\n", tree.String())
	require.Equal(t, 3, tree.Height())
	require.Equal(t, []int{90}, tree.Search(9))

	for _, k := range []Key{9, 8, 7} {
		require.NoError(t, tree.Remove(k))
		require.NoError(t, tree.Check())
	}
	require.Equal(t, []Key{1, 2, 3, 4, 5, 6}, tree.Keys())
	require.Equal(t, []int{10, 20, 30, 40, 50, 60}, tree.SearchRange(0, 100))
	require.Empty(t, tree.Search(7))

	tree.Insert(8, 80)
	require.NoError(t, tree.Check())
	require.Equal(t, []Key{8}, tree.RootKeys())
	require.Equal(t, []int{60, 80}, tree.SearchRange(6, 8))
	require.Equal(t, 7, tree.Len())
}

func TestClear(t *testing.T) {
	tree := setupTree(t, 3)
	require.Equal(t, 0, tree.Clear())

	insertKeys(t, tree, 1, 5, 9, 13)
	require.Equal(t, 3, tree.Clear())
	require.True(t, tree.Empty())
	require.Equal(t, 0, tree.Len())
	require.Nil(t, tree.Keys())

	insertKeys(t, tree, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	nodes := tree.NodeCount()
	require.Equal(t, nodes, tree.Clear())
}

// runAgainstModel applies steps random inserts, duplicate inserts and
// removals to a fresh tree and checks it against a map after every step:
// sorted leaf order, round trip of handles, range results, absence after
// removal and structural invariants.
func runAgainstModel(t *testing.T, order int, seed int64, steps int) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	tree := setupTree(t, order)
	tree.logger = zap.NewNop()
	ref := model{}
	nextHandle := 0

	for step := 0; step < steps; step++ {
		key := Key(rng.Intn(300))
		switch op := rng.Intn(10); {
		case op < 6:
			nextHandle++
			tree.Insert(key, nextHandle)
			ref[key] = append(ref[key], nextHandle)
			require.Equal(t, ref[key], tree.Search(key), "order %d seed %d step %d", order, seed, step)
		default:
			err := tree.Remove(key)
			if _, ok := ref[key]; ok {
				require.NoError(t, err)
				delete(ref, key)
				require.Empty(t, tree.Search(key))
				require.ErrorIs(t, tree.Remove(key), ErrKeyNotFound)
			} else {
				require.ErrorIs(t, err, ErrKeyNotFound)
			}
		}
		require.NoError(t, tree.Check(), "order %d seed %d step %d", order, seed, step)
	}

	require.Equal(t, len(ref), tree.Len())
	keys := ref.sortedKeys()
	if len(keys) == 0 {
		keys = nil
	}
	require.Equal(t, keys, tree.Keys(), "order %d seed %d", order, seed)
	for k, handles := range ref {
		require.Equal(t, handles, tree.Search(k), "order %d seed %d key %d", order, seed, k)
	}
	for i := 0; i < 50; i++ {
		lo, hi := Key(rng.Intn(320)-10), Key(rng.Intn(320)-10)
		require.Equal(t, ref.rangeHandles(lo, hi), tree.SearchRange(lo, hi), "range [%d, %d]", lo, hi)
	}

	for _, k := range keys {
		require.NoError(t, tree.Remove(k))
		require.NoError(t, tree.Check())
	}
	require.True(t, tree.Empty())
	require.NoError(t, tree.Check())
}

func TestRandomized_AgainstModel(t *testing.T) {
	for _, order := range []int{1, 2, 3, 4, 5, 8, 16} {
		runAgainstModel(t, order, int64(order)*7919, 3000)
	}
}

// TestRandomized_SmallOrders runs more seeds at the orders where short
// internal nodes and empty leaves show up most.
func TestRandomized_SmallOrders(t *testing.T) {
	for _, order := range []int{1, 2, 3} {
		for seed := int64(1); seed <= 10; seed++ {
			runAgainstModel(t, order, seed*104729+int64(order), 3000)
		}
	}
}

// TestRemove_EmptiedOnlyChildKeepsRouting replays a sequence at order 2 that
// empties an only-child leaf under a keyless internal node. The separator
// above that subtree must not rise past the routing keys still inside it,
// or later keys become unreachable from the root.
func TestRemove_EmptiedOnlyChildKeepsRouting(t *testing.T) {
	ops := []Key{
		40, 254, 164, 376, 259, 159, 275, 34, 143, 304, 154, 161, 81, 12, 24, 112,
		177, 180, 186, 228, 187, 195, 248, 204, 207, 240, 229, 253, 237, 225, 214,
		227, 215, 219, 217, 218, 223, -215, 221, -217, -229, -228, -218, -219, 226, 232,
	}
	tree := setupTree(t, 2)
	ref := model{}
	for i, op := range ops {
		if op < 0 {
			require.NoError(t, tree.Remove(-op), "step %d", i)
			delete(ref, -op)
		} else {
			tree.Insert(op, int(op*10))
			ref[op] = append(ref[op], int(op*10))
		}
		require.NoError(t, tree.Check(), "step %d: %s", i, tree.String())
	}

	require.Equal(t, []int{2270}, tree.Search(227))
	require.Equal(t, ref.sortedKeys(), tree.Keys())
	for k, handles := range ref {
		require.Equal(t, handles, tree.Search(k), "key %d", k)
	}
	require.Equal(t, ref.rangeHandles(200, 260), tree.SearchRange(200, 260))
}

// TestCheck_UnderfullLeafBesideSibling corrupts a leaf that has a sibling
// and expects Check to report it.
func TestCheck_UnderfullLeafBesideSibling(t *testing.T) {
	tree := setupTree(t, 3)
	insertKeys(t, tree, 1, 2, 3, 4)
	require.Equal(t, "[3]\n[1 2] [3 4]\n", tree.String())

	leaf := tree.root.(*internalNode[int]).children[0].(*leafNode[int])
	leaf.keys = leaf.keys[:1]
	leaf.values = leaf.values[:1]
	tree.size--

	err := tree.Check()
	require.ErrorIs(t, err, ErrInvariantViolation)
	require.Contains(t, err.Error(), "below 2 keys")
}

// TestHeightBound checks that insert-only trees of order >= 2 stay within
// 1 + log2(n) levels.
func TestHeightBound(t *testing.T) {
	for _, order := range []int{2, 3, 4, 7, 23} {
		tree := setupTree(t, order)
		tree.logger = zap.NewNop()
		rng := rand.New(rand.NewSource(int64(order)))
		for _, k := range rng.Perm(5000) {
			tree.Insert(Key(k), k)
		}
		require.NoError(t, tree.Check())
		require.Equal(t, 5000, tree.Len())
		bound := 1 + int(math.Ceil(math.Log2(float64(tree.Len()))))
		require.LessOrEqual(t, tree.Height(), bound, "order %d", order)
	}
}
