package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/heapidx/core/engine"
	"github.com/sushant-115/heapidx/core/storage_engine/heap"
)

// --- Test Helpers ---

func setupEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{
		Heap:  heap.Config{Capacity: 2000, BlockSize: 200, RecordSize: heap.EncodedRecordSize},
		Order: 3,
	}, nil, nil)
	require.NoError(t, err)
	for i, v := range []int32{5, 9, 1, 13, 9} {
		_, err := e.Insert(context.Background(), heap.Record{TConst: "tt000000" + string(rune('0'+i)), AverageRating: 6, NumVotes: v})
		require.NoError(t, err)
	}
	return e
}

func runCommand(t *testing.T, e *engine.Engine, args ...string) (string, bool) {
	t.Helper()
	var buf bytes.Buffer
	quit := processCommand(context.Background(), &buf, e, args)
	return buf.String(), quit
}

// --- Test Cases ---

func TestProcessCommand_Queries(t *testing.T) {
	e := setupEngine(t)

	out, quit := runCommand(t, e, "get", "9")
	require.False(t, quit)
	require.Contains(t, out, "tt0000001\t6.0\t9\n")
	require.Contains(t, out, "tt0000004\t6.0\t9\n")
	require.Regexp(t, `records found\s+2\n`, out)

	out, _ = runCommand(t, e, "range", "2", "10")
	require.Regexp(t, `records found\s+3\n`, out)

	out, _ = runCommand(t, e, "range", "10", "2")
	require.Contains(t, out, "Error:")

	out, _ = runCommand(t, e, "get", "many")
	require.Contains(t, out, `invalid key "many"`)
}

func TestProcessCommand_Delete(t *testing.T) {
	e := setupEngine(t)

	out, _ := runCommand(t, e, "delete", "9")
	require.Regexp(t, `records deleted\s+2\n`, out)

	out, _ = runCommand(t, e, "delete", "9")
	require.Contains(t, out, "No record with numVotes = 9")

	out, _ = runCommand(t, e, "check")
	require.Contains(t, out, "Index OK")
}

func TestProcessCommand_Misc(t *testing.T) {
	e := setupEngine(t)

	out, _ := runCommand(t, e, "tree")
	require.Equal(t, e.DumpIndex(), out)

	out, _ = runCommand(t, e, "stats")
	require.Contains(t, out, "Experiment 1: storage")
	require.Contains(t, out, "Experiment 2: B+ tree")

	out, _ = runCommand(t, e, "bogus")
	require.Contains(t, out, "unknown command")

	_, quit := runCommand(t, e)
	require.False(t, quit)
	_, quit = runCommand(t, e, "QUIT")
	require.True(t, quit)
	_, quit = runCommand(t, e, "exit")
	require.True(t, quit)
}
