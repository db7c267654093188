// Package report prints the storage and indexing experiments.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sushant-115/heapidx/core/engine"
	"github.com/sushant-115/heapidx/core/indexing/bptree"
	"github.com/sushant-115/heapidx/core/storage_engine/heap"
)

// Parameters of the standard experiment run.
const (
	EqualityKey = 500
	RangeLo     = 30000
	RangeHi     = 40000
	DeleteKey   = 1000
)

// Storage prints experiment 1: heap occupancy.
func Storage(w io.Writer, s heap.Stats) {
	fmt.Fprintln(w, "Experiment 1: storage")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  records\t%d\n", s.Records)
	fmt.Fprintf(tw, "  record size (B)\t%d\n", s.RecordSize)
	fmt.Fprintf(tw, "  records per block\t%d\n", s.RecordsPerBlock)
	fmt.Fprintf(tw, "  blocks used\t%d / %d\n", s.UsedBlocks, s.TotalBlocks)
	fmt.Fprintf(tw, "  database size (B)\t%d\n", s.UsedBytes)
	tw.Flush()
}

// Index prints experiment 2: the shape of the index.
func Index(w io.Writer, s engine.IndexStats) {
	fmt.Fprintln(w, "Experiment 2: B+ tree")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  parameter n\t%d\n", s.Order)
	fmt.Fprintf(tw, "  distinct keys\t%d\n", s.Keys)
	fmt.Fprintf(tw, "  nodes\t%d\n", s.Nodes)
	fmt.Fprintf(tw, "  levels\t%d\n", s.Height)
	fmt.Fprintf(tw, "  root keys\t%s\n", formatKeys(s.RootKeys))
	fmt.Fprintf(tw, "  first child keys\t%s\n", formatKeys(s.FirstChildKeys))
	tw.Flush()
}

// Query prints the outcome of an equality (experiment 3) or range
// (experiment 4) query.
func Query(w io.Writer, title string, res engine.QueryResult) {
	fmt.Fprintln(w, title)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  index nodes accessed\t%d\n", res.Index.NodesAccessed)
	for i, keys := range res.Index.Contents {
		fmt.Fprintf(tw, "    node %d\t%s\n", i+1, formatKeys(keys))
	}
	fmt.Fprintf(tw, "  data blocks accessed\t%d\n", res.DataBlocksAccessed)
	fmt.Fprintf(tw, "  records found\t%d\n", len(res.Records))
	fmt.Fprintf(tw, "  average rating\t%.3f\n", res.AverageRating)
	fmt.Fprintf(tw, "  running time\t%s\n", res.Elapsed)
	fmt.Fprintf(tw, "  linear scan blocks\t%d\n", res.LinearScanBlocks)
	fmt.Fprintf(tw, "  linear scan time\t%s\n", res.LinearScanElapsed)
	tw.Flush()
}

// Deletion prints experiment 5.
func Deletion(w io.Writer, key int64, res engine.DeleteResult) {
	fmt.Fprintf(w, "Experiment 5: delete numVotes = %d\n", key)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  records deleted\t%d\n", res.RecordsDeleted)
	fmt.Fprintf(tw, "  nodes merged away\t%d\n", res.NodesMerged())
	fmt.Fprintf(tw, "  nodes\t%d\n", res.Index.Nodes)
	fmt.Fprintf(tw, "  levels\t%d\n", res.Index.Height)
	fmt.Fprintf(tw, "  root keys\t%s\n", formatKeys(res.Index.RootKeys))
	fmt.Fprintf(tw, "  running time\t%s\n", res.Elapsed)
	fmt.Fprintf(tw, "  linear scan blocks\t%d\n", res.LinearScanBlocks)
	fmt.Fprintf(tw, "  linear scan time\t%s\n", res.LinearScanElapsed)
	tw.Flush()
}

// RunExperiments runs experiments 1 to 5 against eng. A missing deletion key
// is reported, not treated as a failure.
func RunExperiments(ctx context.Context, w io.Writer, eng *engine.Engine) error {
	Storage(w, eng.HeapStats())
	fmt.Fprintln(w)
	Index(w, eng.IndexStats())
	fmt.Fprintln(w)

	res, err := eng.QueryEqual(ctx, EqualityKey)
	if err != nil {
		return fmt.Errorf("experiment 3: %w", err)
	}
	Query(w, fmt.Sprintf("Experiment 3: numVotes = %d", EqualityKey), res)
	fmt.Fprintln(w)

	res, err = eng.QueryRange(ctx, RangeLo, RangeHi)
	if err != nil {
		return fmt.Errorf("experiment 4: %w", err)
	}
	Query(w, fmt.Sprintf("Experiment 4: %d <= numVotes <= %d", RangeLo, RangeHi), res)
	fmt.Fprintln(w)

	del, err := eng.DeleteKey(ctx, DeleteKey)
	switch {
	case errors.Is(err, bptree.ErrKeyNotFound):
		fmt.Fprintf(w, "Experiment 5: no record with numVotes = %d\n", DeleteKey)
	case err != nil:
		return fmt.Errorf("experiment 5: %w", err)
	default:
		Deletion(w, DeleteKey, del)
	}
	return nil
}

func formatKeys(keys []int64) string {
	if keys == nil {
		return "-"
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprint(k)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
