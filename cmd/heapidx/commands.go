package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sushant-115/heapidx/core/engine"
	"github.com/sushant-115/heapidx/core/indexing/bptree"
	"github.com/sushant-115/heapidx/internal/report"
)

// processCommand runs a single shell command against eng and reports whether
// the shell should exit.
func processCommand(ctx context.Context, w io.Writer, eng *engine.Engine, args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch strings.ToLower(args[0]) {
	case "get":
		if len(args) != 2 {
			fmt.Fprintln(w, "Error: get requires a numVotes key.")
			return false
		}
		key, ok := parseKey(w, args[1])
		if !ok {
			return false
		}
		res, err := eng.QueryEqual(ctx, key)
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			return false
		}
		printRecords(w, res)
		report.Query(w, fmt.Sprintf("numVotes = %d", key), res)
	case "range":
		if len(args) != 3 {
			fmt.Fprintln(w, "Error: range requires <lo> <hi>.")
			return false
		}
		lo, ok := parseKey(w, args[1])
		if !ok {
			return false
		}
		hi, ok := parseKey(w, args[2])
		if !ok {
			return false
		}
		res, err := eng.QueryRange(ctx, lo, hi)
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			return false
		}
		printRecords(w, res)
		report.Query(w, fmt.Sprintf("%d <= numVotes <= %d", lo, hi), res)
	case "delete":
		if len(args) != 2 {
			fmt.Fprintln(w, "Error: delete requires a numVotes key.")
			return false
		}
		key, ok := parseKey(w, args[1])
		if !ok {
			return false
		}
		res, err := eng.DeleteKey(ctx, key)
		if errors.Is(err, bptree.ErrKeyNotFound) {
			fmt.Fprintf(w, "No record with numVotes = %d\n", key)
			return false
		}
		if err != nil {
			fmt.Fprintf(w, "Error: %v\n", err)
			return false
		}
		report.Deletion(w, key, res)
	case "stats":
		report.Storage(w, eng.HeapStats())
		report.Index(w, eng.IndexStats())
	case "tree":
		fmt.Fprintln(w, strings.TrimRight(eng.DumpIndex(), "\n"))
	case "check":
		if err := eng.CheckIndex(); err != nil {
			fmt.Fprintf(w, "Index invalid: %v\n", err)
			return false
		}
		fmt.Fprintln(w, "Index OK")
	case "help":
		fmt.Fprintln(w, "Commands:")
		fmt.Fprintln(w, "  get <numVotes>")
		fmt.Fprintln(w, "  range <lo> <hi>")
		fmt.Fprintln(w, "  delete <numVotes>")
		fmt.Fprintln(w, "  stats")
		fmt.Fprintln(w, "  tree")
		fmt.Fprintln(w, "  check")
		fmt.Fprintln(w, "  exit | quit")
	case "exit", "quit":
		return true
	default:
		fmt.Fprintf(w, "Error: unknown command %q. Type 'help' for commands.\n", args[0])
	}
	return false
}

func parseKey(w io.Writer, s string) (int64, bool) {
	key, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		fmt.Fprintf(w, "Error: invalid key %q\n", s)
		return 0, false
	}
	return key, true
}

// maxPrintedRecords caps how many matching records a query prints.
const maxPrintedRecords = 20

func printRecords(w io.Writer, res engine.QueryResult) {
	for i, r := range res.Records {
		if i == maxPrintedRecords {
			fmt.Fprintf(w, "... %d more\n", len(res.Records)-maxPrintedRecords)
			break
		}
		fmt.Fprintf(w, "%s\t%.1f\t%d\n", r.TConst, r.AverageRating, r.NumVotes)
	}
}
