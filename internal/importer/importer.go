// Package importer loads the ratings dataset (tconst, averageRating,
// numVotes as tab separated values with a header line) into the engine.
package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sushant-115/heapidx/core/storage_engine/heap"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// --- Error Definitions ---

var (
	ErrMalformedLine = errors.New("malformed line")
)

// progressInterval bounds how often import progress is logged.
const progressInterval = 2 * time.Second

// Inserter accepts parsed records.
type Inserter interface {
	Insert(ctx context.Context, r heap.Record) (heap.RecordHandle, error)
}

// ReadTSV parses r and hands every record to fn in file order. The first
// line is a header and is skipped; blank lines are ignored. It returns the
// number of records passed to fn.
func ReadTSV(ctx context.Context, r io.Reader, fn func(heap.Record) error, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	progress := rate.Sometimes{Interval: progressInterval}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	count := 0
	for scanner.Scan() {
		lineNo++
		if lineNo == 1 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return count, err
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}

		rec, err := parseLine(line)
		if err != nil {
			return count, fmt.Errorf("line %d: %w", lineNo, err)
		}
		if err := fn(rec); err != nil {
			return count, fmt.Errorf("line %d: %w", lineNo, err)
		}
		count++
		progress.Do(func() {
			logger.Info("Import progress", zap.Int("records", count), zap.Int("line", lineNo))
		})
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read input: %w", err)
	}
	return count, nil
}

func parseLine(line string) (heap.Record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != 3 {
		return heap.Record{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformedLine, len(fields))
	}
	tconst := fields[0]
	if tconst == "" || len(tconst) > heap.TConstSize {
		return heap.Record{}, fmt.Errorf("%w: tconst %q", ErrMalformedLine, tconst)
	}
	rating, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 32)
	if err != nil {
		return heap.Record{}, fmt.Errorf("%w: averageRating %q", ErrMalformedLine, fields[1])
	}
	votes, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 32)
	if err != nil {
		return heap.Record{}, fmt.Errorf("%w: numVotes %q", ErrMalformedLine, fields[2])
	}
	return heap.Record{TConst: tconst, AverageRating: float32(rating), NumVotes: int32(votes)}, nil
}

// LoadFile imports the TSV file at path into dst.
func LoadFile(ctx context.Context, path string, dst Inserter, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open data file %s: %w", path, err)
	}
	defer f.Close()

	start := time.Now()
	n, err := ReadTSV(ctx, f, func(r heap.Record) error {
		_, err := dst.Insert(ctx, r)
		return err
	}, logger)
	if err != nil {
		return n, err
	}
	logger.Info("Import finished", zap.String("path", path), zap.Int("records", n), zap.Duration("elapsed", time.Since(start)))
	return n, nil
}
