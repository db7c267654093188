// Package engine ties the record heap and the numVotes B+Tree index together
// and measures what each query costs in index nodes and data blocks.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sushant-115/heapidx/core/indexing/bptree"
	"github.com/sushant-115/heapidx/core/storage_engine/heap"
	internaltelemetry "github.com/sushant-115/heapidx/internal/telemetry"
	"github.com/sushant-115/heapidx/pkg/telemetry"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// KeySize is the width of an indexed numVotes value in a node.
	KeySize = 4
	// PointerSize is the width of a child or record pointer in a node.
	PointerSize = 8
)

// --- Error Definitions ---

var (
	ErrInvalidRange = errors.New("range lower bound exceeds upper bound")
)

// Config configures an Engine.
type Config struct {
	Heap heap.Config `yaml:"heap"`
	// Order is the maximum number of keys per index node. Zero derives it
	// from the heap block size.
	Order int `yaml:"order"`
}

// OrderForBlockSize returns how many keys fit in a node that occupies one
// block: a node holds n keys and n+1 pointers. The result is at least 1.
func OrderForBlockSize(blockSize, keySize, pointerSize int) int {
	n := (blockSize - pointerSize) / (keySize + pointerSize)
	return max(n, 1)
}

// Engine stores records on the heap and indexes them by NumVotes.
type Engine struct {
	mu     sync.Mutex
	id     string
	logger *zap.Logger
	heap   *heap.Heap
	index  *bptree.BPlusTree[heap.RecordHandle]

	tracer      trace.Tracer
	metrics     *internaltelemetry.EngineMetrics
	serviceName string
}

// New creates an empty engine. tel may be nil, in which case telemetry is
// discarded.
func New(cfg Config, logger *zap.Logger, tel *telemetry.Telemetry) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tel == nil {
		tel = telemetry.Noop()
	}
	id := uuid.NewString()
	logger = logger.With(zap.String("engine_id", id))

	h, err := heap.New(cfg.Heap, logger.Named("heap"))
	if err != nil {
		return nil, fmt.Errorf("failed to create heap: %w", err)
	}

	order := cfg.Order
	if order == 0 {
		order = OrderForBlockSize(cfg.Heap.BlockSize, KeySize, PointerSize)
	}
	index, err := bptree.New[heap.RecordHandle](order, bptree.WithLogger(logger.Named("index")))
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	metrics, err := internaltelemetry.NewEngineMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine metrics: %w", err)
	}

	logger.Info("Engine created", zap.Int("order", order))
	return &Engine{
		id:          id,
		logger:      logger,
		heap:        h,
		index:       index,
		tracer:      tel.Tracer,
		metrics:     metrics,
		serviceName: "engine",
	}, nil
}

// ID returns the engine instance id.
func (e *Engine) ID() string { return e.id }

// Insert stores r on the heap and indexes it under r.NumVotes.
func (e *Engine) Insert(ctx context.Context, r heap.Record) (heap.RecordHandle, error) {
	ctx, span, startTime := e.startMetricsAndTrace(ctx, "Insert")
	statusCode := otelcodes.Ok
	defer func() {
		e.endMetricsAndTrace(ctx, span, startTime, "Insert", statusCode)
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	handle, err := e.heap.InsertRecord(r)
	if err != nil {
		statusCode = otelcodes.Error
		return heap.RecordHandle{}, err
	}
	e.index.Insert(bptree.Key(r.NumVotes), handle)
	return handle, nil
}

// QueryResult is the outcome of an index query together with the cost of
// answering the same query by a full heap scan.
type QueryResult struct {
	Records []heap.Record
	// Index lists the index nodes visited.
	Index bptree.AccessReport
	// DataBlocksAccessed counts distinct heap blocks read to resolve Records.
	DataBlocksAccessed int
	// AverageRating is the mean AverageRating of Records, zero when empty.
	AverageRating float64
	Elapsed       time.Duration

	LinearScanBlocks  int
	LinearScanMatches int
	LinearScanElapsed time.Duration
}

// QueryEqual returns every record whose NumVotes equals numVotes.
func (e *Engine) QueryEqual(ctx context.Context, numVotes int64) (QueryResult, error) {
	ctx, span, startTime := e.startMetricsAndTrace(ctx, "QueryEqual")
	statusCode := otelcodes.Ok
	defer func() {
		e.endMetricsAndTrace(ctx, span, startTime, "QueryEqual", statusCode)
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	begin := time.Now()
	handles, report := e.index.SearchWithReport(numVotes)
	res, err := e.resolve(handles, report, begin)
	if err != nil {
		statusCode = otelcodes.Error
		return res, err
	}
	e.linearScan(&res, numVotes, numVotes)
	e.recordAccess(ctx, res)
	return res, nil
}

// QueryRange returns every record with lo <= NumVotes <= hi, ordered by
// NumVotes.
func (e *Engine) QueryRange(ctx context.Context, lo, hi int64) (QueryResult, error) {
	ctx, span, startTime := e.startMetricsAndTrace(ctx, "QueryRange")
	statusCode := otelcodes.Ok
	defer func() {
		e.endMetricsAndTrace(ctx, span, startTime, "QueryRange", statusCode)
	}()

	if lo > hi {
		statusCode = otelcodes.Error
		return QueryResult{}, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, lo, hi)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	begin := time.Now()
	handles, report := e.index.SearchRangeWithReport(lo, hi)
	res, err := e.resolve(handles, report, begin)
	if err != nil {
		statusCode = otelcodes.Error
		return res, err
	}
	e.linearScan(&res, lo, hi)
	e.recordAccess(ctx, res)
	return res, nil
}

// DeleteResult reports the effect of DeleteKey.
type DeleteResult struct {
	RecordsDeleted int
	// NodesBefore and NodesAfter are the index node counts around the
	// deletion; their difference is the number of nodes merged away.
	NodesBefore int
	NodesAfter  int
	Index       IndexStats
	Elapsed     time.Duration

	LinearScanBlocks  int
	LinearScanElapsed time.Duration
}

// NodesMerged is the number of index nodes removed by the deletion.
func (r DeleteResult) NodesMerged() int { return r.NodesBefore - r.NodesAfter }

// DeleteKey removes every record with NumVotes equal to numVotes from the
// heap and the key from the index. It fails with bptree.ErrKeyNotFound when
// no record carries numVotes.
func (e *Engine) DeleteKey(ctx context.Context, numVotes int64) (DeleteResult, error) {
	ctx, span, startTime := e.startMetricsAndTrace(ctx, "DeleteKey")
	statusCode := otelcodes.Ok
	defer func() {
		e.endMetricsAndTrace(ctx, span, startTime, "DeleteKey", statusCode)
	}()

	e.mu.Lock()
	defer e.mu.Unlock()

	res := DeleteResult{NodesBefore: e.index.NodeCount()}

	// The brute-force baseline has to run before the records disappear.
	scanStart := time.Now()
	res.LinearScanBlocks = e.heap.Scan(func(heap.RecordHandle, heap.Record) bool { return true })
	res.LinearScanElapsed = time.Since(scanStart)

	begin := time.Now()
	handles := e.index.Search(numVotes)
	if len(handles) == 0 {
		statusCode = otelcodes.Error
		return res, fmt.Errorf("delete numVotes %d: %w", numVotes, bptree.ErrKeyNotFound)
	}
	// Either every record goes or none does, so the index never points at a
	// freed slot.
	if err := e.heap.DeleteRecords(handles); err != nil {
		statusCode = otelcodes.Error
		return res, fmt.Errorf("delete numVotes %d: %w", numVotes, err)
	}
	if err := e.index.Remove(numVotes); err != nil {
		statusCode = otelcodes.Error
		return res, err
	}
	res.Elapsed = time.Since(begin)
	res.RecordsDeleted = len(handles)
	res.NodesAfter = e.index.NodeCount()
	res.Index = e.indexStats()

	e.logger.Debug("Deleted key",
		zap.Int64("num_votes", numVotes),
		zap.Int("records", res.RecordsDeleted),
		zap.Int("nodes_merged", res.NodesMerged()),
	)
	return res, nil
}

// IndexStats describes the shape of the index.
type IndexStats struct {
	Order          int
	Keys           int
	Nodes          int
	Height         int
	RootKeys       []int64
	FirstChildKeys []int64
}

// IndexStats returns the current shape of the index.
func (e *Engine) IndexStats() IndexStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.indexStats()
}

func (e *Engine) indexStats() IndexStats {
	return IndexStats{
		Order:          e.index.Order(),
		Keys:           e.index.Len(),
		Nodes:          e.index.NodeCount(),
		Height:         e.index.Height(),
		RootKeys:       e.index.RootKeys(),
		FirstChildKeys: e.index.FirstChildKeys(),
	}
}

// HeapStats returns heap occupancy figures.
func (e *Engine) HeapStats() heap.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.heap.Stats()
}

// DumpIndex renders the index level by level.
func (e *Engine) DumpIndex() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.String()
}

// CheckIndex verifies the index structure.
func (e *Engine) CheckIndex() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Check()
}

// Close releases the index.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	released := e.index.Clear()
	e.logger.Info("Engine closed", zap.Int("released_nodes", released))
	return nil
}

func (e *Engine) resolve(handles []heap.RecordHandle, report bptree.AccessReport, begin time.Time) (QueryResult, error) {
	reader := e.heap.NewReader()
	records, err := reader.GetAll(handles)
	if err != nil {
		return QueryResult{}, fmt.Errorf("index points at a missing record: %w", err)
	}

	res := QueryResult{
		Records:            records,
		Index:              report,
		DataBlocksAccessed: reader.BlocksAccessed(),
	}
	if len(records) > 0 {
		var sum float64
		for _, r := range records {
			sum += float64(r.AverageRating)
		}
		res.AverageRating = sum / float64(len(records))
	}
	res.Elapsed = time.Since(begin)
	return res, nil
}

// linearScan fills in the brute-force baseline for a lo..hi query.
func (e *Engine) linearScan(res *QueryResult, lo, hi int64) {
	begin := time.Now()
	matches := 0
	res.LinearScanBlocks = e.heap.Scan(func(_ heap.RecordHandle, r heap.Record) bool {
		if v := int64(r.NumVotes); v >= lo && v <= hi {
			matches++
		}
		return true
	})
	res.LinearScanMatches = matches
	res.LinearScanElapsed = time.Since(begin)
}
