package internaltelemetry

import (
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics holds all the metric instruments for the storage engine.
type EngineMetrics struct {
	OperationsCounter       metric.Int64Counter
	OperationLatency        metric.Int64Histogram
	IndexNodesHistogram     metric.Int64Histogram
	DataBlocksHistogram     metric.Int64Histogram
	ActiveOperationsCounter metric.Int64UpDownCounter
}

// NewEngineMetrics creates and registers all the metrics for the storage engine.
func NewEngineMetrics(meter metric.Meter) (*EngineMetrics, error) {
	operationsCounter, err := meter.Int64Counter(
		"heapidx.engine.operations_total",
		metric.WithDescription("Total number of engine operations completed."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	operationLatency, err := meter.Int64Histogram(
		"heapidx.engine.duration",
		metric.WithDescription("The latency of engine operations."),
		metric.WithUnit("us"),
	)
	if err != nil {
		return nil, err
	}

	indexNodesHistogram, err := meter.Int64Histogram(
		"heapidx.index.nodes_accessed",
		metric.WithDescription("Index nodes visited per query."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	dataBlocksHistogram, err := meter.Int64Histogram(
		"heapidx.heap.blocks_accessed",
		metric.WithDescription("Distinct data blocks read per query."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	activeOperationsCounter, err := meter.Int64UpDownCounter(
		"heapidx.engine.active_operations",
		metric.WithDescription("Number of engine operations in flight."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &EngineMetrics{
		OperationsCounter:       operationsCounter,
		OperationLatency:        operationLatency,
		IndexNodesHistogram:     indexNodesHistogram,
		DataBlocksHistogram:     dataBlocksHistogram,
		ActiveOperationsCounter: activeOperationsCounter,
	}, nil
}
