// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline and search path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DocumentsIngested counts ingested documents by content kind and final
	// ledger status.
	DocumentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corpusd_documents_ingested_total",
		Help: "Documents ingested, labelled by content kind and final status.",
	}, []string{"kind", "status"})

	// ChunksStored counts chunk vectors written to the vector store.
	ChunksStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corpusd_chunks_stored_total",
		Help: "Chunk vectors written to the vector store.",
	})

	// ChunksDeduplicated counts chunks dropped by in-batch deduplication.
	ChunksDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "corpusd_chunks_deduplicated_total",
		Help: "Chunks dropped as near-duplicates before storage.",
	})

	// SearchRequests counts retrieval queries by mode.
	SearchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corpusd_search_requests_total",
		Help: "Search requests, labelled by search mode.",
	}, []string{"mode"})

	// PipelineDuration tracks per-stage pipeline latency.
	PipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "corpusd_pipeline_stage_duration_seconds",
		Help:    "Duration of ingestion pipeline stages.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	// ReconcileDocuments counts reconciliation outcomes per sweep.
	ReconcileDocuments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "corpusd_reconcile_documents_total",
		Help: "Documents handled by reconciliation sweeps, labelled by outcome.",
	}, []string{"outcome"})
)
