package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	documentsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docidx_pipeline_documents_total",
		Help: "Documents processed by the ingestion pipeline, labeled by file type and outcome.",
	}, []string{"file_type", "outcome"})

	chunksProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docidx_pipeline_chunks_total",
		Help: "Chunks produced by the splitter across all documents.",
	})

	embedBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "docidx_pipeline_embed_batch_size",
		Help:    "Number of chunk texts per embedding batch call.",
		Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
	})
)
