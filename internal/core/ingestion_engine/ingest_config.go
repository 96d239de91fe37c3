package ingestion_engine

import (
	"github.com/markdave123-py/cova/internal/core"
)

// IngestConfig tunes the streaming pipeline.
//
// TargetTokens:   approximate tokens per chunk (e.g., 500).
// OverlapTokens:  token overlap between consecutive chunks for context bleed (e.g., 50).
// BatchSize:      how many chunks to embed/write in one batch (e.g., 32).
// MaxFragmentLen: upper bound in bytes for a fragment coming from the extractor.
type IngestConfig struct {
	TargetTokens   int
	OverlapTokens  int
	BatchSize      int
	MaxFragmentLen int
}

// chunk is the internal representation passed through the pipeline.
//
// Pos:      stable, zero-based position of the chunk inside the document.
// Text:     chunk content (built from one or more fragments).
// TokenCnt: approximate token count (used for batching and overlap math).
type chunk struct {
	Pos      int
	Text     string
	TokenCnt int
}

// DocumentIngestor orchestrates the background ingestion pipeline:
//
// db:        persistence for document and chunks.
// obj:       object storage holding the uploaded files.
// embedder:  embedding provider.
// extractor: turns file bytes into text fragments.
// jobs:      in-memory queue of document IDs to process.
type DocumentIngestor struct {
	db        core.DbClient
	obj       core.ObjectClient
	embedder  core.EmbeddingProvider
	extractor core.DocumentExtractor
	cfg       IngestConfig
	jobs      chan string
}

// DocconvExtractor implements core.DocumentExtractor using sajari/docconv.
type DocconvExtractor struct {
	useReadability bool
	maxFragLen     int
}
