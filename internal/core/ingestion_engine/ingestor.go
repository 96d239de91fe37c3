package ingestion_engine

import "context"

// Ingestor accepts uploaded documents and makes them searchable.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(ctx context.Context, docID string) error
}

var _ Ingestor = (*DocumentIngestor)(nil)
