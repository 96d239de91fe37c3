package ingestion_engine

import (
	"context"
	"fmt"

	"github.com/markdave123-py/cova/internal/models"
)

// embedAndPersist consumes chunks, embeds them in batches, and writes to DB.
// It is the downstream sink of the pipeline.
func (i *DocumentIngestor) embedAndPersist(
	ctx context.Context,
	docID string,
	in <-chan chunk,
	batchSize int,
) (int, error) {
	if batchSize <= 0 {
		batchSize = 16
	}
	batch := make([]chunk, 0, batchSize)
	written := 0

	flush := func(items []chunk) error {
		if len(items) == 0 {
			return nil
		}

		texts := make([]string, len(items))
		for idx := range items {
			texts[idx] = items[idx].Text
		}

		vecs, err := i.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if len(vecs) != len(items) {
			return fmt.Errorf("embed size mismatch: got %d want %d", len(vecs), len(items))
		}

		rows := make([]models.DocumentChunk, len(items))
		for k := range items {
			rows[k] = models.DocumentChunk{
				DocumentID: docID,
				Text:       items[k].Text,
				Embedding:  vecs[k],
				Position:   items[k].Pos,
				TokenCount: items[k].TokenCnt,
			}
		}
		if err := i.db.InsertDocumentChunks(ctx, rows); err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		written += len(rows)
		return nil
	}

	for c := range in {
		batch = append(batch, c)
		if len(batch) == batchSize {
			if err := flush(batch); err != nil {
				return written, err
			}
			batch = batch[:0]
		}
	}
	if err := flush(batch); err != nil {
		return written, err
	}
	return written, nil
}
