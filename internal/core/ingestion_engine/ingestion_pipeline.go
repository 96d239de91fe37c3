package ingestion_engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/cova/internal/core"
)

// Document statuses written by the pipeline.
const (
	StatusUploaded   = "uploaded"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// NewDocumentIngestor constructs the ingestor with a bounded job queue (64).
func NewDocumentIngestor(db core.DbClient, obj core.ObjectClient, emb core.EmbeddingProvider, extractor core.DocumentExtractor, cfg IngestConfig) *DocumentIngestor {
	if cfg.TargetTokens <= 0 {
		cfg.TargetTokens = 500
	}
	return &DocumentIngestor{
		db: db, obj: obj, embedder: emb, extractor: extractor, cfg: cfg,
		jobs: make(chan string, 64),
	}
}

// Start runs numWorkers goroutines reading from the jobs channel until ctx ends.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			logger := log.WithField("worker", w)
			for {
				select {
				case <-ctx.Done():
					logger.Debug("ingestion worker shutting down")
					return
				case docID := <-i.jobs:
					entry := logger.WithField("document", docID)
					entry.Info("processing document")
					if err := i.processOne(ctx, docID); err != nil {
						entry.WithError(err).Error("document ingestion failed")
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for ingestion. It blocks while the queue
// is full, until ctx ends.
func (i *DocumentIngestor) Enqueue(ctx context.Context, docID string) error {
	select {
	case i.jobs <- docID:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", docID, ctx.Err())
	}
}

// processOne fetches, extracts, chunks, embeds and persists a single document.
func (i *DocumentIngestor) processOne(ctx context.Context, docID string) error {
	proctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	doc, err := i.db.GetDocumentByID(proctx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", docID)
	}

	fail := func(err error) error {
		if serr := i.db.UpdateDocumentStatus(ctx, docID, StatusFailed); serr != nil {
			log.WithError(serr).WithField("document", docID).Warn("could not mark document failed")
		}
		return err
	}

	if err := i.db.UpdateDocumentStatus(proctx, docID, StatusProcessing); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	bucket, key := parseS3URL(doc.StorageURL)
	data, err := i.obj.GetFile(proctx, bucket, key)
	if err != nil {
		return fail(fmt.Errorf("get object: %w", err))
	}

	// Any failing stage cancels the rest.
	g, gctx := errgroup.WithContext(proctx)

	fragCh := i.extractor.ExtractText(gctx, g, data, doc.ContentType)
	chunkCh := streamChunk(gctx, g, fragCh, i.cfg.TargetTokens, i.cfg.OverlapTokens)

	var written int
	g.Go(func() error {
		n, err := i.embedAndPersist(gctx, docID, chunkCh, i.cfg.BatchSize)
		written = n
		return err
	})

	if err := g.Wait(); err != nil {
		return fail(err)
	}

	log.WithFields(log.Fields{"document": docID, "chunks": written}).Info("document ready")
	return i.db.UpdateDocumentStatus(proctx, docID, StatusReady)
}

// parseS3URL extracts the bucket and key from a virtual-hosted style S3 URL.
// Example: https://my-bucket.s3.us-east-2.amazonaws.com/path/to/file.pdf
func parseS3URL(u string) (bucket, key string) {
	hostPath := strings.SplitN(strings.TrimPrefix(u, "https://"), "/", 2)
	host := hostPath[0]
	if len(hostPath) == 2 {
		key = hostPath[1]
	}
	parts := strings.Split(host, ".")
	if len(parts) > 0 {
		bucket = parts[0]
	}
	return bucket, key
}
