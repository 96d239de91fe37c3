package services

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/cova/internal/core"
	"github.com/markdave123-py/cova/internal/core/ingestion_engine"
	"github.com/markdave123-py/cova/internal/models"
)

type DocumentService struct {
	db       core.DbClient
	storage  core.ObjectClient
	ingestor ingestion_engine.Ingestor
	bucket   string
}

func NewDocumentService(db core.DbClient, storage core.ObjectClient, ingestor ingestion_engine.Ingestor, bucket string) *DocumentService {
	return &DocumentService{db: db, storage: storage, ingestor: ingestor, bucket: bucket}
}

// UploadAndCreate stores the file, records the document and queues it for
// ingestion.
func (s *DocumentService) UploadAndCreate(ctx context.Context, tenantID, userID, filename, contentType string, data io.Reader) (*models.Document, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "." || filename == "/" || filename == "" {
		return nil, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	docID := uuid.NewString()
	key := s.objectKey(tenantID, docID, filename)

	url, err := s.storage.UploadFile(ctx, s.bucket, key, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	now := time.Now()
	doc := &models.Document{
		ID:          docID,
		TenantID:    tenantID,
		UserID:      userID,
		FileName:    filename,
		StorageURL:  url,
		SourceType:  "upload",
		ContentType: contentType,
		Status:      ingestion_engine.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		if derr := s.storage.DeleteFile(context.WithoutCancel(ctx), s.bucket, key); derr != nil {
			log.WithError(derr).WithField("key", key).Warn("could not remove orphaned upload")
		}
		return nil, fmt.Errorf("store document metadata: %w", err)
	}

	if err := s.ingestor.Enqueue(ctx, doc.ID); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) ListByTenant(ctx context.Context, tenantID string) ([]models.Document, error) {
	return s.db.ListDocumentsByTenant(ctx, tenantID)
}

// objectKey creates a consistent S3 key layout.
func (s *DocumentService) objectKey(tenantID, docID, filename string) string {
	filename = strings.ReplaceAll(filename, " ", "_")
	return path.Join("tenants", tenantID, "documents", docID, filename)
}
