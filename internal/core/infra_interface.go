package core

import (
	"context"
	"io"

	"github.com/markdave123-py/cova/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
// Lookups return (nil, nil) when the row does not exist.
type DbClient interface {
	CreateTenant(ctx context.Context, tenant *models.Tenant) error
	GetTenantByID(ctx context.Context, id string) (*models.Tenant, error)

	CreateUser(ctx context.Context, user *models.User) (err error)
	GetUserByEmail(ctx context.Context, email string) (user *models.User, err error)

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByTenant(ctx context.Context, tenantID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	// SearchChunks returns the limit chunks of the tenant's ready documents
	// closest to queryVec.
	SearchChunks(ctx context.Context, tenantID string, queryVec []float32, limit int) ([]models.ChunkHit, error)

	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error)

	CreateMessage(ctx context.Context, msg *models.Message) error
	UpdateMessageContent(ctx context.Context, id, content string) error
	ListMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	GetMessage(ctx context.Context, conversationID, id string) (*models.Message, error)

	Close() error
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
