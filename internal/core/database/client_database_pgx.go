package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/cova/internal/config"
	"github.com/markdave123-py/cova/internal/core"
	"github.com/markdave123-py/cova/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

var _ core.DbClient = (*DatabaseClient)(nil)

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	dsn := cfg.DatabaseURL
	if cfg.SslCertPath != "" {
		if _, err := os.Stat(cfg.SslCertPath); err != nil {
			return nil, fmt.Errorf("ssl cert not accessible at %q: %w", cfg.SslCertPath, err)
		}
		u, err := url.Parse(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		q := u.Query()
		q.Set("sslmode", "verify-ca")
		q.Set("sslrootcert", cfg.SslCertPath)
		u.RawQuery = q.Encode()
		dsn = u.String()
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// nullTime maps the zero time to NULL so column defaults apply.
func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// Tenants

func (c *DatabaseClient) CreateTenant(ctx context.Context, t *models.Tenant) error {
	if t == nil {
		return errors.New("nil tenant")
	}
	const q = `
		INSERT INTO tenants (id, name, question1, question2, question3, created_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()))
	`
	_, err := c.db.ExecContext(ctx, q, t.ID, t.Name, t.Question1, t.Question2, t.Question3, nullTime(t.CreatedAt))
	return err
}

func (c *DatabaseClient) GetTenantByID(ctx context.Context, id string) (*models.Tenant, error) {
	const q = `
		SELECT id, name, question1, question2, question3, created_at
		FROM tenants WHERE id = $1
	`
	var t models.Tenant
	err := c.db.QueryRowContext(ctx, q, id).Scan(&t.ID, &t.Name, &t.Question1, &t.Question2, &t.Question3, &t.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, tenant_id, first_name, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()), COALESCE($7, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.TenantID, user.FirstName, user.Email, user.PasswordHash, nullTime(user.CreatedAt), nullTime(user.UpdatedAt))
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, tenant_id, first_name, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.TenantID, &u.FirstName, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, tenant_id, user_id, file_name, storage_url, source_type, content_type, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), COALESCE($10, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.TenantID, doc.UserID, doc.FileName, doc.StorageURL, doc.SourceType, doc.ContentType, doc.Status,
		nullTime(doc.CreatedAt), nullTime(doc.UpdatedAt))
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, tenant_id, user_id, file_name, storage_url, source_type, content_type, status, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.TenantID, &d.UserID, &d.FileName, &d.StorageURL, &d.SourceType, &d.ContentType, &d.Status, &d.CreatedAt, &d.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByTenant(ctx context.Context, tenantID string) ([]models.Document, error) {
	const q = `
		SELECT id, tenant_id, user_id, file_name, storage_url, source_type, content_type, status, created_at, updated_at
		FROM documents
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Document{}
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.TenantID, &d.UserID, &d.FileName, &d.StorageURL, &d.SourceType, &d.ContentType, &d.Status, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// Document chunks

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, position, text, embedding, token_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()))
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		if ch.ID == "" {
			ch.ID = uuid.NewString()
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Position, ch.Text, pgvector.NewVector(ch.Embedding), ch.TokenCount, nullTime(ch.CreatedAt),
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (c *DatabaseClient) SearchChunks(ctx context.Context, tenantID string, queryVec []float32, limit int) ([]models.ChunkHit, error) {
	const q = `
		SELECT ch.id, ch.document_id, ch.position, ch.text, ch.token_count, d.file_name,
		       ch.embedding <=> $2 AS distance
		FROM document_chunks ch
		JOIN documents d ON d.id = ch.document_id
		WHERE d.tenant_id = $1 AND d.status = 'ready'
		ORDER BY ch.embedding <=> $2
		LIMIT $3
	`
	rows, err := c.db.QueryContext(ctx, q, tenantID, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChunkHit
	for rows.Next() {
		var h models.ChunkHit
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.Position, &h.Text, &h.TokenCount, &h.FileName, &h.Distance); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Conversations

func (c *DatabaseClient) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv == nil {
		return errors.New("nil conversation")
	}
	const q = `
		INSERT INTO conversations (id, tenant_id, user_id, title, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`
	_, err := c.db.ExecContext(ctx, q, conv.ID, conv.TenantID, conv.UserID, conv.Title, nullTime(conv.CreatedAt))
	return err
}

func (c *DatabaseClient) GetConversation(ctx context.Context, userID, id string) (*models.Conversation, error) {
	const q = `
		SELECT id, tenant_id, user_id, title, created_at
		FROM conversations
		WHERE id = $1 AND user_id = $2
	`
	var conv models.Conversation
	err := c.db.QueryRowContext(ctx, q, id, userID).Scan(&conv.ID, &conv.TenantID, &conv.UserID, &conv.Title, &conv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// Messages

func (c *DatabaseClient) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	sources, err := json.Marshal(nonNilSources(msg.Sources))
	if err != nil {
		return fmt.Errorf("encode sources: %w", err)
	}
	const q = `
		INSERT INTO messages (id, conversation_id, role, content, expanded, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, clock_timestamp()))
	`
	_, err = c.db.ExecContext(ctx, q,
		msg.ID, msg.ConversationID, msg.Role, msg.Content, msg.Expanded, string(sources), nullTime(msg.CreatedAt))
	return err
}

func (c *DatabaseClient) UpdateMessageContent(ctx context.Context, id, content string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE messages SET content = $2 WHERE id = $1`, id, content)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("message not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, expanded, sources, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC
	`
	rows, err := c.db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) GetMessage(ctx context.Context, conversationID, id string) (*models.Message, error) {
	const q = `
		SELECT id, conversation_id, role, content, expanded, sources, created_at
		FROM messages
		WHERE id = $1 AND conversation_id = $2
	`
	m, err := scanMessage(c.db.QueryRowContext(ctx, q, id, conversationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m       models.Message
		sources []byte
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.Expanded, &sources, &m.CreatedAt); err != nil {
		return nil, err
	}
	if len(sources) > 0 {
		if err := json.Unmarshal(sources, &m.Sources); err != nil {
			log.WithError(err).WithField("message", m.ID).Warn("dropping unreadable sources")
		}
	}
	m.Sources = nonNilSources(m.Sources)
	return &m, nil
}

func nonNilSources(s []models.Source) []models.Source {
	if s == nil {
		return []models.Source{}
	}
	return s
}
