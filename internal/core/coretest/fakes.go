// Package coretest provides in-memory implementations of the core
// interfaces for tests.
package coretest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/markdave123-py/cova/internal/core"
	"github.com/markdave123-py/cova/internal/models"
)

// DB is an in-memory core.DbClient.
type DB struct {
	mu            sync.Mutex
	tenants       map[string]models.Tenant
	users         map[string]models.User
	documents     map[string]models.Document
	chunks        []models.DocumentChunk
	conversations map[string]models.Conversation
	messages      []models.Message

	// Hits is returned by SearchChunks for every tenant.
	Hits []models.ChunkHit
	// SearchErr, when set, fails SearchChunks.
	SearchErr error
}

var _ core.DbClient = (*DB)(nil)

func NewDB() *DB {
	return &DB{
		tenants:       map[string]models.Tenant{},
		users:         map[string]models.User{},
		documents:     map[string]models.Document{},
		conversations: map[string]models.Conversation{},
	}
}

func (d *DB) CreateTenant(_ context.Context, t *models.Tenant) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants[t.ID] = *t
	return nil
}

func (d *DB) GetTenantByID(_ context.Context, id string) (*models.Tenant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.tenants[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (d *DB) CreateUser(_ context.Context, u *models.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.users {
		if existing.Email == u.Email {
			return fmt.Errorf("duplicate email %s", u.Email)
		}
	}
	d.users[u.ID] = *u
	return nil
}

func (d *DB) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, nil
}

func (d *DB) CreateDocument(_ context.Context, doc *models.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.documents[doc.ID] = *doc
	return nil
}

func (d *DB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.documents[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (d *DB) ListDocumentsByTenant(_ context.Context, tenantID string) ([]models.Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []models.Document{}
	for _, doc := range d.documents {
		if doc.TenantID == tenantID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (d *DB) UpdateDocumentStatus(_ context.Context, id, status string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	doc, ok := d.documents[id]
	if !ok {
		return fmt.Errorf("document not found: %s", id)
	}
	doc.Status = status
	d.documents[id] = doc
	return nil
}

func (d *DB) InsertDocumentChunks(_ context.Context, chunks []models.DocumentChunk) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chunks = append(d.chunks, chunks...)
	return nil
}

func (d *DB) SearchChunks(_ context.Context, _ string, _ []float32, limit int) ([]models.ChunkHit, error) {
	if d.SearchErr != nil {
		return nil, d.SearchErr
	}
	hits := d.Hits
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return append([]models.ChunkHit(nil), hits...), nil
}

func (d *DB) CreateConversation(_ context.Context, c *models.Conversation) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.conversations[c.ID] = *c
	return nil
}

func (d *DB) GetConversation(_ context.Context, userID, id string) (*models.Conversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.conversations[id]
	if !ok || c.UserID != userID {
		return nil, nil
	}
	return &c, nil
}

func (d *DB) CreateMessage(_ context.Context, m *models.Message) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.messages = append(d.messages, *m)
	return nil
}

func (d *DB) UpdateMessageContent(_ context.Context, id, content string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.messages {
		if d.messages[i].ID == id {
			d.messages[i].Content = content
			return nil
		}
	}
	return fmt.Errorf("message not found: %s", id)
}

func (d *DB) ListMessages(_ context.Context, conversationID string) ([]models.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []models.Message{}
	for _, m := range d.messages {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (d *DB) GetMessage(_ context.Context, conversationID, id string) (*models.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.messages {
		if m.ID == id && m.ConversationID == conversationID {
			return &m, nil
		}
	}
	return nil, nil
}

func (d *DB) Close() error { return nil }

// Objects is an in-memory core.ObjectClient.
type Objects struct {
	mu    sync.Mutex
	files map[string][]byte
}

var _ core.ObjectClient = (*Objects)(nil)

func NewObjects() *Objects { return &Objects{files: map[string][]byte{}} }

func (o *Objects) UploadFile(_ context.Context, bucket, key string, data io.Reader, _ string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return "", err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files[bucket+"/"+key] = buf.Bytes()
	return fmt.Sprintf("https://%s.s3.test.amazonaws.com/%s", bucket, key), nil
}

func (o *Objects) DeleteFile(_ context.Context, bucket, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.files, bucket+"/"+key)
	return nil
}

func (o *Objects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	b, ok := o.files[bucket+"/"+key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return b, nil
}

// Len is the number of stored objects.
func (o *Objects) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.files)
}

// Embedder returns a one-dimensional vector per text.
type Embedder struct{ Err error }

func (e Embedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

// LLM streams Chunks in order, then fails with Err if set.
type LLM struct {
	Chunks []string
	Err    error

	mu      sync.Mutex
	prompts []string
}

func (l *LLM) GenerateStream(ctx context.Context, system, user string, onChunk func(string) error) error {
	l.mu.Lock()
	l.prompts = append(l.prompts, system+"\n"+user)
	l.mu.Unlock()
	for _, c := range l.Chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := onChunk(c); err != nil {
			return err
		}
	}
	return l.Err
}

// LastPrompt returns the system and user prompt of the last call, joined.
func (l *LLM) LastPrompt() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.prompts) == 0 {
		return ""
	}
	return l.prompts[len(l.prompts)-1]
}

// Queue records enqueued document ids.
type Queue struct {
	mu  sync.Mutex
	IDs []string
}

func (q *Queue) Start(context.Context, int) {}

func (q *Queue) Enqueue(_ context.Context, docID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.IDs = append(q.IDs, docID)
	return nil
}

// Contains reports whether s is one of the recorded ids.
func (q *Queue) Contains(s string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.IDs {
		if strings.EqualFold(id, s) {
			return true
		}
	}
	return false
}
