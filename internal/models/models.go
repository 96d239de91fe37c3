package models

import (
	"time"
)

// TellMeMorePrompt is the fixed follow-up sent by the "tell me more" control.
const TellMeMorePrompt = "Tell me more about this"

// Role of a conversation turn.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	// RoleSystem is how older transcripts spell the assistant role.
	RoleSystem = "system"
)

// Tenant owns users, documents and conversations.
type Tenant struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Question1 string    `db:"question1" json:"question1,omitempty"`
	Question2 string    `db:"question2" json:"question2,omitempty"`
	Question3 string    `db:"question3" json:"question3,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// User represents an authenticated profile inside a tenant.
type User struct {
	ID           string    `db:"id" json:"id"`
	TenantID     string    `db:"tenant_id" json:"tenant_id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents a user-uploaded document searchable by the tenant.
type Document struct {
	ID          string    `db:"id" json:"id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	StorageURL  string    `db:"storage_url" json:"storage_url"`
	SourceType  string    `db:"source_type" json:"source_type"` // "upload" or "url"
	ContentType string    `db:"content_type" json:"content_type"`
	Status      string    `db:"status" json:"status"` // uploaded | processing | ready | failed
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentChunk represents one text chunk from a document.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"`
	Position   int       `db:"position" json:"position"`
	TokenCount int       `db:"token_count" json:"token_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChunkHit is a chunk returned by similarity search, joined with its document.
type ChunkHit struct {
	DocumentChunk
	FileName string
	Distance float64
}

// Source is one citation attached to an assistant message.
type Source struct {
	DocumentID string  `json:"documentId"`
	FileName   string  `json:"fileName"`
	ChunkID    string  `json:"chunkId,omitempty"`
	Position   int     `json:"position"`
	Snippet    string  `json:"snippet,omitempty"`
	Score      float64 `json:"score"`
}

// Conversation is one chat thread of a user.
type Conversation struct {
	ID        string    `db:"id" json:"id"`
	TenantID  string    `db:"tenant_id" json:"tenant_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Message is a persisted turn as served by the conversation history endpoint.
type Message struct {
	ID             string    `db:"id" json:"id,omitempty"`
	ConversationID string    `db:"conversation_id" json:"conversationId,omitempty"`
	Role           string    `db:"role" json:"role" validate:"required,oneof=user assistant system"`
	Content        string    `db:"content" json:"content"`
	Expanded       bool      `db:"expanded" json:"expanded,omitempty"`
	Sources        []Source  `db:"sources" json:"sources,omitempty" validate:"omitempty,dive"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt,omitempty"`
}

// MessageSources is the payload of the message-by-id endpoint.
type MessageSources struct {
	ID      string   `json:"id" validate:"required"`
	Sources []Source `json:"sources"`
}
