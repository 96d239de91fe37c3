package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/cova/internal/core"
	"github.com/markdave123-py/cova/internal/models"
)

const maxTitleRunes = 200

type ConversationService struct {
	db core.DbClient
}

func NewConversationService(db core.DbClient) *ConversationService {
	return &ConversationService{db: db}
}

// Create starts a conversation titled with the first utterance.
func (s *ConversationService) Create(ctx context.Context, tenantID, userID, title string) (*models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if r := []rune(title); len(r) > maxTitleRunes {
		title = string(r[:maxTitleRunes])
	}

	conv := &models.Conversation{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now(),
	}
	if err := s.db.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// Owned returns the conversation if it belongs to userID.
func (s *ConversationService) Owned(ctx context.Context, userID, id string) (*models.Conversation, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	conv, err := s.db.GetConversation(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("lookup conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	return conv, nil
}

// Messages returns the transcript of a conversation, oldest first.
func (s *ConversationService) Messages(ctx context.Context, userID, conversationID string) ([]models.Message, error) {
	if _, err := s.Owned(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.db.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return msgs, nil
}

// Sources returns the citations of one message.
func (s *ConversationService) Sources(ctx context.Context, userID, conversationID, messageID string) (*models.MessageSources, error) {
	if _, err := s.Owned(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(messageID); err != nil {
		return nil, ErrNotFound
	}
	msg, err := s.db.GetMessage(ctx, conversationID, messageID)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, ErrNotFound
	}
	sources := msg.Sources
	if sources == nil {
		sources = []models.Source{}
	}
	return &models.MessageSources{ID: msg.ID, Sources: sources}, nil
}
