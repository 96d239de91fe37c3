package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/markdave123-py/cova/internal/core"
	"github.com/markdave123-py/cova/internal/models"
)

const (
	historyTurns  = 10
	snippetRunes  = 240
	systemPrompt  = "You are Cova, a personal AI assistant for insurance professionals. Answer using the document excerpts provided. If the excerpts do not contain the answer, say that you cannot find it in the documents."
	expandedExtra = " The user asked you to tell them more: expand on your previous answer with more detail and concrete examples from the excerpts."
)

type GenerationService struct {
	db       core.DbClient
	convs    *ConversationService
	embedder core.EmbeddingProvider
	llm      core.LLMProvider
	topK     int
}

func NewGenerationService(db core.DbClient, convs *ConversationService, emb core.EmbeddingProvider, llm core.LLMProvider, topK int) *GenerationService {
	if topK <= 0 {
		topK = 5
	}
	return &GenerationService{db: db, convs: convs, embedder: emb, llm: llm, topK: topK}
}

// GenerateInput is the body of a generation request.
type GenerateInput struct {
	ConversationID string `json:"conversationId" validate:"required"`
	Content        string `json:"content" validate:"required"`
}

// Generation is an assistant message whose id and sources are fixed before
// any text has been generated.
type Generation struct {
	MessageID string
	Expanded  bool
	Sources   []models.Source

	system string
	user   string
}

// Prepare persists the user turn, retrieves the tenant's most relevant chunks
// and creates the assistant message that will hold the answer.
func (s *GenerationService) Prepare(ctx context.Context, tenantID, userID string, in GenerateInput) (*Generation, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	conv, err := s.convs.Owned(ctx, userID, in.ConversationID)
	if err != nil {
		return nil, err
	}

	history, err := s.db.ListMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	userMsg := &models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleUser,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	if err := s.db.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("store user message: %w", err)
	}

	expanded := content == models.TellMeMorePrompt
	query := content
	if expanded {
		if q := lastUserQuestion(history); q != "" {
			query = q
		}
	}
	hits := s.retrieve(ctx, tenantID, query)
	sources := sourcesFromHits(hits)

	gen := &Generation{
		MessageID: uuid.NewString(),
		Expanded:  expanded,
		Sources:   sources,
		system:    systemPrompt,
		user:      buildUserPrompt(history, hits, content),
	}
	if expanded {
		gen.system += expandedExtra
	}

	assistant := &models.Message{
		ID:             gen.MessageID,
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Expanded:       expanded,
		Sources:        sources,
		CreatedAt:      time.Now(),
	}
	if err := s.db.CreateMessage(ctx, assistant); err != nil {
		return nil, fmt.Errorf("store assistant message: %w", err)
	}
	return gen, nil
}

// Stream generates the answer, passing each delta to onDelta, and persists
// whatever text was produced, complete or not.
func (s *GenerationService) Stream(ctx context.Context, gen *Generation, onDelta func(string) error) error {
	var answer strings.Builder
	genErr := s.llm.GenerateStream(ctx, gen.system, gen.user, func(delta string) error {
		answer.WriteString(delta)
		return onDelta(delta)
	})

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.db.UpdateMessageContent(saveCtx, gen.MessageID, answer.String()); err != nil {
		log.WithError(err).WithField("message", gen.MessageID).Error("could not persist answer")
		if genErr == nil {
			genErr = fmt.Errorf("persist answer: %w", err)
		}
	}
	return genErr
}

// retrieve returns the chunks closest to query. Retrieval failures leave the
// answer without sources rather than failing the request.
func (s *GenerationService) retrieve(ctx context.Context, tenantID, query string) []models.ChunkHit {
	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(vecs) == 0 {
		log.WithError(err).WithField("tenant", tenantID).Warn("query embedding failed, answering without sources")
		return nil
	}
	hits, err := s.db.SearchChunks(ctx, tenantID, vecs[0], s.topK)
	if err != nil {
		log.WithError(err).WithField("tenant", tenantID).Warn("chunk search failed, answering without sources")
		return nil
	}
	return hits
}

func sourcesFromHits(hits []models.ChunkHit) []models.Source {
	sources := make([]models.Source, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, models.Source{
			DocumentID: h.DocumentID,
			FileName:   h.FileName,
			ChunkID:    h.ID,
			Position:   h.Position,
			Snippet:    truncateRunes(h.Text, snippetRunes),
			Score:      1 - h.Distance,
		})
	}
	return sources
}

func lastUserQuestion(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser && history[i].Content != models.TellMeMorePrompt {
			return history[i].Content
		}
	}
	return ""
}

func buildUserPrompt(history []models.Message, hits []models.ChunkHit, question string) string {
	var sb strings.Builder
	sb.WriteString("Document excerpts:\n")
	if len(hits) == 0 {
		sb.WriteString("(none)\n")
	}
	for i, h := range hits {
		fmt.Fprintf(&sb, "[%d] %s\n%s\n---\n", i+1, h.FileName, h.Text)
	}

	if len(history) > historyTurns {
		history = history[len(history)-historyTurns:]
	}
	if len(history) > 0 {
		sb.WriteString("\nConversation so far:\n")
		for _, m := range history {
			role := "Assistant"
			if m.Role == models.RoleUser {
				role = "User"
			}
			fmt.Fprintf(&sb, "%s: %s\n", role, m.Content)
		}
	}

	fmt.Fprintf(&sb, "\nQuestion: %s", question)
	return sb.String()
}

func truncateRunes(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
