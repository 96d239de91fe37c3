package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/cova/internal/core/coretest"
	"github.com/markdave123-py/cova/internal/models"
)

func TestSignupAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewDB()
	users := NewUserService(db)

	u, err := users.Signup(ctx, SignupInput{TenantName: "Acme Brokers", FirstName: "Ada", Email: " Ada@Example.com ", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	assert.NotEqual(t, "correct horse", u.PasswordHash)

	tenant, err := users.Tenant(ctx, u.TenantID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Brokers", tenant.Name)

	_, err = users.Signup(ctx, SignupInput{TenantName: "Other", Email: "ada@example.com", Password: "another pass"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = users.Signup(ctx, SignupInput{TenantName: "Short", Email: "bob@example.com", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := users.Authenticate(ctx, "ADA@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = users.Authenticate(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = users.Authenticate(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = users.Tenant(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConversationOwnership(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewDB()
	convs := NewConversationService(db)

	conv, err := convs.Create(ctx, "t1", "u1", "  "+strings.Repeat("x", 300))
	require.NoError(t, err)
	assert.Len(t, []rune(conv.Title), maxTitleRunes)

	_, err = convs.Create(ctx, "t1", "u1", "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	msgs, err := convs.Messages(ctx, "u1", conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = convs.Messages(ctx, "u2", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = convs.Messages(ctx, "u1", "not-a-uuid")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = convs.Sources(ctx, "u1", conv.ID, uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}

func newGeneration(t *testing.T, llm *coretest.LLM) (*GenerationService, *ConversationService, *coretest.DB, *models.Conversation) {
	t.Helper()
	db := coretest.NewDB()
	db.Hits = []models.ChunkHit{{
		DocumentChunk: models.DocumentChunk{ID: "ch1", DocumentID: "doc-A", Position: 3, Text: "Flood is excluded under section 4."},
		FileName:      "policy.pdf",
		Distance:      0.25,
	}}
	convs := NewConversationService(db)
	conv, err := convs.Create(context.Background(), "t1", "u1", "flood cover?")
	require.NoError(t, err)
	return NewGenerationService(db, convs, coretest.Embedder{}, llm, 5), convs, db, conv
}

func TestGenerationPersistsTurnsAndSources(t *testing.T) {
	ctx := context.Background()
	llm := &coretest.LLM{Chunks: []string{"Flood is ", "excluded."}}
	gens, convs, _, conv := newGeneration(t, llm)

	gen, err := gens.Prepare(ctx, "t1", "u1", GenerateInput{ConversationID: conv.ID, Content: "Is flood covered?"})
	require.NoError(t, err)
	assert.False(t, gen.Expanded)
	require.Len(t, gen.Sources, 1)
	assert.Equal(t, models.Source{DocumentID: "doc-A", FileName: "policy.pdf", ChunkID: "ch1", Position: 3, Snippet: "Flood is excluded under section 4.", Score: 0.75}, gen.Sources[0])

	// sources are available before any text is generated
	src, err := convs.Sources(ctx, "u1", conv.ID, gen.MessageID)
	require.NoError(t, err)
	assert.Equal(t, gen.Sources, src.Sources)

	var deltas []string
	require.NoError(t, gens.Stream(ctx, gen, func(d string) error {
		deltas = append(deltas, d)
		return nil
	}))
	assert.Equal(t, []string{"Flood is ", "excluded."}, deltas)
	assert.Contains(t, llm.LastPrompt(), "Flood is excluded under section 4.")

	msgs, err := convs.Messages(ctx, "u1", conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	assert.Equal(t, "Is flood covered?", msgs[0].Content)
	assert.Equal(t, models.RoleAssistant, msgs[1].Role)
	assert.Equal(t, gen.MessageID, msgs[1].ID)
	assert.Equal(t, "Flood is excluded.", msgs[1].Content)
}

func TestGenerationTellMeMoreIsExpanded(t *testing.T) {
	ctx := context.Background()
	llm := &coretest.LLM{Chunks: []string{"More."}}
	gens, _, _, conv := newGeneration(t, llm)

	first, err := gens.Prepare(ctx, "t1", "u1", GenerateInput{ConversationID: conv.ID, Content: "Is flood covered?"})
	require.NoError(t, err)
	require.NoError(t, gens.Stream(ctx, first, func(string) error { return nil }))

	more, err := gens.Prepare(ctx, "t1", "u1", GenerateInput{ConversationID: conv.ID, Content: models.TellMeMorePrompt})
	require.NoError(t, err)
	assert.True(t, more.Expanded)
	assert.Contains(t, llm.LastPrompt(), "Is flood covered?")
}

func TestGenerationKeepsPartialAnswerOnFailure(t *testing.T) {
	ctx := context.Background()
	llm := &coretest.LLM{Chunks: []string{"Half an "}, Err: errors.New("upstream reset")}
	gens, convs, _, conv := newGeneration(t, llm)

	gen, err := gens.Prepare(ctx, "t1", "u1", GenerateInput{ConversationID: conv.ID, Content: "q"})
	require.NoError(t, err)
	err = gens.Stream(ctx, gen, func(string) error { return nil })
	require.ErrorContains(t, err, "upstream reset")

	msgs, err := convs.Messages(ctx, "u1", conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "Half an ", msgs[1].Content)
}

func TestGenerationWithoutRetrievalHasNoSources(t *testing.T) {
	ctx := context.Background()
	gens, _, db, conv := newGeneration(t, &coretest.LLM{})
	db.SearchErr = errors.New("index missing")

	gen, err := gens.Prepare(ctx, "t1", "u1", GenerateInput{ConversationID: conv.ID, Content: "q"})
	require.NoError(t, err)
	assert.NotNil(t, gen.Sources)
	assert.Empty(t, gen.Sources)

	_, err = gens.Prepare(ctx, "t1", "u2", GenerateInput{ConversationID: conv.ID, Content: "q"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = gens.Prepare(ctx, "t1", "u1", GenerateInput{ConversationID: conv.ID, Content: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDocumentUpload(t *testing.T) {
	ctx := context.Background()
	db := coretest.NewDB()
	objs := coretest.NewObjects()
	queue := &coretest.Queue{}
	docs := NewDocumentService(db, objs, queue, "cova-docs")

	doc, err := docs.UploadAndCreate(ctx, "t1", "u1", "../my policy.pdf", "application/pdf", strings.NewReader("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "my policy.pdf", doc.FileName)
	assert.Contains(t, doc.StorageURL, "tenants/t1/documents/"+doc.ID+"/my_policy.pdf")
	assert.True(t, queue.Contains(doc.ID))
	assert.Equal(t, 1, objs.Len())

	list, err := docs.ListByTenant(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	other, err := docs.ListByTenant(ctx, "t2")
	require.NoError(t, err)
	assert.Empty(t, other)
}
