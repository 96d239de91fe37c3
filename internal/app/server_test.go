package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/cova/internal/chat"
	"github.com/markdave123-py/cova/internal/config"
	"github.com/markdave123-py/cova/internal/core/coretest"
	"github.com/markdave123-py/cova/internal/covaclient"
	"github.com/markdave123-py/cova/internal/models"
	"github.com/markdave123-py/cova/internal/services"
)

func newTestServer(t *testing.T, llm *coretest.LLM) *httptest.Server {
	t.Helper()
	db := coretest.NewDB()
	db.Hits = []models.ChunkHit{{
		DocumentChunk: models.DocumentChunk{ID: "ch1", DocumentID: "doc-A", Position: 1, Text: "Flood damage is excluded."},
		FileName:      "policy.pdf",
		Distance:      0.1,
	}}
	convs := services.NewConversationService(db)
	cfg := &config.Config{JWTSecret: "test-secret", AllowedOrigins: []string{"*"}}
	srv := httptest.NewServer(NewRouter(cfg, Services{
		Users:         services.NewUserService(db),
		Conversations: convs,
		Generations:   services.NewGenerationService(db, convs, coretest.Embedder{}, llm, 3),
		Documents:     services.NewDocumentService(db, coretest.NewObjects(), &coretest.Queue{}, "docs"),
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, r)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func signup(t *testing.T, srv *httptest.Server, email string) string {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/signup", "", map[string]string{
		"tenant": "Acme", "first_name": "Ada", "email": email, "password": "long enough",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct{ Token string }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Token)
	return out.Token
}

func createConversation(t *testing.T, srv *httptest.Server, token string) string {
	t.Helper()
	resp := do(t, srv, http.MethodPost, "/api/conversations", token, map[string]string{"title": "Is flood covered?"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out struct{ ID string }
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out.ID
}

func TestGenerateStreamsAnswerWithMessageID(t *testing.T) {
	srv := newTestServer(t, &coretest.LLM{Chunks: []string{"Flood is ", `"excluded"`, "."}})
	token := signup(t, srv, "ada@example.com")
	convID := createConversation(t, srv, token)

	resp := do(t, srv, http.MethodPost, "/api/generate", token, map[string]string{"conversationId": convID, "content": "Is flood covered?"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgID := resp.Header.Get("x-message-id")
	require.NotEmpty(t, msgID)
	assert.Empty(t, resp.Header.Get("x-expanded"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"Flood is \"excluded\"."}`, string(body))

	resp = do(t, srv, http.MethodGet, "/api/conversations/"+convID+"/messages/"+msgID, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var src models.MessageSources
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&src))
	assert.Equal(t, msgID, src.ID)
	require.Len(t, src.Sources, 1)
	assert.Equal(t, "policy.pdf", src.Sources[0].FileName)

	resp = do(t, srv, http.MethodGet, "/api/conversations/"+convID+"/messages", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var msgs []models.Message
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, `Flood is "excluded".`, msgs[1].Content)

	resp = do(t, srv, http.MethodPost, "/api/generate", token, map[string]string{"conversationId": convID, "content": models.TellMeMorePrompt})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "true", resp.Header.Get("x-expanded"))
}

func TestGenerateFailureLeavesBodyUnterminated(t *testing.T) {
	srv := newTestServer(t, &coretest.LLM{Chunks: []string{"Half an "}, Err: errors.New("upstream reset")})
	token := signup(t, srv, "ada@example.com")
	convID := createConversation(t, srv, token)

	resp := do(t, srv, http.MethodPost, "/api/generate", token, map[string]string{"conversationId": convID, "content": "q"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"message":"Half an `, string(body))
}

func TestConversationsArePrivate(t *testing.T) {
	srv := newTestServer(t, &coretest.LLM{Chunks: []string{"ok"}})
	owner := signup(t, srv, "ada@example.com")
	other := signup(t, srv, "bob@example.com")
	convID := createConversation(t, srv, owner)

	resp := do(t, srv, http.MethodGet, "/api/conversations/"+convID+"/messages", other, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, srv, http.MethodPost, "/api/generate", other, map[string]string{"conversationId": convID, "content": "q"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, srv, http.MethodPost, "/api/generate", "", map[string]string{"conversationId": convID, "content": "q"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = do(t, srv, http.MethodPost, "/api/generate", owner, map[string]string{"conversationId": convID})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLoginAndTenant(t *testing.T) {
	srv := newTestServer(t, &coretest.LLM{})
	signup(t, srv, "ada@example.com")

	resp := do(t, srv, http.MethodPost, "/api/signup", "", map[string]string{"tenant": "Again", "email": "ada@example.com", "password": "long enough"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = do(t, srv, http.MethodPost, "/api/login", "", map[string]string{"email": "ada@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	client := covaclient.New(covaclient.WithServerURL(srv.URL))
	token, err := client.Login(context.Background(), "ada@example.com", "long enough")
	require.NoError(t, err)

	client.Token = token
	tenant, err := client.Tenant(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Acme", tenant.Name)
	assert.Len(t, chat.SuggestedQuestions(tenant), 3)
}

func TestClientRoundTrip(t *testing.T) {
	srv := newTestServer(t, &coretest.LLM{Chunks: []string{"Flood ", "is excluded."}})
	client := covaclient.New(covaclient.WithServerURL(srv.URL), covaclient.WithToken(signup(t, srv, "ada@example.com")))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handoff, err := chat.NewWelcome(client).Start(ctx, "Is flood covered?")
	require.NoError(t, err)

	conv := chat.NewConversation(handoff.ConversationID, client, client, covaclient.GeneratePath)
	runErr := make(chan error, 1)
	go func() { runErr <- conv.Run(ctx, handoff.InitialMessage) }()

	answered := func(n int, expanded bool) func() bool {
		return func() bool {
			snap := conv.Snapshot()
			if snap.Loading || len(snap.Messages) != n {
				return false
			}
			a, ok := chat.AsAssistant(snap.Messages[n-1])
			return ok && a.ID != "" && len(a.Sources) == 1 && a.Expanded == expanded
		}
	}
	require.Eventually(t, answered(2, false), 5*time.Second, 10*time.Millisecond)

	snap := conv.Snapshot()
	assert.Equal(t, "Is flood covered?", snap.Messages[0].Text())
	assert.Equal(t, "Flood is excluded.", snap.Messages[1].Text())
	assert.True(t, snap.CanExpand)

	require.NoError(t, conv.TellMeMore(ctx))
	require.Eventually(t, answered(4, true), 5*time.Second, 10*time.Millisecond)
	assert.False(t, conv.Snapshot().CanExpand)

	// A fresh view of the same conversation loads the persisted history.
	cancel()
	assert.ErrorIs(t, <-runErr, context.Canceled)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	reopened := chat.NewConversation(handoff.ConversationID, client, client, covaclient.GeneratePath)
	go func() { _ = reopened.Run(ctx2, "") }()
	require.Eventually(t, func() bool {
		s := reopened.Snapshot()
		return !s.History && len(s.Messages) == 4
	}, 5*time.Second, 10*time.Millisecond)
}
