package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/cova/internal/chat"
	"github.com/markdave123-py/cova/internal/config"
	"github.com/markdave123-py/cova/internal/models"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version", "--config", filepath.Join(t.TempDir(), "c.yaml")})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "cova dev\n", buf.String())
}

func TestChatRequiresLogin(t *testing.T) {
	t.Setenv("COVA_TOKEN", "")
	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetArgs([]string{"chat", "c1", "--config", filepath.Join(t.TempDir(), "c.yaml")})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not logged in")
}

func TestLoginStoresToken(t *testing.T) {
	t.Setenv("COVA_TOKEN", "")
	t.Setenv("COVA_SERVER", "")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if r.URL.Path != "/api/login" || body["email"] != "ada@example.com" || body["password"] != "pa ss" {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "cova", "config.yaml")
	cmd := newRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetIn(strings.NewReader("ada@example.com\npa ss\n"))
	cmd.SetArgs([]string{"login", "--config", path, "--server", srv.URL})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Logged in to "+srv.URL)

	cfg, err := config.LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", cfg.Token)
	assert.Equal(t, srv.URL, cfg.Server)
}

func TestPickQuestion(t *testing.T) {
	s := []string{"a?", "b?", "c?"}
	assert.Equal(t, "b?", pickQuestion("2", s))
	assert.Equal(t, "4", pickQuestion("4", s))
	assert.Equal(t, "what about hail?", pickQuestion("what about hail?", s))
}

func TestPrintWelcome(t *testing.T) {
	var buf bytes.Buffer
	printWelcome(&buf, &models.Tenant{Name: "acme brokers", Question1: "What is covered?"})
	assert.Contains(t, buf.String(), "[AB] acme brokers")
	assert.Contains(t, buf.String(), "  1. What is covered?")
}

// backend answers every generation with the same message.
type backend struct {
	answer  string
	history []models.Message
}

func (b *backend) Stream(_ context.Context, _ string, _ any) (*http.Response, error) {
	rec := httptest.NewRecorder()
	rec.Header().Set(chat.HeaderMessageID, "m1")
	rec.WriteString(`{"message":` + quote(b.answer) + `}`)
	return rec.Result(), nil
}

func (b *backend) ListMessages(context.Context, string) ([]models.Message, error) {
	return b.history, nil
}

func (b *backend) GetMessage(_ context.Context, _, id string) (*models.MessageSources, error) {
	return &models.MessageSources{ID: id, Sources: []models.Source{{FileName: "policy.pdf", Position: 1}}}, nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func runREPL(t *testing.T, b *backend, seed, input string) string {
	t.Helper()
	var buf bytes.Buffer
	r := newRenderer(&buf)
	conv := chat.NewConversation("c1", b, b, "/api/generate", chat.WithOnChange(r.Render))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, repl(ctx, conv, seed, strings.NewReader(input), r))
	return buf.String()
}

func TestREPLAnswersSeedBeforeExit(t *testing.T) {
	out := runREPL(t, &backend{answer: "Hello there."}, "hi", "")
	assert.Contains(t, out, "you> hi\n")
	assert.Contains(t, out, "cova> Hello there.\n")
	assert.Contains(t, out, "(type /more to hear more)")
}

func TestREPLNothingToExpand(t *testing.T) {
	out := runREPL(t, &backend{}, "", "/more\n")
	assert.Contains(t, out, "! There is no answer to expand yet.")
}

func TestREPLShowsHistory(t *testing.T) {
	b := &backend{history: []models.Message{
		{ID: "u", Role: models.RoleUser, Content: "old question"},
		{ID: "a", Role: models.RoleSystem, Content: "old answer", Expanded: true},
	}}
	out := runREPL(t, b, "", "")
	assert.Equal(t, "you> old question\ncova> old answer\n", out)
}
