package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/markdave123-py/cova/internal/models"
)

// Default welcome questions, used where the tenant has not set its own.
var defaultQuestions = [3]string{
	"Can you pull up my client’s latest policy documents and endorsements from my drive? I need to review their coverage before our meeting.",
	"I’m working on a new business submission for [Client Name]. Can you summarize their past claims history from Salesforce and suggest key coverage considerations?",
	"Check my recent emails and Salesforce activity. Do I have any outstanding follow-ups with insurers or clients regarding pending quotes or renewals",
}

// ConversationCreator creates a conversation and returns its id.
type ConversationCreator interface {
	CreateConversation(ctx context.Context, title string) (string, error)
}

// Handoff carries a new conversation and the utterance that started it to
// Conversation.Run.
type Handoff struct {
	ConversationID string
	InitialMessage string
}

// Welcome starts conversations from a first utterance.
type Welcome struct {
	creator ConversationCreator
}

func NewWelcome(creator ConversationCreator) *Welcome {
	return &Welcome{creator: creator}
}

// Start creates a conversation titled with content. A failed creation is
// returned as is and not retried; no handoff happens.
func (w *Welcome) Start(ctx context.Context, content string) (Handoff, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return Handoff{}, ErrEmptyMessage
	}
	id, err := w.creator.CreateConversation(ctx, content)
	if err != nil {
		return Handoff{}, fmt.Errorf("could not create conversation: %w", err)
	}
	return Handoff{ConversationID: id, InitialMessage: content}, nil
}

// SuggestedQuestions returns the tenant's three welcome questions.
func SuggestedQuestions(t *models.Tenant) []string {
	out := append([]string(nil), defaultQuestions[:]...)
	if t == nil {
		return out
	}
	for i, q := range []string{t.Question1, t.Question2, t.Question3} {
		if q = strings.TrimSpace(q); q != "" {
			out[i] = q
		}
	}
	return out
}

// Initials returns up to two upper-case initials of name.
func Initials(name string) string {
	var out []rune
	for _, word := range strings.Fields(name) {
		r := []rune(word)[0]
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		out = append(out, unicode.ToUpper(r))
		if len(out) == 2 {
			break
		}
	}
	return string(out)
}
