// Package chat is the client side of a Cova conversation: it streams
// assistant answers from the backend, correlates them with the message id
// the backend assigns, and overlays source citations fetched out of band.
package chat

import (
	"fmt"

	"github.com/markdave123-py/cova/internal/models"
)

// Role of a turn.
type Role string

const (
	RoleUser      Role = models.RoleUser
	RoleAssistant Role = models.RoleAssistant
)

// Message is one turn of a transcript: a UserMessage or an AssistantMessage.
// Only assistant turns carry an id, the expanded flag and sources; use
// AsAssistant to reach them.
type Message interface {
	Role() Role
	Text() string
	isMessage()
}

// UserMessage is a turn typed by the user.
type UserMessage struct {
	Content string
}

func (UserMessage) Role() Role { return RoleUser }
func (m UserMessage) Text() string { return m.Content }
func (UserMessage) isMessage() {}

// AssistantMessage is a generated answer. ID is empty until the backend's
// id has been reconciled onto the turn.
type AssistantMessage struct {
	Content  string
	ID       string
	Expanded bool
	Sources  []models.Source
}

func (AssistantMessage) Role() Role { return RoleAssistant }
func (m AssistantMessage) Text() string { return m.Content }
func (AssistantMessage) isMessage() {}

// AsAssistant reports whether m is an assistant turn and returns it.
func AsAssistant(m Message) (AssistantMessage, bool) {
	a, ok := m.(AssistantMessage)
	return a, ok
}

// PendingMessage links the id and expanded flag disclosed by the response
// headers to the assistant turn still being streamed.
type PendingMessage struct {
	ID       string
	Expanded bool
}

// FromRecords converts validated history records into transcript turns.
func FromRecords(records []models.Message) ([]Message, error) {
	out := make([]Message, 0, len(records))
	for i, r := range records {
		switch r.Role {
		case models.RoleUser:
			out = append(out, UserMessage{Content: r.Content})
		case models.RoleAssistant, models.RoleSystem:
			out = append(out, AssistantMessage{
				Content:  r.Content,
				ID:       r.ID,
				Expanded: r.Expanded,
				Sources:  cloneSources(r.Sources),
			})
		default:
			return nil, fmt.Errorf("message %d: unknown role %q", i, r.Role)
		}
	}
	return out, nil
}

func cloneSources(in []models.Source) []models.Source {
	if in == nil {
		return []models.Source{}
	}
	out := make([]models.Source, len(in))
	copy(out, in)
	return out
}
