package chat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/cova/internal/models"
)

func lastAssistant(t *testing.T, turns []Message) AssistantMessage {
	t.Helper()
	require.NotEmpty(t, turns)
	a, ok := AsAssistant(turns[len(turns)-1])
	require.True(t, ok, "last turn is %T", turns[len(turns)-1])
	return a
}

func TestTranscriptScenarioHello(t *testing.T) {
	var tr Transcript

	tr.Apply(Submitted{Content: "hello"})
	assert.Equal(t, []Message{UserMessage{Content: "hello"}}, tr.Turns())
	assert.True(t, tr.Loading())

	tr.Apply(PartialReceived{Message: "hi"})
	tr.Apply(HeadersReceived{Pending: PendingMessage{ID: "m1"}})

	a := lastAssistant(t, tr.Turns())
	assert.Equal(t, "hi", a.Content)
	assert.Empty(t, a.ID, "id must not be reconciled while loading")
	_, pending := tr.Pending()
	assert.True(t, pending)

	tr.Apply(Finished{Message: "hi"})
	a = lastAssistant(t, tr.Turns())
	assert.Equal(t, "m1", a.ID)
	assert.False(t, a.Expanded)
	assert.Empty(t, a.Sources)
	_, pending = tr.Pending()
	assert.False(t, pending, "pending is cleared once reconciled")
	assert.Len(t, tr.Turns(), 2)
}

func TestTranscriptNeverReconcilesWhileLoading(t *testing.T) {
	orders := map[string][]Event{
		"headers first": {
			HeadersReceived{Pending: PendingMessage{ID: "m1", Expanded: true}},
			PartialReceived{Message: "a"},
			PartialReceived{Message: "ab"},
		},
		"headers between chunks": {
			PartialReceived{Message: "a"},
			HeadersReceived{Pending: PendingMessage{ID: "m1", Expanded: true}},
			PartialReceived{Message: "ab"},
		},
		"headers last": {
			PartialReceived{Message: "a"},
			PartialReceived{Message: "ab"},
			HeadersReceived{Pending: PendingMessage{ID: "m1", Expanded: true}},
		},
	}

	for name, events := range orders {
		t.Run(name, func(t *testing.T) {
			var tr Transcript
			tr.Apply(Submitted{Content: "q"})
			for _, ev := range events {
				tr.Apply(ev)
				for _, m := range tr.Turns() {
					if a, ok := AsAssistant(m); ok {
						assert.Empty(t, a.ID)
						assert.False(t, a.Expanded)
					}
				}
			}

			tr.Apply(Finished{Message: "abc"})
			a := lastAssistant(t, tr.Turns())
			assert.Equal(t, "abc", a.Content)
			assert.Equal(t, "m1", a.ID)
			assert.True(t, a.Expanded)
		})
	}
}

func TestTranscriptFinishWithoutPartials(t *testing.T) {
	var tr Transcript
	tr.Apply(Submitted{Content: "q"})
	tr.Apply(HeadersReceived{Pending: PendingMessage{ID: "m1"}})
	tr.Apply(Finished{Message: "answer"})

	turns := tr.Turns()
	require.Len(t, turns, 2)
	a := lastAssistant(t, turns)
	assert.Equal(t, "answer", a.Content)
	assert.Equal(t, "m1", a.ID)
}

func TestTranscriptFailureKeepsPartialContent(t *testing.T) {
	var tr Transcript
	tr.Apply(Submitted{Content: "q"})
	tr.Apply(HeadersReceived{Pending: PendingMessage{ID: "m1"}})
	tr.Apply(PartialReceived{Message: "half an ans"})
	tr.Apply(Failed{Err: errors.New("connection reset")})

	assert.False(t, tr.Loading())
	a := lastAssistant(t, tr.Turns())
	assert.Equal(t, "half an ans", a.Content)
	assert.Equal(t, "m1", a.ID)
}

func TestTranscriptFailureBeforeContentDropsPending(t *testing.T) {
	var tr Transcript
	tr.Apply(Submitted{Content: "q"})
	tr.Apply(HeadersReceived{Pending: PendingMessage{ID: "m1"}})
	tr.Apply(Failed{Err: errors.New("boom")})

	assert.Equal(t, []Message{UserMessage{Content: "q"}}, tr.Turns())
	_, pending := tr.Pending()
	assert.False(t, pending)
	assert.False(t, tr.CanExpand())
}

func TestTranscriptProtocolViolationLeavesUserTurn(t *testing.T) {
	var tr Transcript
	tr.Apply(Submitted{Content: "hello"})
	tr.Apply(Failed{Err: ErrProtocolViolation})

	assert.Equal(t, []Message{UserMessage{Content: "hello"}}, tr.Turns())
	assert.False(t, tr.Loading())
}

func TestTranscriptSecondCycleAppendsNewAssistantTurn(t *testing.T) {
	var tr Transcript
	tr.Apply(Submitted{Content: "one"})
	tr.Apply(HeadersReceived{Pending: PendingMessage{ID: "m1"}})
	tr.Apply(Finished{Message: "first"})

	tr.Apply(Submitted{Content: "two"})
	tr.Apply(PartialReceived{Message: "sec"})
	tr.Apply(HeadersReceived{Pending: PendingMessage{ID: "m2", Expanded: true}})
	tr.Apply(Finished{Message: "second"})

	turns := tr.Turns()
	require.Len(t, turns, 4)
	first, _ := AsAssistant(turns[1])
	assert.Equal(t, "first", first.Content)
	assert.Equal(t, "m1", first.ID)
	second := lastAssistant(t, turns)
	assert.Equal(t, "second", second.Content)
	assert.Equal(t, "m2", second.ID)
	assert.True(t, second.Expanded)
}

func TestTranscriptIgnoresStreamEventsWhenIdle(t *testing.T) {
	var tr Transcript
	assert.False(t, tr.Apply(PartialReceived{Message: "late"}))
	assert.False(t, tr.Apply(Finished{Message: "late"}))
	assert.False(t, tr.Apply(Failed{Err: errors.New("late")}))
	assert.Empty(t, tr.Turns())
}

func TestTranscriptCanExpand(t *testing.T) {
	var tr Transcript
	assert.False(t, tr.CanExpand())

	tr.Apply(HistoryLoaded{Turns: []Message{
		UserMessage{Content: "q"},
		AssistantMessage{Content: "a", ID: "m1", Sources: []models.Source{}},
	}})
	assert.True(t, tr.CanExpand())

	tr.Apply(Submitted{Content: models.TellMeMorePrompt})
	assert.False(t, tr.CanExpand(), "last turn is the user's")
	tr.Apply(PartialReceived{Message: "more"})
	assert.False(t, tr.CanExpand(), "loading")
	tr.Apply(HeadersReceived{Pending: PendingMessage{ID: "m2", Expanded: true}})
	tr.Apply(Finished{Message: "more detail"})
	assert.False(t, tr.CanExpand(), "expanded answers need no follow-up")
}

func TestTranscriptHistoryIsCopied(t *testing.T) {
	history := []Message{UserMessage{Content: "q"}}
	var tr Transcript
	tr.Apply(HistoryLoaded{Turns: history})
	tr.Apply(Submitted{Content: "next"})

	assert.Len(t, history, 1)
	assert.Len(t, tr.Turns(), 2)
}
