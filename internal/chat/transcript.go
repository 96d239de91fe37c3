package chat

import "github.com/markdave123-py/cova/internal/models"

// Event is an input to the transcript state machine.
type Event interface{ isEvent() }

// Submitted appends the user's turn and starts a generation cycle.
type Submitted struct{ Content string }

// PartialReceived carries the latest partial object of the stream.
type PartialReceived struct{ Message string }

// HeadersReceived carries the id and expanded flag from the response headers.
type HeadersReceived struct{ Pending PendingMessage }

// Finished carries the final validated object.
type Finished struct{ Message string }

// Failed ends the cycle with whatever content had streamed so far.
type Failed struct{ Err error }

// HistoryLoaded installs a previously persisted transcript.
type HistoryLoaded struct{ Turns []Message }

func (Submitted) isEvent()       {}
func (PartialReceived) isEvent() {}
func (HeadersReceived) isEvent() {}
func (Finished) isEvent()        {}
func (Failed) isEvent()          {}
func (HistoryLoaded) isEvent()   {}

// Transcript is the ordered, append-only log of turns. Only the trailing
// assistant turn is amended in place, while it streams and until the
// pending id has been reconciled onto it.
//
// Reconciliation of a PendingMessage waits until the cycle stops loading,
// so a turn never shows an id next to content that is still growing.
type Transcript struct {
	turns   []Message
	pending *PendingMessage
	loading bool
	// streaming is set once the current cycle has appended its assistant turn.
	streaming bool
}

// Apply advances the state machine. It reports whether anything visible changed.
func (t *Transcript) Apply(ev Event) bool {
	switch e := ev.(type) {
	case Submitted:
		t.turns = append(t.turns, UserMessage{Content: e.Content})
		t.loading = true
		t.streaming = false
		t.pending = nil
	case PartialReceived:
		if !t.loading {
			return false
		}
		t.setStreamingContent(e.Message)
	case HeadersReceived:
		p := e.Pending
		t.pending = &p
	case Finished:
		if !t.loading {
			return false
		}
		t.setStreamingContent(e.Message)
		t.loading = false
		t.streaming = false
	case Failed:
		if !t.loading {
			return false
		}
		t.loading = false
		t.streaming = false
		if !t.lastIsAssistant() {
			t.pending = nil
		}
	case HistoryLoaded:
		t.turns = append(make([]Message, 0, len(e.Turns)), e.Turns...)
	default:
		return false
	}
	t.reconcile()
	return true
}

// setStreamingContent replaces the content of this cycle's assistant turn,
// appending the turn on first use.
func (t *Transcript) setStreamingContent(content string) {
	if t.streaming {
		if a, ok := AsAssistant(t.turns[len(t.turns)-1]); ok {
			a.Content = content
			t.turns[len(t.turns)-1] = a
			return
		}
	}
	t.turns = append(t.turns, AssistantMessage{Content: content, Sources: []models.Source{}})
	t.streaming = true
}

func (t *Transcript) reconcile() {
	if t.loading || t.pending == nil || !t.lastIsAssistant() {
		return
	}
	a, _ := AsAssistant(t.turns[len(t.turns)-1])
	a.ID = t.pending.ID
	a.Expanded = t.pending.Expanded
	t.turns[len(t.turns)-1] = a
	t.pending = nil
}

func (t *Transcript) lastIsAssistant() bool {
	if len(t.turns) == 0 {
		return false
	}
	_, ok := AsAssistant(t.turns[len(t.turns)-1])
	return ok
}

// Turns returns a copy of the turns.
func (t *Transcript) Turns() []Message {
	return append([]Message(nil), t.turns...)
}

// Loading reports whether a generation cycle is in progress.
func (t *Transcript) Loading() bool { return t.loading }

// Pending returns the unreconciled header metadata, if any.
func (t *Transcript) Pending() (PendingMessage, bool) {
	if t.pending == nil {
		return PendingMessage{}, false
	}
	return *t.pending, true
}

// CanExpand reports whether the "tell me more" control applies: the last
// turn is a finished assistant answer the backend did not mark expanded.
func (t *Transcript) CanExpand() bool {
	if t.loading || len(t.turns) == 0 {
		return false
	}
	a, ok := AsAssistant(t.turns[len(t.turns)-1])
	return ok && !a.Expanded
}
