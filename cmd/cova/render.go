package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/markdave123-py/cova/internal/chat"
)

// renderer prints conversation snapshots as an append-only terminal log:
// new turns, the growing text of the answer in flight, sources once they
// arrive and a hint when an answer can be expanded.
type renderer struct {
	mu  sync.Mutex
	out io.Writer

	turns    int    // turns printed in full
	open     bool   // the turn in flight has been started
	streamed string // text printed so far of the turn in flight
	midLine  bool

	sources   map[int]bool
	hinted    map[int]bool
	published bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, sources: map[int]bool{}, hinted: map[int]bool{}}
}

// Render is registered as the conversation's change callback.
func (r *renderer) Render(s chat.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = true

	if s.History && len(s.Messages) == 0 && r.turns == 0 {
		return
	}
	// A reloaded transcript never shrinks below what was printed.
	if len(s.Messages) < r.turns {
		return
	}

	for i := r.turns; i < len(s.Messages); i++ {
		m := s.Messages[i]
		if m.Role() == chat.RoleUser {
			fmt.Fprintf(r.out, "you> %s\n", m.Text())
			r.turns++
			continue
		}

		if !r.open {
			fmt.Fprint(r.out, "cova> ")
			r.open = true
		}
		text := m.Text()
		if strings.HasPrefix(text, r.streamed) {
			fmt.Fprint(r.out, text[len(r.streamed):])
		} else {
			fmt.Fprintf(r.out, "\n%s", text)
		}
		r.streamed = text
		r.midLine = true

		if s.Loading && i == len(s.Messages)-1 {
			break
		}
		fmt.Fprintln(r.out)
		r.open, r.streamed, r.midLine = false, "", false
		r.turns++
	}

	for i := 0; i < r.turns; i++ {
		a, ok := chat.AsAssistant(s.Messages[i])
		if !ok || len(a.Sources) == 0 || r.sources[i] {
			continue
		}
		r.sources[i] = true
		fmt.Fprintln(r.out, "  sources:")
		for _, src := range a.Sources {
			fmt.Fprintf(r.out, "    - %s (chunk %d)\n", src.FileName, src.Position)
		}
	}

	last := len(s.Messages) - 1
	if !s.Loading && s.CanExpand && r.turns == len(s.Messages) && !r.hinted[last] {
		r.hinted[last] = true
		fmt.Fprintf(r.out, "  (type %s to hear more)\n", moreCommand)
	}
}

// Notice prints a line outside the transcript.
func (r *renderer) Notice(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
	fmt.Fprintf(r.out, "! %s\n", msg)
}

// Published reports whether a snapshot has been rendered.
func (r *renderer) Published() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published
}
