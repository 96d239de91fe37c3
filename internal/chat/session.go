package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

const (
	// HeaderMessageID carries the id the backend assigned to the answer.
	HeaderMessageID = "x-message-id"
	// HeaderExpanded is present when the answer needs no "tell me more".
	HeaderExpanded = "x-expanded"
)

// Streamer opens a generation exchange and returns the live response.
type Streamer interface {
	Stream(ctx context.Context, path string, body any) (*http.Response, error)
}

// SessionHandlers receive the progress of one generation cycle. They run
// on the session's goroutine and must not block for long.
type SessionHandlers struct {
	OnHeaders func(PendingMessage)
	OnPartial func(GenerateResponse)
	OnFinish  func(GenerateResponse)
	OnError   func(error)
}

// Session drives one generation request/response cycle at a time.
type Session struct {
	streamer Streamer
	path     string
	handlers SessionHandlers
	loading  atomic.Bool
	log      *log.Entry
}

// NewSession returns a session posting to path through streamer.
func NewSession(streamer Streamer, path string, handlers SessionHandlers) *Session {
	return &Session{
		streamer: streamer,
		path:     path,
		handlers: handlers,
		log:      log.WithField("component", "generation"),
	}
}

// IsLoading reports whether a cycle is in progress.
func (s *Session) IsLoading() bool { return s.loading.Load() }

// Submit starts a cycle for req. It returns ErrSessionBusy if the previous
// cycle is still loading; the request is not queued.
func (s *Session) Submit(ctx context.Context, req GenerateRequest) error {
	if !s.loading.CompareAndSwap(false, true) {
		return ErrSessionBusy
	}
	go s.run(ctx, req)
	return nil
}

func (s *Session) run(ctx context.Context, req GenerateRequest) {
	resp, err := s.streamer.Stream(ctx, s.path, req)
	if err != nil {
		s.fail(fmt.Errorf("generate: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		s.fail(fmt.Errorf("generate: unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		return
	}

	id := resp.Header.Get(HeaderMessageID)
	if id == "" {
		s.fail(fmt.Errorf("%w: response has no %s header", ErrProtocolViolation, HeaderMessageID))
		return
	}
	pending := PendingMessage{ID: id, Expanded: resp.Header.Get(HeaderExpanded) != ""}
	s.log.WithField("message", id).Debug("generation headers received")
	if s.handlers.OnHeaders != nil {
		s.handlers.OnHeaders(pending)
	}

	var (
		acc  []byte
		last *GenerateResponse
		buf  = make([]byte, 4096)
	)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			acc = append(acc, buf[:n]...)
			if partial, ok := parsePartial(acc); ok && (last == nil || *last != partial) {
				last = &partial
				if s.handlers.OnPartial != nil {
					s.handlers.OnPartial(partial)
				}
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			s.fail(fmt.Errorf("generate: read stream: %w", rerr))
			return
		}
	}

	final, err := decodeFinal(acc)
	if err != nil {
		s.fail(err)
		return
	}
	s.loading.Store(false)
	if s.handlers.OnFinish != nil {
		s.handlers.OnFinish(final)
	}
}

func (s *Session) fail(err error) {
	entry := s.log.WithError(err)
	if errors.Is(err, ErrProtocolViolation) {
		entry.Error("generation contract broken")
	} else {
		entry.Warn("generation failed")
	}
	s.loading.Store(false)
	if s.handlers.OnError != nil {
		s.handlers.OnError(err)
	}
}
