package chat

import (
	"github.com/markdave123-py/cova/internal/models"
)

// SourceCache maps assistant message ids to their citations. An id is
// written at most once; later results for the same id are ignored. The
// cache is owned by one conversation loop and is not safe for concurrent use.
type SourceCache struct {
	entries  map[string][]models.Source
	inflight map[string]struct{}
}

func NewSourceCache() *SourceCache {
	return &SourceCache{
		entries:  make(map[string][]models.Source),
		inflight: make(map[string]struct{}),
	}
}

// Lookup returns the cached sources for id.
func (c *SourceCache) Lookup(id string) ([]models.Source, bool) {
	s, ok := c.entries[id]
	return s, ok
}

// Claim reports whether a fetch for id should start, and marks it in flight.
func (c *SourceCache) Claim(id string) bool {
	if id == "" {
		return false
	}
	if _, ok := c.entries[id]; ok {
		return false
	}
	if _, ok := c.inflight[id]; ok {
		return false
	}
	c.inflight[id] = struct{}{}
	return true
}

// Release clears the in-flight mark after a failed fetch.
func (c *SourceCache) Release(id string) {
	delete(c.inflight, id)
}

// Store records sources for id unless id is already cached. It reports
// whether the cache changed.
func (c *SourceCache) Store(id string, sources []models.Source) bool {
	delete(c.inflight, id)
	if _, ok := c.entries[id]; ok {
		return false
	}
	c.entries[id] = cloneSources(sources)
	return true
}

// Len is the number of cached ids.
func (c *SourceCache) Len() int { return len(c.entries) }

// Overlay returns a copy of turns where every assistant turn with a cached
// id shows the cached sources. turns itself is not modified.
func Overlay(turns []Message, cache *SourceCache) []Message {
	out := make([]Message, len(turns))
	for i, m := range turns {
		a, ok := AsAssistant(m)
		if !ok || a.ID == "" {
			out[i] = m
			continue
		}
		if sources, hit := cache.Lookup(a.ID); hit {
			a.Sources = cloneSources(sources)
		} else {
			a.Sources = cloneSources(a.Sources)
		}
		out[i] = a
	}
	return out
}
