package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/cova/internal/models"
)

func TestSourceCacheIsWriteOnce(t *testing.T) {
	c := NewSourceCache()

	require.True(t, c.Store("m1", []models.Source{{DocumentID: "A"}}))
	assert.False(t, c.Store("m1", []models.Source{{DocumentID: "B"}}))

	got, ok := c.Lookup("m1")
	require.True(t, ok)
	assert.Equal(t, []models.Source{{DocumentID: "A"}}, got)
	assert.Equal(t, 1, c.Len())
}

func TestSourceCacheClaim(t *testing.T) {
	c := NewSourceCache()

	assert.False(t, c.Claim(""))
	assert.True(t, c.Claim("m1"))
	assert.False(t, c.Claim("m1"), "in-flight id must not be fetched twice")

	c.Release("m1")
	assert.True(t, c.Claim("m1"), "a failed fetch may be retried by a later pending message")

	c.Store("m1", nil)
	assert.False(t, c.Claim("m1"), "cached id is never refetched")

	got, ok := c.Lookup("m1")
	require.True(t, ok)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestOverlayDoesNotMutateTurns(t *testing.T) {
	c := NewSourceCache()
	c.Store("m1", []models.Source{{DocumentID: "A"}})

	turns := []Message{
		UserMessage{Content: "hello"},
		AssistantMessage{Content: "hi", ID: "m1", Sources: []models.Source{}},
		AssistantMessage{Content: "streaming"},
		AssistantMessage{Content: "old", ID: "m0", Sources: []models.Source{{DocumentID: "Z"}}},
	}

	view := Overlay(turns, c)

	a, ok := AsAssistant(view[1])
	require.True(t, ok)
	assert.Equal(t, []models.Source{{DocumentID: "A"}}, a.Sources)

	orig, _ := AsAssistant(turns[1])
	assert.Empty(t, orig.Sources)

	noID, _ := AsAssistant(view[2])
	assert.Empty(t, noID.Sources)

	hist, _ := AsAssistant(view[3])
	assert.Equal(t, "Z", hist.Sources[0].DocumentID, "history sources stay when the cache has nothing newer")

	assert.Equal(t, turns[0], view[0])
}
