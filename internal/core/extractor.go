package core

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DocumentExtractor turns an uploaded file into a stream of text fragments.
type DocumentExtractor interface {
	// ExtractText runs extraction as a stage of g and returns the fragment
	// channel, closed when the stage ends. contentType picks the parser.
	ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) <-chan string
}
