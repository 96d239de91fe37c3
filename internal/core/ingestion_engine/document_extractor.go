package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"code.sajari.com/docconv"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/cova/internal/core"
)

var _ core.DocumentExtractor = (*DocconvExtractor)(nil)

func NewDocconvExtractor(useReadability bool, maxFragLen int) *DocconvExtractor {
	if maxFragLen <= 0 {
		maxFragLen = 2000
	}
	return &DocconvExtractor{useReadability: useReadability, maxFragLen: maxFragLen}
}

// ExtractText converts data with docconv and emits its non-blank lines,
// split so that no fragment exceeds maxFragLen bytes.
func (e *DocconvExtractor) ExtractText(ctx context.Context, g *errgroup.Group, data []byte, contentType string) <-chan string {
	out := make(chan string, 32)

	g.Go(func() error {
		defer close(out)

		res, err := docconv.Convert(bytes.NewReader(data), contentType, e.useReadability)
		if err != nil {
			return fmt.Errorf("docconv: extraction failed for content type %q: %w", contentType, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.TrimSpace(res.Body) == "" {
			log.WithField("content_type", contentType).Warn("docconv: extracted empty text")
			return nil
		}

		for _, frag := range splitFragments(res.Body, e.maxFragLen) {
			select {
			case out <- frag:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return out
}

// splitFragments returns the trimmed non-blank lines of text, with lines
// longer than maxLen cut on rune boundaries.
func splitFragments(text string, maxLen int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for len(line) > maxLen {
			cut := maxLen
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
			out = append(out, line[:cut])
			line = line[cut:]
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
