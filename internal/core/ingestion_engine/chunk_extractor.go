package ingestion_engine

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// streamChunk groups incoming fragments into token-bounded chunks with optional overlap.
//
// frags:          upstream fragments channel.
// targetTokens:   approximate tokens per chunk.
// overlapTokens:  tokens to retain from the end of the previous chunk as seed of the next (e.g., 50).
// out:            receive-only channel of chunk structs with Pos/Text/TokenCnt.
func streamChunk(
	ctx context.Context,
	g *errgroup.Group,
	frags <-chan string,
	targetTokens int,
	overlapTokens int,
) <-chan chunk {
	out := make(chan chunk, 8)

	g.Go(func() error {
		defer close(out)

		var (
			buf    []string
			tokSum int
			// fresh counts tokens added since the last emitted chunk, so an
			// overlap-only tail is never emitted on its own.
			fresh int
			pos   int
		)

		flush := func() error {
			if fresh == 0 {
				return nil
			}
			ch := chunk{Pos: pos, Text: strings.Join(buf, "\n"), TokenCnt: tokSum}
			pos++

			select {
			case out <- ch:
			case <-ctx.Done():
				return ctx.Err()
			}
			log.WithFields(log.Fields{"chunk": ch.Pos, "tokens": tokSum, "lines": len(buf)}).Trace("chunk emitted")

			fresh = 0
			if overlapTokens <= 0 {
				buf = buf[:0]
				tokSum = 0
				return nil
			}
			// Keep a tail whose token sum is about overlapTokens.
			var keep []string
			remain := overlapTokens
			for j := len(buf) - 1; j >= 0 && remain > 0; j-- {
				keep = append([]string{buf[j]}, keep...)
				remain -= approxTokens(buf[j])
			}
			buf = keep
			tokSum = 0
			for _, s := range buf {
				tokSum += approxTokens(s)
			}
			return nil
		}

		for frag := range frags {
			if err := ctx.Err(); err != nil {
				return err
			}

			t := approxTokens(frag)
			buf = append(buf, frag)
			tokSum += t
			fresh += t

			if tokSum >= targetTokens {
				if err := flush(); err != nil {
					return err
				}
			}
		}

		return flush()
	})

	return out
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
