package canvasqueue

import (
	"context"
	"time"
)

// tokenBucket caps how often wait returns to ratePerSecond calls per
// second. It backs the ≤100 dispatches/s cap of spec.md §5.
//
// No pack example imports golang.org/x/time/rate directly — it only
// appears as a transitive dependency pulled in by a generated API
// client, with nothing grounding it as a chosen library — so this
// stays on time.Ticker and a buffered channel.
type tokenBucket struct {
	tokens chan struct{}
}

func newTokenBucket(ctx context.Context, ratePerSecond int) *tokenBucket {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	tb := &tokenBucket{tokens: make(chan struct{}, ratePerSecond)}
	for i := 0; i < ratePerSecond; i++ {
		tb.tokens <- struct{}{}
	}

	interval := time.Second / time.Duration(ratePerSecond)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case tb.tokens <- struct{}{}:
				default:
				}
			}
		}
	}()

	return tb
}

// wait blocks until a token is available or ctx is done.
func (tb *tokenBucket) wait(ctx context.Context) error {
	select {
	case <-tb.tokens:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
