package browser

import (
	"context"
	"time"
)

// CombineContext returns a context derived from primary that is also canceled
// when secondary is done. Values come from primary only, which is what lets a
// caller's deadline ride along with the chromedp tab context.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// valueOnlyContext inherits values but not cancellation or deadline.
type valueOnlyContext struct{ context.Context }

func (valueOnlyContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (valueOnlyContext) Done() <-chan struct{}       { return nil }
func (valueOnlyContext) Err() error                  { return nil }

// Detach returns a context that keeps ctx's values but outlives it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
