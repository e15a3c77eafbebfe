package context

import (
	"context"
	"testing"
	"time"
)

// WithTest wraps ctx with a deadline 1 second before the test's deadline,
// leaving time to clean up resources.
//
// The context is canceled on test cleanup.
func WithTest(ctx context.Context, t *testing.T) context.Context {
	var cancel func()
	if deadline, ok := t.Deadline(); ok {
		ctx, cancel = context.WithDeadline(ctx, deadline.Add(-time.Second))
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	t.Cleanup(cancel)
	return ctx
}
