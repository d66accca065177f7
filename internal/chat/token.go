package chat

import (
	"context"
	"sync/atomic"
)

// CancelToken cancels one streaming session. Cancel is idempotent.
type CancelToken struct {
	parent    context.Context
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// NewCancelToken derives a token from parent.
func NewCancelToken(parent context.Context) *CancelToken {
	ctx, cancel := context.WithCancel(parent)
	return &CancelToken{parent: parent, ctx: ctx, cancel: cancel}
}

// Cancel marks the token cancelled and cancels its context.
func (t *CancelToken) Cancel() {
	t.cancelled.Store(true)
	t.cancel()
}

// Cancelled reports whether Cancel was called or the parent context ended.
func (t *CancelToken) Cancelled() bool {
	return t.cancelled.Load() || t.parent.Err() != nil
}

// Context is cancelled together with the token.
func (t *CancelToken) Context() context.Context { return t.ctx }

// release frees the context without marking the token cancelled.
func (t *CancelToken) release() { t.cancel() }
