// Package bridge establishes typed capability handles inside embedded pane peers.
//
// A peer loads asynchronously and can only be observed through evaluation, so
// acquisition is a handshake: wait for content, inject a bootstrap payload that
// installs a named capability object, then poll its isReady() on a fixed
// interval under a hard timeout. Ready handles are cached one per pane type and
// the payload is injected at most once per type for the bridge's lifetime.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/pane"
	"github.com/context-assistant/three.js/internal/types"
)

// Peer is the evaluation surface of an embedded peer context.
// Pane handles that can be bridged implement it alongside pane.Handle.
type Peer interface {
	// WaitContentReady blocks until the peer's document is past loading.
	// It returns immediately when that already happened and fails with
	// ErrInaccessible when the peer cannot be reached.
	WaitContentReady(ctx context.Context) error

	// Eval evaluates a JavaScript function expression in the peer and decodes
	// its JSON result into out. out may be nil.
	Eval(ctx context.Context, js string, out interface{}) error
}

// Options bound the handshake.
type Options struct {
	PollInterval   time.Duration
	ReadyTimeout   time.Duration
	ContentTimeout time.Duration

	// AssumeLoadedWhenReachable proceeds when the content wait times out but
	// the peer still answers evaluations. Off by default: a reachable peer is
	// not necessarily an initialized one.
	AssumeLoadedWhenReachable bool
}

// DefaultOptions returns the standard handshake bounds.
func DefaultOptions() Options {
	return Options{
		PollInterval:   100 * time.Millisecond,
		ReadyTimeout:   5 * time.Second,
		ContentTimeout: 10 * time.Second,
	}
}

// Bridge acquires and caches capability handles.
type Bridge struct {
	opts Options

	mu         sync.RWMutex
	cache      map[types.PaneType]Capability
	injections map[types.PaneType]int

	group singleflight.Group
}

// New creates a bridge. Zero option fields take their defaults.
func New(opts Options) *Bridge {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = def.ReadyTimeout
	}
	if opts.ContentTimeout <= 0 {
		opts.ContentTimeout = def.ContentTimeout
	}
	return &Bridge{
		opts:       opts,
		cache:      make(map[types.PaneType]Capability),
		injections: make(map[types.PaneType]int),
	}
}

// Cached returns the ready handle for t, if one was acquired.
func (b *Bridge) Cached(t types.PaneType) (Capability, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.cache[t]
	return c, ok
}

// Injections reports how many times the payload was injected for t.
func (b *Bridge) Injections(t types.PaneType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.injections[t]
}

// Acquire returns a ready capability handle for p.
// Concurrent acquisitions for the same pane type share one handshake.
func (b *Bridge) Acquire(ctx context.Context, p pane.Pane) (Capability, error) {
	if c, ok := b.Cached(p.Type); ok {
		logging.BridgeDebug("acquire %s: cached", p.Type)
		return c, nil
	}

	v, err, shared := b.group.Do(string(p.Type), func() (interface{}, error) {
		// A concurrent flight may have finished between the cache check and Do.
		if c, ok := b.Cached(p.Type); ok {
			return c, nil
		}
		return b.handshake(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logging.BridgeDebug("acquire %s: joined in-flight handshake", p.Type)
	}
	return v.(Capability), nil
}

func (b *Bridge) handshake(ctx context.Context, p pane.Pane) (Capability, error) {
	timer := logging.StartTimer(logging.CategoryBridge, "handshake "+string(p.Type))
	defer timer.Stop()

	peer, ok := p.Handle.(Peer)
	if !ok || p.Handle == nil {
		return nil, &Error{Kind: PeerUnreachable, PaneType: p.Type, Err: errors.New("pane handle does not expose a peer context")}
	}

	if err := b.waitContent(ctx, p.Type, peer); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.injections[p.Type]++
	b.mu.Unlock()

	if err := peer.Eval(ctx, bootstrapFor(p.Type), nil); err != nil {
		if errors.Is(err, ErrInaccessible) {
			return nil, &Error{Kind: PeerUnreachable, PaneType: p.Type, Err: err}
		}
		return nil, &Error{Kind: InjectionFailed, PaneType: p.Type, Err: err}
	}
	logging.BridgeDebug("injected %s bootstrap into %s", objectName, p.Type)

	h, capability := newCapability(p.Type, peer)
	if err := b.pollReady(ctx, h); err != nil {
		return nil, err
	}
	h.ready = true

	b.mu.Lock()
	b.cache[p.Type] = capability
	b.mu.Unlock()

	logging.Bridge("capability ready for %s", p.Type)
	return capability, nil
}

func (b *Bridge) waitContent(ctx context.Context, t types.PaneType, peer Peer) error {
	waitCtx, cancel := context.WithTimeout(ctx, b.opts.ContentTimeout)
	defer cancel()

	err := peer.WaitContentReady(waitCtx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInaccessible):
		return &Error{Kind: PeerUnreachable, PaneType: t, Err: err}
	case ctx.Err() != nil:
		return &Error{Kind: Timeout, PaneType: t, Err: ctx.Err()}
	case errors.Is(err, context.DeadlineExceeded) && b.opts.AssumeLoadedWhenReachable:
		if evalErr := peer.Eval(ctx, reachableProbe, nil); evalErr == nil {
			logging.BridgeWarn("content-ready wait for %s timed out; peer reachable, assuming loaded", t)
			return nil
		}
		return &Error{Kind: Timeout, PaneType: t, Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: Timeout, PaneType: t, Err: fmt.Errorf("content not ready after %v", b.opts.ContentTimeout)}
	default:
		return &Error{Kind: PeerUnreachable, PaneType: t, Err: err}
	}
}

func (b *Bridge) pollReady(ctx context.Context, h *handle) error {
	pollCtx, cancel := context.WithTimeout(ctx, b.opts.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(b.opts.PollInterval)
	defer ticker.Stop()

	attempts := 0
	for {
		attempts++
		ready, err := h.queryReady(pollCtx)
		if err == nil && ready {
			logging.BridgeDebug("%s ready after %d polls", h.paneType, attempts)
			return nil
		}
		if err != nil {
			if errors.Is(err, ErrInaccessible) {
				return &Error{Kind: PeerUnreachable, PaneType: h.paneType, Err: err}
			}
			logging.BridgeDebug("%s isReady poll %d: %v", h.paneType, attempts, err)
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return &Error{Kind: Timeout, PaneType: h.paneType, Err: ctx.Err()}
			}
			logging.BridgeWarn("%s not ready after %v (%d polls)", h.paneType, b.opts.ReadyTimeout, attempts)
			return &Error{Kind: Timeout, PaneType: h.paneType, Err: fmt.Errorf("not ready after %v", b.opts.ReadyTimeout)}
		case <-ticker.C:
		}
	}
}
