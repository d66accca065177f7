package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"

	"github.com/context-assistant/three.js/internal/bridge"
	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/types"
)

const (
	contentReadyJS = `() => document.readyState !== 'loading'`
	titleJS        = `() => document.title`

	contentPollInterval = 100 * time.Millisecond
)

// Page is a pane hosted in a browser tab.
// It implements pane.Handle and bridge.Peer.
type Page struct {
	paneType types.PaneType
	page     *rod.Page
	onActive func(title string)

	mu      sync.Mutex
	visible bool
	closed  bool
}

func newPage(t types.PaneType, p *rod.Page, onActive func(string)) *Page {
	return &Page{paneType: t, page: p, onActive: onActive}
}

// PaneType returns the pane this page hosts.
func (p *Page) PaneType() types.PaneType { return p.paneType }

// Visible reports whether the page is the shown pane.
func (p *Page) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Closed reports whether the page was closed.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Show brings the tab to the foreground.
func (p *Page) Show() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.visible = true
	p.mu.Unlock()

	if _, err := p.page.Activate(); err != nil {
		logging.BrowserWarn("activate %s tab: %v", p.paneType, err)
		return
	}
	if p.onActive != nil {
		var title string
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := p.Eval(ctx, titleJS, &title); err != nil {
			logging.BrowserDebug("read %s title: %v", p.paneType, err)
		}
		p.onActive(title)
	}
}

// Hide marks the page as not shown. Tabs stay alive in the background so
// their peer state and injected capability survive.
func (p *Page) Hide() {
	p.mu.Lock()
	p.visible = false
	p.mu.Unlock()
}

// Close closes the tab. Later evaluations fail with bridge.ErrInaccessible.
func (p *Page) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.visible = false
	p.mu.Unlock()
	return p.page.Close()
}

// WaitContentReady polls document.readyState until the document is past loading.
func (p *Page) WaitContentReady(ctx context.Context) error {
	ticker := time.NewTicker(contentPollInterval)
	defer ticker.Stop()

	for {
		var ready bool
		err := p.Eval(ctx, contentReadyJS, &ready)
		switch {
		case errors.Is(err, bridge.ErrInaccessible):
			return err
		case err == nil && ready:
			return nil
		case err != nil:
			// Execution contexts are torn down during navigation; keep polling.
			logging.BrowserDebug("%s content probe: %v", p.paneType, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Eval evaluates a function expression in the page and decodes the JSON result.
func (p *Page) Eval(ctx context.Context, js string, out interface{}) error {
	if p.Closed() {
		return fmt.Errorf("%s page closed: %w", p.paneType, bridge.ErrInaccessible)
	}

	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isTargetGone(err) {
			return fmt.Errorf("%s: %v: %w", p.paneType, err, bridge.ErrInaccessible)
		}
		return fmt.Errorf("evaluate in %s: %w", p.paneType, err)
	}
	if out == nil || res == nil {
		return nil
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal %s result: %w", p.paneType, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s result: %w", p.paneType, err)
	}
	return nil
}

// isTargetGone reports whether err means the tab no longer exists.
func isTargetGone(err error) bool {
	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		msg := strings.ToLower(cdpErr.Message)
		return strings.Contains(msg, "no target") ||
			strings.Contains(msg, "target closed") ||
			strings.Contains(msg, "session with given id not found")
	}
	return false
}
