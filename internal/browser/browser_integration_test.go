//go:build integration

package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/context-assistant/three.js/internal/bridge"
	"github.com/context-assistant/three.js/internal/browser"
	"github.com/context-assistant/three.js/internal/pane"
	"github.com/context-assistant/three.js/internal/types"
)

// editorStub mimics the globals the three.js editor exposes once booted.
const editorStub = `<html><head><title>three.js editor</title></head><body>
<script>
setTimeout(() => {
	const obj = (uuid, name, type, children) => ({
		uuid, name, type, visible: true,
		position: {x: 0, y: 1, z: 0}, children: children || [],
	});
	window.editor = {
		signals: {},
		scene: obj('root', 'Scene', 'Scene', [
			obj('a', 'Group', 'Group', [obj('b', 'Box', 'Mesh')]),
			obj('c', 'Sun', 'DirectionalLight'),
		]),
	};
}, 200);
</script></body></html>`

func startManager(t *testing.T) (*browser.SessionManager, context.Context) {
	t.Helper()
	cfg := browser.DefaultConfig()
	cfg.NavigationTimeout = 10 * time.Second
	cfg.SessionStore = t.TempDir() + "/sessions.json"

	sm := browser.NewSessionManager(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(func() {
		cancel()
		if err := sm.Shutdown(context.Background()); err != nil {
			t.Logf("Shutdown error: %v", err)
		}
	})
	require.NoError(t, sm.Start(ctx), "Failed to start browser")
	return sm, ctx
}

func TestSessionManager_EditorHandshake_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprintln(w, editorStub)
	}))
	defer ts.Close()

	sm, ctx := startManager(t)

	page, err := sm.OpenPane(ctx, types.PaneEditor, ts.URL)
	require.NoError(t, err)

	reg := pane.NewRegistry()
	reg.Register(types.PaneEditor, page)
	require.True(t, page.Visible())

	p, _ := reg.Get(types.PaneEditor)
	b := bridge.New(bridge.Options{PollInterval: 50 * time.Millisecond, ReadyTimeout: 5 * time.Second})
	c, err := b.Acquire(ctx, p)
	require.NoError(t, err)

	nodes, err := c.(bridge.SceneCapability).ListSceneObjects(ctx)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.Equal(t, "Group", nodes[0].Name)
	require.Equal(t, "Box", nodes[0].Children[0].Name)

	// Re-opening returns the same tab.
	again, err := sm.OpenPane(ctx, types.PaneEditor, ts.URL)
	require.NoError(t, err)
	require.Same(t, page, again)

	s, ok := sm.GetSession(types.PaneEditor)
	require.True(t, ok)
	require.Equal(t, "active", s.Status)
}

func TestSessionManager_ClosedPaneIsUnreachable_Integration(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "<html><head><title>Docs</title></head><body>docs</body></html>")
	}))
	defer ts.Close()

	sm, ctx := startManager(t)

	page, err := sm.OpenPane(ctx, types.PaneDocs, ts.URL)
	require.NoError(t, err)

	c, err := bridge.New(bridge.DefaultOptions()).Acquire(ctx, pane.Pane{Type: types.PaneDocs, Handle: page})
	require.NoError(t, err)
	pc, err := c.(bridge.PageCapability).PageContext(ctx)
	require.NoError(t, err)
	require.Equal(t, "Docs", pc.Title)

	require.NoError(t, sm.ClosePane(types.PaneDocs))
	_, err = bridge.New(bridge.DefaultOptions()).Acquire(ctx, pane.Pane{Type: types.PaneDocs, Handle: page})
	require.ErrorIs(t, err, bridge.ErrPeerUnreachable)
}
