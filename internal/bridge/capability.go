package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/context-assistant/three.js/internal/types"
)

// Capability is a typed handle onto the methods a ready peer exposes.
// Handles are only ever returned after the readiness handshake succeeded.
type Capability interface {
	PaneType() types.PaneType
	// Ready reports the handshake result; always true for returned handles.
	Ready() bool
	// IsReady re-queries the peer.
	IsReady(ctx context.Context) (bool, error)
}

// SceneCapability is exposed by scene-capable panes (the editor).
type SceneCapability interface {
	Capability
	ListSceneObjects(ctx context.Context) ([]types.SceneNode, error)
	// EditorState returns the raw editor state object, or nil when the editor
	// reports none.
	EditorState(ctx context.Context) (json.RawMessage, error)
}

// PageCapability is exposed by document panes.
type PageCapability interface {
	Capability
	PageContext(ctx context.Context) (types.PageContext, error)
}

type handle struct {
	paneType types.PaneType
	peer     Peer
	ready    bool
}

func (h *handle) PaneType() types.PaneType { return h.paneType }
func (h *handle) Ready() bool              { return h.ready }

func (h *handle) IsReady(ctx context.Context) (bool, error) {
	var ready bool
	if err := h.call(ctx, "isReady", &ready); err != nil {
		return false, err
	}
	return ready, nil
}

// queryReady is the raw readiness query used during the handshake.
func (h *handle) queryReady(ctx context.Context) (bool, error) {
	var ready bool
	err := h.peer.Eval(ctx, callJS("isReady"), &ready)
	return ready, err
}

// call invokes an installed method. A failure means the peer lost the
// bootstrap (navigation, reload, closed page) and is reported as unreachable.
func (h *handle) call(ctx context.Context, method string, out interface{}) error {
	if err := h.peer.Eval(ctx, callJS(method), out); err != nil {
		return &Error{Kind: PeerUnreachable, PaneType: h.paneType, Err: fmt.Errorf("%s: %w", method, err)}
	}
	return nil
}

type sceneHandle struct{ *handle }

func (h sceneHandle) ListSceneObjects(ctx context.Context) ([]types.SceneNode, error) {
	var nodes []types.SceneNode
	if err := h.call(ctx, "listSceneObjects", &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

func (h sceneHandle) EditorState(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := h.call(ctx, "getEditorState", &raw); err != nil {
		return nil, err
	}
	if string(raw) == "null" {
		return nil, nil
	}
	return raw, nil
}

type pageHandle struct{ *handle }

func (h pageHandle) PageContext(ctx context.Context) (types.PageContext, error) {
	var pc types.PageContext
	if err := h.call(ctx, "getPageContext", &pc); err != nil {
		return types.PageContext{}, err
	}
	return pc, nil
}

func newCapability(t types.PaneType, peer Peer) (*handle, Capability) {
	h := &handle{paneType: t, peer: peer}
	if t.SceneCapable() {
		return h, sceneHandle{h}
	}
	return h, pageHandle{h}
}
