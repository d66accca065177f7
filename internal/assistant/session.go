// Package assistant holds the session object that ties panes, the capability
// bridge, mention resolution and the conversation engine together.
//
// The active pane and the agent selection live here instead of in globals, so
// every operation takes the session explicitly.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/context-assistant/three.js/internal/bridge"
	"github.com/context-assistant/three.js/internal/chat"
	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/mention"
	"github.com/context-assistant/three.js/internal/pane"
	"github.com/context-assistant/three.js/internal/types"
)

var (
	// ErrNoScenePane: no registered pane exposes the scene capability.
	ErrNoScenePane = errors.New("no scene-capable pane is open")
	// ErrPaneNotOpen: the pane type has no registered handle.
	ErrPaneNotOpen = errors.New("pane is not open")
)

// PaneOpener creates the handle for a pane type on first request.
type PaneOpener func(ctx context.Context, t types.PaneType) (pane.Handle, error)

// Deps wires a session.
type Deps struct {
	Registry *pane.Registry
	Bridge   *bridge.Bridge
	Opener   PaneOpener // optional; without it only pre-registered panes work

	Transport  chat.Streamer
	Agents     chat.AgentSource
	Store      chat.WindowStore // optional
	WindowSize int
	Persist    bool
}

// PaneInfo summarizes one pane for listings.
type PaneInfo struct {
	Type       types.PaneType `json:"type"`
	Registered bool           `json:"registered"`
	Active     bool           `json:"active"`
	Loaded     bool           `json:"loaded"`
	Ready      bool           `json:"ready"`
}

// Session is one assistant instance.
type Session struct {
	registry *pane.Registry
	bridge   *bridge.Bridge
	opener   PaneOpener
	engine   *chat.Engine
	events   *Broadcaster
}

// New creates a session. The session is the engine's enricher.
func New(d Deps) *Session {
	if d.Registry == nil {
		d.Registry = pane.NewRegistry()
	}
	if d.Bridge == nil {
		d.Bridge = bridge.New(bridge.DefaultOptions())
	}
	s := &Session{
		registry: d.Registry,
		bridge:   d.Bridge,
		opener:   d.Opener,
		events:   NewBroadcaster(),
	}
	s.engine = chat.New(chat.Config{
		Transport:  d.Transport,
		Agents:     d.Agents,
		Store:      d.Store,
		Enricher:   s,
		WindowSize: d.WindowSize,
		Persist:    d.Persist,
	})
	return s
}

// Engine returns the conversation engine.
func (s *Session) Engine() *chat.Engine { return s.engine }

// Events returns the event broadcaster.
func (s *Session) Events() *Broadcaster { return s.events }

// Registry returns the pane registry.
func (s *Session) Registry() *pane.Registry { return s.registry }

// ===== PANES =====

// Activate shows pane t, opening it first if needed.
func (s *Session) Activate(ctx context.Context, t types.PaneType) error {
	if s.registry.IsRegistered(t) {
		s.registry.Activate(t)
		return nil
	}
	if s.opener == nil {
		return fmt.Errorf("%w: %s", ErrPaneNotOpen, t)
	}
	h, err := s.opener(ctx, t)
	if err != nil {
		return fmt.Errorf("open pane %s: %w", t, err)
	}
	s.registry.Register(t, h)
	return nil
}

// Panes lists every pane type with its state.
func (s *Session) Panes() []PaneInfo {
	active, _ := s.registry.Active()
	out := make([]PaneInfo, 0, len(types.AllPaneTypes))
	for _, t := range types.AllPaneTypes {
		info := PaneInfo{Type: t, Active: t == active}
		if p, ok := s.registry.Get(t); ok {
			info.Registered = true
			info.Loaded = p.Loaded
		}
		_, info.Ready = s.bridge.Cached(t)
		out = append(out, info)
	}
	return out
}

// capability acquires the handle for a registered pane.
func (s *Session) capability(ctx context.Context, t types.PaneType) (bridge.Capability, error) {
	p, ok := s.registry.Get(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPaneNotOpen, t)
	}
	c, err := s.bridge.Acquire(ctx, p)
	if err != nil {
		return nil, err
	}
	s.registry.MarkLoaded(t)
	return c, nil
}

// sceneCapability returns the scene handle of the active pane, falling back
// to the editor pane when the active pane is not scene-capable.
func (s *Session) sceneCapability(ctx context.Context) (bridge.SceneCapability, error) {
	t, ok := s.registry.Active()
	if !ok || !t.SceneCapable() {
		t = types.PaneEditor
	}
	if !s.registry.IsRegistered(t) {
		return nil, ErrNoScenePane
	}
	c, err := s.capability(ctx, t)
	if err != nil {
		return nil, err
	}
	sc, ok := c.(bridge.SceneCapability)
	if !ok {
		return nil, ErrNoScenePane
	}
	return sc, nil
}

// Scene returns the scene tree filtered by query (empty query = whole tree).
func (s *Session) Scene(ctx context.Context, query string) ([]types.SceneNode, error) {
	sc, err := s.sceneCapability(ctx)
	if err != nil {
		return nil, err
	}
	return mention.Search(ctx, sc, query)
}

// SceneFlat returns the flattened scene.
func (s *Session) SceneFlat(ctx context.Context) ([]mention.FlatNode, error) {
	sc, err := s.sceneCapability(ctx)
	if err != nil {
		return nil, err
	}
	return mention.ListFlat(ctx, sc)
}

// EditorState returns the editor's state object, or nil.
func (s *Session) EditorState(ctx context.Context) (json.RawMessage, error) {
	sc, err := s.sceneCapability(ctx)
	if err != nil {
		return nil, err
	}
	return sc.EditorState(ctx)
}

// PageContext returns the document shown in page pane t.
func (s *Session) PageContext(ctx context.Context, t types.PaneType) (types.PageContext, error) {
	c, err := s.capability(ctx, t)
	if err != nil {
		return types.PageContext{}, err
	}
	pc, ok := c.(bridge.PageCapability)
	if !ok {
		return types.PageContext{}, fmt.Errorf("pane %s has no page capability", t)
	}
	return pc.PageContext(ctx)
}

// ===== CONVERSATION =====

// Enrich resolves mentions against the scene. Bridge failures become warning
// events and every mention degrades to Unknown.
func (s *Session) Enrich(ctx context.Context, content string, hints []string) []mention.Descriptor {
	names := hints
	if len(names) == 0 {
		names = mention.ExtractMentions(content)
	}
	if len(names) == 0 {
		return nil
	}

	sc, err := s.sceneCapability(ctx)
	if err != nil {
		s.warn("scene context unavailable: %v", err)
		return mention.Resolve(nil, names)
	}
	flat, err := mention.ListFlat(ctx, sc)
	if err != nil {
		s.warn("scene listing failed: %v", err)
		return mention.Resolve(nil, names)
	}
	return mention.Resolve(flat, names)
}

// SendRequest is one user turn from an outer surface.
type SendRequest struct {
	Content  string
	AgentID  string
	Mentions []string
	// OnDelta is called in addition to the delta event.
	OnDelta func(string)
}

// Send runs one turn and publishes delta, done and error events.
func (s *Session) Send(ctx context.Context, req SendRequest) error {
	err := s.engine.SendMessage(ctx, chat.SendRequest{
		Content:      req.Content,
		AgentID:      req.AgentID,
		MentionHints: req.Mentions,
		OnDelta: func(d string) {
			s.events.Publish(Event{Type: EventDelta, Text: d})
			if req.OnDelta != nil {
				req.OnDelta(d)
			}
		},
	})

	var last int64
	if msgs := s.engine.Messages(); len(msgs) > 0 {
		last = msgs[len(msgs)-1].ID
	}
	if err != nil {
		s.events.Publish(Event{Type: EventError, Text: err.Error(), MessageID: last})
		return err
	}
	s.events.Publish(Event{Type: EventDone, MessageID: last, Stats: s.engine.LastStats()})
	return nil
}

// Abort cancels the live generation.
func (s *Session) Abort() { s.engine.Abort() }

// Messages returns the conversation log.
func (s *Session) Messages() []types.Message { return s.engine.Messages() }

// Clear empties the conversation.
func (s *Session) Clear(ctx context.Context) { s.engine.Clear(ctx) }

// Restore loads the persisted window.
func (s *Session) Restore(ctx context.Context) error { return s.engine.Restore(ctx) }

func (s *Session) warn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	logging.BridgeWarn("%s", msg)
	s.events.Publish(Event{Type: EventWarning, Text: msg})
}
