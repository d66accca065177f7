// Package pane tracks the embedded content panes: which are registered, their
// handles, and which one is active. It is pure bookkeeping.
package pane

import (
	"sort"
	"sync"

	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/types"
)

// Handle is an opaque reference to an embedded peer that can be shown or hidden.
// Implementations may additionally satisfy bridge.Peer.
type Handle interface {
	Show()
	Hide()
}

// Pane is a registered pane.
type Pane struct {
	Type   types.PaneType
	Handle Handle
	Loaded bool
}

// Registry tracks panes by type. The zero value is not usable; use NewRegistry.
type Registry struct {
	mu     sync.RWMutex
	panes  map[types.PaneType]*Pane
	active types.PaneType
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{panes: make(map[types.PaneType]*Pane)}
}

// Register stores (or overwrites) the handle for t and makes t active.
// Other panes are hidden; the new handle is shown.
func (r *Registry) Register(t types.PaneType, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.panes[t]; ok && old.Handle != nil && old.Handle != h {
		old.Handle.Hide()
	}
	r.panes[t] = &Pane{Type: t, Handle: h}
	r.activateLocked(t)
	logging.PaneDebug("registered pane %s (active)", t)
}

// Activate hides every other pane and shows t. No-op when t is not registered.
func (r *Registry) Activate(t types.PaneType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.panes[t]; !ok {
		logging.PaneDebug("activate %s ignored: not registered", t)
		return
	}
	r.activateLocked(t)
}

func (r *Registry) activateLocked(t types.PaneType) {
	for pt, p := range r.panes {
		if pt != t && p.Handle != nil {
			p.Handle.Hide()
		}
	}
	if p := r.panes[t]; p.Handle != nil {
		p.Handle.Show()
	}
	r.active = t
}

// Active returns the active pane type.
func (r *Registry) Active() (types.PaneType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active, r.active != ""
}

// ActivePane returns a copy of the active pane.
func (r *Registry) ActivePane() (Pane, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == "" {
		return Pane{}, false
	}
	return *r.panes[r.active], true
}

// IsRegistered reports whether t has a handle.
func (r *Registry) IsRegistered(t types.PaneType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.panes[t]
	return ok
}

// Get returns a copy of the pane registered for t.
func (r *Registry) Get(t types.PaneType) (Pane, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.panes[t]
	if !ok {
		return Pane{}, false
	}
	return *p, true
}

// MarkLoaded records that t's peer finished loading.
func (r *Registry) MarkLoaded(t types.PaneType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.panes[t]; ok {
		p.Loaded = true
	}
}

// List returns all panes sorted by type name.
func (r *Registry) List() []Pane {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Pane, 0, len(r.panes))
	for _, p := range r.panes {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Remove detaches t. If t was active, no pane is active afterwards.
func (r *Registry) Remove(t types.PaneType) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.panes[t]
	if !ok {
		return
	}
	if p.Handle != nil {
		p.Handle.Hide()
	}
	delete(r.panes, t)
	if r.active == t {
		r.active = ""
	}
	logging.PaneDebug("removed pane %s", t)
}

// Clear removes every pane.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.panes {
		if p.Handle != nil {
			p.Handle.Hide()
		}
	}
	r.panes = make(map[types.PaneType]*Pane)
	r.active = ""
}
