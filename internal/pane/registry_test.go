package pane

import (
	"testing"

	"github.com/context-assistant/three.js/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	visible bool
	shows   int
	hides   int
}

func (h *fakeHandle) Show() { h.visible = true; h.shows++ }
func (h *fakeHandle) Hide() { h.visible = false; h.hides++ }

func TestRegisterMarksActive(t *testing.T) {
	r := NewRegistry()
	editor, docs := &fakeHandle{}, &fakeHandle{}

	r.Register(types.PaneEditor, editor)
	active, ok := r.Active()
	require.True(t, ok)
	assert.Equal(t, types.PaneEditor, active)
	assert.True(t, editor.visible)

	r.Register(types.PaneDocs, docs)
	active, _ = r.Active()
	assert.Equal(t, types.PaneDocs, active)
	assert.False(t, editor.visible, "previously active pane must be hidden")
	assert.True(t, docs.visible)
}

func TestRegisterOverwritesHandle(t *testing.T) {
	r := NewRegistry()
	first, second := &fakeHandle{}, &fakeHandle{}

	r.Register(types.PaneEditor, first)
	r.Register(types.PaneEditor, second)

	p, ok := r.Get(types.PaneEditor)
	require.True(t, ok)
	assert.Same(t, second, p.Handle)
	assert.False(t, first.visible)
	assert.Len(t, r.List(), 1)
}

func TestActivate(t *testing.T) {
	r := NewRegistry()
	editor, docs, manual := &fakeHandle{}, &fakeHandle{}, &fakeHandle{}
	r.Register(types.PaneEditor, editor)
	r.Register(types.PaneDocs, docs)
	r.Register(types.PaneManual, manual)

	r.Activate(types.PaneEditor)
	assert.True(t, editor.visible)
	assert.False(t, docs.visible)
	assert.False(t, manual.visible)

	// Unregistered type is a no-op.
	r.Activate(types.PanePlayground)
	active, _ := r.Active()
	assert.Equal(t, types.PaneEditor, active)
	assert.True(t, editor.visible)
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	r.Register(types.PaneEditor, &fakeHandle{})
	r.Register(types.PaneDocs, &fakeHandle{})

	r.Remove(types.PaneEditor)
	assert.False(t, r.IsRegistered(types.PaneEditor))
	active, ok := r.Active()
	assert.True(t, ok, "removing an inactive pane keeps the active one")
	assert.Equal(t, types.PaneDocs, active)

	r.Remove(types.PaneDocs)
	_, ok = r.Active()
	assert.False(t, ok)

	// Removing twice is harmless.
	r.Remove(types.PaneDocs)
}

func TestClearAndLoaded(t *testing.T) {
	r := NewRegistry()
	r.Register(types.PaneEditor, &fakeHandle{})
	r.MarkLoaded(types.PaneEditor)

	p, _ := r.ActivePane()
	assert.True(t, p.Loaded)

	r.Clear()
	assert.Empty(t, r.List())
	_, ok := r.ActivePane()
	assert.False(t, ok)
}

func TestListSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(types.PaneManual, &fakeHandle{})
	r.Register(types.PaneDocs, &fakeHandle{})
	r.Register(types.PaneEditor, &fakeHandle{})

	var got []types.PaneType
	for _, p := range r.List() {
		got = append(got, p.Type)
	}
	assert.Equal(t, []types.PaneType{types.PaneDocs, types.PaneEditor, types.PaneManual}, got)
}
