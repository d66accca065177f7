package bridge

import (
	"fmt"

	"github.com/context-assistant/three.js/internal/types"
)

// objectName is the global the bootstrap payload installs in the peer.
const objectName = "__contextAssistant"

// sceneBootstrap installs the scene capability into the three.js editor.
// The editor exposes itself as window.editor once its scripts have run.
const sceneBootstrap = `
() => {
	const w = window;
	if (w.__contextAssistant) return true;

	const round = (n) => Math.round(n * 1000) / 1000;
	const vec = (v) => (v ? [round(v.x), round(v.y), round(v.z)] : undefined);

	const describe = (o) => {
		const props = { visible: o.visible };
		if (o.position) props.position = vec(o.position);
		if (o.rotation) props.rotation = vec(o.rotation);
		if (o.scale) props.scale = vec(o.scale);
		if (o.geometry) props.geometry = o.geometry.type;
		if (o.material) {
			props.material = Array.isArray(o.material) ? o.material.map((m) => m.type) : o.material.type;
		}
		if (o.isLight) {
			props.intensity = o.intensity;
			if (o.color) props.color = '#' + o.color.getHexString();
		}
		return {
			id: o.uuid,
			name: o.name || '',
			type: o.type,
			properties: props,
			children: (o.children || []).map(describe),
		};
	};

	const countObjects = (o) => (o.children || []).reduce((n, c) => n + 1 + countObjects(c), 0);

	w.__contextAssistant = {
		isReady: () => !!(w.editor && w.editor.scene && w.editor.signals),
		listSceneObjects: () => (w.editor && w.editor.scene ? w.editor.scene.children.map(describe) : []),
		getEditorState: () => {
			const e = w.editor;
			if (!e || !e.scene) return null;
			const sel = e.selected;
			return {
				sceneName: e.scene.name || '',
				objectCount: countObjects(e.scene),
				selected: sel ? { id: sel.uuid, name: sel.name || '', type: sel.type } : null,
				camera: e.viewportCamera ? { type: e.viewportCamera.type, position: vec(e.viewportCamera.position) } : null,
			};
		},
	};
	return true;
}`

// pageBootstrap installs the page capability into documentation-style panes.
const pageBootstrap = `
() => {
	const w = window;
	if (w.__contextAssistant) return true;
	w.__contextAssistant = {
		isReady: () => document.readyState === 'complete',
		getPageContext: () => ({
			url: w.location.href,
			title: document.title,
			path: w.location.pathname,
		}),
	};
	return true;
}`

// reachableProbe is the cheapest possible evaluation.
const reachableProbe = `() => true`

// bootstrapFor returns the payload for a pane type.
func bootstrapFor(t types.PaneType) string {
	if t.SceneCapable() {
		return sceneBootstrap
	}
	return pageBootstrap
}

// callJS builds a function expression invoking a capability method.
func callJS(method string) string {
	return fmt.Sprintf("() => window.%s.%s()", objectName, method)
}
