package types

// SceneNode is one object in a scene graph snapshot.
// Snapshots are read-only; they are not kept in sync with the live scene.
type SceneNode struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Children   []SceneNode            `json:"children,omitempty"`
}

// PageContext describes the document currently shown in a page-capable pane.
type PageContext struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Path  string `json:"path"`
}
