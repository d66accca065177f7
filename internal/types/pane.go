package types

import (
	"fmt"
	"strings"
)

// PaneType identifies one of the embedded applications.
type PaneType string

const (
	PaneEditor     PaneType = "editor"     // three.js scene editor
	PanePlayground PaneType = "playground" // shader playground
	PaneDocs       PaneType = "docs"       // API documentation viewer
	PaneManual     PaneType = "manual"     // manual viewer
)

// AllPaneTypes lists pane types in their declared order.
var AllPaneTypes = []PaneType{PaneEditor, PanePlayground, PaneDocs, PaneManual}

// ParsePaneType parses a pane type name (case-insensitive).
func ParsePaneType(s string) (PaneType, error) {
	t := PaneType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllPaneTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown pane type %q (valid: %v)", s, AllPaneTypes)
}

// SceneCapable reports whether the pane exposes the scene capability set.
// Every other pane exposes the page capability set.
func (t PaneType) SceneCapable() bool {
	return t == PaneEditor
}

func (t PaneType) String() string { return string(t) }
