// Package mention flattens, filters and resolves scene-object mentions.
//
// Scene data comes from a SceneLister, which the editor's capability handle
// satisfies. Snapshots are read fresh on every call.
package mention

import (
	"context"
	"regexp"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/types"
)

// UnknownType is the descriptor type of a mention that matched no object.
const UnknownType = "Unknown"

// maxSuggestionDistance bounds edit distance for "did you mean" suggestions.
const maxSuggestionDistance = 2

// SceneLister returns the current scene roots.
type SceneLister interface {
	ListSceneObjects(ctx context.Context) ([]types.SceneNode, error)
}

// FlatNode is a scene node with its depth in the tree. Roots have depth 0.
type FlatNode struct {
	Node  types.SceneNode
	Depth int
}

// Descriptor is a resolved mention.
type Descriptor struct {
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	// Suggestion is the closest existing name for an unresolved mention.
	Suggestion string `json:"suggestion,omitempty"`
}

// Resolved reports whether the mention matched a scene object.
func (d Descriptor) Resolved() bool { return d.Type != UnknownType }

// A dot belongs to the name only when name characters follow it.
var mentionPattern = regexp.MustCompile(`@[\w-]+(?:\.[\w-]+)*`)

// ===== FLATTEN =====

// Flatten returns nodes in pre-order with depth.
func Flatten(roots []types.SceneNode) []FlatNode {
	var out []FlatNode
	var walk func(nodes []types.SceneNode, depth int)
	walk = func(nodes []types.SceneNode, depth int) {
		for _, n := range nodes {
			out = append(out, FlatNode{Node: n, Depth: depth})
			walk(n.Children, depth+1)
		}
	}
	walk(roots, 0)
	return out
}

// ListFlat reads the scene and flattens it.
func ListFlat(ctx context.Context, src SceneLister) ([]FlatNode, error) {
	roots, err := src.ListSceneObjects(ctx)
	if err != nil {
		return nil, err
	}
	return Flatten(roots), nil
}

// ===== FILTER =====

// Filter keeps every node whose name or type contains query (case-insensitive),
// plus the ancestors of such nodes. An empty query returns roots unchanged.
func Filter(roots []types.SceneNode, query string) []types.SceneNode {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return roots
	}

	var out []types.SceneNode
	for _, n := range roots {
		if kept, ok := filterNode(n, q); ok {
			out = append(out, kept)
		}
	}
	return out
}

func filterNode(n types.SceneNode, q string) (types.SceneNode, bool) {
	var children []types.SceneNode
	for _, c := range n.Children {
		if kept, ok := filterNode(c, q); ok {
			children = append(children, kept)
		}
	}

	self := strings.Contains(strings.ToLower(n.Name), q) || strings.Contains(strings.ToLower(n.Type), q)
	if !self && len(children) == 0 {
		return types.SceneNode{}, false
	}
	n.Children = children
	return n, true
}

// Search reads the scene and filters it.
func Search(ctx context.Context, src SceneLister, query string) ([]types.SceneNode, error) {
	roots, err := src.ListSceneObjects(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(roots, query), nil
}

// ===== MENTIONS =====

// ExtractMentions returns the @-mentioned names in order of first appearance,
// without the leading '@' and without duplicates.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllString(text, -1)
	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		name := m[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// ResolveMentions resolves every mention in text against the scene.
// It never fails: when the scene cannot be read, every mention is Unknown.
func ResolveMentions(ctx context.Context, src SceneLister, text string) []Descriptor {
	names := ExtractMentions(text)
	if len(names) == 0 {
		return nil
	}

	var flat []FlatNode
	if src != nil {
		var err error
		flat, err = ListFlat(ctx, src)
		if err != nil {
			logging.SceneWarn("scene listing failed, mentions unresolved: %v", err)
			flat = nil
		}
	}
	return Resolve(flat, names)
}

// Resolve looks up names in a flattened scene: exact name first, then
// case-insensitive. The first match in pre-order wins.
func Resolve(flat []FlatNode, names []string) []Descriptor {
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		if n, ok := lookup(flat, name); ok {
			out = append(out, Descriptor{Name: n.Name, Type: n.Type, Properties: n.Properties})
			continue
		}
		d := Descriptor{Name: name, Type: UnknownType, Suggestion: suggest(flat, name)}
		logging.SceneDebug("mention @%s unresolved (suggestion %q)", name, d.Suggestion)
		out = append(out, d)
	}
	return out
}

func lookup(flat []FlatNode, name string) (types.SceneNode, bool) {
	for _, f := range flat {
		if f.Node.Name == name {
			return f.Node, true
		}
	}
	for _, f := range flat {
		if strings.EqualFold(f.Node.Name, name) {
			return f.Node, true
		}
	}
	return types.SceneNode{}, false
}

func suggest(flat []FlatNode, name string) string {
	best, bestDist := "", maxSuggestionDistance+1
	lower := strings.ToLower(name)
	for _, f := range flat {
		if f.Node.Name == "" {
			continue
		}
		d := levenshtein.ComputeDistance(lower, strings.ToLower(f.Node.Name))
		if d < bestDist {
			best, bestDist = f.Node.Name, d
		}
	}
	return best
}
