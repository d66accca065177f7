package mention

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/context-assistant/three.js/internal/types"
)

type staticScene struct {
	roots []types.SceneNode
	err   error
	calls int
}

func (s *staticScene) ListSceneObjects(ctx context.Context) ([]types.SceneNode, error) {
	s.calls++
	return s.roots, s.err
}

func node(name, typ string, children ...types.SceneNode) types.SceneNode {
	return types.SceneNode{ID: name, Name: name, Type: typ, Children: children}
}

// A[B[C]], D
func sampleTree() []types.SceneNode {
	return []types.SceneNode{
		node("A", "Group", node("B", "Group", node("C", "Mesh"))),
		node("D", "PointLight"),
	}
}

func TestListFlat_PreOrderWithDepth(t *testing.T) {
	flat, err := ListFlat(context.Background(), &staticScene{roots: sampleTree()})
	require.NoError(t, err)

	type entry struct {
		Name  string
		Depth int
	}
	var got []entry
	for _, f := range flat {
		got = append(got, entry{f.Node.Name, f.Depth})
	}
	want := []entry{{"A", 0}, {"B", 1}, {"C", 2}, {"D", 0}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("flatten mismatch (-want +got):\n%s", diff)
	}
}

func TestListFlat_PropagatesError(t *testing.T) {
	_, err := ListFlat(context.Background(), &staticScene{err: errors.New("closed")})
	assert.Error(t, err)
}

func TestFilter_KeepsAncestors(t *testing.T) {
	got := Filter(sampleTree(), "c")
	want := []types.SceneNode{node("A", "Group", node("B", "Group", node("C", "Mesh")))}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string // root names
	}{
		{"empty query returns tree", "", []string{"A", "D"}},
		{"whitespace query returns tree", "  ", []string{"A", "D"}},
		{"matches type case-insensitively", "pointlight", []string{"D"}},
		{"matches descendants", "mesh", []string{"A"}},
		{"no match", "camera", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var roots []string
			for _, n := range Filter(sampleTree(), tt.query) {
				roots = append(roots, n.Name)
			}
			assert.Equal(t, tt.want, roots)
		})
	}
}

func TestFilter_PrunesNonMatchingSiblings(t *testing.T) {
	tree := []types.SceneNode{node("Root", "Scene", node("Box", "Mesh"), node("Sphere", "Mesh"), node("Lamp", "SpotLight"))}
	got := Filter(tree, "light")
	require.Len(t, got, 1)
	require.Len(t, got[0].Children, 1)
	assert.Equal(t, "Lamp", got[0].Children[0].Name)
}

func TestSearch(t *testing.T) {
	src := &staticScene{roots: sampleTree()}
	got, err := Search(context.Background(), src, "B")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Name)
	assert.Equal(t, 1, src.calls)
}

func TestExtractMentions(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"make @Cube red and @Cube.001 blue", []string{"Cube", "Cube.001"}},
		{"@a @b @a", []string{"a", "b"}},
		{"no mentions here", []string{}},
		{"email me@x.com", []string{"x.com"}},
		{"@my-light!", []string{"my-light"}},
		{"make @Cube.", []string{"Cube"}},
		{"see @Cube.001.", []string{"Cube.001"}},
		{"@Cube... and @Sun.", []string{"Cube", "Sun"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ExtractMentions(tt.text), tt.text)
	}
}

func TestResolveMentionAtSentenceEnd(t *testing.T) {
	flat := Flatten([]types.SceneNode{{Name: "Cube", Type: "Mesh"}})
	got := Resolve(flat, ExtractMentions("Please make @Cube."))
	require.Len(t, got, 1)
	assert.Equal(t, "Mesh", got[0].Type)
	assert.Empty(t, got[0].Suggestion)
}

func TestResolveMentions(t *testing.T) {
	tree := []types.SceneNode{
		{Name: "Cube", Type: "Mesh", Properties: map[string]interface{}{"visible": true}},
		{Name: "cube", Type: "Group"},
		{Name: "Sun", Type: "DirectionalLight"},
	}
	src := &staticScene{roots: tree}

	got := ResolveMentions(context.Background(), src, "@Cube @sun @Cub @Nothing @Cube")
	want := []Descriptor{
		{Name: "Cube", Type: "Mesh", Properties: map[string]interface{}{"visible": true}},
		{Name: "Sun", Type: "DirectionalLight"},
		{Name: "Cub", Type: UnknownType, Suggestion: "Cube"},
		{Name: "Nothing", Type: UnknownType},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("descriptor mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, src.calls, "scene read once per resolution")
}

func TestResolveMentions_ListingFailureDegrades(t *testing.T) {
	got := ResolveMentions(context.Background(), &staticScene{err: errors.New("peer gone")}, "@Cube")
	require.Len(t, got, 1)
	assert.Equal(t, UnknownType, got[0].Type)
	assert.False(t, got[0].Resolved())
}

func TestResolveMentions_NilSource(t *testing.T) {
	got := ResolveMentions(context.Background(), nil, "@Cube")
	require.Len(t, got, 1)
	assert.Equal(t, Descriptor{Name: "Cube", Type: UnknownType}, got[0])
}

func TestResolveMentions_NoMentionsSkipsRead(t *testing.T) {
	src := &staticScene{roots: sampleTree()}
	assert.Nil(t, ResolveMentions(context.Background(), src, "plain text"))
	assert.Equal(t, 0, src.calls)
}
