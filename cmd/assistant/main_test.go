package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/context-assistant/three.js/internal/browser"
	"github.com/context-assistant/three.js/internal/completion"
	"github.com/context-assistant/three.js/internal/mention"
	"github.com/context-assistant/three.js/internal/types"
)

func setup(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger = zap.NewNop()
	workspace = t.TempDir()
	timeout = 10 * time.Second
	agentID = ""
	for _, k := range []string{"OLLAMA_HOST", "ASSISTANT_DB", "ASSISTANT_AGENTS", "ASSISTANT_PERSIST"} {
		t.Setenv(k, "")
	}
	return &bytes.Buffer{}
}

func command(out *bytes.Buffer) *cobra.Command {
	c := &cobra.Command{}
	c.SetOut(out)
	c.SetErr(out)
	return c
}

func TestJoinArgs(t *testing.T) {
	got := joinArgs([]string{"why", "is", "@Cube", "black?"})
	if got != "why is @Cube black?" {
		t.Fatalf("unexpected join: %q", got)
	}
}

func TestRenderTree(t *testing.T) {
	out := renderTree([]types.SceneNode{
		{Name: "Cube", Type: "Mesh", Children: []types.SceneNode{{Name: "Lamp", Type: "PointLight"}}},
		{Type: "Group"},
	})
	for _, want := range []string{"Cube", "Mesh", "Lamp", "PointLight", "(unnamed)", "└── "} {
		if !strings.Contains(out, want) {
			t.Errorf("tree missing %q:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "\n"); n != 3 {
		t.Errorf("expected 3 lines, got %d", n)
	}
}

func TestWriteFlat(t *testing.T) {
	var buf bytes.Buffer
	writeFlat(&buf, []mention.FlatNode{
		{Node: types.SceneNode{Name: "Cube", Type: "Mesh"}},
		{Node: types.SceneNode{Name: "Lamp", Type: "PointLight"}, Depth: 1},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "  @Lamp") {
		t.Fatalf("unexpected flat output: %q", buf.String())
	}
}

func TestFormatStats(t *testing.T) {
	if formatStats(nil) != "" {
		t.Error("nil stats should render nothing")
	}
	got := formatStats(&completion.Stats{PromptEvalCount: 3, EvalCount: 5, EvalDuration: int64(time.Second / 2)})
	if !strings.Contains(got, "8 tokens") || !strings.Contains(got, "10.0 tok/s") {
		t.Errorf("unexpected stats line: %q", got)
	}
}

func TestFormatSize(t *testing.T) {
	tests := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KiB",
		4_920_000_000:   "4.6 GiB",
		3 * 1024 * 1024: "3.0 MiB",
	}
	for in, want := range tests {
		if got := formatSize(in); got != want {
			t.Errorf("formatSize(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteSessions(t *testing.T) {
	var buf bytes.Buffer
	writeSessions(&buf, nil)
	if !strings.Contains(buf.String(), "no pane sessions") {
		t.Fatalf("expected empty notice, got %q", buf.String())
	}

	buf.Reset()
	writeSessions(&buf, []browser.Session{{PaneType: types.PaneDocs, Status: "detached", Title: "Object3D", URL: "https://threejs.org/docs/"}})
	if !strings.Contains(buf.String(), "Object3D") || !strings.Contains(buf.String(), "detached") {
		t.Fatalf("unexpected session line: %q", buf.String())
	}
}

func TestAgentsSeedsDefaults(t *testing.T) {
	out := setup(t)

	if err := runAgents(command(out), nil); err != nil {
		t.Fatalf("runAgents returned error: %v", err)
	}
	if !strings.Contains(out.String(), "threejs-helper") {
		t.Fatalf("expected seeded agent, got: %s", out.String())
	}
	if _, err := os.Stat(filepath.Join(workspace, ".assistant", "agents.yaml")); err != nil {
		t.Fatalf("agents file not seeded: %v", err)
	}
}

func TestHistoryEmpty(t *testing.T) {
	out := setup(t)

	if err := runHistory(command(out), nil); err != nil {
		t.Fatalf("runHistory returned error: %v", err)
	}
	if !strings.Contains(out.String(), "no messages") {
		t.Fatalf("expected empty history, got: %s", out.String())
	}
}

func TestInvalidConfig(t *testing.T) {
	out := setup(t)
	path := filepath.Join(workspace, ".assistant", "config.yaml")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("chat:\n  window_size: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	err := runHistory(command(out), nil)
	if err == nil || !strings.Contains(err.Error(), "window_size") {
		t.Fatalf("expected window_size validation error, got %v", err)
	}
}
