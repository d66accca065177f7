package agents

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/context-assistant/three.js/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sampleYAML = `default: helper
agents:
  - id: helper
    name: Helper
    model: llama3
    avatar: "🤖"
    system_prompt: Keep answers about three.js.
    sampling:
      temperature: 0.4
      top_k: 20
      num_ctx: 4096
    personality:
      curious: 80
      formal: 30
  - id: poet
    name: Poet
    model: mistral
  - name: nameless
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestOpen_ParsesProfiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	writeFile(t, path, sampleYAML)

	s, err := Open(path)
	require.NoError(t, err)

	def, ok := s.Default()
	require.True(t, ok)
	assert.Equal(t, "helper", def.ID)
	assert.Equal(t, 0.4, def.Sampling.Temperature)
	assert.Equal(t, 4096, def.Sampling.NumCtx)
	assert.Equal(t, 80, def.Personality["curious"])

	ids := []string{}
	for _, a := range s.List() {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"helper", "poet"}, ids, "agents without id are skipped")
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "agents.yaml"))
	require.NoError(t, err)
	_, ok := s.Default()
	assert.False(t, ok)
	assert.Empty(t, s.List())
}

func TestSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agents.yaml")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Seed())

	def, ok := s.Default()
	require.True(t, ok)
	assert.Equal(t, "threejs-helper", def.ID)

	// Seeding never overwrites an existing file.
	writeFile(t, path, sampleYAML)
	require.NoError(t, s.Seed())
	require.NoError(t, s.Reload())
	def, _ = s.Default()
	assert.Equal(t, "helper", def.ID)
}

func TestReload_ParseErrorKeepsPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	writeFile(t, path, sampleYAML)
	s, err := Open(path)
	require.NoError(t, err)

	writeFile(t, path, "agents: [this is: not: valid")
	assert.Error(t, s.Reload())

	_, ok := s.Get("poet")
	assert.True(t, ok)
}

func TestSetDefault(t *testing.T) {
	s := NewStatic(File{Default: "a", Agents: []types.AgentProfile{{ID: "a"}, {ID: "b"}}})
	s.SetDefault("b")
	def, ok := s.Default()
	require.True(t, ok)
	assert.Equal(t, "b", def.ID)

	s.SetDefault("missing")
	_, ok = s.Default()
	assert.False(t, ok)

	s.SetDefault("")
	def, _ = s.Default()
	assert.Equal(t, "a", def.ID)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	writeFile(t, path, sampleYAML)
	s, err := Open(path)
	require.NoError(t, err)

	w, err := NewWatcher(s)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	writeFile(t, path, "default: poet\nagents:\n  - id: poet\n    model: mistral\n")

	require.Eventually(t, func() bool {
		def, ok := s.Default()
		return ok && def.ID == "poet"
	}, 3*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, w.Reloads(), 1)
	_, ok := s.Get("helper")
	assert.False(t, ok)
}
