package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/context-assistant/three.js/internal/agents"
	"github.com/context-assistant/three.js/internal/assistant"
	"github.com/context-assistant/three.js/internal/bridge"
	"github.com/context-assistant/three.js/internal/chat"
	"github.com/context-assistant/three.js/internal/completion"
	"github.com/context-assistant/three.js/internal/pane"
	"github.com/context-assistant/three.js/internal/types"
)

const methodPrefix = "() => window.__contextAssistant."

// editorPeer answers capability calls with a fixed scene.
type editorPeer struct{}

func (editorPeer) Show() {}
func (editorPeer) Hide() {}

func (editorPeer) WaitContentReady(ctx context.Context) error { return nil }

func (editorPeer) Eval(ctx context.Context, js string, out interface{}) error {
	if !strings.HasPrefix(js, methodPrefix) {
		return nil
	}
	var v interface{}
	switch strings.TrimSuffix(strings.TrimPrefix(js, methodPrefix), "()") {
	case "isReady":
		v = true
	case "listSceneObjects":
		v = []types.SceneNode{
			{ID: "1", Name: "Cube", Type: "Mesh"},
			{ID: "2", Name: "Sun", Type: "DirectionalLight"},
		}
	case "getEditorState":
		v = nil
	default:
		return fmt.Errorf("unexpected call %s", js)
	}
	b, _ := json.Marshal(v)
	return json.Unmarshal(b, out)
}

type fakeModels struct {
	models []completion.Model
	err    error
}

func (f fakeModels) ListModels(ctx context.Context) ([]completion.Model, error) {
	return f.models, f.err
}

type fixture struct {
	session *assistant.Session
	api     *httptest.Server
}

func newFixture(t *testing.T, models ModelLister, reply ...string) *fixture {
	t.Helper()
	if len(reply) == 0 {
		reply = []string{
			`{"message":{"content":"A red "},"done":false}`,
			`{"message":{"content":"cube."},"done":false}`,
			`{"done":true,"eval_count":3,"prompt_eval_count":7}`,
		}
	}
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, l := range reply {
			fmt.Fprintln(w, l)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(ollama.Close)
	client := completion.NewClient(ollama.URL, time.Second)
	t.Cleanup(client.Close)

	reg := pane.NewRegistry()
	reg.Register(types.PaneEditor, editorPeer{})
	sess := assistant.New(assistant.Deps{
		Registry: reg,
		Bridge: bridge.New(bridge.Options{
			PollInterval:   5 * time.Millisecond,
			ReadyTimeout:   200 * time.Millisecond,
			ContentTimeout: 200 * time.Millisecond,
		}),
		Transport: chat.ClientStreamer(client),
		Agents: agents.NewStatic(agents.File{
			Default: "helper",
			Agents:  []types.AgentProfile{{ID: "helper", Name: "Helper", Model: "llama3.1"}},
		}),
	})

	api := httptest.NewServer(New(sess, models).Handler())
	t.Cleanup(api.Close)
	return &fixture{session: sess, api: api}
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.api.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "idle", body["state"])
}

func TestModels(t *testing.T) {
	tests := []struct {
		name   string
		models ModelLister
		status int
	}{
		{"listed", fakeModels{models: []completion.Model{{Name: "llama3.1"}}}, http.StatusOK},
		{"backend down", fakeModels{err: fmt.Errorf("dial: %w", completion.ErrNetwork)}, http.StatusBadGateway},
		{"not configured", nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.models)
			resp, body := f.do(t, http.MethodGet, "/api/models", nil)
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.status == http.StatusOK {
				models := body["models"].([]interface{})
				require.Len(t, models, 1)
				assert.Equal(t, "llama3.1", models[0].(map[string]interface{})["name"])
			}
		})
	}
}

func TestPanes(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/panes", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["panes"], len(types.AllPaneTypes))

	resp, _ = f.do(t, http.MethodPost, "/api/panes/editor/activate", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/panes/docs/activate", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "no opener configured")

	resp, _ = f.do(t, http.MethodPost, "/api/panes/sidebar/activate", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/panes/manual/context", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestScene(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodGet, "/api/scene", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["nodes"], 2)

	resp, body = f.do(t, http.MethodGet, "/api/scene?q=light", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	nodes := body["nodes"].([]interface{})
	require.Len(t, nodes, 1)
	assert.Equal(t, "Sun", nodes[0].(map[string]interface{})["name"])

	resp, body = f.do(t, http.MethodGet, "/api/scene?q=nothing", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["nodes"])

	resp, body = f.do(t, http.MethodGet, "/api/editor/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, body["state"])
}

func TestMessages_SendListClear(t *testing.T) {
	f := newFixture(t, nil)

	resp, body := f.do(t, http.MethodPost, "/api/messages", map[string]interface{}{"content": "make @Cube red"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msg := body["message"].(map[string]interface{})
	assert.Equal(t, "A red cube.", msg["content"])
	assert.Equal(t, "idle", body["state"])
	assert.NotNil(t, body["stats"])

	resp, body = f.do(t, http.MethodGet, "/api/messages", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := body["messages"].([]interface{})
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].(map[string]interface{})["content"], "[Scene context]")

	resp, _ = f.do(t, http.MethodDelete, "/api/messages", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, f.session.Messages())
}

func TestMessages_Errors(t *testing.T) {
	f := newFixture(t, nil, `{"message":{"content":"cut"},"done":false}`)

	resp, _ := f.do(t, http.MethodPost, "/api/messages", map[string]interface{}{"content": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/api/messages", map[string]interface{}{"content": "hi", "agent_id": "ghost"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Empty(t, f.session.Messages(), "no mutation without an agent")

	resp, body := f.do(t, http.MethodPost, "/api/messages", map[string]interface{}{"content": "hi"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body["error"], chat.ErrStreamIncomplete.Error())
}

func TestAbort_Idle(t *testing.T) {
	f := newFixture(t, nil)
	resp, body := f.do(t, http.MethodPost, "/api/abort", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "idle", body["state"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{chat.ErrNoAgentSelected, http.StatusConflict},
		{assistant.ErrNoScenePane, http.StatusNotFound},
		{&bridge.Error{Kind: bridge.Timeout, PaneType: types.PaneEditor}, http.StatusGatewayTimeout},
		{&bridge.Error{Kind: bridge.PeerUnreachable, PaneType: types.PaneDocs}, http.StatusBadGateway},
		{chat.ErrStreamIncomplete, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestEventStream(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(f.api.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.Eventually(t, func() bool { return f.session.Events().Subscribers() == 1 },
		time.Second, 5*time.Millisecond)

	resp, _ := f.do(t, http.MethodPost, "/api/messages", map[string]interface{}{"content": "hello"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got []assistant.Event
	for {
		var ev assistant.Event
		require.NoError(t, wsjson.Read(ctx, conn, &ev))
		got = append(got, ev)
		if ev.Type == assistant.EventDone || ev.Type == assistant.EventError {
			break
		}
	}
	require.Len(t, got, 3)
	assert.Equal(t, "A red ", got[0].Text)
	assert.Equal(t, "cube.", got[1].Text)
	assert.Equal(t, assistant.EventDone, got[2].Type)
	require.NotNil(t, got[2].Stats)
	assert.Equal(t, 10, got[2].Stats.TotalTokens())
}
