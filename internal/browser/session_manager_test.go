package browser

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/cdp"

	"github.com/context-assistant/three.js/internal/types"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	if cfg.GetViewportWidth() != 1440 || cfg.GetViewportHeight() != 900 {
		t.Errorf("unexpected viewport fallback %dx%d", cfg.GetViewportWidth(), cfg.GetViewportHeight())
	}
	if cfg.GetNavigationTimeout() != 30*time.Second {
		t.Errorf("expected 30s navigation timeout, got %v", cfg.GetNavigationTimeout())
	}
}

func TestLoadSessions_MarksDetachedAndSkipsClosed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	stored := []Session{
		{ID: "1", PaneType: types.PaneEditor, TargetID: "T1", Status: "active"},
		{ID: "2", PaneType: types.PaneDocs, TargetID: "T2", Status: "closed"},
	}
	data, _ := json.Marshal(stored)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewSessionManager(Config{SessionStore: path})
	if err := m.loadSessionsLocked(); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	list := m.List()
	if len(list) != 1 {
		t.Fatalf("expected 1 session, got %d", len(list))
	}
	if list[0].Status != "detached" {
		t.Errorf("expected detached, got %s", list[0].Status)
	}
	if s, ok := m.GetSession(types.PaneEditor); !ok || s.TargetID != "T1" {
		t.Errorf("editor session not restored: %+v", s)
	}
}

func TestPersistSessions_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")
	m := NewSessionManager(Config{SessionStore: path})
	m.sessions["x"] = &sessionRecord{meta: Session{ID: "x", PaneType: types.PaneManual, Status: "active"}}

	if err := m.persistSessions(); err != nil {
		t.Fatalf("persist failed: %v", err)
	}

	other := NewSessionManager(Config{SessionStore: path})
	if err := other.loadSessionsLocked(); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if _, ok := other.GetSession(types.PaneManual); !ok {
		t.Error("manual session missing after reload")
	}
}

func TestLoadSessions_NoStore(t *testing.T) {
	m := NewSessionManager(Config{SessionStore: filepath.Join(t.TempDir(), "missing.json")})
	if err := m.loadSessionsLocked(); err != nil {
		t.Errorf("missing store should not fail: %v", err)
	}
}

func TestIsTargetGone(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&cdp.Error{Code: -32000, Message: "No target with given id found"}, true},
		{&cdp.Error{Code: -32000, Message: "Target closed"}, true},
		{&cdp.Error{Code: -32000, Message: "Cannot find context with specified id"}, false},
		{errors.New("boom"), false},
	}
	for _, tt := range tests {
		if got := isTargetGone(tt.err); got != tt.want {
			t.Errorf("isTargetGone(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
