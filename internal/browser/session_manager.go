// Package browser hosts the content panes as pages in one Chrome instance.
// Each pane type owns one page; pages satisfy pane.Handle and bridge.Peer.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/types"
)

// Session describes the persisted metadata for a pane page.
type Session struct {
	ID         string         `json:"id"`
	PaneType   types.PaneType `json:"pane_type"`
	TargetID   string         `json:"target_id,omitempty"`
	URL        string         `json:"url,omitempty"`
	Title      string         `json:"title,omitempty"`
	Status     string         `json:"status,omitempty"` // active, attached, detached, closed
	CreatedAt  time.Time      `json:"created_at"`
	LastActive time.Time      `json:"last_active"`
}

type sessionRecord struct {
	meta Session
	page *Page
}

// Config holds browser configuration.
type Config struct {
	DebuggerURL       string   `json:"debugger_url"`
	Launch            []string `json:"launch"`
	Headless          bool     `json:"headless"`
	ViewportWidth     int      `json:"viewport_width"`
	ViewportHeight    int      `json:"viewport_height"`
	NavigationTimeout time.Duration
	SessionStore      string `json:"session_store"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		ViewportWidth:     1440,
		ViewportHeight:    900,
		NavigationTimeout: 30 * time.Second,
	}
}

// GetViewportWidth returns viewport width.
func (c Config) GetViewportWidth() int {
	if c.ViewportWidth == 0 {
		return 1440
	}
	return c.ViewportWidth
}

// GetViewportHeight returns viewport height.
func (c Config) GetViewportHeight() int {
	if c.ViewportHeight == 0 {
		return 900
	}
	return c.ViewportHeight
}

// GetNavigationTimeout returns the navigation timeout.
func (c Config) GetNavigationTimeout() time.Duration {
	if c.NavigationTimeout <= 0 {
		return 30 * time.Second
	}
	return c.NavigationTimeout
}

// SessionManager owns the Chrome instance and the pane pages.
type SessionManager struct {
	cfg        Config
	mu         sync.RWMutex
	browser    *rod.Browser
	sessions   map[string]*sessionRecord
	controlURL string
}

// NewSessionManager creates a new session manager.
func NewSessionManager(cfg Config) *SessionManager {
	return &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*sessionRecord),
	}
}

// Start connects to an existing Chrome or launches a new one.
func (m *SessionManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		logging.BrowserWarn("stale browser connection detected, reconnecting")
		_ = m.browser.Close()
		m.browser = nil
		m.controlURL = ""
		m.sessions = make(map[string]*sessionRecord)
	}

	if err := m.loadSessionsLocked(); err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	controlURL, err := m.resolveControlURL()
	if err != nil {
		return err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = browser
	m.controlURL = controlURL
	logging.Browser("connected to chrome at %s", controlURL)
	return nil
}

func (m *SessionManager) resolveControlURL() (string, error) {
	if m.cfg.DebuggerURL != "" {
		return m.cfg.DebuggerURL, nil
	}

	if len(m.cfg.Launch) > 0 {
		bin := m.cfg.Launch[0]
		l := launcher.New().Bin(bin).Headless(m.cfg.Headless)
		for _, rawFlag := range m.cfg.Launch[1:] {
			name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		url, err := l.Launch()
		if err == nil {
			return url, nil
		}
		// Retry without the custom flags; a bad flag should not cost the panes.
		alt, altErr := launcher.New().Bin(bin).Headless(m.cfg.Headless).Launch()
		if altErr != nil {
			return "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
		}
		logging.BrowserWarn("chrome launch with custom flags failed, using defaults: %v", err)
		return alt, nil
	}

	url, err := launcher.New().Headless(m.cfg.Headless).Launch()
	if err != nil {
		return "", fmt.Errorf("no debugger_url and failed to launch: %w", err)
	}
	return url, nil
}

func (m *SessionManager) ensureStarted(ctx context.Context) error {
	m.mu.RLock()
	if m.browser != nil {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()
	return m.Start(ctx)
}

// ControlURL returns the DevTools WebSocket URL.
func (m *SessionManager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

// IsConnected returns whether the browser is connected.
func (m *SessionManager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// Shutdown closes pane pages and the browser.
func (m *SessionManager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, rec := range m.sessions {
		if rec.page != nil {
			_ = rec.page.Close()
		}
		delete(m.sessions, id)
	}

	var err error
	if m.browser != nil {
		err = m.browser.Close()
		m.browser = nil
	}
	m.controlURL = ""
	logging.Browser("browser shut down")
	return err
}

// List returns metadata for all known sessions, sorted by pane type.
func (m *SessionManager) List() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Session, 0, len(m.sessions))
	for _, rec := range m.sessions {
		results = append(results, rec.meta)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].PaneType != results[j].PaneType {
			return results[i].PaneType < results[j].PaneType
		}
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results
}

// OpenPane returns the page hosting t, creating it on first request.
// A detached session persisted for t is re-attached when its target still exists
// in the connected browser.
func (m *SessionManager) OpenPane(ctx context.Context, t types.PaneType, url string) (*Page, error) {
	if err := m.ensureStarted(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var detached *Session
	for _, rec := range m.sessions {
		if rec.meta.PaneType != t {
			continue
		}
		if rec.page != nil && !rec.page.Closed() {
			m.mu.RUnlock()
			return rec.page, nil
		}
		if rec.meta.Status == "detached" && rec.meta.TargetID != "" {
			meta := rec.meta
			detached = &meta
		}
	}
	browser := m.browser
	m.mu.RUnlock()

	if browser == nil {
		return nil, errors.New("browser not connected")
	}

	if detached != nil {
		p, err := m.attach(browser, *detached)
		if err == nil {
			return p, nil
		}
		logging.BrowserDebug("re-attach %s target %s failed: %v", t, detached.TargetID, err)
	}
	return m.create(ctx, browser, t, url)
}

func (m *SessionManager) create(ctx context.Context, browser *rod.Browser, t types.PaneType, url string) (*Page, error) {
	rp, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return nil, fmt.Errorf("create %s page: %w", t, err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             m.cfg.GetViewportWidth(),
		Height:            m.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(rp); err != nil {
		logging.BrowserWarn("failed to set viewport for %s: %v", t, err)
	}

	// Navigation completes asynchronously; readiness is the bridge's concern.
	if err := rp.Context(ctx).Timeout(m.cfg.GetNavigationTimeout()).WaitLoad(); err != nil {
		logging.BrowserDebug("%s page load wait: %v", t, err)
	}

	meta := Session{
		ID:         uuid.NewString(),
		PaneType:   t,
		TargetID:   string(rp.TargetID),
		URL:        url,
		Status:     "active",
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}
	p := newPage(t, rp, m.touch(meta.ID))

	m.mu.Lock()
	m.dropPaneLocked(t)
	m.sessions[meta.ID] = &sessionRecord{meta: meta, page: p}
	m.mu.Unlock()

	if err := m.persistSessions(); err != nil {
		logging.BrowserWarn("persist sessions: %v", err)
	}
	logging.Browser("opened %s pane at %s", t, url)
	return p, nil
}

func (m *SessionManager) attach(browser *rod.Browser, s Session) (*Page, error) {
	rp, err := browser.PageFromTarget(proto.TargetTargetID(s.TargetID))
	if err != nil {
		return nil, fmt.Errorf("attach to target %s: %w", s.TargetID, err)
	}

	s.Status = "attached"
	s.LastActive = time.Now()
	p := newPage(s.PaneType, rp, m.touch(s.ID))

	m.mu.Lock()
	m.sessions[s.ID] = &sessionRecord{meta: s, page: p}
	m.mu.Unlock()

	if err := m.persistSessions(); err != nil {
		logging.BrowserWarn("persist sessions: %v", err)
	}
	logging.Browser("re-attached %s pane to target %s", s.PaneType, s.TargetID)
	return p, nil
}

// ClosePane closes the page hosting t.
func (m *SessionManager) ClosePane(t types.PaneType) error {
	m.mu.Lock()
	var err error
	for _, rec := range m.sessions {
		if rec.meta.PaneType == t && rec.page != nil {
			err = rec.page.Close()
			rec.meta.Status = "closed"
		}
	}
	m.dropPaneLocked(t)
	m.mu.Unlock()

	if perr := m.persistSessions(); perr != nil {
		logging.BrowserWarn("persist sessions: %v", perr)
	}
	return err
}

// dropPaneLocked forgets every session of t. Caller holds m.mu.
func (m *SessionManager) dropPaneLocked(t types.PaneType) {
	for id, rec := range m.sessions {
		if rec.meta.PaneType == t {
			delete(m.sessions, id)
		}
	}
}

// touch returns a callback that refreshes a session's LastActive and title.
func (m *SessionManager) touch(id string) func(title string) {
	return func(title string) {
		m.mu.Lock()
		defer m.mu.Unlock()
		rec, ok := m.sessions[id]
		if !ok {
			return
		}
		rec.meta.LastActive = time.Now()
		if title != "" {
			rec.meta.Title = title
		}
	}
}

// GetSession returns the session metadata for t.
func (m *SessionManager) GetSession(t types.PaneType) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.sessions {
		if rec.meta.PaneType == t {
			return rec.meta, true
		}
	}
	return Session{}, false
}

func (m *SessionManager) persistSessions() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	sessions := m.List()
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(m.cfg.SessionStore), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.cfg.SessionStore, data, 0o644)
}

func (m *SessionManager) loadSessionsLocked() error {
	if m.cfg.SessionStore == "" {
		return nil
	}

	data, err := os.ReadFile(m.cfg.SessionStore)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var sessions []Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return err
	}

	for _, s := range sessions {
		if s.Status == "closed" {
			continue
		}
		s.Status = "detached"
		m.sessions[s.ID] = &sessionRecord{meta: s}
	}
	return nil
}
