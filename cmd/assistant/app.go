package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/context-assistant/three.js/internal/agents"
	"github.com/context-assistant/three.js/internal/assistant"
	"github.com/context-assistant/three.js/internal/bridge"
	"github.com/context-assistant/three.js/internal/browser"
	"github.com/context-assistant/three.js/internal/chat"
	"github.com/context-assistant/three.js/internal/completion"
	"github.com/context-assistant/three.js/internal/config"
	"github.com/context-assistant/three.js/internal/logging"
	"github.com/context-assistant/three.js/internal/pane"
	"github.com/context-assistant/three.js/internal/store"
	"github.com/context-assistant/three.js/internal/types"
)

// app holds the components a command needs. Fields a command does not ask
// for stay nil.
type app struct {
	cfg     *config.Config
	client  *completion.Client
	agents  *agents.Store
	window  store.WindowStore
	browser *browser.SessionManager
	session *assistant.Session
}

type appOptions struct {
	browser bool // host panes in Chrome
}

// loadConfig reads <workspace>/.assistant/config.yaml and starts file logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.DefaultPath(workspace))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.Initialize(workspace, cfg.Logging.Options()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}
	a.client = completion.NewClient(cfg.Ollama.BaseURL, cfg.GetOllamaTimeout())

	if a.agents, err = openAgents(cfg); err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.window, err = store.Open(store.Options{
		Backend:   cfg.Storage.Backend,
		Path:      config.ResolvePath(workspace, cfg.Storage.DatabasePath),
		SessionID: cfg.Storage.SessionID,
		Capacity:  cfg.Chat.WindowSize,
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to open window store: %w", err)
	}

	deps := assistant.Deps{
		Registry: pane.NewRegistry(),
		Bridge: bridge.New(bridge.Options{
			PollInterval:              cfg.GetPollInterval(),
			ReadyTimeout:              cfg.GetReadyTimeout(),
			ContentTimeout:            cfg.GetContentTimeout(),
			AssumeLoadedWhenReachable: cfg.Bridge.AssumeLoadedWhenReachable,
		}),
		Transport:  chat.ClientStreamer(a.client),
		Agents:     a.agents,
		Store:      a.window,
		WindowSize: cfg.Chat.WindowSize,
		Persist:    cfg.Chat.Persist,
	}

	if opts.browser {
		a.browser = browser.NewSessionManager(browserConfig(cfg))
		if err := a.browser.Start(ctx); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
		deps.Opener = paneOpener(cfg, a.browser)
	}

	a.session = assistant.New(deps)
	if err := a.session.Restore(ctx); err != nil {
		logger.Warn("Failed to restore conversation window", zap.Error(err))
	}
	return a, nil
}

func openAgents(cfg *config.Config) (*agents.Store, error) {
	path := config.ResolvePath(workspace, cfg.Chat.AgentsFile)
	var s *agents.Store
	if path == "" {
		s = agents.NewStatic(agents.DefaultAgents())
	} else {
		var err error
		if s, err = agents.Open(path); err != nil {
			return nil, err
		}
		if err := s.Seed(); err != nil {
			return nil, err
		}
	}
	if cfg.Chat.DefaultAgentID != "" {
		s.SetDefault(cfg.Chat.DefaultAgentID)
	}
	if agentID != "" {
		s.SetDefault(agentID)
	}
	return s, nil
}

func browserConfig(cfg *config.Config) browser.Config {
	return browser.Config{
		DebuggerURL:       cfg.Browser.DebuggerURL,
		Launch:            cfg.Browser.Launch,
		Headless:          cfg.Browser.Headless,
		ViewportWidth:     cfg.Browser.ViewportWidth,
		ViewportHeight:    cfg.Browser.ViewportHeight,
		NavigationTimeout: cfg.GetNavigationTimeout(),
		SessionStore:      config.ResolvePath(workspace, cfg.Browser.SessionStore),
	}
}

// paneOpener opens pane pages at their configured URLs.
func paneOpener(cfg *config.Config, mgr *browser.SessionManager) assistant.PaneOpener {
	return func(ctx context.Context, t types.PaneType) (pane.Handle, error) {
		url, ok := cfg.Panes[t.String()]
		if !ok || url == "" {
			return nil, fmt.Errorf("no URL configured for pane %s", t)
		}
		page, err := mgr.OpenPane(ctx, t, url)
		if err != nil {
			return nil, err
		}
		return page, nil
	}
}

// Close releases everything the app opened.
func (a *app) Close(ctx context.Context) {
	if a.session != nil {
		a.session.Events().Close()
	}
	if a.browser != nil {
		if err := a.browser.Shutdown(ctx); err != nil {
			logger.Warn("Browser shutdown failed", zap.Error(err))
		}
	}
	if a.window != nil {
		if err := a.window.Close(); err != nil {
			logger.Warn("Window store close failed", zap.Error(err))
		}
	}
	if a.client != nil {
		a.client.Close()
	}
	logging.CloseAll()
}
