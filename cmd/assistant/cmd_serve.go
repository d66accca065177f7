package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/context-assistant/three.js/internal/agents"
	"github.com/context-assistant/three.js/internal/server"
	"github.com/context-assistant/three.js/internal/types"
)

var (
	serveAddr    string
	serveNoPanes bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and WebSocket event stream",
	Long: `Starts the browser, opens the editor pane, and serves the local API:

  GET    /api/health                 engine state
  GET    /api/models                 installed models
  GET    /api/panes                  pane registry
  POST   /api/panes/{type}/activate  show (and open) a pane
  GET    /api/panes/{type}/context   page context of a document pane
  GET    /api/scene?q=               scene tree, filtered
  GET    /api/editor/state           editor state object
  GET    /api/messages               conversation log
  POST   /api/messages               send {content, agent_id, mentions}
  DELETE /api/messages               clear the conversation
  POST   /api/abort                  cancel the live generation
  GET    /ws                         delta, warning, done and error events`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: server.addr from config)")
	serveCmd.Flags().BoolVar(&serveNoPanes, "no-panes", false, "Do not host panes in a browser")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, appOptions{browser: !serveNoPanes})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if a.agents.Path() != "" {
		w, err := agents.NewWatcher(a.agents)
		if err != nil {
			logger.Warn("Agent hot reload unavailable", zap.Error(err))
		} else if err := w.Start(ctx); err != nil {
			logger.Warn("Agent hot reload unavailable", zap.Error(err))
		} else {
			defer w.Stop()
		}
	}

	if !serveNoPanes {
		if err := a.session.Activate(ctx, types.PaneEditor); err != nil {
			logger.Warn("Editor pane failed to open", zap.Error(err))
		}
	}

	addr := serveAddr
	if addr == "" {
		addr = a.cfg.Server.Addr
	}
	logger.Info("Serving assistant API", zap.String("addr", addr), zap.String("ollama", a.client.BaseURL()))
	return server.New(a.session, a.client).ListenAndServe(ctx, addr)
}
