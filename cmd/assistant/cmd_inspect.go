package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/context-assistant/three.js/internal/assistant"
	"github.com/context-assistant/three.js/internal/browser"
	"github.com/context-assistant/three.js/internal/chat"
	"github.com/context-assistant/three.js/internal/mention"
	"github.com/context-assistant/three.js/internal/types"
)

// =============================================================================
// INSPECTION COMMANDS - models, scene, panes, pages, agents, history
// =============================================================================

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List installed models (connectivity check)",
	RunE:  runModels,
}

var sceneFlat bool

var sceneCmd = &cobra.Command{
	Use:     "scene [query]",
	Aliases: []string{"search"},
	Short:   "Print the editor scene, optionally filtered by name or type",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runScene,
}

var sceneStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the editor state object",
	RunE:  runSceneState,
}

var panesCmd = &cobra.Command{
	Use:   "panes",
	Short: "List pane sessions known to the browser",
	RunE:  runPanes,
}

var pageCmd = &cobra.Command{
	Use:   "page [type]",
	Short: "Print the page context of a document pane (playground, docs, manual)",
	Args:  cobra.ExactArgs(1),
	RunE:  runPage,
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agent profiles",
	RunE:  runAgents,
}

var historyClear bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the persisted conversation window",
	RunE:  runHistory,
}

func init() {
	sceneCmd.Flags().BoolVar(&sceneFlat, "flat", false, "Print one object per line with its depth")
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Clear the conversation")
}

func runModels(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	models, err := a.client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("%s unreachable: %w", a.client.BaseURL(), err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("%d models at %s", len(models), a.client.BaseURL())))
	for _, m := range models {
		fmt.Fprintf(out, "  %s %s\n", nameStyle.Render(m.Name), mutedStyle.Render(formatSize(m.Size)))
	}
	return nil
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// withPane opens the browser, activates t and runs fn.
func withPane(cmd *cobra.Command, t types.PaneType, fn func(ctx context.Context, s *assistant.Session) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := newApp(ctx, appOptions{browser: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if err := a.session.Activate(ctx, t); err != nil {
		return err
	}
	return fn(ctx, a.session)
}

func runScene(cmd *cobra.Command, args []string) error {
	query := ""
	if len(args) == 1 {
		query = args[0]
	}
	return withPane(cmd, types.PaneEditor, func(ctx context.Context, s *assistant.Session) error {
		out := cmd.OutOrStdout()
		if sceneFlat {
			flat, err := s.SceneFlat(ctx)
			if err != nil {
				return err
			}
			writeFlat(out, flat)
			return nil
		}
		nodes, err := s.Scene(ctx, query)
		if err != nil {
			return err
		}
		if len(nodes) == 0 {
			fmt.Fprintln(out, mutedStyle.Render("no matching objects"))
			return nil
		}
		fmt.Fprint(out, renderTree(nodes))
		return nil
	})
}

func writeFlat(w io.Writer, flat []mention.FlatNode) {
	for _, f := range flat {
		fmt.Fprintf(w, "%s@%s %s\n", strings.Repeat("  ", f.Depth), f.Node.Name, mutedStyle.Render(f.Node.Type))
	}
}

func runSceneState(cmd *cobra.Command, args []string) error {
	return withPane(cmd, types.PaneEditor, func(ctx context.Context, s *assistant.Session) error {
		raw, err := s.EditorState(ctx)
		if err != nil {
			return err
		}
		if raw == nil {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("editor reports no state"))
			return nil
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), buf.String())
		return nil
	})
}

func runPage(cmd *cobra.Command, args []string) error {
	t, err := types.ParsePaneType(args[0])
	if err != nil {
		return err
	}
	return withPane(cmd, t, func(ctx context.Context, s *assistant.Session) error {
		pc, err := s.PageContext(ctx, t)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, titleStyle.Render(pc.Title))
		fmt.Fprintln(out, pc.URL)
		fmt.Fprintln(out, mutedStyle.Render(pc.Path))
		return nil
	})
}

func runPanes(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := newApp(ctx, appOptions{browser: true})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	writeSessions(cmd.OutOrStdout(), a.browser.List())
	return nil
}

func writeSessions(w io.Writer, sessions []browser.Session) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no pane sessions"))
		return
	}
	for _, s := range sessions {
		fmt.Fprintf(w, "%-10s %-9s %s %s\n", nameStyle.Render(s.PaneType.String()), s.Status, s.Title, mutedStyle.Render(s.URL))
	}
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openAgents(cfg)
	if err != nil {
		return err
	}
	def, _ := store.Default()

	out := cmd.OutOrStdout()
	for _, ag := range store.List() {
		marker := "  "
		if ag.ID == def.ID {
			marker = titleStyle.Render("* ")
		}
		fmt.Fprintf(out, "%s%s %s %s\n", marker, nameStyle.Render(ag.ID), ag.Name, mutedStyle.Render(ag.Model))
		for _, line := range chat.PersonalityLines(ag.Personality) {
			fmt.Fprintf(out, "    %s\n", mutedStyle.Render(line))
		}
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	out := cmd.OutOrStdout()
	if historyClear {
		a.session.Clear(ctx)
		fmt.Fprintln(out, mutedStyle.Render("conversation cleared"))
		return nil
	}
	msgs := a.session.Messages()
	if len(msgs) == 0 {
		fmt.Fprintln(out, mutedStyle.Render("no messages"))
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintln(out, chat.Summary(m))
	}
	return nil
}
