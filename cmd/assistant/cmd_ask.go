package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/context-assistant/three.js/internal/assistant"
	"github.com/context-assistant/three.js/internal/types"
)

var (
	askMentions []string
	askScene    bool
	askMarkdown bool
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask one question and stream the answer",
	Long: `Sends one message to the selected agent and streams the reply.

Scene objects mentioned with @Name are looked up in the editor when --scene is
set; otherwise they are sent as unresolved names. Ctrl-C cancels the
generation and keeps the partial answer.

Example:
  assistant ask --scene "why is @Cube black?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringSliceVarP(&askMentions, "mention", "m", nil, "Scene object names to attach (replaces @mentions)")
	askCmd.Flags().BoolVar(&askScene, "scene", false, "Open the editor pane to resolve mentions")
	askCmd.Flags().BoolVar(&askMarkdown, "markdown", false, "Render the finished answer as markdown instead of streaming")
}

func joinArgs(args []string) string {
	return strings.Join(args, " ")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a, err := newApp(ctx, appOptions{browser: askScene})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if askScene {
		if err := a.session.Activate(ctx, types.PaneEditor); err != nil {
			logger.Warn("Editor pane failed to open", zap.Error(err))
		}
	}

	// Ctrl-C aborts the generation, not the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			a.session.Abort()
		case <-ctx.Done():
		}
	}()

	events, subID := a.session.Events().Subscribe(ctx)
	defer a.session.Events().Unsubscribe(subID)

	out := cmd.OutOrStdout()
	var answer strings.Builder
	sendErr := a.session.Send(ctx, assistant.SendRequest{
		Content:  joinArgs(args),
		Mentions: askMentions,
		OnDelta: func(d string) {
			answer.WriteString(d)
			if !askMarkdown {
				fmt.Fprint(out, d)
			}
		},
	})

	// Events are buffered; everything for this send is already queued.
	for drained := false; !drained; {
		select {
		case ev, ok := <-events:
			if !ok {
				drained = true
			} else if ev.Type == assistant.EventWarning {
				fmt.Fprintln(cmd.ErrOrStderr(), warningStyle.Render("warning: "+ev.Text))
			}
		default:
			drained = true
		}
	}

	msgs := a.session.Messages()
	if askMarkdown && len(msgs) > 0 {
		fmt.Fprint(out, renderMarkdown(msgs[len(msgs)-1].Content, 80))
	} else {
		fmt.Fprintln(out)
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %v", timeout)
	}
	if sendErr != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render("error: "+sendErr.Error()))
		return sendErr
	}
	if stats := formatStats(a.session.Engine().LastStats()); stats != "" {
		fmt.Fprintln(cmd.ErrOrStderr(), stats)
	}
	return nil
}
