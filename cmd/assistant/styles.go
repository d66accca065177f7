package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/context-assistant/three.js/internal/completion"
	"github.com/context-assistant/three.js/internal/types"
)

var (
	Accent  = lipgloss.Color("#8BC34A")
	Muted   = lipgloss.Color("#8a94a6")
	Warning = lipgloss.Color("#FFC107")
	Danger  = lipgloss.Color("#e53935")
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	nameStyle    = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	warningStyle = lipgloss.NewStyle().Foreground(Warning)
	errorStyle   = lipgloss.NewStyle().Foreground(Danger).Bold(true)
)

// renderTree draws nodes as an indented tree, one object per line.
func renderTree(nodes []types.SceneNode) string {
	var b strings.Builder
	var walk func(ns []types.SceneNode, prefix string)
	walk = func(ns []types.SceneNode, prefix string) {
		for i, n := range ns {
			branch, next := "├── ", "│   "
			if i == len(ns)-1 {
				branch, next = "└── ", "    "
			}
			name := n.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Fprintf(&b, "%s%s%s %s\n", mutedStyle.Render(prefix), mutedStyle.Render(branch),
				nameStyle.Render(name), mutedStyle.Render(n.Type))
			walk(n.Children, prefix+next)
		}
	}
	walk(nodes, "")
	return b.String()
}

// formatStats renders the token summary shown after an answer.
func formatStats(s *completion.Stats) string {
	if s == nil {
		return ""
	}
	return mutedStyle.Render(fmt.Sprintf("%d tokens (%d prompt, %d generated) · %.1f tok/s",
		s.TotalTokens(), s.PromptEvalCount, s.EvalCount, s.TokensPerSecond()))
}

// renderMarkdown renders an answer for the terminal, falling back to the raw text.
func renderMarkdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return out
}
