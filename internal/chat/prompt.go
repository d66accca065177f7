package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/context-assistant/three.js/internal/mention"
	"github.com/context-assistant/three.js/internal/types"
)

// Trait is a personality dimension scored 0..100. 50 is neutral.
type Trait struct {
	Key      string
	Positive string
	Negative string
}

// Traits in the order their lines appear in the system prompt.
var Traits = []Trait{
	{"curious", "Curious: explore ideas and ask follow-up questions", "Focused: stay on the question asked and avoid tangents"},
	{"creative", "Creative: suggest inventive approaches and alternatives", "Conventional: prefer established, well-documented approaches"},
	{"formal", "Formal: use precise, professional language", "Casual: keep the tone relaxed and conversational"},
	{"verbose", "Thorough: give detailed explanations with context", "Concise: keep answers short and to the point"},
	{"humorous", "Playful: add light humor where it fits", "Serious: keep a straightforward, no-jokes tone"},
	{"empathetic", "Empathetic: acknowledge the user's frustration and goals", "Matter-of-fact: focus strictly on the technical problem"},
}

const promptHeader = "You are %s, an assistant embedded next to the three.js editor, shader playground and documentation. " +
	"Help the user understand and change their scene, write shaders and navigate the three.js API. " +
	"Objects the user mentions with @name are described in a [Scene context] block after their message."

// PersonalityLines renders the trait lines for a personality, in declared order.
// Neutral (50) and unknown traits produce nothing.
func PersonalityLines(personality map[string]int) []string {
	var lines []string
	for _, t := range Traits {
		v, ok := personality[t.Key]
		if !ok {
			continue
		}
		switch {
		case v > 50:
			lines = append(lines, fmt.Sprintf("- %s (%d%%)", t.Positive, v))
		case v < 50:
			lines = append(lines, fmt.Sprintf("- %s (%d%%)", t.Negative, 100-v))
		}
	}
	return lines
}

// BuildSystemPrompt builds the system prompt for an agent. Output is
// deterministic for a given profile.
func BuildSystemPrompt(agent types.AgentProfile) string {
	name := agent.Name
	if name == "" {
		name = agent.ID
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, promptHeader, name)

	if extra := strings.TrimSpace(agent.SystemPrompt); extra != "" {
		sb.WriteString("\n\n")
		sb.WriteString(extra)
	}

	if lines := PersonalityLines(agent.Personality); len(lines) > 0 {
		sb.WriteString("\n\nPersonality:\n")
		sb.WriteString(strings.Join(lines, "\n"))
	}
	return sb.String()
}

// sceneContextHeader opens the enrichment block appended to user content.
const sceneContextHeader = "[Scene context]"

// Enrich appends a scene context block describing descriptors to content.
func Enrich(content string, descriptors []mention.Descriptor) string {
	if len(descriptors) == 0 {
		return content
	}

	var sb strings.Builder
	sb.WriteString(content)
	sb.WriteString("\n\n")
	sb.WriteString(sceneContextHeader)
	for _, d := range descriptors {
		fmt.Fprintf(&sb, "\n- %s (%s)", d.Name, d.Type)
		if len(d.Properties) > 0 {
			if props, err := json.Marshal(d.Properties); err == nil {
				sb.WriteString(": ")
				sb.Write(props)
			}
		}
		if !d.Resolved() && d.Suggestion != "" {
			fmt.Fprintf(&sb, " (not found; did you mean %q?)", d.Suggestion)
		}
	}
	return sb.String()
}
