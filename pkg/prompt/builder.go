// Package prompt implements the Prompt Builder (§4.3): a pure, stateless
// function from world state to a provider-neutral message list, grounded
// in this codebase's pkg/agent/prompt.Builder — a stateless struct with
// ordered composition helpers and constant instruction blocks — adapted
// from ReAct/investigation prompts to worldline progress reports.
package prompt

import (
	"fmt"
	"strings"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/providers"
	"github.com/codeready-toolchain/worldline/pkg/store"
)

// Builder composes the system/user message pair passed to a provider's
// Generate call. It holds no state: every call is a pure function of its
// arguments, which is what makes it deterministically testable with the
// mock provider (§4.3 "Determinism").
type Builder struct{}

// NewBuilder constructs a Builder. It takes no dependencies — unlike the
// investigation-prompt builder it is grounded on, this system's prompt
// composition needs no MCP server registry or other shared config.
func NewBuilder() *Builder { return &Builder{} }

// Input bundles every value the Prompt Builder composes from (§4.3).
type Input struct {
	WorldPreset     string
	TickLabel       string
	RecentWindow    []store.TimelineMessage // up to 20, ascending seq order
	Interventions   []store.UserIntervention
	MemorySnippets  []string
	OutputLanguage  string
	EventDice       config.EventDiceConfig
}

// Build composes the ordered {system, user} message list per §4.3's fixed
// user-message ordering: world preset; tick label; memory snippets (if
// any), labeled; recent timeline window; pending interventions, labeled;
// event-dice guidance; output format reminder; output locale instruction.
func (b *Builder) Build(in Input) []providers.Message {
	return []providers.Message{
		{Role: "system", Content: b.systemMessage()},
		{Role: "user", Content: b.userMessage(in)},
	}
}

func (b *Builder) systemMessage() string {
	var sb strings.Builder
	sb.WriteString(worldReportRoleInstructions)
	sb.WriteString("\n\n")
	sb.WriteString(worldReportFormatInstructions)
	return sb.String()
}

func (b *Builder) userMessage(in Input) string {
	var sb strings.Builder

	sb.WriteString(formatWorldPreset(in.WorldPreset))
	sb.WriteString("\n\n")

	sb.WriteString(formatTickLabel(in.TickLabel))
	sb.WriteString("\n\n")

	if len(in.MemorySnippets) > 0 {
		sb.WriteString(formatMemorySnippets(in.MemorySnippets))
		sb.WriteString("\n\n")
	}

	sb.WriteString(formatRecentWindow(in.RecentWindow))
	sb.WriteString("\n\n")

	if len(in.Interventions) > 0 {
		sb.WriteString(formatInterventions(in.Interventions))
		sb.WriteString("\n\n")
	}

	sb.WriteString(formatEventDice(in.EventDice))
	sb.WriteString("\n\n")

	sb.WriteString(worldReportFormatReminder)
	sb.WriteString("\n\n")

	sb.WriteString(formatLocaleInstruction(in.OutputLanguage))

	return sb.String()
}

func formatWorldPreset(preset string) string {
	return fmt.Sprintf("World:\n%s", preset)
}

func formatTickLabel(tickLabel string) string {
	return fmt.Sprintf("Advance the simulation by one tick: %s.", tickLabel)
}

func formatMemorySnippets(snippets []string) string {
	var sb strings.Builder
	sb.WriteString("Relevant long-term memory (for context only, do not restate verbatim):\n")
	for _, s := range snippets {
		sb.WriteString("- ")
		sb.WriteString(s)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatRecentWindow(window []store.TimelineMessage) string {
	if len(window) == 0 {
		return "Recent history:\n(none — this is the first round)"
	}
	var sb strings.Builder
	sb.WriteString("Recent history, oldest first:\n")
	for _, m := range window {
		label := "Report"
		if m.Role == config.RoleUserIntervention {
			label = "Prior intervention"
		}
		sb.WriteString(fmt.Sprintf("[%d] %s: %s\n", m.Seq, label, m.Content))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatInterventions(ivs []store.UserIntervention) string {
	var sb strings.Builder
	sb.WriteString("The following user interventions must be reflected in this round's report:\n")
	for _, iv := range ivs {
		sb.WriteString("- ")
		sb.WriteString(iv.Content)
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatEventDice(dice config.EventDiceConfig) string {
	if !dice.Enabled {
		return "Do not introduce random world events this round; describe only the direct consequences of the above."
	}
	return fmt.Sprintf(
		"Random event guidance: introduce between %d and %d world events this round "+
			"(hemisphere: %s). Roughly %.0f%% should be positive, %.0f%% negative, and "+
			"%.0f%% should reflect factional/rebel unrest.",
		dice.MinEvents, dice.MaxEvents, dice.Hemisphere,
		dice.GoodProb*100, dice.BadProb*100, dice.RebelProb*100,
	)
}

func formatLocaleInstruction(locale string) string {
	if locale == "" {
		locale = "en"
	}
	return fmt.Sprintf("Write the report in the language tagged %q.", locale)
}
