package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/worldline/pkg/config"
	"github.com/codeready-toolchain/worldline/pkg/store"
)

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder()
	in := Input{
		WorldPreset:    "a steampunk city",
		TickLabel:      "1 month",
		OutputLanguage: "en",
		EventDice:      config.EventDiceConfig{Enabled: true, MinEvents: 1, MaxEvents: 3, Hemisphere: "northern"},
	}
	first := b.Build(in)
	second := b.Build(in)
	require.Equal(t, first, second)
}

func TestBuildEmptyWindowAndInterventionsProducesValidPrompt(t *testing.T) {
	b := NewBuilder()
	msgs := b.Build(Input{WorldPreset: "an empty world", TickLabel: "1 month"})
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].Role)
	assert.Equal(t, "user", msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "this is the first round")
}

func TestBuildIncludesInterventionContent(t *testing.T) {
	b := NewBuilder()
	msgs := b.Build(Input{
		WorldPreset: "a steampunk city",
		TickLabel:   "1 month",
		Interventions: []store.UserIntervention{
			{Content: "a drought strikes the north"},
		},
	})
	assert.Contains(t, msgs[1].Content, "a drought strikes the north")
}

func TestBuildOrdersSectionsPerSpec(t *testing.T) {
	b := NewBuilder()
	msgs := b.Build(Input{
		WorldPreset:    "preset-marker",
		TickLabel:      "tick-marker",
		MemorySnippets: []string{"memory-marker"},
		RecentWindow: []store.TimelineMessage{
			{Seq: 1, Role: config.RoleSystemReport, Content: "window-marker"},
		},
		Interventions: []store.UserIntervention{{Content: "intervention-marker"}},
		OutputLanguage: "fr",
	})
	content := msgs[1].Content
	order := []string{"preset-marker", "tick-marker", "memory-marker", "window-marker", "intervention-marker", "fr"}
	last := -1
	for _, marker := range order {
		idx := indexOf(content, marker)
		require.GreaterOrEqualf(t, idx, 0, "expected to find %q", marker)
		require.Greaterf(t, idx, last, "expected %q to appear after previous marker", marker)
		last = idx
	}
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

func TestParseReportValid(t *testing.T) {
	r, ok := ParseReport(`{"title":"t","time_advance":"1 month","summary":"s","events":[],"risks":[]}`)
	require.True(t, ok)
	assert.Equal(t, "t", r.Title)
}

func TestParseReportInvalidIsNotFatal(t *testing.T) {
	_, ok := ParseReport("not json at all")
	assert.False(t, ok)
}
