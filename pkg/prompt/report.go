package prompt

import "encoding/json"

// ReportEntry is one events[]/risks[] entry of the structured report
// object described by worldReportFormatInstructions.
type ReportEntry struct {
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
}

// Report is the structured object the system prompt asks the model to
// return (§4.3). It round-trips through TimelineMessage.ReportSnapshot as
// JSON text.
type Report struct {
	Title          string        `json:"title"`
	TimeAdvance    string        `json:"time_advance"`
	Summary        string        `json:"summary"`
	Events         []ReportEntry `json:"events"`
	Risks          []ReportEntry `json:"risks"`
	TensionPercent *float64      `json:"tension_percent,omitempty"`
	CrisisFocus    string        `json:"crisis_focus,omitempty"`
}

// ParseReport attempts to decode the model's raw text as a Report. A
// non-JSON or malformed response is not an error here: the caller (the
// Runner's Persist step, §4.5) persists the raw text and leaves
// ReportSnapshot empty when parsing fails, rather than crashing the round.
func ParseReport(text string) (*Report, bool) {
	var r Report
	if err := json.Unmarshal([]byte(text), &r); err != nil {
		return nil, false
	}
	if r.Title == "" && r.Summary == "" {
		return nil, false
	}
	return &r, true
}
