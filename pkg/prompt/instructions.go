package prompt

// worldReportRoleInstructions fixes the output style required by §4.3: an
// objective, continuous "world progress report".
const worldReportRoleInstructions = `You are the chronicler of an ongoing world simulation. Each round you ` +
	`receive the world's current state and must produce the next world progress report: an ` +
	`objective, continuous account of what happens as simulated time advances by one tick. ` +
	`Stay consistent with everything established in the recent history. Do not break character ` +
	`or refer to yourself as an AI.`

// worldReportFormatInstructions specifies the required JSON object shape
// (§4.3): {title, time_advance, summary, events[], risks[], tension_percent?, crisis_focus?}.
const worldReportFormatInstructions = `Respond with a single JSON object with exactly these fields:
{
  "title": string,
  "time_advance": string,
  "summary": string,
  "events": [{"category": "positive"|"negative"|"neutral", "severity": "low"|"medium"|"high", "description": string}],
  "risks": [{"category": "positive"|"negative"|"neutral", "severity": "low"|"medium"|"high", "description": string}],
  "tension_percent": number (optional),
  "crisis_focus": string (optional)
}
Emit only the JSON object, with no surrounding prose or code fences.`

// worldReportFormatReminder is appended near the end of the user message
// as the "output format reminder" called for by §4.3's fixed ordering.
const worldReportFormatReminder = `Remember: respond with only the JSON object described above, no other text.`
