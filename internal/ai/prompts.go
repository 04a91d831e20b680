package ai

import (
	"fmt"
	"strings"
	"time"

	"github.com/xaenox/afisha-bot/internal/models"
)

const classifyPrompt = `You are a content filter for city event channels.
Classify the post into exactly one category:
- EVENT: an announcement of a concrete public event (concert, lecture, exhibition, party) with an implied date or venue
- GOING_OUT: an informal "let's go somewhere" post that still describes a real outing
- AD: advertising, spam, job postings, sales, or anything that is not an event announcement

Respond with a JSON object: {"category": "EVENT"} and nothing else.

Post:
%s`

const extractPrompt = `You are an event data extractor for city event channels.
The post below was published at %s (%s). Resolve relative dates ("завтра",
"в пятницу") against that moment and that time zone, and output times in UTC.

Extract only what the text actually states. Never invent a value. Use null for
anything absent. Respond with ONLY this JSON object, no markdown fences:
{
  "title": "short event title or null",
  "start_time": "RFC3339 UTC timestamp or null",
  "end_time": "RFC3339 UTC timestamp or null",
  "venue": "venue name or null",
  "city_name": "city or null",
  "description": "one-paragraph description or null"
}

Post:
%s`

const reextractPrompt = `You are an event data extractor. An earlier extraction
of the post below was reviewed by a moderator, who asked for this correction:

%s

Previous extraction:
%s

Apply the correction, keep every field the moderator did not complain about,
and respond with ONLY the same JSON object shape as before (title, start_time,
end_time, venue, city_name, description; RFC3339 UTC timestamps; null for
absent fields). The post was published at %s (%s).

Post:
%s`

const decidePrompt = `You decide whether an extracted event draft should be
published to a city event catalog. Approve real, concrete, public events;
reject ads, spam and posts with made-up or incoherent data. The precedents
below are recent drafts with the verdict an actual human moderator gave —
follow their taste.

%s
Candidate:
original post:
%s

extracted fields:
%s

Respond with ONLY this JSON object:
{"verdict": "APPROVED" or "REJECTED", "confidence": 0.0-1.0, "reasoning": "one sentence"}`

func formatHistory(history []models.DecisionRecord) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Precedents (most recent first):\n")
	for i, rec := range history {
		b.WriteString(fmt.Sprintf("%d. title=%q venue=%q verdict=%s", i+1, rec.Extracted.Title, rec.Extracted.Venue, rec.HumanVerdict))
		if rec.Feedback != "" {
			b.WriteString(" feedback=" + rec.Feedback)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	return b.String()
}

func formatExtraction(ex models.Extraction) string {
	var b strings.Builder
	b.WriteString("title: " + orNull(ex.Title) + "\n")
	b.WriteString("start_time: " + orNullTime(ex.StartTime) + "\n")
	b.WriteString("end_time: " + orNullTime(ex.EndTime) + "\n")
	b.WriteString("venue: " + orNull(ex.Venue) + "\n")
	b.WriteString("city: " + orNull(ex.CityName) + "\n")
	b.WriteString("description: " + orNull(ex.Description))
	return b.String()
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

func orNullTime(t *time.Time) string {
	if t == nil {
		return "null"
	}
	return t.UTC().Format(time.RFC3339)
}
