package transcript

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/velia/scriba/internal/pkg/persistence"
	"github.com/velia/scriba/internal/pkg/utils"
)

// Flatten turns the assistant JSON into the human readable columns.
// Missing or malformed sections produce null fields, never an error
func Flatten(analysis map[string]any) *persistence.FlattenedAnalysis {
	res := &persistence.FlattenedAnalysis{}
	if analysis == nil {
		return res
	}
	res.MeetingTitle = utils.ToSQLStr(asString(analysis["meeting_title"]))
	summary := asString(analysis["contextual_summary"])
	if summary == "" {
		summary = asString(analysis["meeting_summary"])
	}
	res.MeetingSummary = utils.ToSQLStr(summary)
	res.KeyPointsBySpeaker = utils.ToSQLStr(FormatSpeakerBullets(analysis["key_points_by_speaker"]))
	res.ActionItems = utils.ToSQLStr(JoinLines(analysis["key_items_and_action_items"]))
	res.NextSteps = utils.ToSQLStr(JoinLines(analysis["next_steps_and_follow_ups"]))
	res.OpenIssues = utils.ToSQLStr(JoinLines(analysis["considerations_and_open_issues"]))
	res.NotesForNext = utils.ToSQLStr(JoinLines(analysis["notes_for_next_meeting"]))
	toneData := analysis["speaker_intent_analysis"]
	res.ToneAndSentiment = utils.ToSQLStr(FormatTone(toneData))
	res.Intent = utils.ToSQLStr(FormatIntent(toneData))
	return res
}

// FormatSpeakerBullets renders key points per speaker as indented bullets.
// Accepts both the array shape [{"speaker": n, "key_points": [...]}]
// and the map shape {"Name": [...]}
func FormatSpeakerBullets(data any) string {
	switch v := data.(type) {
	case []any:
		var parts []string
		for _, it := range v {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			speaker := asString(m["speaker"])
			points, ok := m["key_points"].([]any)
			if speaker == "" || !ok {
				continue
			}
			parts = append(parts, speakerBlock(speaker, points, "  "))
		}
		return strings.Join(parts, "\n\n")
	case map[string]any:
		var parts []string
		for _, speaker := range sortedKeys(v) {
			points, ok := v[speaker].([]any)
			if !ok {
				continue
			}
			parts = append(parts, speakerBlock(speaker, points, "  "))
		}
		return strings.Join(parts, "\n\n")
	}
	return ""
}

// FormatTone renders per speaker tone and sentiment lines
func FormatTone(data any) string {
	m, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	var parts []string
	for _, speaker := range sortedKeys(m) {
		switch td := m[speaker].(type) {
		case string:
			parts = append(parts, fmt.Sprintf("%s: %s", speaker, td))
		case map[string]any:
			var vals []string
			if t := asString(td["tone"]); t != "" {
				vals = append(vals, "Tone: "+t)
			}
			if s := asString(td["sentiment"]); s != "" {
				vals = append(vals, "Sentiment: "+s)
			}
			parts = append(parts, fmt.Sprintf("%s: %s", speaker, strings.Join(vals, ", ")))
		default:
			b, _ := json.Marshal(td)
			parts = append(parts, fmt.Sprintf("%s: %s", speaker, string(b)))
		}
	}
	return strings.Join(parts, "\n")
}

// FormatIntent renders per speaker intent bullets
func FormatIntent(data any) string {
	m, ok := data.(map[string]any)
	if !ok {
		return ""
	}
	var parts []string
	for _, speaker := range sortedKeys(m) {
		var items []any
		switch sd := m[speaker].(type) {
		case map[string]any:
			items, _ = sd["intent"].([]any)
		case []any:
			items = sd
		}
		if len(items) == 0 {
			continue
		}
		parts = append(parts, speakerBlock(speaker, items, "  - "))
	}
	return strings.Join(parts, "\n\n")
}

// JoinLines joins list items into one line per item. Items may be plain
// strings or objects carrying item, action, issue or note fields
func JoinLines(data any) string {
	arr, ok := data.([]any)
	if !ok {
		return ""
	}
	var lines []string
	for _, it := range arr {
		var s string
		switch v := it.(type) {
		case string:
			s = v
		case map[string]any:
			for _, k := range []string{"item", "action", "issue", "note"} {
				if s = asString(v[k]); s != "" {
					break
				}
			}
		}
		if s != "" {
			lines = append(lines, s)
		}
	}
	return strings.Join(lines, "\n")
}

func speakerBlock(speaker string, items []any, prefix string) string {
	lines := make([]string, 0, len(items))
	for _, p := range items {
		lines = append(lines, prefix+asString(p))
	}
	return fmt.Sprintf("%s:\n%s", speaker, strings.Join(lines, "\n"))
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func sortedKeys(m map[string]any) []string {
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	sort.Strings(res)
	return res
}
