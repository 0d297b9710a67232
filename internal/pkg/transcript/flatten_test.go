package transcript

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func asMap(t *testing.T, s string) map[string]any {
	t.Helper()
	var res map[string]any
	require.Nil(t, json.Unmarshal([]byte(s), &res))
	return res
}

func TestFormatSpeakerBullets_Array(t *testing.T) {
	data := asMap(t, `{"v":[{"speaker":"Ana","key_points":["did X","will do Y"]},{"speaker":"Jonas","key_points":["blocked on Z"]}]}`)["v"]

	r := FormatSpeakerBullets(data)

	assert.Equal(t, "Ana:\n  did X\n  will do Y\n\nJonas:\n  blocked on Z", r)
}

func TestFormatSpeakerBullets_Map(t *testing.T) {
	data := asMap(t, `{"v":{"Ana":["did X"],"Jonas":["blocked on Z"]}}`)["v"]

	r := FormatSpeakerBullets(data)

	assert.Equal(t, "Ana:\n  did X\n\nJonas:\n  blocked on Z", r)
}

func TestFormatSpeakerBullets_SkipsMalformed(t *testing.T) {
	data := asMap(t, `{"v":[{"speaker":"Ana","key_points":["ok"]},{"no_speaker":true},{"speaker":"Jonas","key_points":"oops"}]}`)["v"]

	r := FormatSpeakerBullets(data)

	assert.Equal(t, "Ana:\n  ok", r)
}

func TestFormatSpeakerBullets_Empty(t *testing.T) {
	assert.Equal(t, "", FormatSpeakerBullets(nil))
	assert.Equal(t, "", FormatSpeakerBullets("text"))
}

func TestFormatTone(t *testing.T) {
	data := asMap(t, `{"v":{"Ana":{"tone":"calm","sentiment":"positive","intent":["inform"]},"Jonas":"tense"}}`)["v"]

	r := FormatTone(data)

	assert.Equal(t, "Ana: Tone: calm, Sentiment: positive\nJonas: tense", r)
}

func TestFormatTone_PartialFields(t *testing.T) {
	data := asMap(t, `{"v":{"Ana":{"tone":"calm"}}}`)["v"]

	assert.Equal(t, "Ana: Tone: calm", FormatTone(data))
}

func TestFormatIntent(t *testing.T) {
	data := asMap(t, `{"v":{"Ana":{"tone":"calm","intent":["inform","ask for help"]},"Jonas":["push back"]}}`)["v"]

	r := FormatIntent(data)

	assert.Equal(t, "Ana:\n  - inform\n  - ask for help\n\nJonas:\n  - push back", r)
}

func TestFormatIntent_NoIntent(t *testing.T) {
	data := asMap(t, `{"v":{"Ana":{"tone":"calm"}}}`)["v"]

	assert.Equal(t, "", FormatIntent(data))
}

func TestJoinLines(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "Strings", data: `["a","b"]`, want: "a\nb"},
		{name: "Objects", data: `[{"item":"a"},{"action":"b"},{"issue":"c"},{"note":"d"}]`, want: "a\nb\nc\nd"},
		{name: "Mixed", data: `["a",{"action":"b"},{"other":"skip"}]`, want: "a\nb"},
		{name: "Not array", data: `"a"`, want: ""},
		{name: "Null", data: `null`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JoinLines(asMap(t, `{"v":`+tt.data+`}`)["v"]))
		})
	}
}

func TestFlatten(t *testing.T) {
	analysis := asMap(t, `{
		"meeting_title": "Q3 Planning",
		"contextual_summary": "We planned Q3.",
		"key_points_by_speaker": {"Ana": ["did X"]},
		"key_items_and_action_items": ["ship the thing"],
		"next_steps_and_follow_ups": [{"action": "call back"}],
		"considerations_and_open_issues": [{"issue": "budget"}],
		"notes_for_next_meeting": [{"note": "invite Tom"}],
		"speaker_intent_analysis": {"Ana": {"tone": "calm", "sentiment": "positive", "intent": ["inform"]}}
	}`)

	r := Flatten(analysis)

	assert.Equal(t, "Q3 Planning", r.MeetingTitle.String)
	assert.Equal(t, "We planned Q3.", r.MeetingSummary.String)
	assert.Equal(t, "Ana:\n  did X", r.KeyPointsBySpeaker.String)
	assert.Equal(t, "ship the thing", r.ActionItems.String)
	assert.Equal(t, "call back", r.NextSteps.String)
	assert.Equal(t, "budget", r.OpenIssues.String)
	assert.Equal(t, "invite Tom", r.NotesForNext.String)
	assert.Equal(t, "Ana: Tone: calm, Sentiment: positive", r.ToneAndSentiment.String)
	assert.Equal(t, "Ana:\n  - inform", r.Intent.String)
}

func TestFlatten_SummaryFallback(t *testing.T) {
	r := Flatten(asMap(t, `{"meeting_summary": "short one"}`))

	assert.Equal(t, "short one", r.MeetingSummary.String)
	assert.False(t, r.MeetingTitle.Valid)
	assert.False(t, r.KeyPointsBySpeaker.Valid)
}

func TestFlatten_Nil(t *testing.T) {
	r := Flatten(nil)

	assert.False(t, r.MeetingTitle.Valid)
	assert.False(t, r.Intent.Valid)
}
