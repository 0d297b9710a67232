package messages

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTranscriptMessage(t *testing.T) {
	m := NewTranscriptMessage("bot-1", "m-1", "u-1", "tr-1")
	assert.Equal(t, "bot-1", m.ID)
	assert.Equal(t, "m-1", m.MeetingID)
	assert.Equal(t, "u-1", m.UserID)
	assert.Equal(t, "tr-1", m.TranscriptID)
}

func TestTranscriptMessage_JSON(t *testing.T) {
	m := NewTranscriptMessage("bot-1", "m-1", "u-1", "")
	b, err := json.Marshal(m)
	require.Nil(t, err)
	assert.NotContains(t, string(b), "transcriptID")
	var m2 TranscriptMessage
	require.Nil(t, json.Unmarshal(b, &m2))
	assert.Equal(t, m.ID, m2.ID)
	assert.Equal(t, m.MeetingID, m2.MeetingID)
}
