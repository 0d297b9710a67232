package persistence

import (
	"database/sql"
	"encoding/json"
	"time"
)

type (

	// CalendarConnection holds OAuth credentials of one provider account
	CalendarConnection struct {
		ID             string
		UserID         string
		Provider       string
		AccessToken    string
		RefreshToken   sql.NullString
		TokenExpiresAt time.Time
		Created        time.Time
		Updated        time.Time
	}

	// Calendar mirrors one provider calendar
	Calendar struct {
		ID           string
		UserID       string
		ConnectionID string
		ExternalID   string
		Name         string
		Description  sql.NullString
		Color        string
		Primary      bool
		Selected     bool
		AutoJoin     bool
		AutoRecord   bool
		// webhook channel bookkeeping, owned by the channel registration service
		ChannelID        sql.NullString
		ResourceID       sql.NullString
		ChannelExpiresAt sql.NullTime
		Created          time.Time
		Updated          time.Time
	}

	// Meeting mirrors one calendar event
	Meeting struct {
		ID                 string
		UserID             string
		CalendarID         string // connection the event was synced through
		CalendarExternalID string
		ExternalID         string
		Title              string
		Description        sql.NullString
		Location           sql.NullString
		StartTime          time.Time
		EndTime            time.Time
		Timezone           sql.NullString
		MeetingURL         sql.NullString
		Platform           sql.NullString
		AttendeesCount     int32
		CalendarName       sql.NullString
		CalendarColor      sql.NullString
		AutoJoin           bool
		AutoRecord         bool
		Created            time.Time
		Updated            time.Time
	}

	// Recording tracks one bot invocation for one meeting
	Recording struct {
		BotID        string
		MeetingID    string
		UserID       string
		Status       string
		JoinTime     sql.NullTime
		LeaveTime    sql.NullTime
		RecordingURL sql.NullString
		Created      time.Time
		Updated      time.Time
	}

	// Transcript holds the raw and derived analysis of one recording
	Transcript struct {
		ID                 string
		BotID              string
		MeetingID          string
		UserID             string
		RawTranscript      json.RawMessage
		RecallTranscriptID sql.NullString
		Text               sql.NullString
		Analysis           json.RawMessage
		Flattened          FlattenedAnalysis
		Created            time.Time
		Updated            time.Time
	}

	// FlattenedAnalysis are the human readable insight columns
	FlattenedAnalysis struct {
		MeetingTitle       sql.NullString
		MeetingSummary     sql.NullString
		KeyPointsBySpeaker sql.NullString
		ActionItems        sql.NullString
		NextSteps          sql.NullString
		OpenIssues         sql.NullString
		NotesForNext       sql.NullString
		ToneAndSentiment   sql.NullString
		Intent             sql.NullString
	}
)
