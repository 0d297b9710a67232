package api

import (
	"encoding/json"
	"time"
)

// CreateBotInput is the payload for scheduling a meeting bot
type CreateBotInput struct {
	MeetingURL string     `json:"meeting_url"`
	BotName    string     `json:"bot_name,omitempty"`
	JoinAt     *time.Time `json:"join_at,omitempty"`
}

// Bot is the provider view of one meeting bot
type Bot struct {
	ID         string     `json:"id"`
	MeetingURL string     `json:"meeting_url"`
	JoinAt     *time.Time `json:"join_at,omitempty"`
	Status     BotStatus  `json:"status"`
	VideoURL   string     `json:"video_url,omitempty"`
}

// BotStatus carries the provider status code of a bot
type BotStatus struct {
	Code    string `json:"code"`
	SubCode string `json:"sub_code,omitempty"`
}

// TranscriptData is the transcript resource. Raw keeps the full provider
// payload for storage, the typed fields are the parts the pipeline needs
type TranscriptData struct {
	ID          string
	DownloadURL string
	Raw         json.RawMessage
}

// CreateCalendarInput connects a provider side calendar
type CreateCalendarInput struct {
	UserID             string    `json:"user_id"`
	OAuthClientID      string    `json:"oauth_client_id"`
	OAuthClientSecret  string    `json:"oauth_client_secret"`
	OAuthRefreshToken  string    `json:"oauth_refresh_token"`
	Platform           string    `json:"platform"`
	TokenExpiresAt     time.Time `json:"token_expires_at,omitempty"`
}

// Calendar is the provider side calendar connection
type Calendar struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id,omitempty"`
	Platform string `json:"platform,omitempty"`
	Status   string `json:"status,omitempty"`
}

// CalendarEvent is one event as the provider sees it
type CalendarEvent struct {
	ID         string    `json:"id"`
	CalendarID string    `json:"calendar_id"`
	Title      string    `json:"title"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	MeetingURL string    `json:"meeting_url,omitempty"`
}
