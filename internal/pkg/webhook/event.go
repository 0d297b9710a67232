package webhook

import (
	"github.com/velia/scriba/internal/pkg/status"
)

// Event is the provider webhook payload
type Event struct {
	Event string    `json:"event"`
	Data  EventData `json:"data"`
}

// EventData carries the event body. The bot id arrives either nested
// under bot or as a flat bot_id, depending on the event family
type EventData struct {
	Bot *struct {
		ID string `json:"id"`
	} `json:"bot,omitempty"`
	BotID  string `json:"bot_id,omitempty"`
	Status *struct {
		Code    string `json:"code"`
		SubCode string `json:"sub_code,omitempty"`
	} `json:"status,omitempty"`
	Transcript *struct {
		ID string `json:"id"`
	} `json:"transcript,omitempty"`
	Data *struct {
		Code    string `json:"code,omitempty"`
		SubCode string `json:"sub_code,omitempty"`
	} `json:"data,omitempty"`
}

// botID returns the bot id wherever the event put it
func botID(d *EventData) string {
	if d.Bot != nil && d.Bot.ID != "" {
		return d.Bot.ID
	}
	return d.BotID
}

const eventTranscriptDone = "transcript.done"

// eventStatus maps provider lifecycle events to recording statuses
var eventStatus = map[string]status.Status{
	"bot.joining_call":                 status.Joining,
	"bot.in_waiting_room":              status.Waiting,
	"bot.in_call_not_recording":        status.Joined,
	"bot.recording_permission_allowed": status.Recording,
	"bot.recording_permission_denied":  status.PermissionDenied,
	"bot.in_call_recording":            status.Recording,
	"bot.call_ended":                   status.Completed,
	"bot.done":                         status.Completed,
	"bot.fatal":                        status.Error,
}

// startsTranscript tells if the event ends a call with data worth processing
func startsTranscript(event string) bool {
	return event == "bot.call_ended" || event == "bot.done"
}

// setsLeaveTime tells if the event marks the bot leaving the call
func setsLeaveTime(event string) bool {
	return event == "bot.call_ended" || event == "bot.done" || event == "bot.fatal"
}
