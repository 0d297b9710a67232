package messages

import (
	amessages "github.com/airenas/async-api/pkg/messages"
)

const (
	st = "SCRIBA/"
	// Transcript is the transcript processing queue name
	Transcript = st + "Transcript"
	// StatusChange queue notifies about recording status updates
	StatusChange = st + "StatusChange"
	// Inform queue triggers user notification emails
	Inform = st + "Inform"
)

// TranscriptMessage asks the worker to fetch and process one bot transcript.
// ID of the embedded QueueMessage carries the bot id.
type TranscriptMessage struct {
	amessages.QueueMessage
	MeetingID    string `json:"meetingID"`
	UserID       string `json:"userID"`
	TranscriptID string `json:"transcriptID,omitempty"`
}

// StatusMessage signals that a recording status has changed. ID is the bot id.
type StatusMessage struct {
	amessages.QueueMessage
	Status string `json:"status,omitempty"`
}

// InformMessage asks the inform service to notify a user. ID is the bot id.
type InformMessage struct {
	amessages.QueueMessage
	UserID string `json:"userID"`
	Type   string `json:"type"`
}

const (
	// InformTypeReady - transcript insights are available
	InformTypeReady = "summaryReady"
	// InformTypeFailed - transcript processing failed
	InformTypeFailed = "processingFailed"
)

// NewTranscriptMessage creates a message for a bot
func NewTranscriptMessage(botID, meetingID, userID, transcriptID string) *TranscriptMessage {
	return &TranscriptMessage{QueueMessage: amessages.QueueMessage{ID: botID},
		MeetingID: meetingID, UserID: userID, TranscriptID: transcriptID}
}
