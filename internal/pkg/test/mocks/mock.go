package mocks

import (
	"context"
	"io"
	"time"

	"github.com/airenas/async-api/pkg/inform"
	"github.com/airenas/async-api/pkg/messages"
	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/mock"
	"github.com/velia/scriba/internal/pkg/persistence"
	rapi "github.com/velia/scriba/internal/pkg/recall/api"
)

// Filer is minio mock
type Filer struct{ mock.Mock }

func (m *Filer) SaveFile(ctx context.Context, name string, r io.Reader) error {
	args := m.Called(ctx, name, r)
	return args.Error(0)
}

// DB is postgres DB mock
type DB struct{ mock.Mock }

func (m *DB) LoadConnections(ctx context.Context, userID string) ([]*persistence.CalendarConnection, error) {
	args := m.Called(ctx, userID)
	return to[[]*persistence.CalendarConnection](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateConnectionToken(ctx context.Context, conn *persistence.CalendarConnection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

func (m *DB) UpsertCalendar(ctx context.Context, cal *persistence.Calendar) (bool, error) {
	args := m.Called(ctx, cal)
	return args.Bool(0), args.Error(1)
}

func (m *DB) LoadCalendars(ctx context.Context, userID string) ([]*persistence.Calendar, error) {
	args := m.Called(ctx, userID)
	return to[[]*persistence.Calendar](args.Get(0)), args.Error(1)
}

func (m *DB) UpsertMeeting(ctx context.Context, mt *persistence.Meeting) (bool, error) {
	args := m.Called(ctx, mt)
	return args.Bool(0), args.Error(1)
}

func (m *DB) LoadUpcomingMeetings(ctx context.Context, userID string, from time.Time) ([]*persistence.Meeting, error) {
	args := m.Called(ctx, userID, from)
	return to[[]*persistence.Meeting](args.Get(0)), args.Error(1)
}

func (m *DB) InsertRecording(ctx context.Context, r *persistence.Recording) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *DB) LoadRecording(ctx context.Context, botID string) (*persistence.Recording, error) {
	args := m.Called(ctx, botID)
	return to[*persistence.Recording](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateRecordingStatus(ctx context.Context, botID, status string, leaveTime *time.Time) error {
	args := m.Called(ctx, botID, status, leaveTime)
	return args.Error(0)
}

func (m *DB) UpsertTranscriptRaw(ctx context.Context, tr *persistence.Transcript) error {
	args := m.Called(ctx, tr)
	return args.Error(0)
}

func (m *DB) LoadTranscript(ctx context.Context, id string) (*persistence.Transcript, error) {
	args := m.Called(ctx, id)
	return to[*persistence.Transcript](args.Get(0)), args.Error(1)
}

func (m *DB) UpdateTranscriptResults(ctx context.Context, tr *persistence.Transcript) error {
	args := m.Called(ctx, tr)
	return args.Error(0)
}

func (m *DB) LoadUserEmail(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *DB) LockEmailTable(ctx context.Context, botID, msgType string) error {
	args := m.Called(ctx, botID, msgType)
	return args.Error(0)
}

func (m *DB) UnLockEmailTable(ctx context.Context, botID, msgType string, value *int) error {
	args := m.Called(ctx, botID, msgType, value)
	return args.Error(0)
}

// Sender is postgres queue mock
type Sender struct{ mock.Mock }

func (m *Sender) SendMessage(ctx context.Context, msg messages.Message, queue string) error {
	args := m.Called(ctx, msg, queue)
	return args.Error(0)
}

// Recall is bot provider client mock
type Recall struct{ mock.Mock }

func (m *Recall) CreateBot(ctx context.Context, in *rapi.CreateBotInput) (*rapi.Bot, error) {
	args := m.Called(ctx, in)
	return to[*rapi.Bot](args.Get(0)), args.Error(1)
}

func (m *Recall) GetBot(ctx context.Context, botID string) (*rapi.Bot, error) {
	args := m.Called(ctx, botID)
	return to[*rapi.Bot](args.Get(0)), args.Error(1)
}

func (m *Recall) DeleteBot(ctx context.Context, botID string) error {
	args := m.Called(ctx, botID)
	return args.Error(0)
}

func (m *Recall) StartAnalysis(ctx context.Context, botID string) error {
	args := m.Called(ctx, botID)
	return args.Error(0)
}

func (m *Recall) GetTranscript(ctx context.Context, botID, transcriptID string) (*rapi.TranscriptData, error) {
	args := m.Called(ctx, botID, transcriptID)
	return to[*rapi.TranscriptData](args.Get(0)), args.Error(1)
}

func (m *Recall) FetchContent(ctx context.Context, downloadURL string) ([]byte, error) {
	args := m.Called(ctx, downloadURL)
	return to[[]byte](args.Get(0)), args.Error(1)
}

// Analyzer is assistant client mock
type Analyzer struct{ mock.Mock }

func (m *Analyzer) Analyze(ctx context.Context, text string) (string, error) {
	args := m.Called(ctx, text)
	return args.String(0), args.Error(1)
}

// EmailMaker is email preparation mock
type EmailMaker struct{ mock.Mock }

func (m *EmailMaker) Make(data *inform.Data) (*email.Email, error) {
	args := m.Called(data)
	return to[*email.Email](args.Get(0)), args.Error(1)
}

// EmailSender is smtp sender mock
type EmailSender struct{ mock.Mock }

func (m *EmailSender) Send(e *email.Email) error {
	args := m.Called(e)
	return args.Error(0)
}

func to[T interface{}](val interface{}) T {
	if val == nil {
		var res T
		return res
	}
	return val.(T)
}
