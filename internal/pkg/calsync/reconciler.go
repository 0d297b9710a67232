package calsync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/velia/scriba/internal/pkg/gcal"
	"github.com/velia/scriba/internal/pkg/persistence"
	"github.com/velia/scriba/internal/pkg/utils"
	"golang.org/x/oauth2"
)

const providerGoogle = "google"

// Provider is the external calendar event source
type Provider interface {
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	ListCalendars(ctx context.Context, accessToken string) ([]*gcal.CalendarInfo, error)
	ListEvents(ctx context.Context, accessToken, calendarID string, from, to time.Time) ([]*gcal.Event, error)
}

// DB provides persistence functionality
type DB interface {
	LoadConnections(ctx context.Context, userID string) ([]*persistence.CalendarConnection, error)
	UpdateConnectionToken(ctx context.Context, conn *persistence.CalendarConnection) error
	UpsertCalendar(ctx context.Context, cal *persistence.Calendar) (bool, error)
	LoadCalendars(ctx context.Context, userID string) ([]*persistence.Calendar, error)
	UpsertMeeting(ctx context.Context, m *persistence.Meeting) (bool, error)
	LoadUpcomingMeetings(ctx context.Context, userID string, from time.Time) ([]*persistence.Meeting, error)
}

// Reconciler mirrors provider calendars and events into the DB
type Reconciler struct {
	db       DB
	provider Provider
	window   time.Duration
	timeNow  func() time.Time
}

// NewReconciler creates a reconciler instance
func NewReconciler(db DB, provider Provider, windowDays int) (*Reconciler, error) {
	if db == nil {
		return nil, fmt.Errorf("no DB")
	}
	if provider == nil {
		return nil, fmt.Errorf("no provider")
	}
	if windowDays < 1 {
		windowDays = 7
	}
	return &Reconciler{db: db, provider: provider, window: time.Hour * 24 * time.Duration(windowDays),
		timeNow: time.Now}, nil
}

// Result is the outcome of one sync run
type Result struct {
	Success           bool            `json:"success"`
	Meetings          []*meetingData  `json:"meetings"`
	Calendars         []*calendarData `json:"calendars"`
	NewMeetingsCount  int             `json:"newMeetingsCount"`
	NewCalendarsCount int             `json:"newCalendarsCount"`
}

type meetingData struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	StartTime      time.Time `json:"startTime"`
	EndTime        time.Time `json:"endTime"`
	MeetingURL     string    `json:"meetingUrl,omitempty"`
	Platform       string    `json:"platform,omitempty"`
	CalendarName   string    `json:"calendarName,omitempty"`
	CalendarColor  string    `json:"calendarColor,omitempty"`
	AttendeesCount int32     `json:"attendeesCount"`
}

type calendarData struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Primary  bool   `json:"primary"`
	Selected bool   `json:"selected"`
}

// Run syncs all calendar connections of a user.
// Per connection and per event failures are logged and skipped,
// only DB reads of the final answer are fatal
func (r *Reconciler) Run(ctx context.Context, userID string) (*Result, error) {
	goapp.Log.Info().Str("user", userID).Msg("sync calendars")
	now := r.timeNow()
	to := now.Add(r.window)

	conns, err := r.db.LoadConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("can't load connections: %w", err)
	}
	goapp.Log.Info().Int("count", len(conns)).Msg("got connections")

	res := &Result{Success: true}
	for _, conn := range conns {
		if err := r.syncConnection(ctx, conn, now, to, res); err != nil {
			goapp.Log.Warn().Err(err).Str("connection", conn.ID).Msg("skip connection")
		}
	}

	meetings, err := r.db.LoadUpcomingMeetings(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("can't load meetings: %w", err)
	}
	calendars, err := r.db.LoadCalendars(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("can't load calendars: %w", err)
	}
	res.Meetings = mapMeetings(meetings)
	res.Calendars = mapCalendars(calendars)
	return res, nil
}

func (r *Reconciler) syncConnection(ctx context.Context, conn *persistence.CalendarConnection,
	now, to time.Time, res *Result) error {
	if !strings.EqualFold(conn.Provider, providerGoogle) {
		return fmt.Errorf("unsupported provider '%s'", conn.Provider)
	}
	if !conn.TokenExpiresAt.After(now) {
		if err := r.refreshToken(ctx, conn); err != nil {
			return err
		}
	}

	cals, err := r.provider.ListCalendars(ctx, conn.AccessToken)
	if err != nil {
		return fmt.Errorf("can't list calendars: %w", err)
	}
	goapp.Log.Info().Int("count", len(cals)).Str("connection", conn.ID).Msg("got calendars")

	for _, cal := range cals {
		pc := &persistence.Calendar{ID: uuid.NewString(), UserID: conn.UserID, ConnectionID: conn.ID,
			ExternalID: cal.ExternalID, Name: cal.Name, Description: utils.ToSQLStr(cal.Description),
			Color: cal.Color, Primary: cal.Primary, Selected: true}
		created, err := r.db.UpsertCalendar(ctx, pc)
		if err != nil {
			goapp.Log.Warn().Err(err).Str("calendar", cal.ExternalID).Msg("skip calendar")
			continue
		}
		if created {
			res.NewCalendarsCount++
		}
		r.syncEvents(ctx, conn, cal, now, to, res)
	}
	return nil
}

// refreshToken gets and persists a fresh access token.
// A reissued refresh token replaces the stored one
func (r *Reconciler) refreshToken(ctx context.Context, conn *persistence.CalendarConnection) error {
	if !conn.RefreshToken.Valid || conn.RefreshToken.String == "" {
		return fmt.Errorf("token expired, no refresh token")
	}
	goapp.Log.Info().Str("connection", conn.ID).Msg("refreshing token")
	token, err := r.provider.RefreshToken(ctx, conn.RefreshToken.String)
	if err != nil {
		return fmt.Errorf("can't refresh token: %w", err)
	}
	conn.AccessToken = token.AccessToken
	conn.TokenExpiresAt = token.Expiry
	if token.RefreshToken != "" {
		conn.RefreshToken = utils.ToSQLStr(token.RefreshToken)
	}
	if err := r.db.UpdateConnectionToken(ctx, conn); err != nil {
		return fmt.Errorf("can't save token: %w", err)
	}
	return nil
}

func (r *Reconciler) syncEvents(ctx context.Context, conn *persistence.CalendarConnection,
	cal *gcal.CalendarInfo, now, to time.Time, res *Result) {
	events, err := r.provider.ListEvents(ctx, conn.AccessToken, cal.ExternalID, now, to)
	if err != nil {
		goapp.Log.Warn().Err(err).Str("calendar", cal.ExternalID).Msg("can't list events")
		return
	}
	goapp.Log.Info().Int("count", len(events)).Str("calendar", cal.ExternalID).Msg("got events")
	for _, ev := range events {
		url, platform := deriveMeetingLink(ev)
		m := &persistence.Meeting{ID: uuid.NewString(), UserID: conn.UserID, CalendarID: conn.ID,
			CalendarExternalID: cal.ExternalID, ExternalID: ev.ID, Title: ev.Title,
			Description: utils.ToSQLStr(ev.Description), Location: utils.ToSQLStr(ev.Location),
			StartTime: ev.Start, EndTime: ev.End, Timezone: utils.ToSQLStr(ev.Timezone),
			MeetingURL: utils.ToSQLStr(url), Platform: utils.ToSQLStr(platform),
			AttendeesCount: ev.AttendeesCount, CalendarName: utils.ToSQLStr(cal.Name),
			CalendarColor: utils.ToSQLStr(cal.Color)}
		inserted, err := r.db.UpsertMeeting(ctx, m)
		if err != nil {
			goapp.Log.Warn().Err(err).Str("event", ev.ID).Msg("skip event")
			continue
		}
		if inserted {
			res.NewMeetingsCount++
		}
	}
}

func mapMeetings(meetings []*persistence.Meeting) []*meetingData {
	res := make([]*meetingData, 0, len(meetings))
	for _, m := range meetings {
		res = append(res, &meetingData{ID: m.ID, Title: m.Title, StartTime: m.StartTime, EndTime: m.EndTime,
			MeetingURL: utils.FromSQLStr(m.MeetingURL), Platform: utils.FromSQLStr(m.Platform),
			CalendarName: utils.FromSQLStr(m.CalendarName), CalendarColor: utils.FromSQLStr(m.CalendarColor),
			AttendeesCount: m.AttendeesCount})
	}
	return res
}

func mapCalendars(calendars []*persistence.Calendar) []*calendarData {
	res := make([]*calendarData, 0, len(calendars))
	for _, c := range calendars {
		res = append(res, &calendarData{ID: c.ID, Name: c.Name, Color: c.Color, Primary: c.Primary,
			Selected: c.Selected})
	}
	return res
}
