package gcal

import (
	"context"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// CalendarInfo is one provider calendar
type CalendarInfo struct {
	ExternalID  string
	Name        string
	Description string
	Color       string
	Primary     bool
}

// Event is one provider calendar event
type Event struct {
	ID             string
	Title          string
	Description    string
	Location       string
	Start          time.Time
	End            time.Time
	Timezone       string
	HangoutLink    string
	ConferenceURL  string
	ConferenceName string
	AttendeesCount int32
}

// Client accesses Google calendars on behalf of stored OAuth connections
type Client struct {
	cfg     *oauth2.Config
	timeout time.Duration
}

// NewClient creates a Google calendar client
func NewClient(clientID, clientSecret string) (*Client, error) {
	if clientID == "" {
		return nil, fmt.Errorf("no google client id")
	}
	if clientSecret == "" {
		return nil, fmt.Errorf("no google client secret")
	}
	res := &Client{}
	res.cfg = &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{calendar.CalendarReadonlyScope},
	}
	res.timeout = time.Second * 50
	return res, nil
}

// RefreshToken exchanges a refresh token for a fresh access token
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, cancelF := context.WithTimeout(ctx, c.timeout)
	defer cancelF()
	token, err := c.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("can't refresh token: %w", err)
	}
	return token, nil
}

// ListCalendars returns all calendars visible to the connection
func (c *Client) ListCalendars(ctx context.Context, accessToken string) ([]*CalendarInfo, error) {
	ctx, cancelF := context.WithTimeout(ctx, c.timeout)
	defer cancelF()
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	list, err := svc.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("can't list calendars: %w", err)
	}
	res := make([]*CalendarInfo, 0, len(list.Items))
	for _, it := range list.Items {
		res = append(res, mapCalendar(it))
	}
	return res, nil
}

// ListEvents returns single events of a calendar in the given window, ordered by start time
func (c *Client) ListEvents(ctx context.Context, accessToken, calendarID string, from, to time.Time) ([]*Event, error) {
	ctx, cancelF := context.WithTimeout(ctx, c.timeout)
	defer cancelF()
	svc, err := c.service(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	list, err := svc.Events.List(calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("can't list events: %w", err)
	}
	res := make([]*Event, 0, len(list.Items))
	for _, it := range list.Items {
		ev, err := mapEvent(it)
		if err != nil {
			goapp.Log.Warn().Err(err).Str("event", it.Id).Msg("skip event")
			continue
		}
		res = append(res, ev)
	}
	return res, nil
}

func (c *Client) service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(hc))
	if err != nil {
		return nil, fmt.Errorf("can't create calendar service: %w", err)
	}
	return svc, nil
}

func mapCalendar(it *calendar.CalendarListEntry) *CalendarInfo {
	res := &CalendarInfo{ExternalID: it.Id, Name: it.Summary, Description: it.Description,
		Color: it.BackgroundColor, Primary: it.Primary}
	if res.Name == "" {
		res.Name = "Unnamed Calendar"
	}
	if res.Color == "" {
		res.Color = "#4285F4"
	}
	return res
}

func mapEvent(it *calendar.Event) (*Event, error) {
	res := &Event{ID: it.Id, Title: it.Summary, Description: it.Description, Location: it.Location,
		HangoutLink: it.HangoutLink}
	if res.Title == "" {
		res.Title = "No Title"
	}
	var err error
	res.Start, res.Timezone, err = mapTime(it.Start, "T00:00:00Z")
	if err != nil {
		return nil, fmt.Errorf("can't parse start: %w", err)
	}
	var tz string
	res.End, tz, err = mapTime(it.End, "T23:59:59Z")
	if err != nil {
		return nil, fmt.Errorf("can't parse end: %w", err)
	}
	if res.Timezone == "" {
		res.Timezone = tz
	}
	if it.ConferenceData != nil {
		for _, ep := range it.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" && ep.Uri != "" {
				res.ConferenceURL = ep.Uri
				break
			}
		}
		if it.ConferenceData.ConferenceSolution != nil {
			res.ConferenceName = it.ConferenceData.ConferenceSolution.Name
		}
	}
	res.AttendeesCount = int32(len(it.Attendees))
	if res.AttendeesCount == 0 {
		res.AttendeesCount = 1
	}
	return res, nil
}

// mapTime parses either a timed or an all day event boundary.
// allDaySuffix makes a date-only value span the whole day
func mapTime(edt *calendar.EventDateTime, allDaySuffix string) (time.Time, string, error) {
	if edt == nil {
		return time.Time{}, "", fmt.Errorf("no time")
	}
	if edt.DateTime != "" {
		res, err := time.Parse(time.RFC3339, edt.DateTime)
		return res, edt.TimeZone, err
	}
	if edt.Date != "" {
		res, err := time.Parse(time.RFC3339, edt.Date+allDaySuffix)
		return res, edt.TimeZone, err
	}
	return time.Time{}, "", fmt.Errorf("no time")
}
