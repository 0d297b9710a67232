package recall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
	rapi "github.com/velia/scriba/internal/pkg/recall/api"
)

// Client comunicates with the bot provider API
type Client struct {
	httpclient *http.Client
	url        string
	key        string
	timeout    time.Duration
	backoff    func() backoff.BackOff
}

// NewClient creates a bot provider client
func NewClient(urlStr, key string) (*Client, error) {
	res := Client{}
	if urlStr == "" {
		return nil, fmt.Errorf("no recall URL")
	}
	if !strings.HasPrefix(urlStr, "http") {
		return nil, fmt.Errorf("no http in recall URL")
	}
	if key == "" {
		return nil, fmt.Errorf("no recall key")
	}
	res.url = strings.TrimSuffix(urlStr, "/")
	res.key = key
	res.timeout = time.Second * 50
	res.httpclient = providerHTTPClient()
	res.backoff = newSimpleBackoff
	return &res, nil
}

// CreateBot schedules a bot into a meeting
func (sp *Client) CreateBot(ctx context.Context, in *rapi.CreateBotInput) (*rapi.Bot, error) {
	if in == nil || in.MeetingURL == "" {
		return nil, fmt.Errorf("no meeting URL")
	}
	res := &rapi.Bot{}
	err := sp.invoke(ctx, http.MethodPost, sp.url+"/api/v1/bot/", in, res)
	if err != nil {
		return nil, err
	}
	if res.ID == "" {
		return nil, fmt.Errorf("can't get bot ID from response")
	}
	return res, nil
}

// GetBot returns the bot by ID
func (sp *Client) GetBot(ctx context.Context, botID string) (*rapi.Bot, error) {
	if botID == "" {
		return nil, fmt.Errorf("no botID")
	}
	res := &rapi.Bot{}
	err := sp.invoke(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/bot/%s/", sp.url, url.PathEscape(botID)), nil, res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteBot removes the scheduled bot
func (sp *Client) DeleteBot(ctx context.Context, botID string) error {
	if botID == "" {
		return fmt.Errorf("no botID")
	}
	return sp.invoke(ctx, http.MethodDelete, fmt.Sprintf("%s/api/v1/bot/%s/", sp.url, url.PathEscape(botID)), nil, nil)
}

// StartAnalysis asks the provider to prepare the transcript of a finished bot
func (sp *Client) StartAnalysis(ctx context.Context, botID string) error {
	if botID == "" {
		return fmt.Errorf("no botID")
	}
	goapp.Log.Info().Str("ID", botID).Msg("start transcript analysis")
	return sp.invoke(ctx, http.MethodPost, fmt.Sprintf("%s/api/v2beta/bot/%s/analyze", sp.url, url.PathEscape(botID)),
		map[string]any{"transcript": true}, nil)
}

type transcriptResponse struct {
	ID   string `json:"id"`
	Data struct {
		DownloadURL string `json:"download_url"`
	} `json:"data"`
}

type transcriptListResponse struct {
	Results []json.RawMessage `json:"results"`
}

// GetTranscript returns the transcript resource. The transcript ID is
// preferred when known, else the newest transcript of the bot is taken
func (sp *Client) GetTranscript(ctx context.Context, botID, transcriptID string) (*rapi.TranscriptData, error) {
	var body []byte
	var err error
	if transcriptID != "" {
		body, err = sp.invokeRaw(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/transcript/%s/", sp.url, url.PathEscape(transcriptID)), nil)
		if err != nil {
			return nil, err
		}
	} else {
		if botID == "" {
			return nil, fmt.Errorf("no botID")
		}
		lst, err := sp.invokeRaw(ctx, http.MethodGet, fmt.Sprintf("%s/api/v1/transcript/?bot_id=%s", sp.url, url.QueryEscape(botID)), nil)
		if err != nil {
			return nil, err
		}
		var lr transcriptListResponse
		if err := json.Unmarshal(lst, &lr); err != nil {
			return nil, fmt.Errorf("can't unmarshal transcript list: %w", err)
		}
		if len(lr.Results) == 0 {
			return nil, fmt.Errorf("no transcript for bot %s", botID)
		}
		body = lr.Results[0]
	}
	var tr transcriptResponse
	if err = json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("can't unmarshal transcript: %w", err)
	}
	return &rapi.TranscriptData{ID: tr.ID, DownloadURL: tr.Data.DownloadURL, Raw: body}, nil
}

// FetchContent downloads the transcript payload from the provider storage URL
func (sp *Client) FetchContent(ctx context.Context, downloadURL string) ([]byte, error) {
	if downloadURL == "" {
		return nil, fmt.Errorf("no download URL")
	}
	return sp.invokeRaw(ctx, http.MethodGet, downloadURL, nil)
}

// CreateCalendar connects a provider side calendar for the user tokens
func (sp *Client) CreateCalendar(ctx context.Context, in *rapi.CreateCalendarInput) (*rapi.Calendar, error) {
	if in == nil || in.OAuthRefreshToken == "" {
		return nil, fmt.Errorf("no refresh token")
	}
	res := &rapi.Calendar{}
	err := sp.invoke(ctx, http.MethodPost, sp.url+"/api/v2/calendars/", in, res)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// ListCalendars returns the provider side calendar connections
func (sp *Client) ListCalendars(ctx context.Context) ([]*rapi.Calendar, error) {
	var res struct {
		Results []*rapi.Calendar `json:"results"`
	}
	err := sp.invoke(ctx, http.MethodGet, sp.url+"/api/v2/calendars/", nil, &res)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

// ListCalendarEvents returns the provider view of the calendar events
func (sp *Client) ListCalendarEvents(ctx context.Context, calendarID string) ([]*rapi.CalendarEvent, error) {
	if calendarID == "" {
		return nil, fmt.Errorf("no calendarID")
	}
	var res struct {
		Results []*rapi.CalendarEvent `json:"results"`
	}
	err := sp.invoke(ctx, http.MethodGet, fmt.Sprintf("%s/api/v2/calendar-events/?calendar_id=%s", sp.url, url.QueryEscape(calendarID)), nil, &res)
	if err != nil {
		return nil, err
	}
	return res.Results, nil
}

func (sp *Client) invoke(ctx context.Context, method, urlStr string, in, out any) error {
	body, err := sp.invokeRaw(ctx, method, urlStr, in)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("can't unmarshal: %w", err)
	}
	return nil
}

func (sp *Client) invokeRaw(ctx context.Context, method, urlStr string, in any) ([]byte, error) {
	var inBytes []byte
	if in != nil {
		var err error
		inBytes, err = json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("can't marshal input: %w", err)
		}
	}
	return goapp.InvokeWithBackoff(ctx, func() ([]byte, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		var rd io.Reader
		if inBytes != nil {
			rd = bytes.NewReader(inBytes)
		}
		req, err := http.NewRequest(method, urlStr, rd)
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Authorization", "Token "+sp.key)
		if inBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req = req.WithContext(ctx)
		goapp.Log.Debug().Str("url", req.URL.String()).Str("method", req.Method).Msg("call")
		resp, err := sp.httpclient.Do(req)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't call: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 10000))
			_ = resp.Body.Close()
		}()
		if err := goapp.ValidateHTTPResp(resp, 100); err != nil {
			err = fmt.Errorf("can't invoke '%s': %w", req.URL.String(), err)
			return nil, goapp.IsRetryableCode(resp.StatusCode), err
		}
		br, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't read body: %w", err)
		}
		return br, false, nil
	}, sp.backoff())
}

func providerHTTPClient() *http.Client {
	return &http.Client{Transport: newTransport()}
}

func newTransport() http.RoundTripper {
	// default roundripper is not well suited for our case
	// it has just 2 idle connections per host, so try to tune a bit
	res := http.DefaultTransport.(*http.Transport).Clone()
	res.MaxConnsPerHost = 100
	res.MaxIdleConns = 50
	res.MaxIdleConnsPerHost = 50
	res.IdleConnTimeout = 90 * time.Second
	return res
}

func newSimpleBackoff() backoff.BackOff {
	res := backoff.NewExponentialBackOff()
	return backoff.WithMaxRetries(res, 3)
}
