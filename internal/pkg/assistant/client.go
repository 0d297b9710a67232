package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/cenkalti/backoff/v4"
)

// ErrNotCompleted indicates the analysis run finished in a non completed state
// or the polling budget ran out
var ErrNotCompleted = errors.New("assistant run not completed")

// Client comunicates with the OpenAI assistants API
type Client struct {
	httpclient   *http.Client
	url          string
	key          string
	assistantID  string
	pollInterval time.Duration
	maxAttempts  int
	timeout      time.Duration
	backoff      func() backoff.BackOff
}

// NewClient creates an assistant client. Fails fast on missing credentials
func NewClient(urlStr, key, assistantID string, pollInterval time.Duration, maxAttempts int) (*Client, error) {
	res := Client{}
	if urlStr == "" {
		urlStr = "https://api.openai.com/v1"
	}
	if !strings.HasPrefix(urlStr, "http") {
		return nil, fmt.Errorf("no http in openai URL")
	}
	if key == "" {
		return nil, fmt.Errorf("no openai key")
	}
	if assistantID == "" {
		return nil, fmt.Errorf("no assistantID")
	}
	res.url = strings.TrimSuffix(urlStr, "/")
	res.key = key
	res.assistantID = assistantID
	res.pollInterval = pollInterval
	if res.pollInterval <= 0 {
		res.pollInterval = time.Second * 5
	}
	res.maxAttempts = maxAttempts
	if res.maxAttempts <= 0 {
		res.maxAttempts = 60
	}
	res.timeout = time.Second * 50
	res.httpclient = &http.Client{Transport: newTransport()}
	res.backoff = newSimpleBackoff
	return &res, nil
}

type idResponse struct {
	ID string `json:"id"`
}

type runResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	LastError json.RawMessage `json:"last_error,omitempty"`
}

type messagesResponse struct {
	Data []struct {
		Role    string `json:"role"`
		Content []struct {
			Type string `json:"type"`
			Text struct {
				Value string `json:"value"`
			} `json:"text"`
		} `json:"content"`
	} `json:"data"`
}

// Analyze sends the transcript text to the assistant and returns the raw reply text.
// It creates a thread, posts the text, starts a run and polls until done
func (sp *Client) Analyze(ctx context.Context, text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("no text")
	}
	var thread idResponse
	if err := sp.invoke(ctx, http.MethodPost, "/threads", map[string]any{}, &thread); err != nil {
		return "", fmt.Errorf("can't create thread: %w", err)
	}
	goapp.Log.Info().Str("thread", thread.ID).Int("textLen", len(text)).Msg("created thread")
	if err := sp.invoke(ctx, http.MethodPost, fmt.Sprintf("/threads/%s/messages", url.PathEscape(thread.ID)),
		map[string]any{"role": "user", "content": text}, nil); err != nil {
		return "", fmt.Errorf("can't add message: %w", err)
	}
	var run runResponse
	if err := sp.invoke(ctx, http.MethodPost, fmt.Sprintf("/threads/%s/runs", url.PathEscape(thread.ID)),
		map[string]any{"assistant_id": sp.assistantID}, &run); err != nil {
		return "", fmt.Errorf("can't start run: %w", err)
	}
	goapp.Log.Info().Str("thread", thread.ID).Str("run", run.ID).Msg("started run")
	if err := sp.waitForRun(ctx, thread.ID, run.ID); err != nil {
		return "", err
	}
	var msgs messagesResponse
	if err := sp.invoke(ctx, http.MethodGet, fmt.Sprintf("/threads/%s/messages", url.PathEscape(thread.ID)), nil, &msgs); err != nil {
		return "", fmt.Errorf("can't get messages: %w", err)
	}
	for _, m := range msgs.Data {
		if m.Role != "assistant" {
			continue
		}
		for _, c := range m.Content {
			if c.Type == "text" {
				return c.Text.Value, nil
			}
		}
		return "", fmt.Errorf("unexpected assistant response format")
	}
	return "", fmt.Errorf("no assistant response")
}

func (sp *Client) waitForRun(ctx context.Context, threadID, runID string) error {
	st := "queued"
	for i := 0; i < sp.maxAttempts; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sp.pollInterval):
		}
		var run runResponse
		err := sp.invoke(ctx, http.MethodGet, fmt.Sprintf("/threads/%s/runs/%s", url.PathEscape(threadID), url.PathEscape(runID)), nil, &run)
		if err != nil {
			goapp.Log.Warn().Err(err).Str("run", runID).Msg("can't get run status")
			continue
		}
		st = run.Status
		goapp.Log.Debug().Str("run", runID).Str("status", st).Int("attempt", i+1).Msg("poll")
		if len(run.LastError) > 0 && string(run.LastError) != "null" {
			goapp.Log.Error().Str("run", runID).Str("error", string(run.LastError)).Msg("run error")
		}
		if st == "completed" {
			return nil
		}
		if st == "failed" || st == "cancelled" || st == "expired" {
			return fmt.Errorf("run status %s: %w", st, ErrNotCompleted)
		}
	}
	return fmt.Errorf("run status %s after %d attempts: %w", st, sp.maxAttempts, ErrNotCompleted)
}

func (sp *Client) invoke(ctx context.Context, method, path string, in, out any) error {
	var inBytes []byte
	if in != nil {
		var err error
		inBytes, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("can't marshal input: %w", err)
		}
	}
	_, err := goapp.InvokeWithBackoff(ctx, func() (interface{}, bool, error) {
		ctx, cancelF := context.WithTimeout(ctx, sp.timeout)
		defer cancelF()
		var rd io.Reader
		if inBytes != nil {
			rd = bytes.NewReader(inBytes)
		}
		req, err := http.NewRequest(method, sp.url+path, rd)
		if err != nil {
			return nil, false, err
		}
		req.Header.Set("Authorization", "Bearer "+sp.key)
		req.Header.Set("OpenAI-Beta", "assistants=v2")
		if inBytes != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req = req.WithContext(ctx)
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
		if out == nil {
			return nil, false, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, goapp.IsRetryableErr(err), fmt.Errorf("can't unmarshal: %w", err)
		}
		return nil, false, nil
	}, sp.backoff())
	return err
}

func newTransport() http.RoundTripper {
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
