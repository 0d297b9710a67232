//go:build integration
// +build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velia/scriba/internal/pkg/test"
)

type config struct {
	webhookURL string
	statusURL  string
	dbURL      string
	httpclient *http.Client
}

var cfg config

func TestMain(m *testing.M) {
	cfg.webhookURL = GetEnvOrFail("WEBHOOK_URL")
	cfg.statusURL = GetEnvOrFail("STATUS_URL")
	cfg.dbURL = GetEnvOrFail("DB_URL")
	cfg.httpclient = &http.Client{Timeout: time.Second * 30}

	tCtx, cf := context.WithTimeout(context.Background(), time.Second*20)
	defer cf()
	WaitForOpenOrFail(tCtx, cfg.dbURL)
	WaitForOpenOrFail(tCtx, cfg.webhookURL)
	WaitForOpenOrFail(tCtx, cfg.statusURL)
	waitForDB(tCtx, cfg.dbURL)

	//start mock for the bot provider - not in this docker compose
	l, ts := startMockService(9876)
	defer ts.Close()
	defer l.Close()

	os.Exit(m.Run())
}

func TestWebhookLive(t *testing.T) {
	t.Parallel()
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.webhookURL, "/live", nil)), http.StatusOK)
}

func TestStatusLive(t *testing.T) {
	t.Parallel()
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.statusURL, "/live", nil)), http.StatusOK)
}

func TestCreateBot(t *testing.T) {
	t.Parallel()
	req := NewRequest(t, http.MethodPost, cfg.webhookURL, "/bots", map[string]string{
		"meetingId": "m-int-1", "userId": "u-int-1", "meetingUrl": "https://meet.google.com/abc-def-ghi"})
	resp := test.Invoke(t, cfg.httpclient, req)
	test.CheckCode(t, resp, http.StatusOK)
	res := test.Decode[createBotResponse](t, resp)
	assert.NotEmpty(t, res.BotID)
	assert.Equal(t, "scheduled", res.Status)
}

func TestCreateBot_Fail_NoURL(t *testing.T) {
	t.Parallel()
	req := NewRequest(t, http.MethodPost, cfg.webhookURL, "/bots", map[string]string{
		"meetingId": "m-int-2", "userId": "u-int-2"})
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, req), http.StatusBadRequest)
}

func TestStatus_Check_None(t *testing.T) {
	t.Parallel()
	st := getStatus(t, "no-such-bot")
	assert.Equal(t, "NOT_FOUND", st.Status)
	assert.Equal(t, "no-such-bot", st.BotID)
}

type createBotResponse struct {
	BotID  string `json:"botId"`
	Status string `json:"status"`
}

type statusResponse struct {
	BotID     string `json:"botId"`
	MeetingID string `json:"meetingId"`
	Status    string `json:"status"`
}

func getStatus(t *testing.T, botID string) statusResponse {
	resp := test.Invoke(t, cfg.httpclient, NewRequest(t, http.MethodGet, cfg.statusURL, "status/"+botID, nil))
	test.CheckCode(t, resp, http.StatusOK)
	return test.Decode[statusResponse](t, resp)
}

func TestStatus_Check(t *testing.T) {
	t.Parallel()
	req := NewRequest(t, http.MethodPost, cfg.webhookURL, "/bots", map[string]string{
		"meetingId": "m-int-3", "userId": "u-int-3", "meetingUrl": "https://meet.google.com/jkl-mno-pqr"})
	resp := test.Invoke(t, cfg.httpclient, req)
	test.CheckCode(t, resp, http.StatusOK)
	res := test.Decode[createBotResponse](t, resp)
	require.NotEmpty(t, res.BotID)

	sendEvent(t, "bot.in_call_recording", res.BotID)

	dur := time.Second * 10
	tm := time.After(dur)
	for {
		select {
		case <-tm:
			require.Failf(t, "Fail", "Not recording in %v", dur)
		default:
			st := getStatus(t, res.BotID)
			if st.Status == "recording" {
				return
			}
			time.Sleep(time.Second)
		}
	}
}

func sendEvent(t *testing.T, event, botID string) {
	t.Helper()
	req := NewRequest(t, http.MethodPost, cfg.webhookURL, "/webhook", map[string]any{
		"event": event, "data": map[string]any{"bot": map[string]string{"id": botID}}})
	test.CheckCode(t, test.Invoke(t, cfg.httpclient, req), http.StatusOK)
}

func startMockService(port int) (net.Listener, *httptest.Server) {
	// create a listener with the desired port.
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		log.Fatalf("can't start mock service: %v", err)
	}
	ts := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/bot/" && r.Method == http.MethodPost:
			io.Copy(w, strings.NewReader(`{"id":"bot-1111","status_changes":[]}`))
		case strings.HasPrefix(r.URL.Path, "/api/v1/bot/") && r.Method == http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		case strings.HasSuffix(r.URL.Path, "/analyze"):
			io.Copy(w, strings.NewReader(`{}`))
		case strings.HasPrefix(r.URL.Path, "/api/v1/transcript/"):
			io.Copy(w, strings.NewReader(`[{"participant":{"name":"Olia"},"words":[{"text":"hi","start_timestamp":{"relative":0.1}}]}]`))
		default:
			log.Printf("Unknown request to: %s %s", r.Method, r.URL.String())
		}
	}))

	ts.Listener.Close()
	ts.Listener = l

	// Start the server.
	ts.Start()
	log.Printf("started mock srv on port: %d", port)
	return l, ts
}
