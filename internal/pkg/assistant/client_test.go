package assistant

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/velia/scriba/internal/pkg/test"
)

func initTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(func() { server.Close() })
	cl := Client{}
	cl.httpclient = server.Client()
	cl.url = server.URL
	cl.key = "test-key"
	cl.assistantID = "asst_1"
	cl.pollInterval = time.Millisecond * 5
	cl.maxAttempts = 3
	cl.timeout = time.Second
	cl.backoff = func() backoff.BackOff {
		return &backoff.StopBackOff{}
	}
	return &cl
}

func okHandler(t *testing.T, runStatuses []string) (http.HandlerFunc, *[]string) {
	t.Helper()
	calls := make([]string, 0)
	si := 0
	lock := &sync.Mutex{}
	h := func(rw http.ResponseWriter, req *http.Request) {
		lock.Lock()
		defer lock.Unlock()
		calls = append(calls, req.Method+" "+req.URL.Path)
		assert.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
		assert.Equal(t, "assistants=v2", req.Header.Get("OpenAI-Beta"))
		switch {
		case req.Method == http.MethodPost && req.URL.Path == "/threads":
			fmt.Fprint(rw, `{"id":"th_1"}`)
		case req.Method == http.MethodPost && req.URL.Path == "/threads/th_1/messages":
			fmt.Fprint(rw, `{"id":"msg_1"}`)
		case req.Method == http.MethodPost && req.URL.Path == "/threads/th_1/runs":
			var in map[string]any
			require.Nil(t, json.NewDecoder(req.Body).Decode(&in))
			assert.Equal(t, "asst_1", in["assistant_id"])
			fmt.Fprint(rw, `{"id":"run_1","status":"queued"}`)
		case req.Method == http.MethodGet && req.URL.Path == "/threads/th_1/runs/run_1":
			st := runStatuses[len(runStatuses)-1]
			if si < len(runStatuses) {
				st = runStatuses[si]
				si++
			}
			fmt.Fprintf(rw, `{"id":"run_1","status":"%s"}`, st)
		case req.Method == http.MethodGet && req.URL.Path == "/threads/th_1/messages":
			fmt.Fprint(rw, `{"data":[{"role":"assistant","content":[{"type":"text","text":{"value":"{\"meeting_title\":\"Standup\"}"}}]}]}`)
		default:
			rw.WriteHeader(http.StatusNotFound)
		}
	}
	return h, &calls
}

func TestAnalyze(t *testing.T) {
	h, calls := okHandler(t, []string{"in_progress", "completed"})
	client := initTestClient(t, h)

	r, err := client.Analyze(test.Ctx(t), "Speaker: hello")

	require.Nil(t, err)
	assert.Equal(t, `{"meeting_title":"Standup"}`, r)
	assert.Contains(t, *calls, "POST /threads")
	assert.Contains(t, *calls, "POST /threads/th_1/messages")
	assert.Contains(t, *calls, "GET /threads/th_1/messages")
}

func TestAnalyze_NoText_Fails(t *testing.T) {
	h, calls := okHandler(t, []string{"completed"})
	client := initTestClient(t, h)

	_, err := client.Analyze(test.Ctx(t), "")

	assert.NotNil(t, err)
	assert.Equal(t, 0, len(*calls))
}

func TestAnalyze_RunFailed(t *testing.T) {
	h, _ := okHandler(t, []string{"failed"})
	client := initTestClient(t, h)

	_, err := client.Analyze(test.Ctx(t), "Speaker: hello")

	assert.ErrorIs(t, err, ErrNotCompleted)
}

func TestAnalyze_PollBudgetExceeded(t *testing.T) {
	h, _ := okHandler(t, []string{"in_progress"})
	client := initTestClient(t, h)

	_, err := client.Analyze(test.Ctx(t), "Speaker: hello")

	assert.ErrorIs(t, err, ErrNotCompleted)
}

func TestAnalyze_ServerError_Fails(t *testing.T) {
	client := initTestClient(t, func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Analyze(test.Ctx(t), "Speaker: hello")

	assert.NotNil(t, err)
}

func TestNewClient(t *testing.T) {
	type args struct {
		url         string
		key         string
		assistantID string
	}
	tests := []struct {
		name    string
		args    args
		wantErr bool
	}{
		{name: "OK", args: args{url: "http://olia", key: "k", assistantID: "a"}, wantErr: false},
		{name: "Default URL", args: args{key: "k", assistantID: "a"}, wantErr: false},
		{name: "No key", args: args{url: "http://olia", assistantID: "a"}, wantErr: true},
		{name: "No assistant", args: args{url: "http://olia", key: "k"}, wantErr: true},
		{name: "Wrong URL", args: args{url: "ops://olia", key: "k", assistantID: "a"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewClient(tt.args.url, tt.args.key, tt.args.assistantID, 0, 0)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && got == nil {
				t.Errorf("NewClient() = nil, want object")
			}
		})
	}
}

func TestCleanAndParse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    string
		wantErr bool
	}{
		{name: "Direct", text: `{"meeting_title":"A"}`, want: "A"},
		{name: "Fence", text: "Here it is:\n```json\n{\"meeting_title\":\"B\"}\n```\nDone.", want: "B"},
		{name: "Substring", text: `The result {"meeting_title":"C"} as requested`, want: "C"},
		{name: "No JSON", text: "sorry, no data", wantErr: true},
		{name: "Broken JSON", text: `{"meeting_title":`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CleanAndParse(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrParse)
				return
			}
			require.Nil(t, err)
			assert.Equal(t, tt.want, got["meeting_title"])
		})
	}
}
