package transcript

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/google/uuid"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/vgarvardt/gue/v5"

	"github.com/velia/scriba/internal/pkg/assistant"
	"github.com/velia/scriba/internal/pkg/messages"
	"github.com/velia/scriba/internal/pkg/persistence"
	rapi "github.com/velia/scriba/internal/pkg/recall/api"
	"github.com/velia/scriba/internal/pkg/utils"
	"github.com/velia/scriba/internal/pkg/utils/handler"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// DB provides transcript persistence
type DB interface {
	LoadRecording(ctx context.Context, botID string) (*persistence.Recording, error)
	UpsertTranscriptRaw(ctx context.Context, tr *persistence.Transcript) error
	LoadTranscript(ctx context.Context, id string) (*persistence.Transcript, error)
	UpdateTranscriptResults(ctx context.Context, tr *persistence.Transcript) error
}

// Provider fetches transcripts from the bot provider
type Provider interface {
	GetTranscript(ctx context.Context, botID, transcriptID string) (*rapi.TranscriptData, error)
	FetchContent(ctx context.Context, downloadURL string) ([]byte, error)
}

// Analyzer runs the LLM analysis over the transcript text
type Analyzer interface {
	Analyze(ctx context.Context, text string) (string, error)
}

// Filer archives transcript texts
type Filer interface {
	SaveFile(ctx context.Context, name string, r io.Reader) error
}

// ServiceData keeps data required for service work
type ServiceData struct {
	GueClient   *gue.Client
	WorkerCount int
	Port        int
	MsgSender   MsgSender
	DB          DB
	Provider    Provider
	Analyzer    Analyzer
	Filer       Filer
	Testing     bool
}

// StartWorkerService starts the queue listener processing transcript jobs.
// Returns channel for tracking if all jobs are finished
func StartWorkerService(ctx context.Context, data *ServiceData) (chan struct{}, error) {
	if err := validate(data); err != nil {
		return nil, err
	}
	if data.GueClient == nil {
		return nil, fmt.Errorf("no gue client")
	}
	if data.WorkerCount < 1 {
		return nil, fmt.Errorf("no worker count provided")
	}
	goapp.Log.Info().Int("workers", data.WorkerCount).Msg("Starting listen for messages")
	if data.Testing {
		goapp.Log.Warn().Msg("SERVICE IN TEST MODE")
	}

	wm := gue.WorkMap{
		messages.Transcript: handler.Create(data, handleTranscript, handler.DefaultOpts[messages.TranscriptMessage]().
			WithTimeout(time.Minute*30).WithBackoff(handler.DefaultBackoffOrTest(data.Testing)).
			WithOnFail(informFailure(data))),
	}

	pool, err := gue.NewWorkerPool(
		data.GueClient, wm, data.WorkerCount,
		gue.WithPoolQueue(messages.Transcript),
		gue.WithPoolLogger(utils.NewGueLoggerAdapter()),
		gue.WithPoolPollInterval(500*time.Millisecond),
		gue.WithPoolPollStrategy(gue.RunAtPollStrategy),
		gue.WithPoolID("transcript-worker"),
	)
	if err != nil {
		return nil, fmt.Errorf("could not build gue workers pool: %w", err)
	}
	res := make(chan struct{}, 1)
	go func() {
		goapp.Log.Info().Msg("Starting workers")
		if err := pool.Run(ctx); err != nil {
			goapp.Log.Error().Err(err).Msg("pool error")
		}
		goapp.Log.Info().Msg("Pool workers finished")
		res <- struct{}{}
	}()
	return res, nil
}

func handleTranscript(ctx context.Context, m *messages.TranscriptMessage, data *ServiceData) error {
	goapp.Log.Info().Str("ID", m.ID).Str("transcriptID", m.TranscriptID).Msg("handling transcript")
	rec, err := data.DB.LoadRecording(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("can't load recording: %w", err)
	}
	if rec == nil {
		goapp.Log.Warn().Str("ID", m.ID).Msg("no recording, skip")
		return nil
	}
	meetingID, userID := m.MeetingID, m.UserID
	if meetingID == "" {
		meetingID = rec.MeetingID
	}
	if userID == "" {
		userID = rec.UserID
	}
	td, err := data.Provider.GetTranscript(ctx, m.ID, m.TranscriptID)
	if err != nil {
		return fmt.Errorf("can't get transcript: %w", err)
	}
	tr := &persistence.Transcript{ID: uuid.NewString(), BotID: m.ID, MeetingID: meetingID,
		UserID: userID, RawTranscript: td.Raw, RecallTranscriptID: utils.ToSQLStr(td.ID)}
	if err := data.DB.UpsertTranscriptRaw(ctx, tr); err != nil {
		return fmt.Errorf("can't save raw transcript: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Str("transcriptID", tr.ID).Msg("raw transcript saved")
	if _, err := process(ctx, tr, td.DownloadURL, data); err != nil {
		return err
	}
	err = data.MsgSender.SendMessage(ctx, &messages.InformMessage{
		QueueMessage: amessages.QueueMessage{ID: m.ID}, UserID: userID,
		Type: messages.InformTypeReady}, messages.Inform)
	if err != nil {
		return fmt.Errorf("can't send msg: %w", err)
	}
	goapp.Log.Info().Str("ID", m.ID).Msg("Transcript processing completed")
	return nil
}

func informFailure(data *ServiceData) func(context.Context, *messages.TranscriptMessage, error) {
	return func(ctx context.Context, m *messages.TranscriptMessage, err error) {
		sErr := data.MsgSender.SendMessage(ctx, &messages.InformMessage{
			QueueMessage: amessages.QueueMessage{ID: m.ID}, UserID: m.UserID,
			Type: messages.InformTypeFailed}, messages.Inform)
		if sErr != nil {
			goapp.Log.Error().Err(sErr).Str("ID", m.ID).Msg("can't send failure msg")
		}
	}
}

// Result describes the outcome of one transcript processing run
type Result struct {
	Success       bool     `json:"success"`
	TranscriptID  string   `json:"transcriptId"`
	Message       string   `json:"message,omitempty"`
	HasAnalysis   bool     `json:"hasAnalysis"`
	HasFlattened  bool     `json:"hasFlattened"`
	TextLength    int      `json:"textLength"`
	AnalysisKeys  []string `json:"analysisKeys,omitempty"`
	FlattenedKeys []string `json:"flattenedKeys,omitempty"`
}

// Process reruns the pipeline for an already stored transcript
func Process(ctx context.Context, transcriptID string, data *ServiceData) (*Result, error) {
	goapp.Log.Info().Str("transcriptID", transcriptID).Msg("process stored transcript")
	tr, err := data.DB.LoadTranscript(ctx, transcriptID)
	if err != nil {
		return nil, fmt.Errorf("can't load transcript: %w", err)
	}
	if tr == nil {
		return nil, fmt.Errorf("no transcript '%s'", transcriptID)
	}
	return process(ctx, tr, "", data)
}

type rawTranscript struct {
	ID   string `json:"id"`
	Data struct {
		DownloadURL string `json:"download_url"`
	} `json:"data"`
}

func process(ctx context.Context, tr *persistence.Transcript, downloadURL string, data *ServiceData) (*Result, error) {
	if downloadURL == "" {
		if len(tr.RawTranscript) == 0 {
			return nil, fmt.Errorf("no raw transcript data for '%s'", tr.ID)
		}
		var raw rawTranscript
		if err := json.Unmarshal(tr.RawTranscript, &raw); err != nil {
			return nil, fmt.Errorf("can't parse raw transcript: %w", err)
		}
		downloadURL = raw.Data.DownloadURL
		if !tr.RecallTranscriptID.Valid {
			tr.RecallTranscriptID = utils.ToSQLStr(raw.ID)
		}
	}
	if downloadURL == "" {
		return nil, fmt.Errorf("no download URL in raw transcript for '%s'", tr.ID)
	}
	content, err := data.Provider.FetchContent(ctx, downloadURL)
	if err != nil {
		return nil, fmt.Errorf("can't fetch transcript content: %w", err)
	}
	text := string(content)
	goapp.Log.Info().Str("transcriptID", tr.ID).Int("textLen", len(text)).Msg("fetched text")
	archive(ctx, tr, text, data)

	var analysis map[string]any
	if len(text) > 0 {
		reply, err := data.Analyzer.Analyze(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("can't analyze: %w", err)
		}
		analysis, err = assistant.CleanAndParse(reply)
		if err != nil {
			// keep the text even when the reply is not usable
			goapp.Log.Warn().Err(err).Str("transcriptID", tr.ID).Msg("can't parse analysis")
		}
	} else {
		goapp.Log.Warn().Str("transcriptID", tr.ID).Msg("no text for analysis")
	}

	tr.Text = utils.ToSQLStr(text)
	tr.Flattened = persistence.FlattenedAnalysis{}
	if analysis != nil {
		tr.Analysis, err = json.Marshal(analysis)
		if err != nil {
			return nil, fmt.Errorf("can't marshal analysis: %w", err)
		}
		tr.Flattened = *Flatten(analysis)
	}
	if err := data.DB.UpdateTranscriptResults(ctx, tr); err != nil {
		return nil, fmt.Errorf("can't save results: %w", err)
	}

	res := &Result{Success: true, TranscriptID: tr.ID, Message: "Transcript processed",
		HasAnalysis: analysis != nil, TextLength: len(text), AnalysisKeys: mapKeys(analysis),
		FlattenedKeys: flattenedKeys(&tr.Flattened)}
	res.HasFlattened = len(res.FlattenedKeys) > 0
	return res, nil
}

func archive(ctx context.Context, tr *persistence.Transcript, text string, data *ServiceData) {
	if data.Filer == nil || text == "" {
		return
	}
	name := fmt.Sprintf("%s/%s.txt", tr.BotID, tr.ID)
	if err := data.Filer.SaveFile(ctx, name, strings.NewReader(text)); err != nil {
		goapp.Log.Warn().Err(err).Str("file", name).Msg("can't archive text")
	}
}

func mapKeys(m map[string]any) []string {
	if m == nil {
		return nil
	}
	res := make([]string, 0, len(m))
	for k := range m {
		res = append(res, k)
	}
	return res
}

func flattenedKeys(f *persistence.FlattenedAnalysis) []string {
	var res []string
	add := func(name string, v bool) {
		if v {
			res = append(res, name)
		}
	}
	add("meeting_title", f.MeetingTitle.Valid)
	add("meeting_summary", f.MeetingSummary.Valid)
	add("key_points_by_speaker", f.KeyPointsBySpeaker.Valid)
	add("key_items_and_action_items", f.ActionItems.Valid)
	add("next_steps_and_follow_ups", f.NextSteps.Valid)
	add("considerations_and_open_issues", f.OpenIssues.Valid)
	add("notes_for_next_meeting", f.NotesForNext.Valid)
	add("tone_and_sentiment_analysis", f.ToneAndSentiment.Valid)
	add("intent_identification", f.Intent.Valid)
	return res
}

// StartWebServer starts echo web service with the reprocess endpoint
func StartWebServer(data *ServiceData) error {
	goapp.Log.Info().Msgf("Starting HTTP transcript service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 60 * time.Second
	e.Server.WriteTimeout = 45 * time.Minute

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("scriba_worker", nil)
}

func initRoutes(data *ServiceData) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	promMdlw.Use(e)

	e.POST("/process", processHandler(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *ServiceData) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

type processInput struct {
	TranscriptID string `json:"transcriptId"`
}

func processHandler(data *ServiceData) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("process method")()
		ctx := c.Request().Context()

		var input processInput
		if err := c.Bind(&input); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		if input.TranscriptID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no transcriptId")
		}
		res, err := Process(ctx, input.TranscriptID, data)
		if err != nil {
			goapp.Log.Error().Err(err).Str("transcriptID", input.TranscriptID).Msg("process failed")
			return c.JSON(http.StatusInternalServerError, &Result{Success: false,
				TranscriptID: input.TranscriptID, Message: err.Error()})
		}
		return c.JSON(http.StatusOK, res)
	}
}

func validate(data *ServiceData) error {
	if data.MsgSender == nil {
		return fmt.Errorf("no msg sender")
	}
	if data.DB == nil {
		return fmt.Errorf("no DB")
	}
	if data.Provider == nil {
		return fmt.Errorf("no Provider")
	}
	if data.Analyzer == nil {
		return fmt.Errorf("no Analyzer")
	}
	return nil
}
