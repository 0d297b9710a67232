package webhook

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	amessages "github.com/airenas/async-api/pkg/messages"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/facebookgo/grace/gracehttp"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/velia/scriba/internal/pkg/messages"
	"github.com/velia/scriba/internal/pkg/persistence"
	rapi "github.com/velia/scriba/internal/pkg/recall/api"
	"github.com/velia/scriba/internal/pkg/status"
	"github.com/velia/scriba/internal/pkg/utils"
)

// MsgSender provides send msg functionality
type MsgSender interface {
	SendMessage(context.Context, amessages.Message, string) error
}

// DB provides recording persistence
type DB interface {
	InsertRecording(ctx context.Context, r *persistence.Recording) error
	LoadRecording(ctx context.Context, botID string) (*persistence.Recording, error)
	UpdateRecordingStatus(ctx context.Context, botID, status string, leaveTime *time.Time) error
}

// BotProvider manages bots at the provider side
type BotProvider interface {
	CreateBot(ctx context.Context, in *rapi.CreateBotInput) (*rapi.Bot, error)
	DeleteBot(ctx context.Context, botID string) error
	StartAnalysis(ctx context.Context, botID string) error
}

// Data keeps data required for service work
type Data struct {
	Port      int
	DB        DB
	MsgSender MsgSender
	Provider  BotProvider
}

// StartWebServer starts echo web service
func StartWebServer(data *Data) error {
	goapp.Log.Info().Msgf("Starting HTTP webhook service at %d", data.Port)
	if err := validate(data); err != nil {
		return err
	}

	portStr := strconv.Itoa(data.Port)

	e := initRoutes(data)

	e.Server.Addr = ":" + portStr
	e.Server.ReadHeaderTimeout = 5 * time.Second
	e.Server.ReadTimeout = 30 * time.Second
	e.Server.WriteTimeout = 30 * time.Second

	gracehttp.SetLogger(log.New(goapp.Log, "", 0))

	return gracehttp.Serve(e.Server)
}

func validate(data *Data) error {
	if data.DB == nil {
		return errors.New("no DB")
	}
	if data.MsgSender == nil {
		return errors.New("no msg sender")
	}
	if data.Provider == nil {
		return errors.New("no bot provider")
	}
	return nil
}

var promMdlw *prometheus.Prometheus

func init() {
	promMdlw = prometheus.NewPrometheus("scriba_webhook", nil)
}

func initRoutes(data *Data) *echo.Echo {
	e := echo.New()
	e.Use(middleware.Logger())
	// the provider can't send auth headers, the webhook route stays open
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, "x-client-info", "apikey"},
	}))
	promMdlw.Use(e)

	e.POST("/webhook", webhookHandler(data))
	e.POST("/bots", createBot(data))
	e.DELETE("/bots/:botID", deleteBot(data))
	e.GET("/live", live(data))

	goapp.Log.Info().Msg("Routes:")
	for _, r := range e.Routes() {
		goapp.Log.Info().Msgf("  %s %s", r.Method, r.Path)
	}
	return e
}

func live(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		return c.JSONBlob(http.StatusOK, []byte(`{"service":"OK"}`))
	}
}

func webhookHandler(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("webhook method")()
		ctx := c.Request().Context()

		var event Event
		if err := c.Bind(&event); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		goapp.Log.Info().Str("event", event.Event).Msg("got webhook event")

		if event.Event == eventTranscriptDone {
			return handleTranscriptDone(ctx, c, &event, data)
		}
		newStatus, known := eventStatus[event.Event]
		if !known {
			goapp.Log.Info().Str("event", event.Event).Msg("ignore event")
			return c.JSON(http.StatusOK, map[string]any{"status": "ignored", "event": event.Event})
		}
		id := botID(&event.Data)
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no bot id")
		}
		rec, err := data.DB.LoadRecording(ctx, id)
		if err != nil {
			goapp.Log.Error().Err(err).Str("ID", id).Msg("can't load recording")
			return echo.NewHTTPError(http.StatusInternalServerError, "can't load recording")
		}
		if rec == nil {
			goapp.Log.Warn().Str("ID", id).Msg("no recording for bot")
			return c.JSON(http.StatusOK, map[string]any{"status": "not_found", "botId": id})
		}
		var leaveTime *time.Time
		if setsLeaveTime(event.Event) {
			now := time.Now()
			leaveTime = &now
		}
		if err := data.DB.UpdateRecordingStatus(ctx, id, newStatus.String(), leaveTime); err != nil {
			goapp.Log.Error().Err(err).Str("ID", id).Msg("can't update status")
			return echo.NewHTTPError(http.StatusInternalServerError, "can't update status")
		}
		goapp.Log.Info().Str("ID", id).Str("status", newStatus.String()).Msg("status updated")
		sendStatusChange(ctx, data, id, newStatus)
		if startsTranscript(event.Event) {
			startProcessing(ctx, data, id, rec, "")
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "status": newStatus.String(), "botId": id})
	}
}

func handleTranscriptDone(ctx context.Context, c echo.Context, event *Event, data *Data) error {
	id := botID(&event.Data)
	if id == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "no bot id")
	}
	if event.Data.Transcript == nil || event.Data.Transcript.ID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "no transcript id")
	}
	rec, err := data.DB.LoadRecording(ctx, id)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", id).Msg("can't load recording")
		return echo.NewHTTPError(http.StatusInternalServerError, "can't load recording")
	}
	if rec == nil {
		goapp.Log.Warn().Str("ID", id).Msg("no recording for bot")
		return c.JSON(http.StatusOK, map[string]any{"status": "not_found", "botId": id})
	}
	startProcessing(ctx, data, id, rec, event.Data.Transcript.ID)
	return c.JSON(http.StatusOK, map[string]any{"success": true,
		"status": "transcript_processing_started", "botId": id, "transcriptId": event.Data.Transcript.ID})
}

// startProcessing asks the provider to prepare the transcript and queues the
// processing job. Failures never break the webhook ack, the provider retries
// terminal events on its own
func startProcessing(ctx context.Context, data *Data, id string, rec *persistence.Recording, transcriptID string) {
	if transcriptID == "" {
		if err := data.Provider.StartAnalysis(ctx, id); err != nil {
			goapp.Log.Error().Err(err).Str("ID", id).Msg("can't start analysis")
		}
	}
	msg := messages.NewTranscriptMessage(id, rec.MeetingID, rec.UserID, transcriptID)
	if err := data.MsgSender.SendMessage(ctx, msg, messages.Transcript); err != nil {
		goapp.Log.Error().Err(err).Str("ID", id).Msg("can't send transcript msg")
	}
}

func sendStatusChange(ctx context.Context, data *Data, id string, st status.Status) {
	err := data.MsgSender.SendMessage(ctx, &messages.StatusMessage{
		QueueMessage: amessages.QueueMessage{ID: id}, Status: st.String()}, messages.StatusChange)
	if err != nil {
		goapp.Log.Error().Err(err).Str("ID", id).Msg("can't send status msg")
	}
}

type createBotInput struct {
	MeetingID  string     `json:"meetingId"`
	UserID     string     `json:"userId"`
	MeetingURL string     `json:"meetingUrl"`
	BotName    string     `json:"botName,omitempty"`
	JoinAt     *time.Time `json:"joinAt,omitempty"`
}

type createBotResult struct {
	BotID  string `json:"botId"`
	Status string `json:"status"`
}

func createBot(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("createBot method")()
		ctx := c.Request().Context()

		var input createBotInput
		if err := c.Bind(&input); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "can't decode input")
		}
		if input.MeetingURL == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no meetingUrl")
		}
		if input.MeetingID == "" || input.UserID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no meetingId or userId")
		}
		bot, err := data.Provider.CreateBot(ctx, &rapi.CreateBotInput{MeetingURL: input.MeetingURL,
			BotName: input.BotName, JoinAt: input.JoinAt})
		if err != nil {
			goapp.Log.Error().Err(err).Msg("can't create bot")
			return echo.NewHTTPError(http.StatusInternalServerError, "can't create bot")
		}
		rec := &persistence.Recording{BotID: bot.ID, MeetingID: input.MeetingID, UserID: input.UserID,
			Status: status.Scheduled.String()}
		if input.JoinAt != nil {
			rec.JoinTime = utils.ToSQLTime(*input.JoinAt)
		}
		if err := data.DB.InsertRecording(ctx, rec); err != nil {
			goapp.Log.Error().Err(err).Str("ID", bot.ID).Msg("can't save recording")
			return echo.NewHTTPError(http.StatusInternalServerError, "can't save recording")
		}
		goapp.Log.Info().Str("ID", bot.ID).Str("meetingID", input.MeetingID).Msg("bot scheduled")
		return c.JSON(http.StatusOK, createBotResult{BotID: bot.ID, Status: status.Scheduled.String()})
	}
}

func deleteBot(data *Data) func(echo.Context) error {
	return func(c echo.Context) error {
		defer goapp.Estimate("deleteBot method")()
		ctx := c.Request().Context()

		id := c.Param("botID")
		if id == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "no botID")
		}
		rec, err := data.DB.LoadRecording(ctx, id)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "can't load recording")
		}
		if rec == nil {
			return echo.NewHTTPError(http.StatusNotFound, "no bot "+id)
		}
		if err := data.Provider.DeleteBot(ctx, id); err != nil {
			goapp.Log.Error().Err(err).Str("ID", id).Msg("can't delete bot")
			return echo.NewHTTPError(http.StatusInternalServerError, "can't delete bot")
		}
		if err := data.DB.UpdateRecordingStatus(ctx, id, status.Completed.String(), nil); err != nil {
			goapp.Log.Error().Err(err).Str("ID", id).Msg("can't update status")
			return echo.NewHTTPError(http.StatusInternalServerError, "can't update status")
		}
		return c.JSON(http.StatusOK, map[string]any{"success": true, "botId": id})
	}
}
