package main

import (
	"context"
	"time"

	"github.com/airenas/async-api/pkg/miniofs"
	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/velia/scriba/internal/pkg/assistant"
	"github.com/velia/scriba/internal/pkg/postgres"
	"github.com/velia/scriba/internal/pkg/recall"
	"github.com/velia/scriba/internal/pkg/transcript"
	"github.com/vgarvardt/gue/v5"
	"github.com/vgarvardt/gue/v5/adapter/pgxv5"
)

func main() {
	goapp.StartWithDefault()
	cfg := goapp.Config

	data := &transcript.ServiceData{}
	data.Port = cfg.GetInt("port")
	ctx := context.Background()

	dbConfig, err := pgxpool.ParseConfig(cfg.GetString("db.url"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}

	goapp.Log.Info().Int32("max_conn", dbConfig.MaxConns).Int32("min_conn", dbConfig.MinConns).Msg("db info")

	dbPool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db pool")
	}
	defer dbPool.Close()

	data.GueClient, err = gue.NewClient(pgxv5.NewConnPool(dbPool))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue")
	}
	data.WorkerCount = defaultV(cfg.GetInt("worker.count"), 5)
	data.Testing = cfg.GetBool("worker.testing")
	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}
	if cfg.GetString("filer.url") != "" {
		data.Filer, err = miniofs.NewFiler(ctx, miniofs.Options{Bucket: cfg.GetString("filer.bucket"),
			URL: cfg.GetString("filer.url"), User: cfg.GetString("filer.user"), Key: cfg.GetString("filer.key")})
		if err != nil {
			goapp.Log.Fatal().Err(err).Msg("can't init filer")
		}
	} else {
		goapp.Log.Warn().Msg("no filer configured, transcript texts are not archived")
	}
	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}

	data.DB = db

	data.Provider, err = recall.NewClient(cfg.GetString("recall.url"), cfg.GetString("recall.key"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init recall client")
	}

	data.Analyzer, err = assistant.NewClient(cfg.GetString("openai.url"), cfg.GetString("openai.key"),
		cfg.GetString("openai.assistantID"),
		defaultV(cfg.GetDuration("openai.pollInterval"), time.Second*5),
		defaultV(cfg.GetInt("openai.maxPollAttempts"), 60))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init assistant client")
	}

	printBanner()

	ctx, cancelFunc := context.WithCancel(context.Background())
	doneCh, err := transcript.StartWorkerService(ctx, data)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start worker service")
	}

	goapp.Log.Info().Msg("starting web service")
	if err := transcript.StartWebServer(data); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	goapp.Log.Info().Msg("exit web service")
	cancelFunc()
	select {
	case <-doneCh:
		goapp.Log.Info().Msg("All code returned. Now exit. Bye")
	case <-time.After(time.Second * 15):
		goapp.Log.Warn().Msg("Timeout gracefull shutdown")
	}
}

func defaultV[T comparable](v, def T) T {
	var empty T
	if v == empty {
		return def
	}
	return v
}

var (
	version = "DEV"
)

func printBanner() {
	banner := `
   _____ __________(_) /_  ____ _
  / ___// ___/ ___/ / __ \/ __ ` + "`" + `/
 (__  )/ /__/ /  / / /_/ / /_/ /
/____/ \___/_/  /_/_.___/\__,_/

                      __
 _      ______  _____/ /_____  _____
| | /| / / __ \/ ___/ //_/ _ \/ ___/
| |/ |/ / /_/ / /  / ,< /  __/ /
|__/|__/\____/_/  /_/|_|\___/_/      v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/velia/scriba"))
}
