package main

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/velia/scriba/internal/pkg/postgres"
	"github.com/velia/scriba/internal/pkg/recall"
	"github.com/velia/scriba/internal/pkg/webhook"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	data := &webhook.Data{}
	data.Port = cfg.GetInt("port")
	var err error

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

	db, err := postgres.NewDB(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init db")
	}
	data.DB = db

	data.MsgSender, err = postgres.NewSender(dbPool)
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init gue sender")
	}

	data.Provider, err = recall.NewClient(cfg.GetString("recall.url"), cfg.GetString("recall.key"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init recall client")
	}

	goapp.Log.Info().Msg("starting web service")
	if err := webhook.StartWebServer(data); err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't start web server")
	}
	goapp.Log.Info().Msg("exit web service")
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

                __    __                __
 _      _____  / /_  / /_  ____  ____  / /__
| | /| / / _ \/ __ \/ __ \/ __ \/ __ \/ //_/
| |/ |/ /  __/ /_/ / / / / /_/ / /_/ / ,<
|__/|__/\___/_.___/_/ /_/\____/\____/_/|_|   v: %s

%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/velia/scriba"))
}
