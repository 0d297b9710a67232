package main

import (
	"context"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/gommon/color"
	"github.com/velia/scriba/internal/pkg/calsync"
	"github.com/velia/scriba/internal/pkg/gcal"
	"github.com/velia/scriba/internal/pkg/postgres"
)

func main() {
	goapp.StartWithDefault()

	printBanner()

	cfg := goapp.Config
	data := &calsync.Data{}
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

	provider, err := gcal.NewClient(cfg.GetString("google.clientID"), cfg.GetString("google.clientSecret"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init google client")
	}

	data.Syncer, err = calsync.NewReconciler(db, provider, cfg.GetInt("sync.windowDays"))
	if err != nil {
		goapp.Log.Fatal().Err(err).Msg("can't init reconciler")
	}

	goapp.Log.Info().Msg("starting web service")
	if err := calsync.StartWebServer(data); err != nil {
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

   _______  ______  _____
  / ___/ / / / __ \/ ___/
 (__  ) /_/ / / / / /__
/____/\__, /_/ /_/\___/   v: %s
     /____/
%s
________________________________________________________

`
	cl := color.New()
	cl.Printf(banner, cl.Red(version), cl.Green("https://github.com/velia/scriba"))
}
