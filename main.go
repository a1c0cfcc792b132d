package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"node-ledger/config"
)

var (
	portFlag = cli.StringFlag{
		Name:  "port",
		Usage: "HTTP listen port (overrides PORT)",
	}
	databaseFlag = cli.StringFlag{
		Name:  "database-url",
		Usage: "PostgreSQL DSN (overrides DATABASE_URL)",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "node-ledger"
	app.Usage = "TRX node lifecycle and reward ledger"
	app.Flags = []cli.Flag{portFlag, databaseFlag}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "Run the HTTP API, the sweep scheduler and background workers",
			Action: serve,
		},
		{
			Name:   "migrate",
			Usage:  "Apply database migrations and exit",
			Action: migrate,
		},
		{
			Name:   "sweep",
			Usage:  "Run one maturity sweep and exit",
			Action: sweepOnce,
		},
	}
	app.Action = serve

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("node-ledger exited with error")
	}
}

// loadConfig applies global flags on top of the environment.
func loadConfig(ctx *cli.Context) *config.Config {
	cfg := config.LoadConfig()
	if v := flagValue(ctx, portFlag.Name); v != "" {
		cfg.Port = v
	}
	if v := flagValue(ctx, databaseFlag.Name); v != "" {
		cfg.DatabaseURL = v
	}
	return cfg
}

func flagValue(ctx *cli.Context, name string) string {
	if v := ctx.String(name); v != "" {
		return v
	}
	return ctx.GlobalString(name)
}
