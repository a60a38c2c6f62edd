package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/klokku/eventkit/internal/app"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

func init() {
	level := os.Getenv("LOG_LEVEL")
	if level != "" {
		logrusLevel, err := log.ParseLevel(level)
		if err != nil {
			log.Fatal(err)
		}
		log.SetLevel(logrusLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	application, err := app.NewApplication(ctx, cmd.String("config"))
	if err != nil {
		return err
	}
	return application.Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cli.Command{
		Name:  "eventkit",
		Usage: "calendar event store with recurring events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "./config/application.yaml",
				Usage:   "path to the YAML configuration file",
				Sources: cli.EnvVars("EVENTKIT_CONFIG_FILE"),
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "start the HTTP server",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations and exit",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return app.Migrate(cmd.String("config"))
				},
			},
			{
				Name:  "export",
				Usage: "write every stored event as iCalendar",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "output file, stdout when empty",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					out := os.Stdout
					if path := cmd.String("out"); path != "" {
						f, err := os.Create(path)
						if err != nil {
							return err
						}
						defer f.Close()
						out = f
					}
					return app.ExportICS(ctx, cmd.String("config"), out)
				},
			},
		},
	}

	if err := rootCmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
