package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/errandlabs/errand/pkg/cmd"
	"github.com/errandlabs/errand/pkg/config"
	"github.com/errandlabs/errand/pkg/janitor"
	"github.com/errandlabs/errand/pkg/log"
	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/otelhelper"
	"go.opentelemetry.io/otel/trace"
)

const defaultPort = 9094

func main() {
	command := &cli.Command{
		Name:                  "errand-api",
		Usage:                 "Conversational task orchestration engine",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Store URL (redis://, postgres://, empty for in-memory)",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the engine configuration YAML",
				Sources: cli.EnvVars("ERRAND_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron schedule for the TTL sweep",
				Value:   "@every 5m",
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")
			logger.InfoContext(ctx, "Initializing Errand API")

			cfg, err := config.Load(command.String("config"))
			if err != nil {
				return err
			}

			for name := range cfg.Domains {
				if _, err := models.ParseDomain(name); err != nil {
					return err
				}
			}

			st := cmd.NewStore(ctx, logger, command.String("database-url"))
			defer func() {
				if err := st.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close store", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			var tracer trace.Tracer
			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "errand-api")
				if err != nil {
					return err
				}
			}

			sweeper := janitor.New(st)
			if err := sweeper.Start(ctx, command.String("sweep-schedule")); err != nil {
				return err
			}
			defer sweeper.Stop()

			api := NewAPI(logger, cfg, st, eventBus, tracer)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
