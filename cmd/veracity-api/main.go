package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/veracitybio/veracity/pkg/cmd"
	"github.com/veracitybio/veracity/pkg/config"
	"github.com/veracitybio/veracity/pkg/investigation"
	"github.com/veracitybio/veracity/pkg/log"
	"github.com/veracitybio/veracity/pkg/services"
	"github.com/veracitybio/veracity/pkg/stages"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "veracity-api",
		Usage:                 "Serve the investigation HTTP API",
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
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the veracity YAML config file",
				Required: true,
				Sources:  cli.EnvVars("VERACITY_CONFIG"),
			},
			&cli.StringFlag{
				Name:     "corpus-path",
				Usage:    "Path to the local literature corpus directory",
				Required: true,
				Sources:  cli.EnvVars("CORPUS_PATH"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "Overall deadline for one investigation run",
				Value:   10 * time.Minute,
				Sources: cli.EnvVars("RUN_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "json",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			workerID := "api-" + uuid.New().String()[:8]
			logger := log.WithModule("veracity-api").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Veracity API")

			cfg, err := config.Load(command.String("config"))
			if err != nil {
				return err
			}

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if err := observeEvents(ctx, eventBus, logger); err != nil {
				return fmt.Errorf("failed to subscribe to lifecycle events: %w", err)
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			client, closeClient, err := cmd.NewInferenceClient(cfg.Inference, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := closeClient(); err != nil {
					logger.ErrorContext(ctx, "Failed to close inference backend", "error", err)
				}
			}()

			corpus := command.String("corpus-path")
			manager := investigation.NewManager(
				workerID,
				persistence,
				eventBus,
				stages.Collaborators{
					Retriever:   services.NewCorpusRetriever(corpus, logger),
					Analyzer:    services.NewAnalyzer(client, logger),
					Images:      services.NewCorpusImageSource(corpus, logger),
					Invoker:     client,
					Synthesizer: services.NewSynthesizer(client, logger),
				},
				logger,
				command.Duration("timeout"),
			)

			api := NewAPI(logger, persistence, manager)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "API server stopped", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
