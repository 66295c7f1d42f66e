package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/veracitybio/veracity/pkg/cmd"
	"github.com/veracitybio/veracity/pkg/config"
	"github.com/veracitybio/veracity/pkg/investigation"
	"github.com/veracitybio/veracity/pkg/log"
	"github.com/veracitybio/veracity/pkg/otelhelper"
	"github.com/veracitybio/veracity/pkg/services"
	"github.com/veracitybio/veracity/pkg/stages"
)

func NewInvestigateCommand() *cli.Command {
	return &cli.Command{
		Name:    "investigate",
		Aliases: []string{"i"},
		Usage:   "Run an investigation for one claim",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "query",
				Aliases:  []string{"q"},
				Usage:    "The claim to investigate",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "unit",
				Usage: "Pin a document reference into the investigation (repeatable)",
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
				Name:    "database-url",
				Usage:   "Database connection URL for persistence",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for recurring re-investigation of the claim",
				Value:   "",
				Sources: cli.EnvVars("SCHEDULE"),
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "Overall deadline for one investigation run",
				Value:   10 * time.Minute,
				Sources: cli.EnvVars("RUN_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "min-content-chars",
				Usage:   "Minimum extracted characters for a document to count as mined",
				Value:   stages.DefaultMinContentChars,
				Sources: cli.EnvVars("MIN_CONTENT_CHARS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
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
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: runInvestigate,
	}
}

func runInvestigate(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"), command.String("log-format"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule("veracity").With("worker_id", workerID)

	if command.Bool("tracing") {
		tracerProvider, err := otelhelper.Init(ctx, "veracity")
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}

		defer func() {
			if err := tracerProvider.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to shut down tracer provider", "error", err)
			}
		}()
	}

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
	collaborators := stages.Collaborators{
		Retriever:       services.NewCorpusRetriever(corpus, logger),
		Analyzer:        services.NewAnalyzer(client, logger),
		Images:          services.NewCorpusImageSource(corpus, logger),
		Invoker:         client,
		Synthesizer:     services.NewSynthesizer(client, logger),
		MinContentChars: command.Int("min-content-chars"),
	}

	manager := investigation.NewManager(
		workerID,
		persistence,
		eventBus,
		collaborators,
		logger,
		command.Duration("timeout"),
	)

	query := command.String("query")
	unitRefs := command.StringSlice("unit")

	if schedule := command.String("schedule"); schedule != "" {
		return runOnSchedule(ctx, logger, manager, schedule, query, unitRefs)
	}

	return runOnce(ctx, manager, query, unitRefs)
}

func runOnce(ctx context.Context, manager *investigation.Manager, query string, unitRefs []string) error {
	created, err := manager.Create(ctx, query, unitRefs)
	if err != nil {
		return err
	}

	if err := manager.Run(ctx, created); err != nil {
		return err
	}

	fmt.Printf("%s [%s]\n\n%s\n", created.ID, created.AnalysisStatus, created.Report)

	return nil
}

// runOnSchedule re-investigates the claim on a cron schedule until the
// context is cancelled. Each tick creates a fresh investigation so history
// stays queryable.
func runOnSchedule(
	ctx context.Context,
	logger *slog.Logger,
	manager *investigation.Manager,
	schedule, query string,
	unitRefs []string,
) error {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(schedule, func() {
		created, err := manager.Create(ctx, query, unitRefs)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to create scheduled investigation", "error", err)

			return
		}

		if err := manager.Run(ctx, created); err != nil {
			logger.ErrorContext(ctx, "Scheduled investigation failed",
				"investigation_id", created.ID, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	logger.InfoContext(ctx, "Scheduler started", "schedule", schedule, "query", query)
	scheduler.Start()

	<-ctx.Done()

	<-scheduler.Stop().Done()

	return nil
}
