package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/letterflow/letterflow/pkg/adapters"
	"github.com/letterflow/letterflow/pkg/adapters/platform"
	"github.com/letterflow/letterflow/pkg/cmd"
	"github.com/letterflow/letterflow/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "letterflow-worker",
		EnableShellCompletion: true,
		Usage:                 "Start a worker to match trigger events and advance workflow runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the trigger dedupe store",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:     "platform-url",
				Usage:    "Base URL of the platform's internal API",
				Required: true,
				Sources:  cli.EnvVars("PLATFORM_API_URL"),
			},
			&cli.StringFlag{
				Name:    "platform-token",
				Usage:   "Bearer token for the platform's internal API",
				Value:   "",
				Sources: cli.EnvVars("PLATFORM_API_TOKEN"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often the scheduler sweeps for due runs",
				Value:   5 * time.Second,
				Sources: cli.EnvVars("POLL_INTERVAL"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("letterflow-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Letterflow Worker")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(
				command.String("event-bus"),
				command.String("kafka-brokers"),
				"letterflow-worker",
				logger,
			)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			dedupeStore := cmd.NewDedupeStore(ctx, logger, command.String("redis-url"))
			defer func() {
				err := dedupeStore.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close dedupe store", "error", err)
				}
			}()

			platformClient := platform.NewClient(
				command.String("platform-url"),
				command.String("platform-token"),
			)
			emailSender := adapters.NewRetryingEmailSender(platformClient, logger)

			worker := NewWorker(WorkerConfig{
				ID:           workerID,
				Persistence:  persistence,
				EventBus:     eventBus,
				Dedupe:       dedupeStore,
				Email:        emailSender,
				Tags:         platformClient,
				Subscribers:  platformClient,
				Templates:    platformClient,
				PollInterval: command.Duration("poll-interval"),
				Logger:       logger,
			})

			err := worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
