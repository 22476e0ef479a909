// Package server wires the document store, services, RPC server and
// sweep scheduler together and runs them until the process is signalled.
package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/tripkeeper/internal/logging"
	"github.com/dmitrijs2005/tripkeeper/internal/server/config"
	"github.com/dmitrijs2005/tripkeeper/internal/server/docstore"
	"github.com/dmitrijs2005/tripkeeper/internal/server/photos"
	"github.com/dmitrijs2005/tripkeeper/internal/server/scheduler"
	"github.com/dmitrijs2005/tripkeeper/internal/server/services"
	"github.com/dmitrijs2005/tripkeeper/internal/timex"
	"golang.org/x/sync/errgroup"

	gs "github.com/dmitrijs2005/tripkeeper/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	store     docstore.Store
	grpc      *gs.GRPCServer
	scheduler *scheduler.Scheduler
}

func openStore(ctx context.Context, dsn string) (docstore.Store, error) {
	if dsn == config.MemoryDSN {
		return docstore.NewMemoryStore(), nil
	}
	return docstore.OpenPostgres(ctx, dsn)
}

func openPhotos(ctx context.Context, c *config.Config) (photos.Source, error) {
	if c.S3Bucket == "" {
		return photos.NopSource{}, nil
	}
	return photos.NewS3Source(ctx, photos.S3Config{
		User:         c.S3RootUser,
		Password:     c.S3RootPassword,
		Bucket:       c.S3Bucket,
		Region:       c.S3Region,
		BaseEndpoint: c.S3BaseEndpoint,
	})
}

func serviceOptions(c *config.Config) services.Options {
	return services.Options{
		TrashRetention:    c.TrashRetention,
		PurgePageSize:     c.PurgePageSize,
		DueBatchSize:      c.DueBatchSize,
		ReconcilePageSize: c.ReconcilePageSize,
		MaxAttempts:       c.JobMaxAttempts,
		RetryDelay:        c.JobRetryDelay,
	}
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	store, err := openStore(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	src, err := openPhotos(ctx, c)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("photo storage init error: %w", err)
	}

	clock := timex.SystemClock{}
	opts := serviceOptions(c)
	trash := services.NewTrashService(store, clock, logger, opts)
	journal := services.NewJournalService(store, clock, logger, src, opts)

	srv := gs.NewGRPCServer(c.EndpointAddrGRPC, logger, gs.Services{
		Plans:     services.NewPlanService(store, clock, logger),
		Proposals: services.NewProposalService(store, clock, logger),
		Trash:     trash,
		Journal:   journal,
	}, c.SecretKey)

	sched, err := scheduler.New(logger,
		scheduler.Task{Name: "runDueJournalJobs", Spec: c.DueJobsSchedule, Run: func(ctx context.Context) error {
			_, err := journal.RunDueJobs(ctx)
			return err
		}},
		scheduler.Task{Name: "purgeExpiredTrash", Spec: c.PurgeSchedule, Run: func(ctx context.Context) error {
			_, err := trash.PurgeExpired(ctx)
			return err
		}},
		scheduler.Task{Name: "reconcileMissingJournalJobs", Spec: c.ReconcileSchedule, Run: func(ctx context.Context) error {
			_, err := journal.ReconcileJobs(ctx)
			return err
		}},
	)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &App{config: c, logger: logger, store: store, grpc: srv, scheduler: sched}, nil
}

// Run serves RPCs and runs the sweeps until ctx is cancelled, the process
// receives SIGINT, SIGTERM or SIGQUIT, or either part fails.
func (app *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.grpc.Run(ctx) })
	g.Go(func() error { return app.scheduler.Run(ctx) })

	err := g.Wait()
	if closeErr := app.store.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close store: %w", closeErr))
	}
	app.logger.Info(context.Background(), "App stopped")
	return err
}
