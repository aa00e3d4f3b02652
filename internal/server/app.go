// Package server wires storage, object store, inference and the HTTP
// surface together and runs them until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/dmitrijs2005/scanvault/internal/server/auth"
	"github.com/dmitrijs2005/scanvault/internal/server/config"
	"github.com/dmitrijs2005/scanvault/internal/server/httpapi"
	"github.com/dmitrijs2005/scanvault/internal/server/inference"
	"github.com/dmitrijs2005/scanvault/internal/server/media"
	"github.com/dmitrijs2005/scanvault/internal/server/objectstore"
	"github.com/dmitrijs2005/scanvault/internal/server/processing"
	"github.com/dmitrijs2005/scanvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/scanvault/internal/server/services"
	"github.com/dmitrijs2005/scanvault/internal/server/worker"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	redis     *redis.Client
	http      *httpapi.Server
	scheduler *worker.Scheduler
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, logging.ParseLevel(c.LogLevel))

	db, err := repomanager.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	objects, err := objectstore.New(ctx, objectstore.Config{
		User:          c.S3RootUser,
		Password:      c.S3RootPassword,
		Bucket:        c.S3Bucket,
		Region:        c.S3Region,
		BaseEndpoint:  c.S3BaseEndpoint,
		PublicBaseURL: c.S3PublicBaseURL,
		PresignTTL:    c.PresignTTL,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	extractor := inference.NewClient(inference.Config{
		BaseURL:            c.InferenceBaseURL,
		APIKey:             c.InferenceAPIKey,
		VisionModel:        c.VisionModel,
		TranscriptionModel: c.TranscriptionModel,
	}, nil)

	transcriber := processing.NewTranscriber(media.NewFFmpeg(c.FFmpegPath, c.FFprobePath), extractor, logger)
	transcriber.Threshold = c.ChunkThreshold
	transcriber.Stagger = c.ChunkStagger

	engine := processing.NewEngine(objects, extractor, transcriber, logger)

	app := &App{config: c, logger: logger, db: db}

	var lease worker.Lease = &worker.LocalLease{}
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword})
		if err := app.redis.Ping(ctx).Err(); err != nil {
			app.close()
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		lease = worker.NewRedisLease(app.redis, worker.DefaultLeaseKey, c.LeaseTTL)
	}

	runner := worker.NewRunner(services.NewWorkerService(db, rm, engine, c, logger), lease, logger)
	if c.ScheduleInterval > 0 {
		app.scheduler = worker.NewScheduler(runner, c.ScheduleInterval, logger)
	}

	app.http = httpapi.NewServer(c.HTTPAddr, logger,
		auth.NewJWTVerifier(c.JWTSecret),
		c.WorkerSecret,
		c.LeaseTTL,
		services.NewUploadService(db, rm, objects, c, logger),
		runner,
		services.NewTranscriptionService(objects, transcriber, logger),
	)

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.http.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) close() {
	if app.redis != nil {
		_ = app.redis.Close()
	}
	_ = app.db.Close()
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.scheduler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.scheduler.Start(ctx)
		}()
	}

	wg.Wait()
	app.close()

	app.logger.Info(ctx, "App stopped")
}
