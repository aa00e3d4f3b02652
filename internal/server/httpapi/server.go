// Package httpapi exposes the upload handshake, status polling, worker
// trigger and transcription stream over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/scanvault/internal/logging"
	"github.com/dmitrijs2005/scanvault/internal/server/auth"
	"github.com/dmitrijs2005/scanvault/internal/server/inference"
	"github.com/dmitrijs2005/scanvault/internal/server/models"
	"github.com/dmitrijs2005/scanvault/internal/server/processing"
	"github.com/dmitrijs2005/scanvault/internal/server/services"
	"github.com/gin-gonic/gin"
)

// Uploads is implemented by services.UploadService.
type Uploads interface {
	CreateUploadURL(ctx context.Context, userID, filename, contentType string) (*services.UploadTicket, error)
	RecordUploadComplete(ctx context.Context, userID string, in services.CompleteUpload) (*models.FileRecord, error)
	UploadText(ctx context.Context, userID, name, content string) (*models.FileRecord, error)
	GetStatus(ctx context.Context, userID, fileID string) (*models.FileRecord, error)
	Requeue(ctx context.Context, userID, fileID string) (*models.FileRecord, error)
}

// Runs is implemented by worker.Runner.
type Runs interface {
	Run(ctx context.Context) (services.RunSummary, error)
}

// Transcriptions is implemented by services.TranscriptionService.
type Transcriptions interface {
	Transcribe(ctx context.Context, userID, blobURL, extension string, emit processing.EmitFunc) (inference.Result, error)
}

const defaultRunTimeout = 15 * time.Minute

type Server struct {
	address        string
	logger         logging.Logger
	verifier       auth.Verifier
	workerSecret   string
	runTimeout     time.Duration
	baseCtx        context.Context
	uploads        Uploads
	runs           Runs
	transcriptions Transcriptions
	router         *gin.Engine
}

// NewServer wires the handlers. runTimeout bounds a worker run started over
// HTTP, which is otherwise detached from the caller's connection.
func NewServer(address string, l logging.Logger, verifier auth.Verifier, workerSecret string, runTimeout time.Duration,
	uploads Uploads, runs Runs, transcriptions Transcriptions) *Server {

	if runTimeout <= 0 {
		runTimeout = defaultRunTimeout
	}

	s := &Server{
		address:        address,
		logger:         l.With("module", "http_server"),
		verifier:       verifier,
		workerSecret:   workerSecret,
		runTimeout:     runTimeout,
		baseCtx:        context.Background(),
		uploads:        uploads,
		runs:           runs,
		transcriptions: transcriptions,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/process-pending", s.workerSecretRequired(), s.processPending)

	authed := r.Group("/", s.authRequired())
	{
		authed.POST("/upload-url", s.createUploadURL)
		authed.POST("/upload-complete", s.uploadComplete)
		authed.POST("/upload-text", s.uploadText)
		authed.GET("/files/:id/status", s.fileStatus)
		authed.POST("/files/:id/retry", s.retryFile)
		authed.POST("/transcribe", s.transcribe)
	}
	return r
}

// Handler returns the routed handler, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully. Worker
// runs in flight are cancelled together with ctx.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx

	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown failed", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
