// Package api serves the coordinator's inbound JSON-RPC endpoint, health and metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/trigg3rX/proof-coordinator/internal/signer"
	"github.com/trigg3rX/proof-coordinator/internal/taskstatus"
	"github.com/trigg3rX/proof-coordinator/pkg/datastore"
	"github.com/trigg3rX/proof-coordinator/pkg/logging"
	"github.com/trigg3rX/proof-coordinator/pkg/types"
)

const (
	ServiceName     = "proof-coordinator"
	shutdownTimeout = 10 * time.Second
)

type TaskSigner interface {
	Sign(ctx context.Context, req signer.AssignmentRequest) (*signer.Assignment, error)
}

type ProofSink interface {
	Push(result types.ProofResult)
}

type Watermark interface {
	LastHandledBlock() uint64
}

type QueueDepth interface {
	Len() int
}

type Config struct {
	ListenAddr   string
	ProjectID    string
	SegmentCount int
	Version      string
	CORSOrigins  []string
}

// Dependencies are the components the handlers read from or feed. Mirror may be nil.
type Dependencies struct {
	Signer        TaskSigner
	Proofs        ProofSink
	Store         taskstatus.Store
	Mirror        datastore.Mirror
	Watermark     Watermark
	DispatchQueue QueueDepth
	ProofQueue    QueueDepth
	Metrics       http.Handler
}

type Server struct {
	router  *gin.Engine
	handler http.Handler
	config  Config
	deps    Dependencies
	logger  logging.Logger
}

func NewServer(cfg Config, deps Dependencies, logger logging.Logger) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if deps.Signer == nil || deps.Proofs == nil || deps.Store == nil {
		return nil, fmt.Errorf("signer, proof sink and status store are required")
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project id cannot be empty")
	}
	if cfg.SegmentCount <= 0 {
		return nil, fmt.Errorf("segment count must be positive, got %d", cfg.SegmentCount)
	}
	if _, isNoop := deps.Mirror.(datastore.NoopMirror); isNoop {
		deps.Mirror = nil
	}

	router := gin.New()
	s := &Server{
		router: router,
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "api"),
	}
	s.setupRoutes()

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.handler = cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept", "Origin", "X-Request-ID"},
	}).Handler(router)

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(gin.Recovery())
	s.router.Use(LoggerMiddleware(s.logger))

	s.router.POST("/", s.handleRPC)
	s.router.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics))
	}
}

// Handler is the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.ListenAddr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "addr", s.config.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	s.logger.Info("API server stopped")
	return nil
}
