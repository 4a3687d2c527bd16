// Package httpapi exposes the allocator and the ledger over HTTP with gin.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mybank/idalloc"
	"github.com/mybank/idalloc/ledger"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 5 * time.Second

// Options wires a Server.
type Options struct {
	Generator *idalloc.Generator
	Ledger    *ledger.Service
	Logger    *zap.Logger
	// HealthCheck is called by /healthz when set, e.g. a database ping.
	HealthCheck func(ctx context.Context) error
}

// Server is the HTTP front end.
type Server struct {
	gen         *idalloc.Generator
	ledger      *ledger.Service
	logger      *zap.Logger
	healthCheck func(ctx context.Context) error

	engine *gin.Engine
	srv    *http.Server
}

// New builds the gin engine and registers every route.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(requestIDMiddleware(), accessLogMiddleware(logger), recoveryMiddleware(logger))

	s := &Server{
		gen:         opts.Generator,
		ledger:      opts.Ledger,
		logger:      logger,
		healthCheck: opts.HealthCheck,
		engine:      engine,
	}
	s.srv = &http.Server{Handler: engine, ReadHeaderTimeout: 10 * time.Second}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", s.handleMetrics)

	v1 := engine.Group("/api/v1")
	v1.GET("/ids", s.handleMintIDs)
	v1.GET("/ids/:id", s.handleDecodeID)

	if s.ledger != nil {
		txns := v1.Group("/transactions")
		txns.POST("", s.handleCreateTransaction)
		txns.GET("", s.handleListTransactions)
		txns.GET("/:id", s.handleGetTransaction)
		txns.PUT("/:id", s.handleUpdateTransaction)
		txns.DELETE("/:id", s.handleDeleteTransaction)
	}

	engine.NoRoute(func(c *gin.Context) {
		Fail(c, http.StatusNotFound, "route not found")
	})

	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.logger.Info("http server listening", zap.String("addr", l.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(l) }()

	select {
	case <-ctx.Done():
		cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		if err := s.srv.Shutdown(cctx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
