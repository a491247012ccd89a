package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/magicshelf/shelf/embed"
	"github.com/magicshelf/shelf/llm"
	"github.com/magicshelf/shelf/pipeline"
	"github.com/magicshelf/shelf/queue"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address. Default: ":8080".
	Addr string

	// RunsDir is the directory that holds one subdirectory per run.
	RunsDir string

	// Pipeline carries the per-run knobs (similarity top-k, chunk cap,
	// workers). InputDir and RunDir are filled per launch request.
	Pipeline pipeline.Config

	// QueryTopK is the per-retriever result count for query requests.
	// Default: 3.
	QueryTopK int

	// GracefulTimeout is the maximum duration to wait for active
	// requests to complete during shutdown. Default: 30 seconds.
	GracefulTimeout time.Duration
}

// DefaultConfig returns defaults suitable for local development.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		RunsDir:         "runs",
		QueryTopK:       3,
		GracefulTimeout: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.RunsDir == "" {
		c.RunsDir = "runs"
	}
	if c.QueryTopK == 0 {
		c.QueryTopK = 3
	}
	if c.GracefulTimeout == 0 {
		c.GracefulTimeout = 30 * time.Second
	}
	return c
}

// Server wraps the HTTP API with lifecycle management. It handles
// startup, graceful shutdown and signal handling.
type Server struct {
	config    Config
	completer llm.Completer
	embedder  embed.Embedder
	runQueue  queue.Client
	logger    *slog.Logger

	httpServer *http.Server
	listener   net.Listener

	// live holds the status records of runs started in-process, so
	// progress is visible before the first status.json hits disk.
	mu   sync.Mutex
	live map[string]*pipeline.Status
}

// New creates a server. The run queue is optional: when nil, launched
// runs execute in-process in a background goroutine.
func New(config Config, completer llm.Completer, embedder embed.Embedder, runQueue queue.Client, logger *slog.Logger) (*Server, error) {
	config = config.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	listener, err := net.Listen("tcp", config.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.Addr, err)
	}

	s := &Server{
		config:    config,
		completer: completer,
		embedder:  embedder,
		runQueue:  runQueue,
		logger:    logger,
		listener:  listener,
		live:      make(map[string]*pipeline.Status),
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// Handler returns the routing handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /runs", s.handleLaunchRun)
	mux.HandleFunc("GET /runs", s.handleListRuns)
	mux.HandleFunc("GET /runs/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /runs/{id}/logs", s.handleLogs)
	mux.HandleFunc("GET /runs/{id}/tree", s.handleCategoryTree)
	mux.HandleFunc("GET /runs/{id}/digraph", s.handleTreeDigraph)
	mux.HandleFunc("GET /runs/{id}/tags", s.handleTagsDigraph)
	mux.HandleFunc("GET /runs/{id}/nodes/{node}/text", s.handleNodeText)
	mux.HandleFunc("GET /runs/{id}/nodes/{node}/summary", s.handleNodeSummary)
	mux.HandleFunc("GET /runs/{id}/nodes/{node}/similar", s.handleSimilarNodes)
	mux.HandleFunc("GET /runs/{id}/query", s.handleQuery)
	return mux
}

// Serve starts the HTTP server and blocks until shutdown. It shuts down
// gracefully on SIGINT/SIGTERM or when the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	s.logger.Info("server listening", "addr", s.listener.Addr().String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		s.shutdown()
		return ctx.Err()
	case sig := <-sigCh:
		s.logger.Info("shutting down", "signal", sig.String())
		s.shutdown()
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.GracefulTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown timed out, closing", "error", err)
		_ = s.httpServer.Close()
	}
}

// Port returns the port the server is listening on. Useful when the
// configured address uses port 0.
func (s *Server) Port() int {
	if addr, ok := s.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}
