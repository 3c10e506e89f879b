// Package server wires configuration, providers, prompts, the run manager and
// the LLM call store into the proposer HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/proposer/internal/api"
	"github.com/jackzampolin/proposer/internal/config"
	"github.com/jackzampolin/proposer/internal/home"
	"github.com/jackzampolin/proposer/internal/jobs"
	"github.com/jackzampolin/proposer/internal/llmcall"
	"github.com/jackzampolin/proposer/internal/prompts"
	"github.com/jackzampolin/proposer/internal/providers"
	"github.com/jackzampolin/proposer/internal/server/endpoints"
	"github.com/jackzampolin/proposer/internal/svcctx"
)

// Server is the proposer HTTP server.
type Server struct {
	httpServer *http.Server
	jobManager *jobs.Manager
	registry   *providers.Registry
	prompts    *prompts.Resolver
	configMgr  *config.Manager
	callStore  *llmcall.Store
	recorder   *llmcall.Recorder
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu         sync.RWMutex
	running    bool
	listenAddr string
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// ConfigManager provides configuration with hot-reload support.
	// When nil, config is loaded from the home directory.
	ConfigManager *config.Manager
	// Home is the proposer home directory (default: ~/.proposer)
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		h, err := home.New("")
		if err != nil {
			return nil, err
		}
		cfg.Home = h
	}
	if cfg.ConfigManager == nil {
		cm, err := config.NewManager("", cfg.Home.Path())
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg.ConfigManager = cm
	}
	current := cfg.ConfigManager.Get()

	// Create provider registry
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)
	registry.Reload(current.ToProviderRegistryConfig())

	resolver := svcctx.NewPromptResolver(current, cfg.Logger)

	// Watch for config changes
	cfg.ConfigManager.OnChange(func(c *config.Config) {
		registry.Reload(c.ToProviderRegistryConfig())
		resolver.SetOverrides(c.Prompts.OverrideMap())
		cfg.Logger.Info("providers and prompts reloaded from config")
	})

	s := &Server{
		registry:  registry,
		prompts:   resolver,
		configMgr: cfg.ConfigManager,
		logger:    cfg.Logger,
	}

	if current.LLMCalls.Enabled {
		path := current.LLMCalls.DBPath
		if path == "" {
			path = cfg.Home.LLMCallsDBPath()
		}
		store, err := llmcall.OpenStore(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open llm call store: %w", err)
		}
		s.callStore = store
		s.recorder = llmcall.NewRecorder(llmcall.RecorderConfig{
			Store:         store,
			BatchSize:     current.LLMCalls.BatchSize,
			FlushInterval: current.LLMCalls.FlushIntervalDuration(),
			Logger:        cfg.Logger,
		})
	}

	s.jobManager = jobs.NewManager(jobs.ManagerConfig{
		MaxConcurrent: current.Defaults.MaxConcurrentRuns,
		MaxRecords:    current.Defaults.MaxRunRecords,
		Logger:        cfg.Logger,
	})

	// Create services struct for context enrichment
	s.services = &svcctx.Services{
		Analyzers: &svcctx.AnalyzerFactory{
			Config:   cfg.ConfigManager,
			Registry: registry,
			Prompts:  resolver,
			Recorder: s.recorder,
			Logger:   cfg.Logger,
		},
		JobManager:   s.jobManager,
		Registry:     registry,
		Prompts:      resolver,
		Config:       cfg.ConfigManager,
		LLMCallStore: s.callStore,
		Logger:       cfg.Logger,
		Home:         cfg.Home,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:     s.withServices(mux),
		ReadTimeout: 30 * time.Second,
		// Synchronous analysis holds the response open for the whole run.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.listenAddr = ln.Addr().String()
	s.mu.Unlock()

	if s.recorder != nil {
		// Runs still record while shutdown drains them.
		s.recorder.Start(context.WithoutCancel(ctx))
	}
	if s.configMgr.ConfigFile() != "" {
		s.configMgr.WatchConfig(func(err error) {
			s.logger.Warn("config reload failed, keeping previous config", "error", err)
		})
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// shutdown stops the HTTP server, cancels in-flight runs and flushes
// recorded LLM calls.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := s.jobManager.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("run manager shutdown error", "error", err)
	}

	if s.recorder != nil {
		s.recorder.Stop()
	}
	if s.callStore != nil {
		if err := s.callStore.Close(); err != nil {
			s.logger.Error("llm call store close error", "error", err)
		}
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAddr returns the bound address once Start is listening, which
// differs from Addr when port 0 was requested.
func (s *Server) ListenAddr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listenAddr
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// JobManager returns the run manager.
func (s *Server) JobManager() *jobs.Manager {
	return s.jobManager
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

// Prompts returns the prompt resolver.
func (s *Server) Prompts() *prompts.Resolver {
	return s.prompts
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable if the run manager isn't ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil || s.jobManager == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
