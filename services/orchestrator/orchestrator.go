// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator provides the core chat service for Quillfeed.
//
// This package contains the main service type that coordinates all
// components: HTTP routing, the completion streamer, the Sela fetch
// client, the agent definition document, and observability
// infrastructure.
//
// # Usage
//
//	cfg := orchestrator.Config{Port: 8000}
//	svc, err := orchestrator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillfeed/quillfeed/services/fetcher"
	"github.com/quillfeed/quillfeed/services/llm"
	"github.com/quillfeed/quillfeed/services/orchestrator/agentdef"
	"github.com/quillfeed/quillfeed/services/orchestrator/handlers"
	"github.com/quillfeed/quillfeed/services/orchestrator/observability"
	"github.com/quillfeed/quillfeed/services/orchestrator/routes"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the chat service.
//
// # Description
//
// Service abstracts the service lifecycle, enabling testing and
// alternative implementations. Only essential lifecycle methods are
// exposed.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
//
// # Limitations
//
//   - No graceful shutdown method yet (planned for future)
//   - Run() blocks until server error
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	//
	// # Outputs
	//
	//   - error: Non-nil if the server fails to start or encounters a
	//     fatal error
	Run() error

	// Router returns the underlying Gin engine for testing.
	//
	// # Outputs
	//
	//   - *gin.Engine: The configured router with all routes registered
	//
	// # Assumptions
	//
	//   - Caller will not modify the router
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds service configuration options.
//
// # Description
//
// Config centralizes all configuration for the chat service. Values
// can be populated from environment variables, config files, or
// programmatically for testing.
//
// # Required Fields
//
// None. All fields have sensible defaults, though the enriched branch
// returns errors at request time when SelaAPIKey is unset.
//
// # Examples
//
//	// Minimal config (uses all defaults)
//	cfg := Config{}
//
//	// Custom port with a local Sela node
//	cfg := Config{
//	    Port:           8080,
//	    FetchTransport: "node",
//	    SelaNodeURL:    "ws://localhost:9444/rpc",
//	}
type Config struct {
	// Port is the HTTP server port. Default: 8000
	Port int

	// LLMBackend specifies the completion provider.
	// Valid values: "openai", "ollama"
	// Default: "openai"
	LLMBackend string

	// FetchTransport selects the Sela backend.
	// Valid values: "rest", "node". Default: "rest"
	FetchTransport string

	// SelaAPIKey is the bearer token for the Sela API.
	// If empty, data queries fail at request time with an explanatory
	// message rather than at startup.
	SelaAPIKey string

	// SelaBaseURL overrides the hosted Sela API base URL.
	// Default: the public endpoint.
	SelaBaseURL string

	// SelaNodeURL is the websocket URL of a Sela node.
	// Required when FetchTransport is "node".
	SelaNodeURL string

	// AgentDocPath is the path to the agent definition document.
	// Default: "agents/default/AGENT.md"
	AgentDocPath string

	// StaticDir is the directory holding the exported frontend build.
	// Default: "./out"
	StaticDir string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "otel-collector:4317"
	OTelEndpoint string

	// EnableMetrics enables the Prometheus metrics endpoint.
	// Default: true
	EnableMetrics bool

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Description
//
// service is the main implementation that coordinates:
//   - HTTP routing via Gin
//   - The OpenAI completion streamer
//   - The Sela fetch client (REST or node transport)
//   - The hot-reloading agent definition document
//   - OpenTelemetry tracing and Prometheus metrics
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	streamer      llm.CompletionStreamer
	fetchClient   fetcher.Client
	agent         *agentdef.Document
	metrics       *observability.StreamingMetrics
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new chat Service with the given configuration.
//
// # Description
//
// New initializes all service components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Initializes Prometheus metrics
//  4. Loads the agent definition and starts its file watcher
//  5. Creates the Sela fetch client for the configured transport
//  6. Creates the OpenAI completion streamer
//  7. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run chat service
//   - error: Non-nil if initialization fails
//
// # Limitations
//
//   - Streamer creation fails if no OpenAI credentials are available
//
// # Assumptions
//
//   - Network is available for external service connections
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}

	// Initialize OpenTelemetry tracer
	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	// Initialize Prometheus metrics
	if s.config.EnableMetrics {
		s.metrics = observability.InitMetrics()
		slog.Info("Initialized Prometheus metrics for streaming")
	}

	// Load the agent definition and watch it for edits
	s.agent = agentdef.Load(s.config.AgentDocPath)
	if err := s.agent.Watch(); err != nil {
		slog.Warn("Agent definition watcher unavailable, edits require restart",
			"path", s.config.AgentDocPath,
			"error", err)
	}

	// Initialize the Sela fetch client
	s.fetchClient, err = fetcher.New(fetcher.Config{
		Transport: s.config.FetchTransport,
		APIKey:    s.config.SelaAPIKey,
		BaseURL:   s.config.SelaBaseURL,
		NodeURL:   s.config.SelaNodeURL,
	})
	if err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize fetch client: %w", err)
	}
	slog.Info("Initialized Sela fetch client", "transport", s.config.FetchTransport)

	// Initialize the completion streamer
	if err := s.initStreamer(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize completion streamer: %w", err)
	}

	// Setup HTTP router
	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting chat server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
//
// # Inputs
//
//   - cfg: User-provided configuration
//
// # Outputs
//
//   - Config: Configuration with defaults applied
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.LLMBackend == "" {
		cfg.LLMBackend = "openai"
	}
	if cfg.FetchTransport == "" {
		cfg.FetchTransport = fetcher.TransportREST
	}
	if cfg.AgentDocPath == "" {
		cfg.AgentDocPath = agentdef.DefaultPath
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = "./out"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "otel-collector:4317"
	}
	// EnableMetrics defaults to true (zero value is false, so we need explicit check)
	// We'll handle this by always enabling unless explicitly disabled via a setter
	cfg.EnableMetrics = true

	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up OTLP trace exporter to send spans to the configured collector.
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
//
// # Limitations
//
//   - Uses insecure gRPC connection (appropriate for internal networks)
//
// # Assumptions
//
//   - OTel collector is reachable at configured endpoint
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("quillfeed-orchestrator")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStreamer initializes the completion provider client.
//
// # Description
//
// Creates the appropriate streamer based on the configured backend type.
//
// # Outputs
//
//   - error: Non-nil if client creation fails
//
// # Limitations
//
//   - Only supports: openai, ollama
//
// # Assumptions
//
//   - Required environment variables are set for the chosen provider
func (s *service) initStreamer() error {
	var err error

	switch s.config.LLMBackend {
	case "ollama":
		s.streamer, err = llm.NewOllamaClient()
		slog.Info("Using Ollama completion backend")
	case "openai":
		s.streamer, err = llm.NewOpenAIClient()
		slog.Info("Using OpenAI completion backend")
	default:
		slog.Warn("Unknown completion backend, defaulting to openai", "backend", s.config.LLMBackend)
		s.streamer, err = llm.NewOpenAIClient()
	}

	return err
}

// initRouter sets up the Gin HTTP router with all routes.
//
// # Assumptions
//
//   - All dependencies (streamer, fetch client, agent) are initialized
func (s *service) initRouter() {
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("quillfeed-orchestrator"))

	chat := handlers.NewChatHandler(s.streamer, s.fetchClient, s.agent,
		s.metrics, s.config.FetchTransport)
	routes.SetupRoutes(s.router, chat, s.config.StaticDir)
}

// cleanup releases all resources held by the service.
//
// # Description
//
// Called when Run() exits or on initialization failure. Stops the
// agent definition watcher and shuts down the tracer.
func (s *service) cleanup() {
	if s.agent != nil {
		if err := s.agent.Close(); err != nil {
			slog.Warn("Agent definition watcher close error", "error", err)
		}
	}

	if closer, ok := s.fetchClient.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			slog.Warn("Fetch client close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
