// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command orchestrator starts the Quillfeed chat HTTP server.
//
// This is the main entry point for the containerized chat service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - ORCHESTRATOR_PORT: HTTP server port (default: 8000)
//   - LLM_BACKEND_TYPE: Completion provider - openai or ollama (default: openai)
//   - SELA_TRANSPORT: Fetch backend - rest or node (default: rest)
//   - SELA_API_KEY: Bearer token for the Sela API (enriched branch fails per request without it)
//   - SELA_API_BASE_URL: Hosted Sela API base URL (optional override)
//   - SELA_NODE_URL: Websocket URL of a Sela node (node transport only)
//   - AGENT_DEFINITION_PATH: Agent definition document (default: agents/default/AGENT.md)
//   - FRONTEND_DIR: Exported frontend build directory (default: ./out)
//   - OPENAI_API_KEY: OpenAI credential for the completion streamer
//   - OPENAI_MODEL: Completion model override
//   - OLLAMA_BASE_URL: Ollama server URL (ollama backend only)
//   - OLLAMA_MODEL: Ollama model override
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o orchestrator ./cmd/orchestrator
//
//	# Run
//	./orchestrator
//
//	# Or via container
//	podman-compose up orchestrator
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"

	"github.com/quillfeed/quillfeed/services/orchestrator"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := orchestrator.Config{
		Port:           getEnvInt("ORCHESTRATOR_PORT", 8000),
		LLMBackend:     getEnvString("LLM_BACKEND_TYPE", "openai"),
		FetchTransport: getEnvString("SELA_TRANSPORT", "rest"),
		SelaAPIKey:     os.Getenv("SELA_API_KEY"),
		SelaBaseURL:    os.Getenv("SELA_API_BASE_URL"),
		SelaNodeURL:    os.Getenv("SELA_NODE_URL"),
		AgentDocPath:   os.Getenv("AGENT_DEFINITION_PATH"),
		StaticDir:      os.Getenv("FRONTEND_DIR"),
		OTelEndpoint:   getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4317"),
	}

	slog.Info("Starting chat service",
		"port", cfg.Port,
		"fetch_transport", cfg.FetchTransport,
		"sela_key_present", cfg.SelaAPIKey != "",
	)

	svc, err := orchestrator.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Service error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
