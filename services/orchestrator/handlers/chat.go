// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP handlers of the chat service.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/quillfeed/quillfeed/services/fetcher"
	"github.com/quillfeed/quillfeed/services/llm"
	"github.com/quillfeed/quillfeed/services/orchestrator/agentdef"
	"github.com/quillfeed/quillfeed/services/orchestrator/datatypes"
	"github.com/quillfeed/quillfeed/services/orchestrator/intent"
	"github.com/quillfeed/quillfeed/services/orchestrator/observability"
	"github.com/quillfeed/quillfeed/services/orchestrator/stream"
	"github.com/quillfeed/quillfeed/services/orchestrator/summary"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ChatHandler handles the streaming chat endpoint.
//
// # Description
//
// ChatHandler orchestrates one POST /api/chat request: it validates the
// conversation, classifies the latest user turn, optionally fetches the
// named user's recent posts and synthesizes an enriched prompt, and
// streams the completion back as a data-stream body.
type ChatHandler interface {
	// HandleChat processes a chat request on a Gin context.
	HandleChat(c *gin.Context)
}

// =============================================================================
// Struct Definition
// =============================================================================

// chatHandler implements ChatHandler.
//
// # Fields
//
//   - streamer: Completion source for both response branches.
//   - fetchClient: Sela fetch backend for enriched responses.
//   - agent: Instruction document used as the system prompt.
//   - metrics: Streaming metrics; may be nil when metrics are disabled.
//   - fetchTransport: Metrics label for the configured fetch backend.
//   - tracer: Tracer for per-request spans.
type chatHandler struct {
	streamer       llm.CompletionStreamer
	fetchClient    fetcher.Client
	agent          *agentdef.Document
	metrics        *observability.StreamingMetrics
	fetchTransport string
	tracer         trace.Tracer
}

// =============================================================================
// Constructor
// =============================================================================

// NewChatHandler creates a ChatHandler with the provided dependencies.
//
// # Description
//
// Creates a fully configured chatHandler for production use. Panics if
// streamer, fetchClient, or agent is nil (programming errors). metrics
// may be nil, in which case no metrics are recorded.
//
// # Inputs
//
//   - streamer: Completion source. Must not be nil.
//   - fetchClient: Sela fetch backend. Must not be nil.
//   - agent: Agent instruction document. Must not be nil.
//   - metrics: Streaming metrics. May be nil.
//   - fetchTransport: Transport label for fetch metrics ("rest", "node").
//
// # Examples
//
//	handler := handlers.NewChatHandler(streamer, fetchClient, agent, metrics, "rest")
//	router.POST("/api/chat", handler.HandleChat)
func NewChatHandler(
	streamer llm.CompletionStreamer,
	fetchClient fetcher.Client,
	agent *agentdef.Document,
	metrics *observability.StreamingMetrics,
	fetchTransport string,
) ChatHandler {
	if streamer == nil {
		panic("NewChatHandler: streamer must not be nil")
	}
	if fetchClient == nil {
		panic("NewChatHandler: fetchClient must not be nil")
	}
	if agent == nil {
		panic("NewChatHandler: agent must not be nil")
	}
	return &chatHandler{
		streamer:       streamer,
		fetchClient:    fetchClient,
		agent:          agent,
		metrics:        metrics,
		fetchTransport: fetchTransport,
		tracer:         otel.Tracer("quillfeed/orchestrator/handlers"),
	}
}

// =============================================================================
// Handler
// =============================================================================

// HandleChat processes one chat request.
//
// # Description
//
// The request runs through numbered steps: parse and validate, locate
// the last user turn, classify it, optionally fetch and enrich, then
// stream the completion. Validation failures return JSON errors; once
// streaming has begun, failures terminate the body without the
// protocol's terminator frames so the client sees an aborted message.
func (h *chatHandler) HandleChat(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChat")
	defer span.End()

	// Step 1: Parse request body
	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		slog.Error("Failed to parse chat request", "error", err)
		h.recordValidationError()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON body"})
		return
	}

	// Step 2: Validate request
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		slog.Error("Chat request validation failed", "error", err)
		h.recordValidationError()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	span.SetAttributes(attribute.Int("chat.message_count", len(req.Messages)))

	systemPrompt := h.agent.Text()

	// Step 3: Locate the last user turn
	lastUser, found := req.LastUserMessage()
	if !found {
		h.streamSimple(ctx, c, span, &req, systemPrompt)
		return
	}
	userQuery := lastUser.Content.Text()

	// Step 4: Classify the user turn
	firstUserTurn := req.UserMessageCount() == 1
	classified := intent.Classify(userQuery, firstUserTurn)
	span.SetAttributes(attribute.String("chat.intent", intentLabel(classified.Kind)))

	if classified.Kind != intent.KindDataQuery {
		h.streamSimple(ctx, c, span, &req, systemPrompt)
		return
	}

	// Step 5: Fetch recent posts for the named user
	span.SetAttributes(
		attribute.String("fetch.username", classified.Username),
		attribute.Int("fetch.count", classified.Count),
	)
	fetchStart := time.Now()
	result, activity := h.fetchClient.FetchUserPosts(ctx, classified.Username, classified.Count)
	if h.metrics != nil {
		h.metrics.RecordFetch(h.fetchTransport, result.Error == "", time.Since(fetchStart).Seconds())
	}
	if result.Error != "" {
		span.SetAttributes(attribute.String("fetch.error", result.Error))
		slog.Warn("Fetch failed, streaming error explanation",
			"username", classified.Username, "error", result.Error)
		if h.metrics != nil {
			h.metrics.RecordError(observability.BranchEnriched, observability.ErrorCodeFetchError)
		}
	}

	// Step 6: Synthesize the enriched prompt
	prompt := summary.BuildPrompt(result.Username, result, classified.Count)

	// Step 7: Attach the activity log header
	logJSON, err := fetcher.MarshalActivityLog(activity)
	if err != nil {
		span.RecordError(err)
		slog.Error("Failed to serialize activity log", "error", err)
	} else {
		c.Header(stream.HeaderActivityLog, logJSON)
	}

	// Step 8: Substitute the enriched prompt for the last user turn
	messages := flattenMessages(req.Messages[:len(req.Messages)-1])
	messages = append(messages, llm.Message{Role: "user", Content: prompt})

	// Step 9: Stream the enriched completion
	h.streamCompletion(ctx, c, span, observability.BranchEnriched, systemPrompt, messages)
}

// streamSimple streams a plain conversational reply with the history
// passed through unchanged (flattened to plain text).
func (h *chatHandler) streamSimple(
	ctx context.Context,
	c *gin.Context,
	span trace.Span,
	req *datatypes.ChatRequest,
	systemPrompt string,
) {
	h.streamCompletion(ctx, c, span, observability.BranchSimple, systemPrompt, flattenMessages(req.Messages))
}

// streamCompletion runs the shared streaming tail of both branches.
func (h *chatHandler) streamCompletion(
	ctx context.Context,
	c *gin.Context,
	span trace.Span,
	branch observability.Branch,
	systemPrompt string,
	messages []llm.Message,
) {
	span.SetAttributes(attribute.String("chat.branch", string(branch)))

	// Headers must be in place before the first frame.
	SetStreamHeaders(c.Writer)

	writer, err := NewDataStreamWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "streaming unsupported")
		slog.Error("Failed to create data stream writer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return
	}

	if h.metrics != nil {
		h.metrics.StreamStarted(branch)
		defer h.metrics.StreamEnded(branch)
	}

	streamStart := time.Now()
	messageID, err := writer.Start()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "start frame failed")
		slog.Error("Failed to write start frame", "error", err)
		h.finishRequest(span, branch, false, streamStart)
		return
	}
	span.SetAttributes(attribute.String("chat.message_id", messageID))

	var firstFragmentAt time.Time
	streamErr := h.streamer.ChatStream(ctx, systemPrompt, messages, func(fragment string) error {
		if firstFragmentAt.IsZero() && fragment != "" {
			firstFragmentAt = time.Now()
			if h.metrics != nil {
				h.metrics.RecordTimeToFirstFragment(branch, firstFragmentAt.Sub(streamStart).Seconds())
			}
		}
		return writer.WriteText(fragment)
	})

	if streamErr != nil {
		// The body is already partially written; stopping here without
		// terminator frames marks the message as aborted for the client.
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "completion streaming failed")
		if errors.Is(streamErr, context.Canceled) {
			slog.Info("Client disconnected mid-stream", "message_id", messageID)
			if h.metrics != nil {
				h.metrics.RecordError(branch, observability.ErrorCodeClientDisconnect)
			}
		} else {
			slog.Error("Completion streaming failed", "message_id", messageID, "error", streamErr)
			if h.metrics != nil {
				h.metrics.RecordError(branch, observability.ErrorCodeLLMError)
			}
		}
		h.finishRequest(span, branch, false, streamStart)
		return
	}

	if err := writer.Finish(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "terminator frames failed")
		slog.Error("Failed to write terminator frames", "message_id", messageID, "error", err)
		h.finishRequest(span, branch, false, streamStart)
		return
	}

	span.SetStatus(codes.Ok, "stream completed")
	h.finishRequest(span, branch, true, streamStart)
}

// finishRequest records the request outcome metrics.
func (h *chatHandler) finishRequest(span trace.Span, branch observability.Branch, success bool, start time.Time) {
	duration := time.Since(start)
	span.SetAttributes(attribute.Float64("stream.duration_seconds", duration.Seconds()))
	if h.metrics == nil {
		return
	}
	h.metrics.RecordRequest(branch, success)
	h.metrics.RecordStreamDuration(branch, success, duration.Seconds())
}

func (h *chatHandler) recordValidationError() {
	if h.metrics != nil {
		h.metrics.RecordError(observability.BranchSimple, observability.ErrorCodeValidation)
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// flattenMessages converts conversation turns to completion messages,
// flattening typed-part content to plain text.
func flattenMessages(messages []datatypes.Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages)+1)
	for _, m := range messages {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content.Text()})
	}
	return out
}

func intentLabel(kind intent.Kind) string {
	switch kind {
	case intent.KindGreeting:
		return "greeting"
	case intent.KindDataQuery:
		return "data_query"
	default:
		return "none"
	}
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ ChatHandler = (*chatHandler)(nil)
