// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillfeed/quillfeed/services/fetcher"
	"github.com/quillfeed/quillfeed/services/llm"
	"github.com/quillfeed/quillfeed/services/orchestrator/agentdef"
	"github.com/quillfeed/quillfeed/services/orchestrator/summary"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	// Set Gin to test mode to reduce noise in test output
	gin.SetMode(gin.TestMode)
}

// mockStreamer replays canned fragments and records what it was asked
// to stream.
type mockStreamer struct {
	fragments   []string
	err         error
	gotSystem   string
	gotMessages []llm.Message
	calls       int
}

func (m *mockStreamer) ChatStream(ctx context.Context, system string, messages []llm.Message, cb llm.StreamCallback) error {
	m.calls++
	m.gotSystem = system
	m.gotMessages = messages
	for _, f := range m.fragments {
		if err := cb(f); err != nil {
			return err
		}
	}
	return m.err
}

// mockFetcher returns a canned result and records the last query.
type mockFetcher struct {
	result      fetcher.Result
	activity    []fetcher.ActivityEntry
	gotUsername string
	gotCount    int
	calls       int
}

func (m *mockFetcher) FetchUserPosts(ctx context.Context, username string, count int) (fetcher.Result, []fetcher.ActivityEntry) {
	m.calls++
	m.gotUsername = username
	m.gotCount = count
	return m.result, m.activity
}

func newTestHandler(t *testing.T, streamer *mockStreamer, fetchClient *mockFetcher) ChatHandler {
	t.Helper()
	// A missing document path exercises the built-in persona fallback.
	agent := agentdef.Load(filepath.Join(t.TempDir(), "AGENT.md"))
	return NewChatHandler(streamer, fetchClient, agent, nil, "rest")
}

func performChat(t *testing.T, handler ChatHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := gin.New()
	router.POST("/api/chat", handler.HandleChat)

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// frames splits a data-stream body into its protocol lines.
func frames(body string) []string {
	return strings.Split(strings.TrimSuffix(body, "\n"), "\n")
}

// =============================================================================
// Validation Tests
// =============================================================================

// TestHandleChat_InvalidJSON verifies malformed bodies get a JSON 400.
func TestHandleChat_InvalidJSON(t *testing.T) {
	handler := newTestHandler(t, &mockStreamer{}, &mockFetcher{})

	rec := performChat(t, handler, "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid JSON body"}`, rec.Body.String())
}

// TestHandleChat_MissingMessages verifies a body without a messages
// array gets a JSON 400.
func TestHandleChat_MissingMessages(t *testing.T) {
	handler := newTestHandler(t, &mockStreamer{}, &mockFetcher{})

	rec := performChat(t, handler, `{"other":1}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "messages array required")
}

// TestHandleChat_MessagesNotArray verifies a non-array messages field is
// rejected.
func TestHandleChat_MessagesNotArray(t *testing.T) {
	handler := newTestHandler(t, &mockStreamer{}, &mockFetcher{})

	rec := performChat(t, handler, `{"messages":"nope"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestHandleChat_OversizedContent verifies the per-message size limit.
func TestHandleChat_OversizedContent(t *testing.T) {
	handler := newTestHandler(t, &mockStreamer{}, &mockFetcher{})
	big := strings.Repeat("a", 33*1024)
	body, _ := json.Marshal(map[string]any{
		"messages": []map[string]any{{"role": "user", "content": big}},
	})

	rec := performChat(t, handler, string(body))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid request")
}

// =============================================================================
// Simple Branch Tests
// =============================================================================

// TestHandleChat_SimpleBranch verifies a plain question streams the
// conversation unchanged.
func TestHandleChat_SimpleBranch(t *testing.T) {
	// Arrange
	streamer := &mockStreamer{fragments: []string{"Sure", ", here"}}
	fetchClient := &mockFetcher{}
	handler := newTestHandler(t, streamer, fetchClient)

	// Act
	rec := performChat(t, handler, `{"messages":[
		{"role":"user","content":"hello there, bot"},
		{"role":"assistant","content":"Hi! Ask me about any X account."},
		{"role":"user","content":"tell me a joke"}
	]}`)

	// Assert: protocol surface
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "v1", rec.Header().Get("x-vercel-ai-data-stream"))
	assert.Empty(t, rec.Header().Get("x-activity-log"), "simple branch should not attach an activity log")

	lines := frames(rec.Body.String())
	require.Len(t, lines, 5)
	assert.True(t, strings.HasPrefix(lines[0], "f:"))
	assert.Equal(t, `0:"Sure"`, lines[1])
	assert.Equal(t, `0:", here"`, lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "e:"))
	assert.True(t, strings.HasPrefix(lines[4], "d:"))

	// Assert: conversation passthrough
	assert.Zero(t, fetchClient.calls, "no fetch should happen for plain conversation")
	require.Len(t, streamer.gotMessages, 3)
	assert.Equal(t, "tell me a joke", streamer.gotMessages[2].Content)
	assert.Contains(t, streamer.gotSystem, "Twitter research assistant")
}

// TestHandleChat_GreetingFirstTurn verifies a first-turn greeting never
// triggers a fetch.
func TestHandleChat_GreetingFirstTurn(t *testing.T) {
	streamer := &mockStreamer{fragments: []string{"Hello!"}}
	fetchClient := &mockFetcher{}
	handler := newTestHandler(t, streamer, fetchClient)

	rec := performChat(t, handler, `{"messages":[{"role":"user","content":"hi!"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, fetchClient.calls)
	assert.Equal(t, 1, streamer.calls)
}

// TestHandleChat_NoUserMessage verifies a conversation without user
// turns streams the simple branch.
func TestHandleChat_NoUserMessage(t *testing.T) {
	streamer := &mockStreamer{fragments: []string{"ok"}}
	fetchClient := &mockFetcher{}
	handler := newTestHandler(t, streamer, fetchClient)

	rec := performChat(t, handler, `{"messages":[{"role":"assistant","content":"hello"}]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, fetchClient.calls)
	require.Len(t, streamer.gotMessages, 1)
	assert.Equal(t, "assistant", streamer.gotMessages[0].Role)
}

// TestHandleChat_EmptyMessages verifies an empty array is accepted and
// streams the simple branch.
func TestHandleChat_EmptyMessages(t *testing.T) {
	streamer := &mockStreamer{fragments: []string{"Hi"}}
	handler := newTestHandler(t, streamer, &mockFetcher{})

	rec := performChat(t, handler, `{"messages":[]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, streamer.calls)
	assert.Empty(t, streamer.gotMessages)
}

// =============================================================================
// Enriched Branch Tests
// =============================================================================

// TestHandleChat_EnrichedBranch verifies the fetch, prompt substitution,
// and activity log header.
func TestHandleChat_EnrichedBranch(t *testing.T) {
	// Arrange
	result := fetcher.Result{
		Username:      "nasa",
		Authenticated: true,
		Items: []fetcher.ContentItem{
			{ContentType: "tweet", Fields: map[string]any{"content": "launch update"}},
		},
	}
	activity := []fetcher.ActivityEntry{
		{ID: "a1", Type: fetcher.TypeBrowse, Platform: fetcher.PlatformTwitter, Message: "Fetching tweets for @nasa"},
		{ID: "a2", Type: fetcher.TypeInfo, Platform: fetcher.PlatformTwitter, Message: "Retrieved 1 tweets for @nasa"},
	}
	streamer := &mockStreamer{fragments: []string{"@nasa posted about launches."}}
	fetchClient := &mockFetcher{result: result, activity: activity}
	handler := newTestHandler(t, streamer, fetchClient)

	// Act
	rec := performChat(t, handler, `{"messages":[
		{"role":"user","content":"hi"},
		{"role":"assistant","content":"Hello!"},
		{"role":"user","content":"@nasa last 2"}
	]}`)

	// Assert: fetch query
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fetchClient.calls)
	assert.Equal(t, "nasa", fetchClient.gotUsername)
	assert.Equal(t, 2, fetchClient.gotCount)

	// Assert: activity log header
	var decoded []fetcher.ActivityEntry
	require.NoError(t, json.Unmarshal([]byte(rec.Header().Get("x-activity-log")), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "a1", decoded[0].ID)

	// Assert: prompt substitution
	require.Len(t, streamer.gotMessages, 3)
	assert.Equal(t, "hi", streamer.gotMessages[0].Content, "prior turns pass through flattened")
	assert.Equal(t, "Hello!", streamer.gotMessages[1].Content)
	wantPrompt := summary.BuildPrompt("nasa", result, 2)
	assert.Equal(t, wantPrompt, streamer.gotMessages[2].Content,
		"last user turn should be replaced by the synthesized prompt")

	// Assert: streamed body is a complete message
	lines := frames(rec.Body.String())
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "f:"))
	assert.True(t, strings.HasPrefix(lines[3], "d:"))
}

// TestHandleChat_TypedPartContent verifies typed-part content is
// flattened before classification.
func TestHandleChat_TypedPartContent(t *testing.T) {
	streamer := &mockStreamer{fragments: []string{"summary"}}
	fetchClient := &mockFetcher{result: fetcher.Result{Username: "nasa", Authenticated: true}}
	handler := newTestHandler(t, streamer, fetchClient)

	rec := performChat(t, handler, `{"messages":[
		{"role":"user","content":[{"type":"text","text":"@nasa"},{"type":"image","image":"x.png"}]}
	]}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, fetchClient.calls, "flattened part text should classify as a data query")
	assert.Equal(t, "nasa", fetchClient.gotUsername)
}

// TestHandleChat_FetchFailureStillStreams verifies a failed fetch still
// produces a complete streamed reply built from the error prompt.
func TestHandleChat_FetchFailureStillStreams(t *testing.T) {
	// Arrange
	result := fetcher.Result{Username: "ghost", Error: "HTTP 404: not found"}
	activity := []fetcher.ActivityEntry{
		{ID: "e1", Type: fetcher.TypeError, Platform: fetcher.PlatformTwitter},
	}
	streamer := &mockStreamer{fragments: []string{"I could not fetch that profile."}}
	fetchClient := &mockFetcher{result: result, activity: activity}
	handler := newTestHandler(t, streamer, fetchClient)

	// Act
	rec := performChat(t, handler, `{"messages":[{"role":"user","content":"check @ghost"}]}`)

	// Assert
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("x-activity-log"))
	require.Len(t, streamer.gotMessages, 1)
	assert.Contains(t, streamer.gotMessages[0].Content, "encountered an error: HTTP 404: not found")

	lines := frames(rec.Body.String())
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], "d:"), "reply should finish cleanly")
}

// =============================================================================
// Mid-stream Failure Tests
// =============================================================================

// TestHandleChat_MidStreamFailure verifies the body stops without
// terminator frames when the completion source fails.
func TestHandleChat_MidStreamFailure(t *testing.T) {
	streamer := &mockStreamer{
		fragments: []string{"partial"},
		err:       errors.New("upstream exploded"),
	}
	handler := newTestHandler(t, streamer, &mockFetcher{})

	rec := performChat(t, handler, `{"messages":[{"role":"user","content":"tell me things"}]}`)

	body := rec.Body.String()
	assert.Contains(t, body, `0:"partial"`)
	assert.NotContains(t, body, "e:{", "aborted message must not carry a step-finish frame")
	assert.NotContains(t, body, "d:{", "aborted message must not carry a done frame")
}

// TestHandleChat_ClientDisconnect verifies cancellation is handled the
// same way on the wire.
func TestHandleChat_ClientDisconnect(t *testing.T) {
	streamer := &mockStreamer{
		fragments: []string{"partial"},
		err:       context.Canceled,
	}
	handler := newTestHandler(t, streamer, &mockFetcher{})

	rec := performChat(t, handler, `{"messages":[{"role":"user","content":"tell me things"}]}`)

	body := rec.Body.String()
	assert.Contains(t, body, `0:"partial"`)
	assert.NotContains(t, body, "d:{")
}
