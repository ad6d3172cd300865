// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"encoding/json"
	"strings"
	"testing"
)

// =============================================================================
// MessageContent Decoding Tests
// =============================================================================

func TestMessageContent_UnmarshalString(t *testing.T) {
	var c MessageContent
	if err := json.Unmarshal([]byte(`"hello there"`), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Text() != "hello there" {
		t.Errorf("Text() = %q, want %q", c.Text(), "hello there")
	}
}

func TestMessageContent_UnmarshalTypedParts(t *testing.T) {
	payload := `[
		{"type":"text","text":"@nasa"},
		{"type":"image","url":"https://example.com/a.png"},
		{"type":"text","text":"5 tweets"}
	]`

	var c MessageContent
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Text() != "@nasa 5 tweets" {
		t.Errorf("Text() = %q, want text parts joined with spaces", c.Text())
	}
}

func TestMessageContent_UnmarshalEmptyParts(t *testing.T) {
	var c MessageContent
	if err := json.Unmarshal([]byte(`[]`), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Text() != "" {
		t.Errorf("Text() = %q, want empty", c.Text())
	}
}

func TestMessageContent_UnmarshalOtherShapeKeepsSource(t *testing.T) {
	var c MessageContent
	if err := json.Unmarshal([]byte(`{"weird":true}`), &c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(c.Text(), "weird") {
		t.Errorf("Text() = %q, want raw source preserved", c.Text())
	}
}

func TestMessageContent_MarshalRoundTrip(t *testing.T) {
	data, err := json.Marshal(NewMessageContent("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `"hi"` {
		t.Errorf("MarshalJSON = %s, want flattened string form", data)
	}
}

// =============================================================================
// ChatRequest Validation Tests
// =============================================================================

func TestChatRequest_Validate_Success(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: "user", Content: NewMessageContent("hello")},
			{Role: "assistant", Content: NewMessageContent("hi!")},
		},
	}

	if err := req.Validate(); err != nil {
		t.Errorf("expected valid request, got error: %v", err)
	}
}

func TestChatRequest_Validate_NilMessages(t *testing.T) {
	req := &ChatRequest{}

	err := req.Validate()
	if err == nil {
		t.Fatal("expected error for missing messages array")
	}
	if err.Error() != "messages array required" {
		t.Errorf("error = %q, want %q", err.Error(), "messages array required")
	}
}

func TestChatRequest_Validate_EmptyMessagesAllowed(t *testing.T) {
	req := &ChatRequest{Messages: []Message{}}

	if err := req.Validate(); err != nil {
		t.Errorf("empty messages array should validate, got error: %v", err)
	}
}

func TestChatRequest_Validate_MissingRole(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Content: NewMessageContent("no role")},
		},
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for message without role")
	}
}

func TestChatRequest_Validate_OversizedContent(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: "user", Content: NewMessageContent(strings.Repeat("x", MaxMessageContentBytes+1))},
		},
	}

	if err := req.Validate(); err == nil {
		t.Error("expected error for oversized content")
	}
}

func TestChatRequest_Validate_ContentAtLimit(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: "user", Content: NewMessageContent(strings.Repeat("x", MaxMessageContentBytes))},
		},
	}

	if err := req.Validate(); err != nil {
		t.Errorf("content at the byte limit should validate, got error: %v", err)
	}
}

func TestChatRequest_Validate_TooManyMessages(t *testing.T) {
	messages := make([]Message, MaxMessagesPerRequest+1)
	for i := range messages {
		messages[i] = Message{Role: "user", Content: NewMessageContent("m")}
	}
	req := &ChatRequest{Messages: messages}

	if err := req.Validate(); err == nil {
		t.Error("expected error for too many messages")
	}
}

// =============================================================================
// Conversation Helper Tests
// =============================================================================

func TestChatRequest_LastUserMessage(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: "user", Content: NewMessageContent("first")},
			{Role: "assistant", Content: NewMessageContent("reply")},
			{Role: "user", Content: NewMessageContent("second")},
			{Role: "assistant", Content: NewMessageContent("reply two")},
		},
	}

	msg, ok := req.LastUserMessage()
	if !ok {
		t.Fatal("expected a user message")
	}
	if msg.Content.Text() != "second" {
		t.Errorf("LastUserMessage content = %q, want %q", msg.Content.Text(), "second")
	}
}

func TestChatRequest_LastUserMessage_NoneFound(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: "assistant", Content: NewMessageContent("hi")},
		},
	}

	if _, ok := req.LastUserMessage(); ok {
		t.Error("expected no user message")
	}
}

func TestChatRequest_UserMessageCount(t *testing.T) {
	req := &ChatRequest{
		Messages: []Message{
			{Role: "user", Content: NewMessageContent("a")},
			{Role: "assistant", Content: NewMessageContent("b")},
			{Role: "user", Content: NewMessageContent("c")},
		},
	}

	if got := req.UserMessageCount(); got != 2 {
		t.Errorf("UserMessageCount() = %d, want 2", got)
	}
}
