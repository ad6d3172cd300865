// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides request types for the chat endpoint.
package datatypes

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single message
	// content, checked on byte length rather than rune count.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// MaxMessagesPerRequest is the maximum number of messages in a request.
	MaxMessagesPerRequest = 100
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()

	// Validate MessageContent as its flattened text.
	chatValidate.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if content, ok := field.Interface().(MessageContent); ok {
			return content.Text()
		}
		return nil
	}, MessageContent{})

	_ = chatValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes enforces MaxMessageContentBytes on a string field.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Message Content
// =============================================================================

// MessageContent is the content of one chat message, flattened to plain
// text at decode time.
//
// # Description
//
// Chat frontends send content either as a plain string or as an array of
// typed parts ({"type":"text","text":"..."} among others). Both shapes
// decode into the flattened text; text parts are joined with single
// spaces and non-text parts are dropped. Any other JSON shape is kept as
// its compact source text so nothing is silently lost.
type MessageContent struct {
	text string
}

// NewMessageContent wraps already-flattened text.
func NewMessageContent(text string) MessageContent {
	return MessageContent{text: text}
}

// Text returns the flattened plain text of the content.
func (c MessageContent) Text() string {
	return c.text
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// UnmarshalJSON decodes either content shape.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		c.text = plain
		return nil
	}

	var rawParts []json.RawMessage
	if err := json.Unmarshal(data, &rawParts); err == nil {
		texts := make([]string, 0, len(rawParts))
		for _, raw := range rawParts {
			var part contentPart
			if err := json.Unmarshal(raw, &part); err != nil {
				continue
			}
			if part.Type == "text" {
				texts = append(texts, part.Text)
			}
		}
		c.text = strings.Join(texts, " ")
		return nil
	}

	c.text = string(data)
	return nil
}

// MarshalJSON encodes the content as its flattened text.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.text)
}

// =============================================================================
// Chat Request Types
// =============================================================================

// Message is one turn of the conversation.
type Message struct {
	Role    string         `json:"role" validate:"required"`
	Content MessageContent `json:"content" validate:"maxbytes"`
}

// ChatRequest is the POST /api/chat request body.
//
// # Validation
//
//   - Messages: must be present (an empty array is allowed, a missing or
//     null field is not), at most MaxMessagesPerRequest elements.
//   - Messages[].Role: required.
//   - Messages[].Content: at most MaxMessageContentBytes of flattened text.
type ChatRequest struct {
	Messages []Message `json:"messages" validate:"omitempty,max=100,dive"`
}

// Validate checks the request against the documented limits.
//
// # Outputs
//
//   - error: Non-nil with a client-safe message on the first violation.
func (r *ChatRequest) Validate() error {
	if r.Messages == nil {
		return errors.New("messages array required")
	}
	if err := chatValidate.Struct(r); err != nil {
		return fmt.Errorf("invalid messages: %w", err)
	}
	return nil
}

// =============================================================================
// Conversation Helpers
// =============================================================================

// LastUserMessage returns the most recent user turn, if any.
func (r *ChatRequest) LastUserMessage() (Message, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i], true
		}
	}
	return Message{}, false
}

// UserMessageCount returns how many user turns the conversation holds.
func (r *ChatRequest) UserMessageCount() int {
	count := 0
	for _, m := range r.Messages {
		if m.Role == "user" {
			count++
		}
	}
	return count
}
