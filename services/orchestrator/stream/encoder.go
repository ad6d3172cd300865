// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream encodes the Vercel AI SDK data-stream line protocol (v1).
//
// The protocol is line-oriented: each frame is a single-letter type code,
// a colon, a JSON payload, and a trailing newline. A well-formed response
// body is exactly one start frame, zero or more text frames, one step-finish
// frame, and one done frame, in that order.
package stream

import (
	"encoding/hex"
	"encoding/json"

	"github.com/google/uuid"
)

// =============================================================================
// Protocol Constants
// =============================================================================

const (
	// HeaderDataStream marks a response body as a v1 data stream.
	HeaderDataStream = "x-vercel-ai-data-stream"

	// DataStreamVersion is the protocol version advertised in HeaderDataStream.
	DataStreamVersion = "v1"

	// HeaderActivityLog carries the serialized fetch activity log.
	HeaderActivityLog = "x-activity-log"

	// ContentType is the response content type for data-stream bodies.
	ContentType = "text/plain; charset=utf-8"
)

// =============================================================================
// Frame Payloads
// =============================================================================

type startFrame struct {
	MessageID string `json:"messageId"`
}

type tokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

type stepFinishFrame struct {
	FinishReason string     `json:"finishReason"`
	Usage        tokenUsage `json:"usage"`
	IsContinued  bool       `json:"isContinued"`
}

type doneFrame struct {
	FinishReason string     `json:"finishReason"`
	Usage        tokenUsage `json:"usage"`
}

// =============================================================================
// Encoding Functions
// =============================================================================

// NewMessageID returns a fresh message identifier in the form
// "msg-" followed by 24 hex characters.
//
// # Outputs
//
//   - string: Identifier suitable for the start frame of one response.
func NewMessageID() string {
	id := uuid.New()
	return "msg-" + hex.EncodeToString(id[:12])
}

// EncodeStart encodes the start-of-message frame.
//
// # Inputs
//
//   - messageID: Identifier from NewMessageID.
//
// # Outputs
//
//   - string: `f:{"messageId":"..."}` terminated by a newline.
func EncodeStart(messageID string) string {
	payload, _ := json.Marshal(startFrame{MessageID: messageID})
	return "f:" + string(payload) + "\n"
}

// EncodeTextDelta encodes one text fragment as a text frame.
//
// # Description
//
// The fragment is JSON string encoded, so newlines, quotes, and control
// characters inside the fragment never break the line framing. Fragments
// are emitted verbatim; no whitespace normalization is applied.
//
// # Inputs
//
//   - text: Fragment of assistant output. May contain any characters.
//
// # Outputs
//
//   - string: `0:"..."` terminated by a newline.
func EncodeTextDelta(text string) string {
	payload, _ := json.Marshal(text)
	return "0:" + string(payload) + "\n"
}

// EncodeStepFinish encodes the end-of-step frame.
//
// The finish reason is always "stop" and token usage is always zero;
// upstream usage accounting is not surfaced through this protocol.
func EncodeStepFinish() string {
	payload, _ := json.Marshal(stepFinishFrame{
		FinishReason: "stop",
		Usage:        tokenUsage{},
		IsContinued:  false,
	})
	return "e:" + string(payload) + "\n"
}

// EncodeDone encodes the end-of-message frame. A client that never
// receives this frame treats the message as aborted.
func EncodeDone() string {
	payload, _ := json.Marshal(doneFrame{
		FinishReason: "stop",
		Usage:        tokenUsage{},
	})
	return "d:" + string(payload) + "\n"
}
