// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/quillfeed/quillfeed/services/orchestrator/stream"
)

// =============================================================================
// Interface Definition
// =============================================================================

// DataStreamWriter writes a data-stream protocol response body.
//
// # Description
//
// DataStreamWriter enforces the protocol's frame ordering by
// construction: Start opens the message exactly once, WriteText appends
// text frames, and Finish emits the two terminator frames exactly once.
// Every frame is flushed immediately so fragments reach the client as
// they arrive from the model.
//
// A handler that hits a mid-stream failure simply stops calling the
// writer: the absent terminator frames tell the client the message was
// aborted.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
//
// # Limitations
//
//   - Must be used with an http.Flusher-compatible ResponseWriter.
//   - Response headers must be set before Start.
type DataStreamWriter interface {
	// Start writes the start-of-message frame.
	//
	// # Outputs
	//
	//   - string: The generated message id.
	//   - error: Non-nil if called twice or the write failed.
	Start() (string, error)

	// WriteText writes one text frame. Empty fragments are skipped.
	//
	// # Outputs
	//
	//   - error: Non-nil if the message is not open or the write failed.
	WriteText(fragment string) error

	// Finish writes the step-finish and done frames, closing the message.
	//
	// # Outputs
	//
	//   - error: Non-nil if the message is not open, already finished,
	//     or a write failed.
	Finish() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// dataStreamWriter implements DataStreamWriter over an http.ResponseWriter.
type dataStreamWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	mu       sync.Mutex
	started  bool
	finished bool
}

// =============================================================================
// Constructor
// =============================================================================

// NewDataStreamWriter creates a DataStreamWriter for the given
// ResponseWriter.
//
// # Inputs
//
//   - w: HTTP ResponseWriter. Must implement http.Flusher.
//
// # Outputs
//
//   - DataStreamWriter: Ready to write frames.
//   - error: Non-nil if the ResponseWriter does not support flushing.
func NewDataStreamWriter(w http.ResponseWriter) (DataStreamWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &dataStreamWriter{
		writer:  w,
		flusher: flusher,
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

func (w *dataStreamWriter) Start() (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.started {
		return "", fmt.Errorf("message already started")
	}

	messageID := stream.NewMessageID()
	if err := w.writeLine(stream.EncodeStart(messageID)); err != nil {
		return "", err
	}
	w.started = true
	return messageID, nil
}

func (w *dataStreamWriter) WriteText(fragment string) error {
	if fragment == "" {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started || w.finished {
		return fmt.Errorf("message is not open")
	}
	return w.writeLine(stream.EncodeTextDelta(fragment))
}

func (w *dataStreamWriter) Finish() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.started {
		return fmt.Errorf("message was never started")
	}
	if w.finished {
		return fmt.Errorf("message already finished")
	}

	if err := w.writeLine(stream.EncodeStepFinish()); err != nil {
		return err
	}
	if err := w.writeLine(stream.EncodeDone()); err != nil {
		return err
	}
	w.finished = true
	return nil
}

// writeLine writes one protocol line and flushes. Caller holds w.mu.
func (w *dataStreamWriter) writeLine(line string) error {
	if _, err := io.WriteString(w.writer, line); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetStreamHeaders configures response headers for a data-stream body.
//
// Must be called before Start; the activity log header, when present,
// must also be set before the first write.
func SetStreamHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", stream.ContentType)
	w.Header().Set(stream.HeaderDataStream, stream.DataStreamVersion)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ DataStreamWriter = (*dataStreamWriter)(nil)
