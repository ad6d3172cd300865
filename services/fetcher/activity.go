// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fetcher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Activity Log Types
// =============================================================================

// EntryType categorizes an activity log entry.
type EntryType string

const (
	TypeSearch EntryType = "search"
	TypeBrowse EntryType = "browse"
	TypeError  EntryType = "error"
	TypeInfo   EntryType = "info"
)

// Platform names the surface an activity entry refers to.
type Platform string

const (
	PlatformTwitter Platform = "twitter"
	PlatformSystem  Platform = "system"
)

// ActivityEntry is one step of a fetch operation, in the JSON shape the
// frontend activity panel consumes. Field names are part of the wire
// contract and must not change.
type ActivityEntry struct {
	ID        string    `json:"id"`
	Timestamp string    `json:"timestamp"`
	Type      EntryType `json:"type"`
	Platform  Platform  `json:"platform"`
	Message   string    `json:"message"`
	URL       string    `json:"url"`
	Details   string    `json:"details"`
}

// =============================================================================
// Recorder
// =============================================================================

// activityRecorder collects the entries of a single fetch operation.
//
// # Description
//
// A fresh recorder is created per fetch call, so entries from concurrent
// requests never interleave. The recorder is not safe for concurrent use
// by itself; a fetch call appends from one goroutine only.
type activityRecorder struct {
	entries []ActivityEntry
}

func newActivityRecorder() *activityRecorder {
	return &activityRecorder{}
}

// record appends one entry with a fresh id and UTC timestamp.
func (r *activityRecorder) record(entryType EntryType, platform Platform, message, url, details string) {
	r.entries = append(r.entries, ActivityEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Type:      entryType,
		Platform:  platform,
		Message:   message,
		URL:       url,
		Details:   details,
	})
}

// =============================================================================
// Header Serialization
// =============================================================================

const (
	// maxActivityLogBytes bounds the serialized log so it fits in a
	// response header without tripping proxy header-size limits.
	maxActivityLogBytes = 7000

	// activityLogTailSize is how many trailing entries survive truncation.
	activityLogTailSize = 10
)

// MarshalActivityLog serializes entries for the x-activity-log header.
//
// # Description
//
// The full log is serialized first; if the result exceeds the header
// budget, only the most recent entries are kept. An empty or nil slice
// serializes as an empty JSON array.
//
// # Inputs
//
//   - entries: Activity entries in recording order.
//
// # Outputs
//
//   - string: JSON array, guaranteed non-empty.
//   - error: Non-nil only if serialization itself failed.
func MarshalActivityLog(entries []ActivityEntry) (string, error) {
	if entries == nil {
		entries = []ActivityEntry{}
	}

	full, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("marshal activity log: %w", err)
	}
	if len(full) <= maxActivityLogBytes {
		return string(full), nil
	}

	tail := entries
	if len(tail) > activityLogTailSize {
		tail = tail[len(tail)-activityLogTailSize:]
	}
	truncated, err := json.Marshal(tail)
	if err != nil {
		return "", fmt.Errorf("marshal truncated activity log: %w", err)
	}
	return string(truncated), nil
}
