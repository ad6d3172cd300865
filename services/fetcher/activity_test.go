// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fetcher

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Recorder Tests
// =============================================================================

// TestActivityRecorder_PopulatesMetadata verifies ids and timestamps are
// assigned per entry.
func TestActivityRecorder_PopulatesMetadata(t *testing.T) {
	// Arrange
	rec := newActivityRecorder()

	// Act
	rec.record(TypeBrowse, PlatformTwitter, "Fetching tweets for @nasa", "https://x.com/nasa", "")
	rec.record(TypeInfo, PlatformTwitter, "Retrieved 3 tweets for @nasa", "https://x.com/nasa", "")

	// Assert
	require.Len(t, rec.entries, 2)
	assert.NotEmpty(t, rec.entries[0].ID)
	assert.NotEmpty(t, rec.entries[0].Timestamp)
	assert.NotEqual(t, rec.entries[0].ID, rec.entries[1].ID, "entries should get distinct ids")
	assert.Equal(t, TypeBrowse, rec.entries[0].Type)
	assert.Equal(t, PlatformTwitter, rec.entries[0].Platform)
}

// =============================================================================
// Serialization Tests
// =============================================================================

// TestMarshalActivityLog_WireKeys verifies the exact JSON key set the
// frontend activity panel expects.
func TestMarshalActivityLog_WireKeys(t *testing.T) {
	// Arrange
	rec := newActivityRecorder()
	rec.record(TypeError, PlatformSystem, "boom", "", "")

	// Act
	encoded, err := MarshalActivityLog(rec.entries)
	require.NoError(t, err)

	// Assert
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))
	require.Len(t, decoded, 1)
	for _, key := range []string{"id", "timestamp", "type", "platform", "message", "url", "details"} {
		assert.Contains(t, decoded[0], key, "entry should carry the %s key", key)
	}
	assert.Equal(t, "error", decoded[0]["type"])
	assert.Equal(t, "system", decoded[0]["platform"])
}

// TestMarshalActivityLog_Empty verifies nil and empty logs serialize as
// an empty array, never as JSON null.
func TestMarshalActivityLog_Empty(t *testing.T) {
	for _, entries := range [][]ActivityEntry{nil, {}} {
		encoded, err := MarshalActivityLog(entries)

		require.NoError(t, err)
		assert.Equal(t, "[]", encoded)
	}
}

// TestMarshalActivityLog_TruncatesOversizedLog verifies an oversized log
// keeps only the trailing entries.
func TestMarshalActivityLog_TruncatesOversizedLog(t *testing.T) {
	// Arrange: enough bulky entries to blow past the header budget
	rec := newActivityRecorder()
	filler := strings.Repeat("x", 400)
	for i := 0; i < 25; i++ {
		rec.record(TypeBrowse, PlatformTwitter, filler, "https://x.com/nasa", "")
	}

	// Act
	encoded, err := MarshalActivityLog(rec.entries)
	require.NoError(t, err)

	// Assert
	var decoded []ActivityEntry
	require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))
	require.Len(t, decoded, 10, "truncation should keep the last 10 entries")
	assert.Equal(t, rec.entries[len(rec.entries)-1].ID, decoded[len(decoded)-1].ID,
		"truncation should keep the tail, not the head")
	assert.Equal(t, rec.entries[len(rec.entries)-10].ID, decoded[0].ID)
}

// TestMarshalActivityLog_SmallLogUntouched verifies a log under the
// budget is serialized whole.
func TestMarshalActivityLog_SmallLogUntouched(t *testing.T) {
	rec := newActivityRecorder()
	for i := 0; i < 5; i++ {
		rec.record(TypeInfo, PlatformSystem, "step", "", "")
	}

	encoded, err := MarshalActivityLog(rec.entries)
	require.NoError(t, err)

	var decoded []ActivityEntry
	require.NoError(t, json.Unmarshal([]byte(encoded), &decoded))
	assert.Len(t, decoded, 5)
}
