// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package agentdef

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_ReadsFile verifies the document text comes from disk, trimmed.
func TestLoad_ReadsFile(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "AGENT.md")
	require.NoError(t, os.WriteFile(path, []byte("  You are a test persona.\n"), 0o644))

	// Act
	doc := Load(path)

	// Assert
	assert.Equal(t, "You are a test persona.", doc.Text())
	assert.Equal(t, path, doc.Path())
}

// TestLoad_MissingFileFallsBack verifies the built-in persona survives a
// missing document.
func TestLoad_MissingFileFallsBack(t *testing.T) {
	doc := Load(filepath.Join(t.TempDir(), "nope.md"))

	assert.Contains(t, doc.Text(), "Twitter research assistant")
}

// TestLoad_EmptyFileFallsBack verifies a blank document is treated as absent.
func TestLoad_EmptyFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "AGENT.md")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0o644))

	doc := Load(path)

	assert.Contains(t, doc.Text(), "Twitter research assistant")
}

// TestWatch_ReloadsOnChange verifies edits take effect without a restart.
func TestWatch_ReloadsOnChange(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "AGENT.md")
	require.NoError(t, os.WriteFile(path, []byte("first version"), 0o644))
	doc := Load(path)
	require.NoError(t, doc.Watch())
	defer doc.Close()

	// Act
	require.NoError(t, os.WriteFile(path, []byte("second version"), 0o644))

	// Assert: reload is asynchronous, poll briefly
	assert.Eventually(t, func() bool {
		return doc.Text() == "second version"
	}, 2*time.Second, 20*time.Millisecond, "document should pick up the new text")
}

// TestWatch_IgnoresSiblingFiles verifies unrelated files in the watched
// directory do not disturb the document.
func TestWatch_IgnoresSiblingFiles(t *testing.T) {
	// Arrange
	dir := t.TempDir()
	path := filepath.Join(dir, "AGENT.md")
	require.NoError(t, os.WriteFile(path, []byte("stable"), 0o644))
	doc := Load(path)
	require.NoError(t, doc.Watch())
	defer doc.Close()

	// Act
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.md"), []byte("noise"), 0o644))
	time.Sleep(100 * time.Millisecond)

	// Assert
	assert.Equal(t, "stable", doc.Text())
}
