// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agentdef manages the agent instruction document used as the
// system prompt for every completion.
package agentdef

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// DefaultPath is where the instruction document lives relative to the
// working directory.
const DefaultPath = "agents/default/AGENT.md"

// fallbackDefinition is used when the document file is absent. It keeps
// the service functional with a minimal persona.
const fallbackDefinition = "You are a Twitter research assistant that retrieves and " +
	"summarizes a user's recent tweeting activity."

// =============================================================================
// Document
// =============================================================================

// Document holds the current agent instruction text.
//
// # Description
//
// The document is loaded once at construction and can optionally be
// watched for changes, in which case edits to the file take effect on
// the next request without a restart.
//
// # Thread Safety
//
// Text is safe for concurrent readers while a watch goroutine reloads.
type Document struct {
	path string

	mu      sync.RWMutex
	text    string
	watcher *fsnotify.Watcher
}

// Load reads the instruction document at path.
//
// # Description
//
// A missing or unreadable file is not an error: the built-in fallback
// persona is used and a warning is logged. An empty path falls back to
// DefaultPath.
//
// # Inputs
//
//   - path: Document location on disk.
//
// # Outputs
//
//   - *Document: Never nil; Text always returns non-empty instructions.
func Load(path string) *Document {
	if path == "" {
		path = DefaultPath
	}
	d := &Document{path: path}
	d.reload()
	return d
}

// Text returns the current instruction text.
func (d *Document) Text() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.text
}

// Path returns the document location on disk.
func (d *Document) Path() string {
	return d.path
}

// Watch starts reloading the document whenever its file changes.
//
// # Description
//
// The parent directory is watched rather than the file itself, so
// editors that replace the file (write temp, rename over) still trigger
// a reload. Watch may be called at most once; Close stops the watcher.
//
// # Outputs
//
//   - error: Non-nil if the watch could not be established.
func (d *Document) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(d.path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	d.mu.Lock()
	d.watcher = watcher
	d.mu.Unlock()

	go d.watchLoop(watcher)
	slog.Info("watching agent definition for changes", "path", d.path)
	return nil
}

// Close stops the watcher, if any.
func (d *Document) Close() error {
	d.mu.Lock()
	watcher := d.watcher
	d.watcher = nil
	d.mu.Unlock()

	if watcher != nil {
		return watcher.Close()
	}
	return nil
}

func (d *Document) watchLoop(watcher *fsnotify.Watcher) {
	target := filepath.Clean(d.path)
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				slog.Info("agent definition changed, reloading", "path", d.path, "op", event.Op.String())
				d.reload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("agent definition watch error", "error", err)
		}
	}
}

// reload reads the file, falling back to the built-in persona.
func (d *Document) reload() {
	text := fallbackDefinition
	raw, err := os.ReadFile(d.path)
	if err != nil {
		slog.Warn("agent definition not readable, using fallback", "path", d.path, "error", err)
	} else if trimmed := strings.TrimSpace(string(raw)); trimmed != "" {
		text = trimmed
	} else {
		slog.Warn("agent definition is empty, using fallback", "path", d.path)
	}

	d.mu.Lock()
	d.text = text
	d.mu.Unlock()
}
