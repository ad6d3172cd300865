// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package fetcher retrieves a user's recent posts through the Sela Network.
//
// Two backends implement the same contract: a stateless REST client that
// calls the hosted Sela API, and a websocket client that holds a session
// to a Sela node. Both fold failures into the result rather than
// returning Go errors, because a failed fetch still produces a streamable
// answer (the prompt synthesizer explains the failure to the model).
package fetcher

import (
	"context"
	"fmt"
	"net/http"
)

// =============================================================================
// Result Types
// =============================================================================

// ContentItem is one retrieved post.
//
// Fields carries the upstream payload keys for the item; the prompt
// synthesizer probes it by alias, so no schema is imposed here beyond
// ContentType.
type ContentItem struct {
	ContentType string
	Fields      map[string]any
	URL         string
}

// Result is the outcome of one fetch operation.
//
// # Invariants
//
//   - Error != "" implies Items is empty and Authenticated is false.
//   - len(Items) never exceeds the requested count.
type Result struct {
	Username      string
	Items         []ContentItem
	Authenticated bool
	Error         string
}

// =============================================================================
// Client Contract
// =============================================================================

// Client fetches recent posts for an X/Twitter username.
//
// # Description
//
// FetchUserPosts never returns a Go error: network failures, auth
// problems, and upstream errors are folded into Result.Error so the
// caller always has something to synthesize a reply from. The returned
// activity entries describe every step taken, including failures, in
// recording order.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the chat handler
// calls Fetch from one goroutine per request.
type Client interface {
	FetchUserPosts(ctx context.Context, username string, count int) (Result, []ActivityEntry)
}

// HTTPClient allows injecting mock HTTP clients for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// =============================================================================
// Construction
// =============================================================================

// Transport selects a fetch backend.
const (
	TransportREST = "rest"
	TransportNode = "node"
)

// Config carries backend selection and credentials.
//
// # Fields
//
//   - Transport: TransportREST (default) or TransportNode.
//   - APIKey: Bearer token for the hosted Sela API.
//   - BaseURL: Hosted API base URL; defaults to the public endpoint.
//   - NodeURL: Websocket URL of a Sela node (node transport only).
//   - HTTPClient: Optional client override for the REST backend.
type Config struct {
	Transport  string
	APIKey     string
	BaseURL    string
	NodeURL    string
	HTTPClient HTTPClient
}

// New creates the fetch client selected by cfg.Transport.
//
// # Outputs
//
//   - Client: Ready to fetch.
//   - error: Non-nil for an unknown transport or missing node URL.
func New(cfg Config) (Client, error) {
	switch cfg.Transport {
	case "", TransportREST:
		return NewRESTClient(cfg), nil
	case TransportNode:
		if cfg.NodeURL == "" {
			return nil, fmt.Errorf("node transport requires a node URL")
		}
		return NewNodeClient(cfg.NodeURL, cfg.APIKey), nil
	default:
		return nil, fmt.Errorf("unknown fetch transport %q", cfg.Transport)
	}
}
