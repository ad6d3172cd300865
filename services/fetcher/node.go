// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quillfeed/quillfeed/pkg/validation"
)

// =============================================================================
// Session States
// =============================================================================

// nodeState is the lifecycle state of the websocket session.
type nodeState int

const (
	nodeUninitialized nodeState = iota
	nodeReady
	nodeStale
	nodeClosed
)

func (s nodeState) String() string {
	switch s {
	case nodeUninitialized:
		return "uninitialized"
	case nodeReady:
		return "ready"
	case nodeStale:
		return "stale"
	case nodeClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// =============================================================================
// Node Client
// =============================================================================

const (
	nodeDialTimeout  = 15 * time.Second
	nodePingTimeout  = 5 * time.Second
	nodeCallTimeout  = fetchTimeout
	nodeScrapeMethod = "scrapeUrl"
)

// nodeRequest is the RPC envelope sent to a Sela node.
type nodeRequest struct {
	ID     string        `json:"id"`
	Method string        `json:"method"`
	Params scrapeRequest `json:"params"`
	Token  string        `json:"token,omitempty"`
}

// nodeResponse mirrors the REST envelope with a correlation id.
type nodeResponse struct {
	ID string `json:"id"`
	scrapeResponse
}

// NodeClient fetches posts over a persistent websocket session to a
// Sela node.
//
// # Description
//
// The session is dialed lazily on first use and reused across fetches.
// A failed health check marks the session stale; the next call redials.
// Close moves the client to a terminal state in which every fetch
// reports a connection error through the result.
//
// # Thread Safety
//
// All session transitions and in-flight calls are serialized behind one
// mutex, so at most one RPC is on the wire at a time.
type NodeClient struct {
	url    string
	token  string
	dialer *websocket.Dialer

	mu    sync.Mutex
	conn  *websocket.Conn
	state nodeState
}

// NewNodeClient creates a node-backed fetch client for the given
// websocket URL. The token, when non-empty, is attached to every RPC.
func NewNodeClient(nodeURL, token string) *NodeClient {
	return &NodeClient{
		url:   nodeURL,
		token: token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: nodeDialTimeout,
		},
		state: nodeUninitialized,
	}
}

// FetchUserPosts retrieves up to count recent posts for username through
// the node session. The contract matches the REST backend: failures are
// folded into Result.Error and every step lands in the activity log.
func (c *NodeClient) FetchUserPosts(ctx context.Context, username string, count int) (Result, []ActivityEntry) {
	rec := newActivityRecorder()

	username, err := validation.SanitizeUsername(username)
	if err != nil {
		errMsg := err.Error()
		rec.record(TypeError, PlatformSystem, errMsg, "", "")
		return Result{Username: username, Items: []ContentItem{}, Error: errMsg}, rec.entries
	}
	profileURL := "https://x.com/" + username

	rec.record(TypeBrowse, PlatformTwitter, fmt.Sprintf("Fetching tweets for @%s", username), profileURL, "")

	resp, err := c.call(ctx, scrapeRequest{
		URL:        profileURL,
		ScrapeType: scrapeTypeProfile,
		PostCount:  count,
	})
	if err != nil {
		errMsg := err.Error()
		rec.record(TypeError, PlatformTwitter,
			fmt.Sprintf("Failed to fetch tweets for @%s: %s", username, errMsg), profileURL, "")
		return Result{Username: username, Items: []ContentItem{}, Error: errMsg}, rec.entries
	}

	return resultFromScrape(username, profileURL, count, &resp.scrapeResponse, rec), rec.entries
}

// Close tears down the session. The client cannot be reused afterwards.
func (c *NodeClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}
	c.state = nodeClosed
	return err
}

// call sends one RPC and waits for its response, managing the session
// lifecycle around it.
func (c *NodeClient) call(ctx context.Context, params scrapeRequest) (*nodeResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == nodeClosed {
		return nil, fmt.Errorf("node session is closed")
	}

	if err := c.ensureSessionLocked(ctx); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(nodeCallTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := nodeRequest{
		ID:     uuid.NewString(),
		Method: nodeScrapeMethod,
		Params: params,
		Token:  c.token,
	}

	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(req); err != nil {
		c.markStaleLocked()
		return nil, fmt.Errorf("send node request: %w", err)
	}

	// Responses arrive in order on a single-RPC session; drain frames
	// until the correlation id matches in case the node interleaves
	// unsolicited notifications.
	_ = c.conn.SetReadDeadline(deadline)
	for {
		var resp nodeResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.markStaleLocked()
			return nil, fmt.Errorf("read node response: %w", err)
		}
		if resp.ID == "" || resp.ID == req.ID {
			return &resp, nil
		}
		slog.Debug("dropping unmatched node frame", "frame_id", resp.ID, "want_id", req.ID)
	}
}

// ensureSessionLocked makes the session ready, dialing or redialing as
// needed. Caller holds c.mu.
func (c *NodeClient) ensureSessionLocked(ctx context.Context) error {
	if c.state == nodeReady && c.healthyLocked() {
		return nil
	}

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, nodeDialTimeout)
	defer cancel()

	conn, _, err := c.dialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		c.state = nodeStale
		return fmt.Errorf("dial node %s: %w", c.url, err)
	}

	slog.Info("sela node session established", "url", c.url, "previous_state", c.state.String())
	c.conn = conn
	c.state = nodeReady
	return nil
}

// healthyLocked pings the session. A failed ping marks it stale.
// Caller holds c.mu.
func (c *NodeClient) healthyLocked() bool {
	if c.conn == nil {
		return false
	}
	err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(nodePingTimeout))
	if err != nil {
		slog.Warn("sela node session failed health check", "url", c.url, "error", err)
		c.markStaleLocked()
		return false
	}
	return true
}

// markStaleLocked drops the connection so the next call redials.
// Caller holds c.mu.
func (c *NodeClient) markStaleLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.state != nodeClosed {
		c.state = nodeStale
	}
}

var _ Client = (*NodeClient)(nil)
