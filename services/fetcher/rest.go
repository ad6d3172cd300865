// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quillfeed/quillfeed/pkg/validation"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// DefaultBaseURL is the hosted Sela API endpoint.
	DefaultBaseURL = "https://api.selanetwork.io"

	scrapeEndpointPath = "/api/rpc/scrapeUrl"
	scrapeTypeProfile  = "TWITTER_PROFILE"

	// fetchTimeout bounds one scrape call. Profile scrapes run a real
	// browser session upstream, so this is deliberately generous.
	fetchTimeout = 120 * time.Second

	// errorBodyLimit caps how much of an upstream error body is kept.
	errorBodyLimit = 200
)

// profileFieldDefaults lists the payload keys normalized into each
// item's Fields map. Missing keys get the zero default.
var profileFieldDefaults = map[string]any{
	"content":       "",
	"likesCount":    0,
	"repliesCount":  0,
	"retweetsCount": 0,
	"postedAt":      "",
	"username":      "",
	"tweetId":       "",
}

// =============================================================================
// Wire Types
// =============================================================================

type scrapeRequest struct {
	URL        string `json:"url"`
	ScrapeType string `json:"scrapeType"`
	PostCount  int    `json:"postCount"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Data    struct {
		Result []map[string]any `json:"result"`
	} `json:"data"`
}

// =============================================================================
// REST Client
// =============================================================================

// restClient fetches posts through the hosted Sela REST API.
type restClient struct {
	httpClient HTTPClient
	apiKey     string
	baseURL    string
}

// NewRESTClient creates the REST fetch backend.
//
// # Description
//
// Credentials and base URL come from cfg; an empty base URL falls back
// to DefaultBaseURL and a nil HTTP client falls back to a default client.
// A missing API key is not an error here: the first fetch reports it
// through the result and the activity log, keeping startup independent
// of credential presence.
func NewRESTClient(cfg Config) Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: fetchTimeout}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &restClient{
		httpClient: httpClient,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
	}
}

// FetchUserPosts retrieves up to count recent posts for username.
//
// # Description
//
// Issues one scrapeUrl call against the user's profile URL. Every step
// lands in the returned activity log: the browse attempt, the retrieval
// summary, and any error. Failures never return a Go error; they are
// folded into Result.Error.
//
// # Inputs
//
//   - ctx: Cancels the upstream call. A deadline of fetchTimeout is
//     applied on top of any caller deadline.
//   - username: Handle with or without a leading @.
//   - count: Desired item count; the result is truncated to it.
func (c *restClient) FetchUserPosts(ctx context.Context, username string, count int) (Result, []ActivityEntry) {
	rec := newActivityRecorder()

	username, err := validation.SanitizeUsername(username)
	if err != nil {
		errMsg := err.Error()
		rec.record(TypeError, PlatformSystem, errMsg, "", "")
		return Result{Username: username, Items: []ContentItem{}, Error: errMsg}, rec.entries
	}
	profileURL := "https://x.com/" + username

	if c.apiKey == "" {
		errMsg := "SELA_API_KEY environment variable is not set"
		rec.record(TypeError, PlatformSystem, errMsg, "", "")
		return Result{Username: username, Items: []ContentItem{}, Error: errMsg}, rec.entries
	}

	rec.record(TypeBrowse, PlatformTwitter, fmt.Sprintf("Fetching tweets for @%s", username), profileURL, "")

	resp, err := c.callScrape(ctx, profileURL, count)
	if err != nil {
		errMsg := err.Error()
		rec.record(TypeError, PlatformTwitter,
			fmt.Sprintf("Failed to fetch tweets for @%s: %s", username, errMsg), profileURL, "")
		return Result{Username: username, Items: []ContentItem{}, Error: errMsg}, rec.entries
	}

	return resultFromScrape(username, profileURL, count, resp, rec), rec.entries
}

// resultFromScrape folds a decoded scrape envelope into a Result,
// recording the outcome. Shared by the REST and node backends.
func resultFromScrape(username, profileURL string, count int, resp *scrapeResponse, rec *activityRecorder) Result {
	if !resp.Success {
		errMsg := resp.Error
		if errMsg == "" {
			errMsg = "API returned success=false"
		}
		rec.record(TypeError, PlatformTwitter,
			fmt.Sprintf("Sela API error for @%s: %s", username, errMsg), profileURL, "")
		return Result{Username: username, Items: []ContentItem{}, Error: errMsg}
	}

	items := make([]ContentItem, 0, len(resp.Data.Result))
	for _, post := range resp.Data.Result {
		items = append(items, normalizeProfilePost(post))
	}

	rec.record(TypeInfo, PlatformTwitter,
		fmt.Sprintf("Retrieved %d tweets for @%s", len(items), username), profileURL, "")

	if len(items) > count {
		items = items[:count]
	}
	return Result{Username: username, Items: items, Authenticated: true}
}

// callScrape performs the scrapeUrl POST and decodes the envelope.
func (c *restClient) callScrape(ctx context.Context, profileURL string, count int) (*scrapeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	payload, err := json.Marshal(scrapeRequest{
		URL:        profileURL,
		ScrapeType: scrapeTypeProfile,
		PostCount:  count,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal scrape request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+scrapeEndpointPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build scrape request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read scrape response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > errorBodyLimit {
			snippet = snippet[:errorBodyLimit]
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, snippet)
	}

	var decoded scrapeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		slog.Debug("sela response was not valid JSON", "error", err)
		return nil, fmt.Errorf("decode scrape response: %w", err)
	}
	return &decoded, nil
}

// normalizeProfilePost maps one upstream post payload to a ContentItem.
//
// Keys absent from the payload get zero defaults so the prompt
// synthesizer always has the full key set to probe. Relative post URLs
// are resolved against x.com.
func normalizeProfilePost(post map[string]any) ContentItem {
	fields := make(map[string]any, len(profileFieldDefaults))
	for key, def := range profileFieldDefaults {
		if v, ok := post[key]; ok {
			fields[key] = v
		} else {
			fields[key] = def
		}
	}

	postURL, _ := post["tweetUrl"].(string)
	if postURL != "" && !strings.HasPrefix(postURL, "http") {
		postURL = "https://x.com" + postURL
	}

	return ContentItem{
		ContentType: "tweet",
		Fields:      fields,
		URL:         postURL,
	}
}

var _ Client = (*restClient)(nil)
