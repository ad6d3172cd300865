// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package summary synthesizes the enriched prompt sent to the model
// after a data fetch.
//
// The synthesizer is deliberately schema-tolerant: retrieved items carry
// free-form field maps, and each display facet (text, likes, timestamp,
// ...) is probed through an ordered alias list. A field only counts as
// present when its value is truthy, so upstream zero values and empty
// strings read as absent.
package summary

import (
	"fmt"
	"strings"

	"github.com/quillfeed/quillfeed/services/fetcher"
)

// =============================================================================
// Constants
// =============================================================================

// maxPrimaryTextLen caps each item's primary text in the prompt.
const maxPrimaryTextLen = 400

// Facet alias lists, probed in order. First truthy value wins.
var (
	contentAliases   = []string{"content", "text", "title"}
	likesAliases     = []string{"like_count", "likes"}
	retweetsAliases  = []string{"retweet_count", "retweets"}
	repliesAliases   = []string{"reply_count", "replies"}
	timestampAliases = []string{"timestamp", "date", "time"}
	authorAliases    = []string{"author_name", "author"}
	isReplyAliases   = []string{"is_reply", "in_reply_to"}
	isRetweetAliases = []string{"is_retweet", "retweeted"}
)

// =============================================================================
// Prompt Construction
// =============================================================================

// BuildPrompt synthesizes the user-turn prompt for a fetch outcome.
//
// # Description
//
// Three shapes are produced:
//
//   - Error: a short prompt asking the model to explain the failure.
//   - No items: a short prompt asking for a "nothing recent" reply.
//   - Items: a numbered listing with per-item facet annotations, an
//     optional shortfall note when fewer items than requested came
//     back, and a fixed instruction block.
//
// # Inputs
//
//   - username: Handle without the @ prefix.
//   - res: Fetch outcome; res.Error takes priority over items.
//   - requested: Item count the user asked for.
//
// # Outputs
//
//   - string: Complete prompt text, ready to substitute for the user turn.
func BuildPrompt(username string, res fetcher.Result, requested int) string {
	if res.Error != "" {
		return fmt.Sprintf(
			"I tried to fetch tweets for @%s but encountered an error: %s\n\n"+
				"Please respond with an appropriate error message based on the AGENT.md error handling rules.",
			username, res.Error)
	}

	if len(res.Items) == 0 {
		return fmt.Sprintf(
			"I fetched @%s's profile but found no recent tweets.\n\n"+
				"Please respond with an appropriate message (e.g., \"@%s hasn't posted recently.\").",
			username, username)
	}

	entries := make([]string, 0, len(res.Items))
	for i, item := range res.Items {
		entries = append(entries, formatEntry(i+1, item, username))
	}

	retrieved := len(res.Items)
	fewerNote := ""
	if retrieved < requested {
		fewerNote = fmt.Sprintf(
			"\nNote: %d tweets were requested but only %d were retrieved. Mention this in the summary.",
			requested, retrieved)
	}

	prefixed := make([]string, len(entries))
	for i, e := range entries {
		prefixed[i] = "\n" + e
	}
	listing := strings.Join(prefixed, "\n")

	return fmt.Sprintf(`Summarize recent Twitter/X activity for @%s.

## Retrieved Data

**Tweets retrieved:** %d (via authenticated Sela Network session)
%s

%s

## Instructions

Based ONLY on the tweets above, produce an activity summary following the exact structure from your system prompt:
- Activity Summary header with @%s
- "Retrieved N tweets via authenticated Sela Network session."
- Posting frequency
- Main topics (grouped by theme, specific not vague)
- Content breakdown (originals / replies / retweets / threads)
- Notable observations
- Engagement snapshot

RULES:
- Be factual. Do not interpret intent, mood, or sentiment.
- Be specific with topic descriptions.
- Group by topic, not chronology.
- Do not reproduce full tweet text.
- Do not expose private information.
- State that content was accessed via an authenticated Sela Network session.`,
		username, retrieved, fewerNote, listing, username)
}

// formatEntry renders one item as a numbered listing entry with its
// facet annotations.
func formatEntry(position int, item fetcher.ContentItem, username string) string {
	f := item.Fields

	content := probe(f, contentAliases)
	likes := probe(f, likesAliases)
	retweets := probe(f, retweetsAliases)
	replies := probe(f, repliesAliases)
	timestamp := probe(f, timestampAliases)
	author := probe(f, authorAliases)
	isReply := probe(f, isReplyAliases)
	isRetweet := probe(f, isRetweetAliases)

	entry := fmt.Sprintf("%d. %s", position, truncateRunes(stringify(content), maxPrimaryTextLen))
	if timestamp != nil {
		entry += fmt.Sprintf("\n   Time: %s", stringify(timestamp))
	}
	if likes != nil {
		entry += fmt.Sprintf(" | Likes: %s", stringify(likes))
	}
	if retweets != nil {
		entry += fmt.Sprintf(" | Retweets: %s", stringify(retweets))
	}
	if replies != nil {
		entry += fmt.Sprintf(" | Replies: %s", stringify(replies))
	}
	if author != nil && !strings.EqualFold(stringify(author), username) {
		entry += fmt.Sprintf(" | Author: %s", stringify(author))
	}
	if isReply != nil {
		entry += " | [Reply]"
	}
	if isRetweet != nil {
		entry += " | [Retweet]"
	}
	return entry
}

// probe returns the first truthy value among the aliased keys, or nil.
func probe(fields map[string]any, aliases []string) any {
	for _, key := range aliases {
		if v, ok := fields[key]; ok && truthy(v) {
			return v
		}
	}
	return nil
}

// truthy reports whether a decoded JSON value counts as present.
// Zero numbers, empty strings, false, nil, and empty collections do not.
func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

// stringify renders a field value for prompt text.
func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// Whole numbers render without a trailing ".0".
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprint(val)
	default:
		return fmt.Sprint(val)
	}
}

// truncateRunes caps s at n runes without splitting a multibyte
// character.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
