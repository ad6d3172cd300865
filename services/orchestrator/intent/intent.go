// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package intent classifies the latest user message of a conversation.
//
// Classification is purely lexical. There is no model call here: the
// parser recognizes a small fixed greeting vocabulary and a
// username-plus-count grammar for data queries, and anything else falls
// through to plain conversation.
package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// Types
// =============================================================================

// Kind is the classification of a user message.
type Kind int

const (
	// KindNone means the message is plain conversation.
	KindNone Kind = iota

	// KindGreeting means the message is a standalone greeting.
	// Greetings are only classified on the first user turn.
	KindGreeting

	// KindDataQuery means the message names an X/Twitter username,
	// optionally with an item count.
	KindDataQuery
)

// Intent is the outcome of classifying one user message.
//
// Username and Count are only meaningful when Kind is KindDataQuery.
type Intent struct {
	Kind     Kind
	Username string
	Count    int
}

// =============================================================================
// Grammar
// =============================================================================

const (
	// DefaultCount is the item count used when the message names none.
	DefaultCount = 10

	// MinCount and MaxCount bound every parsed item count.
	MinCount = 1
	MaxCount = 30
)

var exactGreetings = []string{
	"hi", "hello", "hey", "sup", "yo", "howdy",
	"greetings", "good morning", "good afternoon", "good evening",
}

var greetingFollowups = []string{
	"there", "bot", "agent", "buddy", "friend", "everyone", "all",
}

var (
	// X/Twitter handles are 1-15 word characters.
	atUsernameRe   = regexp.MustCompile(`@([A-Za-z0-9_]{1,15})`)
	bareUsernameRe = regexp.MustCompile(`^([A-Za-z0-9_]{1,15})(?:\s+(\d+))?$`)

	// Count extraction: a bare 1-2 digit number (optionally suffixed with
	// "tweets"/"posts") wins over a "last N" phrasing.
	countRe     = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:tweets?|posts?)?\b`)
	lastCountRe = regexp.MustCompile(`(?i)\blast\s+(\d{1,2})\b`)
)

// =============================================================================
// Classification
// =============================================================================

// Classify determines what the user message is asking for.
//
// # Description
//
// The decision order mirrors the chat handler's branch order: greetings
// are only recognized on the first user turn, then the data-query grammar
// is tried, and everything else is plain conversation.
//
// # Inputs
//
//   - text: The user message, flattened to plain text.
//   - firstUserTurn: True when this is the conversation's only user turn.
//
// # Outputs
//
//   - Intent: Classification plus parsed username/count for data queries.
func Classify(text string, firstUserTurn bool) Intent {
	if firstUserTurn && IsGreeting(text) {
		return Intent{Kind: KindGreeting}
	}
	if username, count, ok := ParseDataQuery(text); ok {
		return Intent{Kind: KindDataQuery, Username: username, Count: count}
	}
	return Intent{Kind: KindNone}
}

// IsGreeting reports whether text is a standalone greeting.
//
// # Description
//
// Matches a fixed greeting vocabulary exactly, with "!", "," or "."
// immediately after the greeting word, or followed by one address term
// ("there", "bot", ...). Matching is case-insensitive and ignores
// surrounding whitespace. Longer sentences that merely start with a
// greeting word ("hi can you check @nasa") do not match.
func IsGreeting(text string) bool {
	lower := strings.TrimSpace(strings.ToLower(text))
	for _, g := range exactGreetings {
		if lower == g {
			return true
		}
		if strings.HasPrefix(lower, g+"!") || strings.HasPrefix(lower, g+",") || strings.HasPrefix(lower, g+".") {
			return true
		}
		for _, f := range greetingFollowups {
			combined := g + " " + f
			if lower == combined || strings.HasPrefix(lower, combined+"!") || strings.HasPrefix(lower, combined+",") {
				return true
			}
		}
	}
	return false
}

// ParseDataQuery extracts an X/Twitter username and item count from text.
//
// # Description
//
// Two patterns are tried in order:
//
//  1. An explicit @handle anywhere in the message. The count is then
//     extracted from the whole message.
//  2. The entire message is a bare handle, optionally followed by a
//     number ("nasa 5"). A message that is itself a greeting word never
//     parses as a bare handle.
//
// The returned count is clamped to [MinCount, MaxCount] and defaults to
// DefaultCount when the message names none.
//
// # Outputs
//
//   - username: Parsed handle without the @ prefix.
//   - count: Requested item count, always within bounds.
//   - ok: False when the message contains no data query.
func ParseDataQuery(text string) (username string, count int, ok bool) {
	trimmed := strings.TrimSpace(text)

	if m := atUsernameRe.FindStringSubmatch(trimmed); m != nil {
		return m[1], extractCount(trimmed), true
	}

	if m := bareUsernameRe.FindStringSubmatch(trimmed); m != nil && !IsGreeting(trimmed) {
		count := DefaultCount
		if m[2] != "" {
			n, err := strconv.Atoi(m[2])
			if err != nil {
				// Only a range error is possible; treat it as a huge count.
				n = MaxCount
			}
			count = clampCount(n)
		}
		return m[1], count, true
	}

	return "", 0, false
}

func extractCount(text string) int {
	m := countRe.FindStringSubmatch(text)
	if m == nil {
		m = lastCountRe.FindStringSubmatch(text)
	}
	if m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return clampCount(n)
		}
	}
	return DefaultCount
}

func clampCount(n int) int {
	if n < MinCount {
		return MinCount
	}
	if n > MaxCount {
		return MaxCount
	}
	return n
}
