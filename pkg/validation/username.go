// Copyright (C) 2026 Quillfeed Labs (oss@quillfeed.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up
// in URLs or upstream API calls. Using these validators prevents URL
// injection and malformed requests to the scrape backend.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// usernamePattern matches valid Twitter/X handles.
// Allows: letters, digits, underscores
// Max length: 15 characters (the platform limit)
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// ValidateUsername validates a Twitter/X handle before it is embedded
// in a profile URL.
//
// Valid handles:
//   - 1-15 characters
//   - Letters A-Z and a-z
//   - Digits 0-9
//   - Underscores (_)
//
// Returns an error if the handle is invalid.
//
// Example:
//
//	if err := validation.ValidateUsername(handle); err != nil {
//	    return nil, fmt.Errorf("invalid username: %w", err)
//	}
//	// Safe to embed in a profile URL
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("invalid username format: %q (must be 1-15 letters, digits, or underscores)", username)
	}

	return nil
}

// SanitizeUsername normalizes and validates a Twitter/X handle.
// Returns the handle stripped of whitespace and any leading @, or an
// error if the remainder is invalid.
//
// Use this when accepting a handle from user input:
//
//	safeHandle, err := validation.SanitizeUsername(userInput)
//	if err != nil {
//	    return err
//	}
//	// safeHandle is validated and has no @ prefix
func SanitizeUsername(username string) (string, error) {
	normalized := strings.TrimLeft(strings.TrimSpace(username), "@")
	if err := ValidateUsername(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
