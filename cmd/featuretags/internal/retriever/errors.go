// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retriever

import (
	"errors"
	"fmt"
)

// Sentinel errors for report retrieval.
var (
	ErrNotFound         = errors.New("not found")
	ErrAmbiguousResult  = errors.New("expected exactly one document")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// AmbiguousResultError reports a lookup that needed exactly one document
// and found Count of them.
//
// It unwraps to ErrAmbiguousResult. When Count is 0 it also matches
// ErrNotFound, so callers can tell "missing" from "duplicated".
type AmbiguousResultError struct {
	Timestamp string
	Subject   string
	Count     int
}

// Error implements the error interface.
func (e *AmbiguousResultError) Error() string {
	return fmt.Sprintf("%d documents for %s at %s, want 1", e.Count, e.Subject, e.Timestamp)
}

// Unwrap returns the sentinel error.
func (e *AmbiguousResultError) Unwrap() error {
	return ErrAmbiguousResult
}

// Is matches ErrNotFound when nothing was found.
func (e *AmbiguousResultError) Is(target error) bool {
	return target == ErrNotFound && e.Count == 0
}
