// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"errors"
	"fmt"
)

// Sentinel errors for extraction.
var (
	// Fatal: the run is aborted.
	ErrMalformedLine      = errors.New("malformed telemetry line")
	ErrInvalidFeatureList = errors.New("invalid feature list")

	// Soft: the line is logged and skipped.
	ErrMissingField = errors.New("missing required field")
)

// LineError attaches a 1-based line number to an error from one telemetry
// line.
type LineError struct {
	Line int
	Err  error
}

// Error implements the error interface.
func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

// Unwrap returns the underlying error.
func (e *LineError) Unwrap() error {
	return e.Err
}

// MissingFieldError names the field a recognized line lacked.
type MissingFieldError struct {
	Msg   string
	Field string
}

// Error implements the error interface.
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s event without %q", e.Msg, e.Field)
}

// Unwrap returns the sentinel error.
func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}

// UnknownKindError names a requested extractor kind that is not registered.
type UnknownKindError struct {
	Name  string
	Known []string
}

// Error implements the error interface.
func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown feature kind %q (known: %v)", e.Name, e.Known)
}

// Unwrap returns the sentinel error.
func (e *UnknownKindError) Unwrap() error {
	return ErrInvalidFeatureList
}
