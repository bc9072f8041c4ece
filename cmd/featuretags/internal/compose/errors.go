// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"errors"
	"fmt"
)

// Sentinel errors for composition and rerun reconciliation.
var (
	ErrBadTestFileName = errors.New("bad test file name")
	ErrBadRunName      = errors.New("bad run file name")
	ErrAmbiguousRerun  = errors.New("rerun does not match exactly one original run")
	ErrNoTests         = errors.New("no test files for system")
	ErrOutputConflict  = errors.New("systems share an output file")
)

// FileError reports an input file that could not be read or decoded.
type FileError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *FileError) Unwrap() error {
	return e.Err
}

// RerunError names a rerun file and the originals it matched.
type RerunError struct {
	Rerun      string
	Candidates []string
}

// Error implements the error interface.
func (e *RerunError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("rerun %s: no original run found", e.Rerun)
	}
	return fmt.Sprintf("rerun %s: matches %d original runs %v", e.Rerun, len(e.Candidates), e.Candidates)
}

// Unwrap returns the sentinel error.
func (e *RerunError) Unwrap() error {
	return ErrAmbiguousRerun
}

// OutputConflictError names system ids from different backends whose
// reports would be written to the same file.
type OutputConflictError struct {
	Path      string
	SystemIDs []string
}

// Error implements the error interface.
func (e *OutputConflictError) Error() string {
	return fmt.Sprintf("%v would all be written to %s; compose them one at a time with separate output directories", e.SystemIDs, e.Path)
}

// Unwrap returns the sentinel error.
func (e *OutputConflictError) Unwrap() error {
	return ErrOutputConflict
}
