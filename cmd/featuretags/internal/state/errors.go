// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"errors"
	"fmt"
)

// Sentinel errors for snapshot loading and resolution.
var (
	ErrNotFound        = errors.New("snap type not found")
	ErrInvalidSnapshot = errors.New("invalid state snapshot")
)

// NotFoundError describes why a task, change or snap could not be
// attributed to any snap type.
type NotFoundError struct {
	// Subject is "task", "change" or "snap".
	Subject string
	ID      string
	Reason  string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s %q: %s", e.Subject, e.ID, e.Reason)
	}
	return fmt.Sprintf("%s %q: snap type not found", e.Subject, e.ID)
}

// Unwrap returns the sentinel error.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}
