// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/AleutianAI/featuretags/pkg/features"
)

var envVarKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidEnvVar is returned for an assignment that is not NAME=value.
var ErrInvalidEnvVar = errors.New("invalid environment variable assignment")

// ParseEnvAssignments parses "NAME=value" strings in order.
//
// # Description
//
// The value may be empty and may itself contain "=". Names must match
// [a-zA-Z_][a-zA-Z0-9_]*. Repeated names are kept, in order, since a
// report records the environment exactly as the run saw it.
//
// # Inputs
//
//   - assignments: Raw strings, typically from repeated --env flags.
//
// # Outputs
//
//   - []features.EnvVariable: Parsed variables; nil for no input.
//   - error: Wraps ErrInvalidEnvVar for the first bad assignment.
func ParseEnvAssignments(assignments []string) ([]features.EnvVariable, error) {
	if len(assignments) == 0 {
		return nil, nil
	}
	out := make([]features.EnvVariable, 0, len(assignments))
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q has no '='", ErrInvalidEnvVar, a)
		}
		if !envVarKeyPattern.MatchString(name) {
			return nil, fmt.Errorf("%w: %q must match [a-zA-Z_][a-zA-Z0-9_]*", ErrInvalidEnvVar, name)
		}
		out = append(out, features.EnvVariable{Name: name, Value: value})
	}
	return out, nil
}
