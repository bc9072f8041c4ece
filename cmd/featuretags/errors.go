// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/featuretags/cmd/featuretags/config"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/extract"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/query"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/retriever"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/util"
)

// Exit codes of the featuretags command.
const (
	ExitSuccess = 0 // Command completed
	ExitError   = 1 // Command failed
	ExitBadArgs = 2 // Invalid arguments or flags
)

// ErrBadArgs marks errors caused by the command line itself.
var ErrBadArgs = errors.New("bad arguments")

func badArgs(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadArgs, fmt.Sprintf(format, args...))
}

// exitCode maps the error of a command to its exit code. started is false
// when cobra rejected the command line before any command ran.
func exitCode(err error, started bool) int {
	switch {
	case err == nil:
		return ExitSuccess
	case !started,
		errors.Is(err, ErrBadArgs),
		errors.Is(err, config.ErrInvalidDataSource),
		errors.Is(err, extract.ErrInvalidFeatureList),
		errors.Is(err, retriever.ErrInvalidTimestamp),
		errors.Is(err, util.ErrInvalidEnvVar),
		errors.Is(err, query.ErrUnknownFeatureShape):
		return ExitBadArgs
	default:
		return ExitError
	}
}
