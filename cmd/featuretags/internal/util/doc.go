// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package util provides leaf utilities shared by the featuretags packages.
//
// # Overview
//
//   - Atomic writes: WriteFileAtomic and WriteJSONAtomic write through a
//     temporary file in the target directory and rename it into place, so
//     a reader never sees a partial report.
//   - Environment assignments: ParseEnvAssignments turns "NAME=value"
//     flags into the env_variables list of a composed report.
//
// # Thread Safety
//
// Functions are stateless. Concurrent writes to the same path race on the
// final rename; the last rename wins and neither file is torn.
//
// # Key Types
//
//	err := util.WriteJSONAtomic(fs, "/out/2025-01-01/ubuntu-24.04-64.json", report)
//
//	env, err := util.ParseEnvAssignments([]string{"SNAPD_DEBUG=1", "SPREAD_BACKEND=google"})
package util
