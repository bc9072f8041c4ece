// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package features defines the feature-tagging data model shared by the
// extractor, the composer and the query engine.
//
// A Feature is one classified fact observed in snapd execution telemetry:
// a command invocation, an API endpoint hit, an interface connection, an
// ensure pass, a task status or a change. Features are grouped by Kind into
// a FeatureDict, collected per test into TaskFeatures and per system into a
// SystemFeatures report.
//
// # Equality
//
// Every Feature exposes two keys:
//
//   - Key: a canonical encoding of the whole record. Two features are
//     structurally equal exactly when their keys match. Set-valued fields
//     (snap types) are sorted before encoding, so ordering never matters.
//   - MatchKey: the coarser key used when comparing against the universe of
//     possible features. Interfaces match by name, tasks by kind and last
//     status, changes by kind; every other kind falls back to Key.
//
// # Task Identity
//
// TaskID and TaskIDVariant are distinct comparable types. Variant-agnostic
// comparison is always explicit through TaskIDVariant.TaskID; the two types
// are never mixed inside one set.
package features
