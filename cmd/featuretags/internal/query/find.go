// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/retriever"
	"github.com/AleutianAI/featuretags/pkg/features"
)

// ParseFeature decodes a single feature document, telling its kind from
// the fields it carries.
//
// # Description
//
// Shapes are tried in order:
//
//	{"cmd"}                    → Cmd
//	{"method", "path"}         → Endpoint
//	{"manager"}                → Ensure
//	{"kind", "last_status"}    → Task
//	{"name"}                   → Interface
//	{"kind"}                   → Change
//
// # Outputs
//
//   - features.Feature: The decoded feature.
//   - error: ErrUnknownFeatureShape for anything else, including
//     non-objects.
//
// # Examples
//
//	f, err := query.ParseFeature([]byte(`{"kind": "install-snap"}`))
//	// f == features.Change{Kind: "install-snap"}
func ParseFeature(raw []byte) (features.Feature, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrUnknownFeatureShape)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: not an object", ErrUnknownFeatureShape)
	}
	has := func(field string) bool { return doc.Get(field).Exists() }

	switch {
	case has("cmd"):
		return decodeAs[features.Cmd](raw)
	case has("method") && has("path"):
		return decodeAs[features.Endpoint](raw)
	case has("manager"):
		return decodeAs[features.Ensure](raw)
	case has("kind") && has("last_status"):
		return decodeAs[features.Task](raw)
	case has("name"):
		return decodeAs[features.Interface](raw)
	case has("kind"):
		return decodeAs[features.Change](raw)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFeatureShape, raw)
}

func decodeAs[T features.Feature](raw []byte) (features.Feature, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownFeatureShape, err)
	}
	return v, nil
}

// FindFeature lists, per system, the tests at ts that exercised feature.
//
// # Description
//
// A test matches when one of its features of the same kind has the same
// coverage key (see MinusMatching), or the same structure when exact is
// set. Only the named systems are searched, or all of them when systems
// is empty. With removeFailed, failed tests are skipped. Systems without a
// matching test are absent from the result.
//
// # Outputs
//
//   - map[string][]features.TaskIDVariant: Matching tests in report order,
//     keyed by system.
//   - error: Retrieval errors.
func FindFeature(ctx context.Context, r retriever.Retriever, ts string, feature features.Feature, removeFailed bool, systems []string, exact bool) (map[string][]features.TaskIDVariant, error) {
	key := features.Feature.MatchKey
	if exact {
		key = features.Feature.Key
	}
	want := key(feature)
	kind := feature.FeatureKind()

	reports, err := r.Systems(ctx, ts, systems)
	if err != nil {
		return nil, fmt.Errorf("find feature at %s: %w", ts, err)
	}

	out := make(map[string][]features.TaskIDVariant)
	for _, report := range reports {
		for i := range report.Tests {
			test := &report.Tests[i]
			if removeFailed && !test.Success {
				continue
			}
			for _, f := range test.Dict()[kind] {
				if key(f) == want {
					out[report.System] = append(out[report.System], test.ID())
					break
				}
			}
		}
	}
	return out, nil
}
