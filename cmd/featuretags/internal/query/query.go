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
	"fmt"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/retriever"
	"github.com/AleutianAI/featuretags/pkg/features"
)

// TestFilter narrows a report to the tests whose set fields all match.
// Empty fields match anything.
type TestFilter struct {
	Suite   string
	Task    string
	Variant string
}

func (f TestFilter) empty() bool {
	return f == TestFilter{}
}

func (f TestFilter) matches(t *features.TaskFeatures) bool {
	return (f.Suite == "" || t.Suite == f.Suite) &&
		(f.Task == "" || t.TaskName == f.Task) &&
		(f.Variant == "" || t.Variant == f.Variant)
}

// Diff returns the features system sys1 exercised at ts1 that system sys2
// did not exercise at ts2.
//
// # Description
//
// Both reports are consolidated and the second is subtracted from the
// first with exact structural equality. With removeFailed, failed tests
// are dropped from each side independently. With onlySame, both sides are
// restricted to the tests present (and, with removeFailed, successful) on
// both.
//
// # Outputs
//
//   - features.FeatureDict: The difference. Empty kinds are omitted.
//   - error: Retrieval errors, unchanged apart from context.
func Diff(ctx context.Context, r retriever.Retriever, ts1, sys1, ts2, sys2 string, removeFailed, onlySame bool) (features.FeatureDict, error) {
	report1, err := r.SingleSystem(ctx, ts1, sys1)
	if err != nil {
		return nil, fmt.Errorf("diff %s at %s: %w", sys1, ts1, err)
	}
	report2, err := r.SingleSystem(ctx, ts2, sys2)
	if err != nil {
		return nil, fmt.Errorf("diff %s at %s: %w", sys2, ts2, err)
	}

	var filter1, filter2 Filter
	if removeFailed || onlySame {
		filter1.Include = ListTasks(report1, removeFailed)
		filter2.Include = ListTasks(report2, removeFailed)
		if onlySame {
			same := intersect(filter1.Include, filter2.Include)
			filter1.Include, filter2.Include = same, same
		}
	}
	return Minus(Consolidate(report1, filter1), Consolidate(report2, filter2)), nil
}

// DiffAllFeatures returns the features of the timestamp's universe that
// system sys did not exercise, compared by coverage key (see
// MinusMatching).
func DiffAllFeatures(ctx context.Context, r retriever.Retriever, ts, sys string, removeFailed bool) (features.FeatureDict, error) {
	exercised, err := FeatSys(ctx, r, ts, sys, removeFailed, TestFilter{})
	if err != nil {
		return nil, err
	}
	universe, err := r.AllFeatures(ctx, ts)
	if err != nil {
		return nil, fmt.Errorf("all features at %s: %w", ts, err)
	}
	return MinusMatching(universe, exercised), nil
}

// FeatSys returns the consolidated features of system sys at ts, limited
// to the tests matching tf and, with removeFailed, to successful tests.
func FeatSys(ctx context.Context, r retriever.Retriever, ts, sys string, removeFailed bool, tf TestFilter) (features.FeatureDict, error) {
	report, err := r.SingleSystem(ctx, ts, sys)
	if err != nil {
		return nil, fmt.Errorf("features of %s at %s: %w", sys, ts, err)
	}

	var filter Filter
	if removeFailed || !tf.empty() {
		filter.Include = make(map[features.TaskIDVariant]struct{})
		for i := range report.Tests {
			test := &report.Tests[i]
			if tf.matches(test) && (!removeFailed || test.Success) {
				filter.Include[test.ID()] = struct{}{}
			}
		}
	}
	return Consolidate(report, filter), nil
}

// TaskList returns the ids of every test run at ts, across all systems,
// failed tests included.
func TaskList(ctx context.Context, r retriever.Retriever, ts string) (map[features.TaskIDVariant]struct{}, error) {
	reports, err := r.Systems(ctx, ts, nil)
	if err != nil {
		return nil, fmt.Errorf("tasks at %s: %w", ts, err)
	}
	out := make(map[features.TaskIDVariant]struct{})
	for _, report := range reports {
		for id := range ListTasks(report, false) {
			out[id] = struct{}{}
		}
	}
	return out, nil
}
