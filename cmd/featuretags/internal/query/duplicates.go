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
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/retriever"
	"github.com/AleutianAI/featuretags/pkg/features"
)

// FindDuplicates returns the tests of system sys at ts whose features are
// all exercised by other tests of the same system.
//
// # Description
//
// A test t is a duplicate when it has at least one feature and
// Minus(features of t, Consolidate(report without any variant of t)) is
// empty. Variants of t are left out of the comparison so that identical
// variants do not cover each other. With removeFailed, failed tests are
// neither checked nor used as cover.
//
// Tests are checked in parallel by at most workers goroutines; workers < 1
// means runtime.GOMAXPROCS(0). Cancelling ctx stops the search.
//
// # Outputs
//
//   - []features.TaskIDVariant: The duplicates. Callers must treat the
//     result as a set.
//   - error: Retrieval errors or ctx.Err().
//
// # Thread Safety
//
// Workers only read the report and each writes its own result slot.
func FindDuplicates(ctx context.Context, r retriever.Retriever, ts, sys string, removeFailed bool, workers int) ([]features.TaskIDVariant, error) {
	report, err := r.SingleSystem(ctx, ts, sys)
	if err != nil {
		return nil, fmt.Errorf("duplicates of %s at %s: %w", sys, ts, err)
	}
	if removeFailed {
		kept := *report
		kept.Tests = slices.DeleteFunc(slices.Clone(report.Tests), func(t features.TaskFeatures) bool { return !t.Success })
		report = &kept
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	isDup := make([]bool, len(report.Tests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range report.Tests {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			isDup[i] = coveredByOthers(report, i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var dups []features.TaskIDVariant
	for i, dup := range isDup {
		if dup {
			dups = append(dups, report.Tests[i].ID())
		}
	}
	return dups, nil
}

// coveredByOthers reports whether test i of report has features and all of
// them appear on tests of other tasks.
func coveredByOthers(report *features.SystemFeatures, i int) bool {
	test := &report.Tests[i]
	own := test.Dict()
	if own.Len() == 0 {
		return false
	}
	rest := Consolidate(report, Filter{
		ExcludeTasks: map[features.TaskID]struct{}{test.ID().TaskID(): {}},
	})
	return Minus(own, rest).Len() == 0
}
