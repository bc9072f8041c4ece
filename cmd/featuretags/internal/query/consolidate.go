// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package query answers coverage questions over stored feature reports:
// what one system exercised that another did not, which tests add nothing
// to their system, and which tests exercised a given feature.
//
// Every operation reads reports through a retriever.Retriever and treats
// them as read-only.
package query

import (
	"github.com/AleutianAI/featuretags/pkg/features"
)

// Filter selects the tests of a report that take part in consolidation.
// The zero Filter selects every test.
type Filter struct {
	// Include, when non-nil, admits only the listed tests.
	Include map[features.TaskIDVariant]struct{}

	// Exclude rejects the listed tests.
	Exclude map[features.TaskIDVariant]struct{}

	// ExcludeTasks rejects every variant of the listed tests.
	ExcludeTasks map[features.TaskID]struct{}
}

func (f Filter) allows(id features.TaskIDVariant) bool {
	if f.Include != nil {
		if _, ok := f.Include[id]; !ok {
			return false
		}
	}
	if _, ok := f.Exclude[id]; ok {
		return false
	}
	if _, ok := f.ExcludeTasks[id.TaskID()]; ok {
		return false
	}
	return true
}

// Consolidate unions the features of every test of report that f allows.
//
// # Description
//
// Features keep the order in which they are first met, walking tests in
// report order. Structurally equal features are kept once. Kinds with no
// features are absent from the result.
//
// # Examples
//
//	all := query.Consolidate(report, query.Filter{})
//	passed := query.Consolidate(report, query.Filter{Include: query.ListTasks(report, true)})
func Consolidate(report *features.SystemFeatures, f Filter) features.FeatureDict {
	out := make(features.FeatureDict)
	for i := range report.Tests {
		test := &report.Tests[i]
		if !f.allows(test.ID()) {
			continue
		}
		for kind, list := range test.Dict() {
			out[kind] = append(out[kind], list...)
		}
	}
	for kind, list := range out {
		out[kind] = features.Dedup(list)
	}
	return out
}

// Minus returns the features of a that have no structurally equal feature
// of the same kind in b. Kinds left empty are omitted.
func Minus(a, b features.FeatureDict) features.FeatureDict {
	return minusBy(a, b, features.Feature.Key)
}

// MinusMatching is Minus with each kind's coverage key as equality: a task
// matches on kind and last status, a change on kind, an interface on name,
// and every other feature on its whole structure.
func MinusMatching(a, b features.FeatureDict) features.FeatureDict {
	return minusBy(a, b, features.Feature.MatchKey)
}

func minusBy(a, b features.FeatureDict, key func(features.Feature) string) features.FeatureDict {
	out := make(features.FeatureDict)
	for kind, list := range a {
		drop := make(map[string]struct{}, len(b[kind]))
		for _, f := range b[kind] {
			drop[key(f)] = struct{}{}
		}
		for _, f := range list {
			if _, ok := drop[key(f)]; !ok {
				out[kind] = append(out[kind], f)
			}
		}
	}
	return out
}

// ListTasks returns the ids of the tests in report, or of the successful
// ones when removeFailed is set.
func ListTasks(report *features.SystemFeatures, removeFailed bool) map[features.TaskIDVariant]struct{} {
	out := make(map[features.TaskIDVariant]struct{}, len(report.Tests))
	for i := range report.Tests {
		if removeFailed && !report.Tests[i].Success {
			continue
		}
		out[report.Tests[i].ID()] = struct{}{}
	}
	return out
}

func intersect[K comparable](a, b map[K]struct{}) map[K]struct{} {
	out := make(map[K]struct{})
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}
