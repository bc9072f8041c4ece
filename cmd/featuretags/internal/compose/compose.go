// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose builds per-system feature reports out of per-test
// extraction files, and reconciles rerun attempts of a system into a single
// report.
//
// # File Naming
//
// Per-test files are named <backend>:<system>:<suite-path>[:<variant>].json,
// where "/" in the suite path is written as "--". For example the test
// google:ubuntu-24.04-64:tests/main/snap-run:classic is stored as
// google:ubuntu-24.04-64:tests--main--snap-run:classic.json.
//
// Composed reports that go through reconciliation are named
// <system>_<attempt>.json, attempt 1 being the original run.
//
// # Thread Safety
//
// All functions are sequential and hold no package state.
package compose

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/util"
	"github.com/AleutianAI/featuretags/pkg/features"
	"github.com/AleutianAI/featuretags/pkg/logging"
)

// Options carries the run-level data recorded in a composed report.
type Options struct {
	// Failed holds the names of failed tests. A test counts as failed if
	// its runner name (backend:system:suite/task[:variant]) or its file
	// name, with or without ".json", is present.
	Failed map[string]bool

	// Env is recorded as the report's env_variables, in order.
	Env []features.EnvVariable

	// Scenarios is recorded as the report's scenarios, in order.
	Scenarios []string
}

// SystemList returns the distinct "<backend>:<system>" prefixes of the
// per-test files in dir, sorted. Files that do not follow the per-test
// naming scheme are ignored.
func SystemList(fs afero.Fs, dir string) ([]string, error) {
	files, err := testFiles(fs, dir)
	if err != nil {
		return nil, err
	}
	var systems []string
	for _, f := range files {
		systems = append(systems, f.SystemID())
	}
	slices.Sort(systems)
	return slices.Compact(systems), nil
}

// ComposeSystem builds the report of one system from its per-test files.
//
// # Description
//
// Every file in dir whose name starts with systemID+":" becomes one
// TaskFeatures, in file-name order. A file whose name or content cannot be
// parsed fails the whole composition.
//
// # Inputs
//
//   - fs: Filesystem holding dir.
//   - dir: Directory of per-test files.
//   - systemID: "<backend>:<system>", as returned by SystemList.
//   - opts: Failed tests, environment and scenarios.
//   - logger: Debug output per file; nil discards.
//
// # Outputs
//
//   - *features.SystemFeatures: The composed report. Its System field is
//     the <system> part of systemID.
//   - error: *FileError for an unreadable file, ErrBadTestFileName for a
//     misnamed one, ErrNoTests when nothing matches systemID.
func ComposeSystem(fs afero.Fs, dir, systemID string, opts Options, logger *slog.Logger) (*features.SystemFeatures, error) {
	logger = logging.OrDiscard(logger)

	backend, system, ok := strings.Cut(systemID, ":")
	if !ok || backend == "" || system == "" {
		return nil, fmt.Errorf("%w: system id %q is not <backend>:<system>", ErrBadTestFileName, systemID)
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	report := &features.SystemFeatures{
		SchemaVersion: features.SchemaVersion,
		System:        system,
		Scenarios:     orEmpty(opts.Scenarios),
		EnvVariables:  orEmpty(opts.Env),
		Tests:         []features.TaskFeatures{},
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), systemID+":") {
			continue
		}
		tf, err := parseTestFileName(entry.Name())
		if err != nil {
			return nil, err
		}

		var set features.FeatureSet
		path := filepath.Join(dir, entry.Name())
		if err := util.ReadJSON(fs, path, &set); err != nil {
			return nil, &FileError{Path: path, Err: err}
		}

		failed := opts.Failed[tf.SpreadName()] || opts.Failed[tf.Name] || opts.Failed[strings.TrimSuffix(tf.Name, ".json")]
		report.Tests = append(report.Tests, features.TaskFeatures{
			Suite:      tf.Suite,
			TaskName:   tf.Task,
			Variant:    tf.Variant,
			Success:    !failed,
			FeatureSet: set,
		})
		logger.Debug("composed test", "test", tf.SpreadName(), "features", set.Len(), "success", !failed)
	}
	if len(report.Tests) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrNoTests, systemID, dir)
	}
	return report, nil
}

// OutputPaths maps each system id to the file WriteSystem will write its
// report to in dir.
//
// # Description
//
// Reports are named after the <system> part of the id only, so the same
// system run on two backends lands on one file. OutputPaths detects that
// before anything is written.
//
// # Inputs
//
//   - dir: Output directory.
//   - systemIDs: "<backend>:<system>" ids, as returned by SystemList.
//
// # Outputs
//
//   - map[string]string: Output path by system id.
//   - error: *OutputConflictError (ErrOutputConflict) when two ids share a
//     path, ErrBadTestFileName for a malformed id.
func OutputPaths(dir string, systemIDs []string) (map[string]string, error) {
	paths := make(map[string]string, len(systemIDs))
	byPath := make(map[string][]string, len(systemIDs))
	for _, id := range systemIDs {
		backend, system, ok := strings.Cut(id, ":")
		if !ok || backend == "" || system == "" {
			return nil, fmt.Errorf("%w: system id %q is not <backend>:<system>", ErrBadTestFileName, id)
		}
		path := outputPath(dir, system)
		paths[id] = path
		byPath[path] = append(byPath[path], id)
	}
	for _, id := range systemIDs {
		if ids := byPath[paths[id]]; len(ids) > 1 {
			return nil, &OutputConflictError{Path: paths[id], SystemIDs: ids}
		}
	}
	return paths, nil
}

// WriteSystem writes report to <dir>/<system>.json atomically and returns
// the path written.
func WriteSystem(fs afero.Fs, dir string, report *features.SystemFeatures) (string, error) {
	path := outputPath(dir, report.System)
	if err := util.WriteJSONAtomic(fs, path, report); err != nil {
		return "", err
	}
	return path, nil
}

func outputPath(dir, system string) string {
	return filepath.Join(dir, system+".json")
}

func testFiles(fs afero.Fs, dir string) ([]testFile, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var out []testFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f, err := parseTestFileName(entry.Name())
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
