// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/util"
	"github.com/AleutianAI/featuretags/pkg/features"
	"github.com/AleutianAI/featuretags/pkg/logging"
)

// =============================================================================
// Reconciliation
// =============================================================================

// ReplaceOldRuns merges every rerun in dir into its original run and
// writes one report per system to outputDir.
//
// # Description
//
// Files in dir must be named <system>_<attempt>.json. For each rerun
// (attempt > 1) the original is the attempt-1 file with the same system
// name or, failing that, the only attempt-1 file whose system name starts
// with the rerun's. Reruns of one original are applied from the lowest
// attempt to the highest. Each rerun test replaces, as a whole, the
// original's test with the same (suite, task_name, variant); rerun tests
// the original lacks are logged and ignored.
//
// Reports are handled as raw JSON, so fields unknown to this program and
// every test no rerun touched pass through unchanged. A system without
// reruns is copied byte for byte. Each output file is written atomically
// as <outputDir>/<system>.json.
//
// # Inputs
//
//   - fs: Filesystem holding both directories.
//   - dir: Directory of attempt files.
//   - outputDir: Directory for reconciled reports. Created if missing.
//   - logger: Progress and ignored tests; nil discards.
//
// # Outputs
//
//   - []string: Paths written, sorted.
//   - error: ErrBadRunName for a misnamed file, *RerunError
//     (ErrAmbiguousRerun) when a rerun's original is not unique, *FileError
//     for an undecodable report.
func ReplaceOldRuns(fs afero.Fs, dir, outputDir string, logger *slog.Logger) ([]string, error) {
	logger = logging.OrDiscard(logger)

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	originals := make(map[string]runFile)
	var reruns []runFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		rf, err := parseRunFileName(entry.Name())
		if err != nil {
			return nil, err
		}
		if rf.Attempt == 1 {
			originals[rf.System] = rf
		} else {
			reruns = append(reruns, rf)
		}
	}

	byOriginal := make(map[string][]runFile)
	for _, rerun := range reruns {
		orig, err := findOriginal(rerun, originals)
		if err != nil {
			return nil, err
		}
		byOriginal[orig.System] = append(byOriginal[orig.System], rerun)
	}

	var written []string
	for _, system := range slices.Sorted(maps.Keys(originals)) {
		orig := originals[system]
		origPath := filepath.Join(dir, orig.Name)
		outPath := filepath.Join(outputDir, system+".json")

		data, err := afero.ReadFile(fs, origPath)
		if err != nil {
			return nil, &FileError{Path: origPath, Err: err}
		}

		runs := byOriginal[system]
		if len(runs) > 0 {
			slices.SortFunc(runs, func(a, b runFile) int { return cmp.Compare(a.Attempt, b.Attempt) })
			data, err = applyReruns(fs, dir, origPath, data, runs, logger)
			if err != nil {
				return nil, err
			}
		}

		if err := util.WriteFileAtomic(fs, outPath, data, 0644); err != nil {
			return nil, err
		}
		logger.Info("reconciled system", "system", system, "reruns", len(runs), "output", outPath)
		written = append(written, outPath)
	}
	return written, nil
}

func findOriginal(rerun runFile, originals map[string]runFile) (runFile, error) {
	if orig, ok := originals[rerun.System]; ok {
		return orig, nil
	}
	var candidates []string
	for system := range originals {
		if strings.HasPrefix(system, rerun.System) {
			candidates = append(candidates, originals[system].Name)
		}
	}
	if len(candidates) != 1 {
		slices.Sort(candidates)
		return runFile{}, &RerunError{Rerun: rerun.Name, Candidates: candidates}
	}
	orig, _ := parseRunFileName(candidates[0])
	return orig, nil
}

// =============================================================================
// Raw Report Handling
// =============================================================================

// rawReport keeps every top-level field of a report as raw JSON so it can
// be written back without loss.
type rawReport struct {
	fields map[string]json.RawMessage
	tests  []json.RawMessage
}

type testIdentity struct {
	Suite    string `json:"suite"`
	TaskName string `json:"task_name"`
	Variant  string `json:"variant"`
}

func (id testIdentity) key() features.TaskIDVariant {
	return features.TaskIDVariant{Suite: id.Suite, TaskName: id.TaskName, Variant: id.Variant}
}

func decodeRawReport(path string, data []byte) (*rawReport, error) {
	r := &rawReport{}
	if err := json.Unmarshal(data, &r.fields); err != nil {
		return nil, &FileError{Path: path, Err: err}
	}
	if r.fields == nil {
		return nil, &FileError{Path: path, Err: fmt.Errorf("report is not a JSON object")}
	}
	if raw, ok := r.fields["tests"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &r.tests); err != nil {
			return nil, &FileError{Path: path, Err: fmt.Errorf("tests: %w", err)}
		}
	}
	return r, nil
}

func (r *rawReport) encode() ([]byte, error) {
	tests := r.tests
	if tests == nil {
		tests = []json.RawMessage{}
	}
	rawTests, err := marshalRaw(tests, "")
	if err != nil {
		return nil, err
	}
	r.fields["tests"] = rawTests
	return marshalRaw(r.fields, "  ")
}

// marshalRaw encodes v without escaping HTML characters, so command
// strings such as "a && b <c>" keep their bytes.
func marshalRaw(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func applyReruns(fs afero.Fs, dir, origPath string, data []byte, runs []runFile, logger *slog.Logger) ([]byte, error) {
	base, err := decodeRawReport(origPath, data)
	if err != nil {
		return nil, err
	}

	index := make(map[features.TaskIDVariant]int, len(base.tests))
	for i, raw := range base.tests {
		var id testIdentity
		if err := json.Unmarshal(raw, &id); err != nil {
			return nil, &FileError{Path: origPath, Err: fmt.Errorf("test %d: %w", i, err)}
		}
		index[id.key()] = i
	}

	for _, run := range runs {
		path := filepath.Join(dir, run.Name)
		runData, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, &FileError{Path: path, Err: err}
		}
		rerun, err := decodeRawReport(path, runData)
		if err != nil {
			return nil, err
		}

		replaced := 0
		for i, raw := range rerun.tests {
			var id testIdentity
			if err := json.Unmarshal(raw, &id); err != nil {
				return nil, &FileError{Path: path, Err: fmt.Errorf("test %d: %w", i, err)}
			}
			pos, ok := index[id.key()]
			if !ok {
				logger.Warn("rerun test not in original run", "rerun", run.Name, "test", id.key().String())
				continue
			}
			base.tests[pos] = raw
			replaced++
		}
		logger.Debug("applied rerun", "rerun", run.Name, "replaced", replaced)
	}

	out, err := base.encode()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", origPath, err)
	}
	return out, nil
}
