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
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// pathSeparator stands for "/" inside test file names.
const pathSeparator = "--"

// testFile is the identity encoded in a per-test file name:
// <backend>:<system>:<suite-path>[:<variant>].json
type testFile struct {
	Name    string
	Backend string
	System  string
	Suite   string
	Task    string
	Variant string
}

// SystemID returns "<backend>:<system>".
func (f testFile) SystemID() string {
	return f.Backend + ":" + f.System
}

// SpreadName returns the test's name as the test runner prints it:
// <backend>:<system>:<suite>/<task>[:<variant>].
func (f testFile) SpreadName() string {
	name := f.SystemID() + ":" + f.Suite + "/" + f.Task
	if f.Variant != "" {
		name += ":" + f.Variant
	}
	return name
}

func parseTestFileName(name string) (testFile, error) {
	base, ok := strings.CutSuffix(name, ".json")
	if !ok {
		return testFile{}, fmt.Errorf("%w: %q lacks .json", ErrBadTestFileName, name)
	}
	parts := strings.Split(base, ":")
	if len(parts) != 3 && len(parts) != 4 {
		return testFile{}, fmt.Errorf("%w: %q is not backend:system:suite-path[:variant]", ErrBadTestFileName, name)
	}
	for _, p := range parts {
		if p == "" {
			return testFile{}, fmt.Errorf("%w: %q has an empty component", ErrBadTestFileName, name)
		}
	}

	testPath := strings.ReplaceAll(parts[2], pathSeparator, "/")
	suite, task := path.Dir(testPath), path.Base(testPath)
	if suite == "." || suite == "/" {
		return testFile{}, fmt.Errorf("%w: %q has no suite", ErrBadTestFileName, name)
	}

	f := testFile{Name: name, Backend: parts[0], System: parts[1], Suite: suite, Task: task}
	if len(parts) == 4 {
		f.Variant = parts[3]
	}
	return f, nil
}

// runFilePattern matches <system>_<attempt>.json.
var runFilePattern = regexp.MustCompile(`^(.+)_([0-9]+)\.json$`)

// runFile is one attempt of a composed system report.
type runFile struct {
	Name    string
	System  string
	Attempt int
}

func parseRunFileName(name string) (runFile, error) {
	m := runFilePattern.FindStringSubmatch(name)
	if m == nil {
		return runFile{}, fmt.Errorf("%w: %q is not <system>_<attempt>.json", ErrBadRunName, name)
	}
	attempt, err := strconv.Atoi(m[2])
	if err != nil || attempt < 1 {
		return runFile{}, fmt.Errorf("%w: %q has attempt %q", ErrBadRunName, name, m[2])
	}
	return runFile{Name: name, System: m[1], Attempt: attempt}, nil
}
