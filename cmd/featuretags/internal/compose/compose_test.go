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
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/featuretags/pkg/features"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0644))
}

// =============================================================================
// Names
// =============================================================================

func TestParseTestFileName(t *testing.T) {
	tests := []struct {
		name    string
		want    testFile
		wantErr bool
	}{
		{
			name: "google:ubuntu-24.04-64:tests--main--snap-run:classic.json",
			want: testFile{Backend: "google", System: "ubuntu-24.04-64", Suite: "tests/main", Task: "snap-run", Variant: "classic"},
		},
		{
			name: "qemu:ubuntu-core-22-64:tests--core--snap-set.json",
			want: testFile{Backend: "qemu", System: "ubuntu-core-22-64", Suite: "tests/core", Task: "snap-set"},
		},
		{name: "google:ubuntu:tests.json", wantErr: true},
		{name: "google:ubuntu.json", wantErr: true},
		{name: "google:ubuntu:tests--main--x:v:extra.json", wantErr: true},
		{name: "google:ubuntu:tests--main--x", wantErr: true},
		{name: "google::tests--main--x.json", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTestFileName(tt.name)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadTestFileName)
				return
			}
			require.NoError(t, err)
			tt.want.Name = tt.name
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTestFile_SpreadName(t *testing.T) {
	f, err := parseTestFileName("google:ubuntu-24.04-64:tests--main--snap-run:classic.json")
	require.NoError(t, err)
	assert.Equal(t, "google:ubuntu-24.04-64:tests/main/snap-run:classic", f.SpreadName())
	assert.Equal(t, "google:ubuntu-24.04-64", f.SystemID())
}

func TestParseRunFileName(t *testing.T) {
	rf, err := parseRunFileName("ubuntu-24.04-64_12.json")
	require.NoError(t, err)
	assert.Equal(t, runFile{Name: "ubuntu-24.04-64_12.json", System: "ubuntu-24.04-64", Attempt: 12}, rf)

	for _, bad := range []string{"ubuntu.json", "ubuntu_0.json", "ubuntu_x.json", "_1.json"} {
		_, err := parseRunFileName(bad)
		assert.ErrorIs(t, err, ErrBadRunName, bad)
	}
}

// =============================================================================
// Composition
// =============================================================================

func composeFixture(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in/google:ubuntu-24.04-64:tests--main--snap-run:classic.json", `{"cmds":[{"cmd":"snap run"}]}`)
	writeFile(t, fs, "/in/google:ubuntu-24.04-64:tests--main--snap-list.json", `{"cmds":[{"cmd":"snap list"}],"endpoints":[{"method":"GET","path":"/v2/snaps"}]}`)
	writeFile(t, fs, "/in/qemu:ubuntu-core-22-64:tests--core--snap-set.json", `{}`)
	writeFile(t, fs, "/in/README", "not a test file")
	return fs
}

func TestSystemList(t *testing.T) {
	systems, err := SystemList(composeFixture(t), "/in")
	require.NoError(t, err)
	assert.Equal(t, []string{"google:ubuntu-24.04-64", "qemu:ubuntu-core-22-64"}, systems)

	_, err = SystemList(afero.NewMemMapFs(), "/missing")
	assert.Error(t, err)
}

func TestComposeSystem(t *testing.T) {
	fs := composeFixture(t)
	opts := Options{
		Failed:    map[string]bool{"google:ubuntu-24.04-64:tests/main/snap-run:classic": true},
		Env:       []features.EnvVariable{{Name: "SPREAD_BACKEND", Value: "google"}},
		Scenarios: []string{"nightly"},
	}

	report, err := ComposeSystem(fs, "/in", "google:ubuntu-24.04-64", opts, nil)
	require.NoError(t, err)

	assert.Equal(t, features.SchemaVersion, report.SchemaVersion)
	assert.Equal(t, "ubuntu-24.04-64", report.System)
	assert.Equal(t, []string{"nightly"}, report.Scenarios)
	assert.Equal(t, opts.Env, report.EnvVariables)
	require.Len(t, report.Tests, 2)

	list, run := report.Tests[0], report.Tests[1]
	assert.Equal(t, features.TaskIDVariant{Suite: "tests/main", TaskName: "snap-list"}, list.ID())
	assert.True(t, list.Success)
	assert.Len(t, list.Endpoints, 1)
	assert.Equal(t, features.TaskIDVariant{Suite: "tests/main", TaskName: "snap-run", Variant: "classic"}, run.ID())
	assert.False(t, run.Success)
}

func TestComposeSystem_FailedByFileName(t *testing.T) {
	opts := Options{Failed: map[string]bool{"google:ubuntu-24.04-64:tests--main--snap-list.json": true}}

	report, err := ComposeSystem(composeFixture(t), "/in", "google:ubuntu-24.04-64", opts, nil)
	require.NoError(t, err)
	assert.False(t, report.Tests[0].Success)
	assert.True(t, report.Tests[1].Success)
}

func TestComposeSystem_EmptyListsSerializeAsArrays(t *testing.T) {
	report, err := ComposeSystem(composeFixture(t), "/in", "qemu:ubuntu-core-22-64", Options{}, nil)
	require.NoError(t, err)

	out, err := json.Marshal(report)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"schema_version": "0.0.0",
		"system": "ubuntu-core-22-64",
		"scenarios": [],
		"env_variables": [],
		"tests": [{"suite": "tests/core", "task_name": "snap-set", "variant": "", "success": true}]
	}`, string(out))
}

func TestComposeSystem_Errors(t *testing.T) {
	fs := composeFixture(t)
	writeFile(t, fs, "/in/google:broken:tests--main--x.json", `[1, 2]`)

	_, err := ComposeSystem(fs, "/in", "google:broken", Options{}, nil)
	var fileErr *FileError
	assert.True(t, errors.As(err, &fileErr))

	_, err = ComposeSystem(fs, "/in", "google:nothing", Options{}, nil)
	assert.ErrorIs(t, err, ErrNoTests)

	_, err = ComposeSystem(fs, "/in", "no-backend", Options{}, nil)
	assert.ErrorIs(t, err, ErrBadTestFileName)
}

func TestWriteSystem(t *testing.T) {
	fs := composeFixture(t)
	report, err := ComposeSystem(fs, "/in", "google:ubuntu-24.04-64", Options{}, nil)
	require.NoError(t, err)

	path, err := WriteSystem(fs, "/out", report)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/out", "ubuntu-24.04-64.json"), path)

	var back features.SystemFeatures
	data, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *report, back)
}

func TestOutputPaths(t *testing.T) {
	paths, err := OutputPaths("/out", []string{"google:ubuntu-24.04-64", "qemu:fedora-42-64"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"google:ubuntu-24.04-64": "/out/ubuntu-24.04-64.json",
		"qemu:fedora-42-64":      "/out/fedora-42-64.json",
	}, paths)

	_, err = OutputPaths("/out", []string{"no-backend"})
	assert.ErrorIs(t, err, ErrBadTestFileName)
}

func TestOutputPaths_SameSystemOnTwoBackends(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/in/google:ubuntu-24.04-64:tests--main--a.json", `{"cmds":[{"cmd":"google"}]}`)
	writeFile(t, fs, "/in/openstack:ubuntu-24.04-64:tests--main--a.json", `{"cmds":[{"cmd":"openstack"}]}`)

	systems, err := SystemList(fs, "/in")
	require.NoError(t, err)

	_, err = OutputPaths("/out", systems)
	require.ErrorIs(t, err, ErrOutputConflict)
	var conflict *OutputConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, "/out/ubuntu-24.04-64.json", conflict.Path)
	assert.Equal(t, []string{"google:ubuntu-24.04-64", "openstack:ubuntu-24.04-64"}, conflict.SystemIDs)
}
