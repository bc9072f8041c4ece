// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package state

import (
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSnapshot = `{
  "data": {
    "snaps": {
      "core22": {"type": "base"},
      "pc": {"type": "gadget"},
      "pc-kernel": {"type": "kernel"},
      "hello": {"type": "app"}
    }
  },
  "tasks": {
    "1": {"id": "1", "kind": "prerequisites", "data": {"snap-type": "snapd", "snap-setup": {"type": "app"}}},
    "2": {"id": "2", "kind": "download-snap", "data": {"snap-setup": {"type": "gadget", "side-info": {"name": "pc"}}}},
    "3": {"id": "3", "kind": "mount-snap", "data": {"snap-setup": {"side-info": {"name": "hello"}}}},
    "4": {"id": "4", "kind": "link-snap", "data": {"snap-setup-task": "2"}},
    "5": {"id": "5", "kind": "run-hook", "data": {"hook-setup": {"snap": "pc-kernel", "hook": "install"}}},
    "6": {"id": "6", "kind": "connect", "data": {"plug": {"snap": "hello", "plug": "network"}, "slot": {"snap": "core22", "slot": "network"}}},
    "7": {"id": "7", "kind": "check-rerefresh", "data": {"snaps": {"hello": {}, "pc": {}}}},
    "8": {"id": "8", "kind": "save-snapshot", "data": {"snapshot-setup": {"snap": "core22"}}},
    "9": {"id": "9", "kind": "create-recovery-system", "data": {"recovery-system-setup": {"snap-setup-tasks": ["2", "3"]}}},
    "10": {"id": "10", "kind": "finalize-recovery-system", "data": {"recovery-system-setup-task": "9"}},
    "11": {"id": "11", "kind": "hotplug-connect", "data": {"snap-type": "app"}},
    "12": {"id": "12", "kind": "mystery", "data": {"other": 1}},
    "13": {"id": "13", "kind": "link-snap", "data": {"snap-setup-task": "14"}},
    "14": {"id": "14", "kind": "link-snap", "data": {"snap-setup-task": "13"}},
    "15": {"id": "15", "kind": "prepare-snap", "data": {"snap-setup": {"type": "kernel", "side-info": {"name": "other-kernel"}}}},
    "16": {"id": "16", "kind": "run-hook", "data": {"hook-setup": {"snap": "other-kernel"}}},
    "17": {"id": "17", "kind": "run-hook", "data": {"hook-setup": {"snap": "ghost"}}},
    "18": {"id": "18", "kind": "refresh", "data": {"snaps": ["pc-kernel", "hello"]}},
    "19": {"id": "19", "kind": "broken", "data": {"snap-setup": "not-an-object"}}
  },
  "changes": {
    "100": {"id": "100", "kind": "install-snap", "task-ids": ["2", "3", "4"]},
    "101": {"id": "101", "kind": "hotplug-changes", "task-ids": ["11"]},
    "102": {"id": "102", "kind": "empty"},
    "103": {"id": "103", "kind": "bad", "task-ids": ["2", "12"]}
  }
}`

func loadTestSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	s, err := Load(strings.NewReader(testSnapshot))
	require.NoError(t, err)
	return s
}

func TestResolveSnapTypes_Shapes(t *testing.T) {
	s := loadTestSnapshot(t)

	tests := []struct {
		name   string
		taskID string
		want   []string
	}{
		{"direct snap-type wins over snap-setup", "1", []string{"snapd"}},
		{"snap-setup type", "2", []string{"gadget"}},
		{"snap-setup name", "3", []string{"app"}},
		{"snap-setup-task indirection", "4", []string{"gadget"}},
		{"hook-setup", "5", []string{"kernel"}},
		{"plug and slot", "6", []string{"app", "base"}},
		{"snaps map", "7", []string{"app", "gadget"}},
		{"snapshot-setup", "8", []string{"base"}},
		{"recovery system setup tasks", "9", []string{"app", "gadget"}},
		{"recovery system task indirection", "10", []string{"app", "gadget"}},
		{"excluded kind ignores payload", "11", []string{}},
		{"name found through another task", "16", []string{"kernel"}},
		{"snaps list", "18", []string{"app", "kernel"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ResolveSnapTypes(tt.taskID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveSnapTypes_NotFound(t *testing.T) {
	s := loadTestSnapshot(t)

	for _, id := range []string{"12", "13", "17", "19", "999"} {
		t.Run(id, func(t *testing.T) {
			_, err := s.ResolveSnapTypes(id)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotFound))

			var nf *NotFoundError
			assert.True(t, errors.As(err, &nf))
		})
	}
}

func TestResolveSnapTypes_CycleReason(t *testing.T) {
	s := loadTestSnapshot(t)

	_, err := s.ResolveSnapTypes("13")
	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "reference cycle", nf.Reason)
}

func TestResolveSnapTypesForChange(t *testing.T) {
	s := loadTestSnapshot(t)

	got, err := s.ResolveSnapTypesForChange("100")
	require.NoError(t, err)
	assert.Equal(t, []string{"app", "gadget"}, got)

	got, err = s.ResolveSnapTypesForChange("101")
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)

	got, err = s.ResolveSnapTypesForChange("102")
	require.NoError(t, err)
	assert.Equal(t, []string{}, got)

	_, err = s.ResolveSnapTypesForChange("103")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ResolveSnapTypesForChange("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(strings.NewReader("{not json"))
	assert.ErrorIs(t, err, ErrInvalidSnapshot)
}

func TestLoadFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/state.json", []byte(testSnapshot), 0644))

	s, err := LoadFile(fs, "/state.json")
	require.NoError(t, err)
	assert.Equal(t, 19, s.TaskCount())
	assert.Equal(t, 4, s.ChangeCount())

	_, err = LoadFile(fs, "/missing.json")
	assert.Error(t, err)
}

func TestIsExcludedKind(t *testing.T) {
	assert.True(t, IsExcludedKind("update-quota"))
	assert.False(t, IsExcludedKind("link-snap"))
}
