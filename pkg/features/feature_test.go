// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package features

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Equality
// =============================================================================

func TestTask_KeyIgnoresIDAndSnapTypeOrder(t *testing.T) {
	a := Task{ID: "1", Kind: "link-snap", SnapTypes: []string{"gadget", "app"}, LastStatus: StatusDone}
	b := Task{ID: "7", Kind: "link-snap", SnapTypes: []string{"app", "gadget", "app"}, LastStatus: StatusDone}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotContains(t, a.Key(), `"1"`)
}

func TestTask_MatchKey(t *testing.T) {
	a := Task{Kind: "link-snap", SnapTypes: []string{"app"}, LastStatus: StatusDone}
	b := Task{Kind: "link-snap", SnapTypes: []string{"kernel"}, LastStatus: StatusDone}
	c := Task{Kind: "link-snap", SnapTypes: []string{"app"}, LastStatus: StatusError}

	assert.NotEqual(t, a.Key(), b.Key())
	assert.Equal(t, a.MatchKey(), b.MatchKey())
	assert.NotEqual(t, a.MatchKey(), c.MatchKey())
}

func TestChangeAndInterface_MatchKey(t *testing.T) {
	assert.Equal(t,
		Change{Kind: "install-snap", SnapTypes: []string{"app"}}.MatchKey(),
		Change{Kind: "install-snap"}.MatchKey())
	assert.Equal(t,
		Interface{Name: "network", PlugSnapType: "app"}.MatchKey(),
		Interface{Name: "network", SlotSnapType: "snapd"}.MatchKey())
	assert.NotEqual(t,
		Interface{Name: "network", PlugSnapType: "app"}.Key(),
		Interface{Name: "network", SlotSnapType: "snapd"}.Key())
}

func TestEnsure_NilAndEmptyFunctionsAreEqual(t *testing.T) {
	assert.Equal(t, Ensure{Manager: "SnapManager"}.Key(), Ensure{Manager: "SnapManager", Functions: []string{}}.Key())
	assert.NotEqual(t,
		Ensure{Manager: "SnapManager", Functions: []string{"a", "b"}}.Key(),
		Ensure{Manager: "SnapManager", Functions: []string{"b", "a"}}.Key())
}

func TestEndpoint_ActionOmitted(t *testing.T) {
	b, err := json.Marshal(Endpoint{Method: "GET", Path: "/v2/snaps"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"method":"GET","path":"/v2/snaps"}`, string(b))
}

func TestDedup_KeepsFirstOccurrence(t *testing.T) {
	in := []Feature{
		Cmd{Cmd: "snap list"},
		Cmd{Cmd: "snap install"},
		Cmd{Cmd: "snap list"},
		Task{ID: "3", Kind: "k", LastStatus: StatusDone},
		Task{ID: "4", Kind: "k", LastStatus: StatusDone},
	}

	out := Dedup(in)

	require.Len(t, out, 3)
	assert.Equal(t, Cmd{Cmd: "snap list"}, out[0])
	assert.Equal(t, Cmd{Cmd: "snap install"}, out[1])
	assert.Equal(t, "3", out[2].(Task).ID)
	assert.Nil(t, Dedup(nil))
}

func TestSortedSet(t *testing.T) {
	assert.Equal(t, []string{"app", "base"}, SortedSet([]string{"base", "app", "base"}))
	assert.Nil(t, SortedSet([]string{}))
}

func TestKind_IsKnown(t *testing.T) {
	assert.True(t, KindEnsures.IsKnown())
	assert.False(t, Kind("ensure").IsKnown())
}

// =============================================================================
// Dictionaries
// =============================================================================

func TestFeatureDict_JSONRoundTrip(t *testing.T) {
	raw := `{
		"cmds": [{"cmd": "snap list"}],
		"endpoints": [{"method": "POST", "path": "/v2/snaps", "action": "install"}],
		"tasks": [{"kind": "link-snap", "snap_types": ["app"], "last_status": "Done"}],
		"interfaces": [{"name": "home", "plug_snap_type": "app"}]
	}`

	var d FeatureDict
	require.NoError(t, json.Unmarshal([]byte(raw), &d))

	assert.Equal(t, 4, d.Len())
	assert.Equal(t, []Kind{KindCmds, KindEndpoints, KindTasks, KindInterfaces}, d.Kinds())
	assert.NotContains(t, d, KindEnsures)

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestFeatureDict_MarshalStripsTaskID(t *testing.T) {
	d := FeatureDict{}
	d.Add(Task{ID: "12", Kind: "download-snap", LastStatus: StatusUndone})

	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tasks":[{"kind":"download-snap","last_status":"Undone"}]}`, string(out))
}

func TestSetFromDict_RejectsMisfiledFeature(t *testing.T) {
	_, err := SetFromDict(FeatureDict{KindCmds: {Change{Kind: "x"}}})
	assert.Error(t, err)
}

func TestSetFromDict_RejectsUnknownKind(t *testing.T) {
	_, err := SetFromDict(FeatureDict{Kind("ensure"): nil})
	assert.ErrorContains(t, err, `unknown feature kind "ensure"`)

	_, err = json.Marshal(FeatureDict{Kind("command"): {Cmd{Cmd: "snap list"}}})
	assert.Error(t, err)
}

func TestTaskFeatures_InlineFeatureSet(t *testing.T) {
	raw := `{"suite":"tests/main","task_name":"snap-list","variant":"","success":true,"cmds":[{"cmd":"snap list"}]}`

	var tf TaskFeatures
	require.NoError(t, json.Unmarshal([]byte(raw), &tf))

	assert.Equal(t, TaskIDVariant{Suite: "tests/main", TaskName: "snap-list"}, tf.ID())
	assert.Equal(t, []Cmd{{Cmd: "snap list"}}, tf.Cmds)

	out, err := json.Marshal(tf)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

// =============================================================================
// Identities
// =============================================================================

func TestTaskIDVariant(t *testing.T) {
	id := TaskIDVariant{Suite: "tests/main", TaskName: "install", Variant: "classic"}

	assert.Equal(t, "tests/main:install:classic", id.String())
	assert.Equal(t, TaskID{Suite: "tests/main", TaskName: "install"}, id.TaskID())
	assert.Equal(t, "tests/main:install", id.TaskID().String())

	out, err := json.Marshal([]TaskIDVariant{id})
	require.NoError(t, err)
	assert.JSONEq(t, `["tests/main:install:classic"]`, string(out))

	keyed, err := json.Marshal(map[TaskIDVariant]int{id: 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"tests/main:install:classic":1}`, string(keyed))
}
