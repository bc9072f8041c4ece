// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package features

import (
	"encoding/json"
	"slices"
)

// =============================================================================
// Kinds
// =============================================================================

// Kind names one family of features. Its value is the key used for the
// family in every serialized feature dictionary.
type Kind string

const (
	KindCmds       Kind = "cmds"
	KindEndpoints  Kind = "endpoints"
	KindEnsures    Kind = "ensures"
	KindTasks      Kind = "tasks"
	KindChanges    Kind = "changes"
	KindInterfaces Kind = "interfaces"
)

// KnownKinds lists every feature kind in canonical output order.
var KnownKinds = []Kind{KindCmds, KindEndpoints, KindEnsures, KindTasks, KindChanges, KindInterfaces}

// IsKnown reports whether k is one of KnownKinds.
func (k Kind) IsKnown() bool {
	return slices.Contains(KnownKinds, k)
}

// Feature is one observed telemetry fact.
//
// # Description
//
// Implementations are the six concrete variants in this file. The set is
// closed: code that needs the concrete value switches on the type.
//
// # Thread Safety
//
// Feature values are plain data and safe for concurrent reads.
type Feature interface {
	// FeatureKind returns the family this feature belongs to.
	FeatureKind() Kind

	// Key returns the canonical encoding used for structural equality.
	Key() string

	// MatchKey returns the kind-specific coverage key.
	MatchKey() string
}

// TaskStatus is the terminal status recorded for a task.
type TaskStatus string

const (
	StatusDone   TaskStatus = "Done"
	StatusUndone TaskStatus = "Undone"
	StatusError  TaskStatus = "Error"
)

// =============================================================================
// Variants
// =============================================================================

// Cmd records one snap command invocation.
type Cmd struct {
	Cmd string `json:"cmd" bson:"cmd"`
}

func (Cmd) FeatureKind() Kind  { return KindCmds }
func (c Cmd) Key() string      { return canonical(c) }
func (c Cmd) MatchKey() string { return c.Key() }

// Endpoint records one REST API request. Action is empty for requests that
// carry none.
type Endpoint struct {
	Method string `json:"method" bson:"method"`
	Path   string `json:"path" bson:"path"`
	Action string `json:"action,omitempty" bson:"action,omitempty"`
}

func (Endpoint) FeatureKind() Kind  { return KindEndpoints }
func (e Endpoint) Key() string      { return canonical(e) }
func (e Endpoint) MatchKey() string { return e.Key() }

// Interface records one interface connection and the snap types on each end.
type Interface struct {
	Name         string `json:"name" bson:"name"`
	PlugSnapType string `json:"plug_snap_type,omitempty" bson:"plug_snap_type,omitempty"`
	SlotSnapType string `json:"slot_snap_type,omitempty" bson:"slot_snap_type,omitempty"`
}

func (Interface) FeatureKind() Kind  { return KindInterfaces }
func (i Interface) Key() string      { return canonical(i) }
func (i Interface) MatchKey() string { return i.Name }

// Ensure records one ensure pass of a manager and the functions it ran, in
// the order they ran.
type Ensure struct {
	Manager   string   `json:"manager" bson:"manager"`
	Functions []string `json:"functions" bson:"functions"`
}

func (Ensure) FeatureKind() Kind { return KindEnsures }

func (e Ensure) Key() string {
	if e.Functions == nil {
		e.Functions = []string{}
	}
	return canonical(e)
}

func (e Ensure) MatchKey() string { return e.Key() }

// Task records one task, the snap types it concerned and the last status it
// was seen in. ID is only populated while a log is being extracted.
type Task struct {
	ID         string     `json:"-" bson:"-"`
	Kind       string     `json:"kind" bson:"kind"`
	SnapTypes  []string   `json:"snap_types,omitempty" bson:"snap_types,omitempty"`
	LastStatus TaskStatus `json:"last_status" bson:"last_status"`
}

func (Task) FeatureKind() Kind { return KindTasks }

func (t Task) Key() string {
	t.ID = ""
	t.SnapTypes = SortedSet(t.SnapTypes)
	return canonical(t)
}

func (t Task) MatchKey() string { return t.Kind + "\x00" + string(t.LastStatus) }

// Change records one change and the snap types its tasks concerned.
type Change struct {
	Kind      string   `json:"kind" bson:"kind"`
	SnapTypes []string `json:"snap_types,omitempty" bson:"snap_types,omitempty"`
}

func (Change) FeatureKind() Kind { return KindChanges }

func (c Change) Key() string {
	c.SnapTypes = SortedSet(c.SnapTypes)
	return canonical(c)
}

func (c Change) MatchKey() string { return c.Kind }

// =============================================================================
// Helpers
// =============================================================================

// SortedSet returns the distinct values of in, sorted. A nil or empty input
// yields nil.
func SortedSet(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}

// canonical encodes a feature variant. Struct field order is fixed, so the
// encoding is stable.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		// Variants only hold strings and string slices.
		panic("features: cannot encode feature: " + err.Error())
	}
	return string(b)
}

// Dedup returns list without structural duplicates, keeping the first
// occurrence of each feature.
func Dedup(list []Feature) []Feature {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	out := make([]Feature, 0, len(list))
	for _, f := range list {
		k := f.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, f)
	}
	return out
}
