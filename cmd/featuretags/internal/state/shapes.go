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
	"fmt"
	"slices"

	"github.com/mitchellh/mapstructure"
)

// excludedKinds lists task kinds that concern no single snap. They resolve
// to the empty set without looking at their payload.
var excludedKinds = map[string]struct{}{
	"clear-confdb-tx":          {},
	"clear-confdb-tx-on-error": {},
	"commit-confdb-tx":         {},
	"load-confdb-change":       {},
	"hotplug-add-slot":         {},
	"hotplug-connect":          {},
	"hotplug-update-slot":      {},
	"hotplug-remove-slot":      {},
	"hotplug-disconnect":       {},
	"request-serial":           {},
	"enforce-validation-sets":  {},
	"service-control":          {},
	"quota-control":            {},
	"create-quota":             {},
	"remove-quota":             {},
	"update-quota":             {},
}

// IsExcludedKind reports whether tasks of this kind are never attributed.
func IsExcludedKind(kind string) bool {
	_, ok := excludedKinds[kind]
	return ok
}

// =============================================================================
// Payload Decoding
// =============================================================================

// taskData is the decoded form of a task payload. Only keys used for
// attribution are kept.
type taskData struct {
	SnapType  string     `mapstructure:"snap-type"`
	SnapSetup *snapSetup `mapstructure:"snap-setup"`

	SnapSetupTask string `mapstructure:"snap-setup-task"`

	HookSetup *struct {
		Snap string `mapstructure:"snap"`
	} `mapstructure:"hook-setup"`

	Plug *snapRef `mapstructure:"plug"`
	Slot *snapRef `mapstructure:"slot"`

	// Snaps is a name-keyed map in most tasks and a plain list of names in
	// a few older ones.
	Snaps any `mapstructure:"snaps"`

	SnapshotSetup *struct {
		Snap string `mapstructure:"snap"`
	} `mapstructure:"snapshot-setup"`

	RecoverySystemSetupTask string `mapstructure:"recovery-system-setup-task"`

	RecoverySystemSetup *struct {
		SnapSetupTasks []string `mapstructure:"snap-setup-tasks"`
	} `mapstructure:"recovery-system-setup"`
}

type snapSetup struct {
	Type     string `mapstructure:"type"`
	SideInfo *struct {
		Name string `mapstructure:"name"`
	} `mapstructure:"side-info"`
}

type snapRef struct {
	Snap string `mapstructure:"snap"`
}

func decodeTaskData(raw map[string]any) (taskData, error) {
	var td taskData
	if len(raw) == 0 {
		return td, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &td,
	})
	if err != nil {
		return td, err
	}
	if err := dec.Decode(raw); err != nil {
		return taskData{}, err
	}
	return td, nil
}

// =============================================================================
// Shapes
// =============================================================================

// shape is one recognized payload form. The set is closed; resolve
// switches on the concrete type.
type shape interface {
	isShape()
}

type (
	// shapeSnapType carries the snap type directly.
	shapeSnapType struct{ snapType string }

	// shapeSetupType is a snap-setup that names its type.
	shapeSetupType struct{ snapType string }

	// shapeSetupName is a snap-setup that only names its snap.
	shapeSetupName struct{ name string }

	// shapeSetupTask points at the task holding the snap-setup.
	shapeSetupTask struct{ taskID string }

	// shapeHook is a hook run for one snap.
	shapeHook struct{ name string }

	// shapePlugSlot is an interface operation touching two snaps.
	shapePlugSlot struct{ plug, slot string }

	// shapeSnaps is a multi-snap operation.
	shapeSnaps struct{ names []string }

	// shapeSnapshot is a snapshot operation on one snap.
	shapeSnapshot struct{ name string }

	// shapeRecoveryTask points at the task holding the recovery system setup.
	shapeRecoveryTask struct{ taskID string }

	// shapeRecoveryTasks lists the snap-setup tasks of a recovery system.
	shapeRecoveryTasks struct{ taskIDs []string }
)

func (shapeSnapType) isShape()      {}
func (shapeSetupType) isShape()     {}
func (shapeSetupName) isShape()     {}
func (shapeSetupTask) isShape()     {}
func (shapeHook) isShape()          {}
func (shapePlugSlot) isShape()      {}
func (shapeSnaps) isShape()         {}
func (shapeSnapshot) isShape()      {}
func (shapeRecoveryTask) isShape()  {}
func (shapeRecoveryTasks) isShape() {}

// classify returns the highest-priority shape present in td, or nil.
func classify(td taskData) (shape, error) {
	if td.SnapType != "" {
		return shapeSnapType{td.SnapType}, nil
	}
	if ss := td.SnapSetup; ss != nil {
		if ss.Type != "" {
			return shapeSetupType{ss.Type}, nil
		}
		if ss.SideInfo != nil && ss.SideInfo.Name != "" {
			return shapeSetupName{ss.SideInfo.Name}, nil
		}
	}
	if td.SnapSetupTask != "" {
		return shapeSetupTask{td.SnapSetupTask}, nil
	}
	if td.HookSetup != nil && td.HookSetup.Snap != "" {
		return shapeHook{td.HookSetup.Snap}, nil
	}
	if td.Plug != nil && td.Slot != nil && td.Plug.Snap != "" && td.Slot.Snap != "" {
		return shapePlugSlot{td.Plug.Snap, td.Slot.Snap}, nil
	}
	if td.Snaps != nil {
		names, err := snapNames(td.Snaps)
		if err != nil {
			return nil, err
		}
		if len(names) > 0 {
			return shapeSnaps{names}, nil
		}
	}
	if td.SnapshotSetup != nil && td.SnapshotSetup.Snap != "" {
		return shapeSnapshot{td.SnapshotSetup.Snap}, nil
	}
	if td.RecoverySystemSetupTask != "" {
		return shapeRecoveryTask{td.RecoverySystemSetupTask}, nil
	}
	if td.RecoverySystemSetup != nil && len(td.RecoverySystemSetup.SnapSetupTasks) > 0 {
		return shapeRecoveryTasks{td.RecoverySystemSetup.SnapSetupTasks}, nil
	}
	return nil, nil
}

// snapNames reads the "snaps" value as either a name-keyed map or a list of
// names. Names are returned sorted.
func snapNames(v any) ([]string, error) {
	switch snaps := v.(type) {
	case map[string]any:
		names := make([]string, 0, len(snaps))
		for name := range snaps {
			names = append(names, name)
		}
		slices.Sort(names)
		return names, nil
	case []any:
		names := make([]string, 0, len(snaps))
		for _, item := range snaps {
			name, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("snaps list holds %T, want string", item)
			}
			names = append(names, name)
		}
		slices.Sort(names)
		return names, nil
	default:
		return nil, fmt.Errorf("snaps is %T, want map or list", v)
	}
}
