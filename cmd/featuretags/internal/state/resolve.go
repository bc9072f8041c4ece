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
	"github.com/AleutianAI/featuretags/pkg/features"
)

// ResolveSnapTypes returns the sorted snap types a task concerns.
//
// # Description
//
// Tasks of an excluded kind resolve to an empty, non-nil set. Other tasks
// are resolved from the highest-priority recognized shape of their
// payload, following snap-setup-task and recovery-system references.
//
// # Inputs
//
//   - taskID: Id of a task in the snapshot.
//
// # Outputs
//
//   - []string: Sorted, distinct snap types.
//   - error: A *NotFoundError (ErrNotFound) if the task is unknown, has no
//     recognized shape, names an unknown snap, or sits on a reference cycle.
func (s *Snapshot) ResolveSnapTypes(taskID string) ([]string, error) {
	return s.resolveTask(taskID, make(map[string]bool))
}

// ResolveSnapTypesForChange returns the union of the snap types of every
// task in a change.
//
// A change without tasks resolves to an empty, non-nil set. The first task
// that fails to resolve fails the whole change.
func (s *Snapshot) ResolveSnapTypesForChange(changeID string) ([]string, error) {
	chg, ok := s.changes[changeID]
	if !ok {
		return nil, &NotFoundError{Subject: "change", ID: changeID, Reason: "no such change"}
	}
	var out []string
	for _, id := range chg.taskIDs {
		types, err := s.ResolveSnapTypes(id)
		if err != nil {
			return nil, err
		}
		out = append(out, types...)
	}
	return orEmpty(features.SortedSet(out)), nil
}

func (s *Snapshot) resolveTask(taskID string, visiting map[string]bool) ([]string, error) {
	task, ok := s.tasks[taskID]
	if !ok {
		return nil, &NotFoundError{Subject: "task", ID: taskID, Reason: "no such task"}
	}
	if IsExcludedKind(task.kind) {
		return []string{}, nil
	}
	if visiting[taskID] {
		return nil, &NotFoundError{Subject: "task", ID: taskID, Reason: "reference cycle"}
	}
	visiting[taskID] = true
	defer delete(visiting, taskID)

	if task.decodeErr != nil {
		return nil, &NotFoundError{Subject: "task", ID: taskID, Reason: task.decodeErr.Error()}
	}
	sh, err := classify(task.data)
	if err != nil {
		return nil, &NotFoundError{Subject: "task", ID: taskID, Reason: err.Error()}
	}

	switch v := sh.(type) {
	case shapeSnapType:
		return []string{v.snapType}, nil
	case shapeSetupType:
		return []string{v.snapType}, nil
	case shapeSetupName:
		return s.resolveNames(v.name)
	case shapeSetupTask:
		return s.resolveTask(v.taskID, visiting)
	case shapeHook:
		return s.resolveNames(v.name)
	case shapePlugSlot:
		return s.resolveNames(v.plug, v.slot)
	case shapeSnaps:
		return s.resolveNames(v.names...)
	case shapeSnapshot:
		return s.resolveNames(v.name)
	case shapeRecoveryTask:
		return s.resolveTask(v.taskID, visiting)
	case shapeRecoveryTasks:
		var out []string
		for _, id := range v.taskIDs {
			types, err := s.resolveTask(id, visiting)
			if err != nil {
				return nil, err
			}
			out = append(out, types...)
		}
		return orEmpty(features.SortedSet(out)), nil
	default:
		return nil, &NotFoundError{Subject: "task", ID: taskID, Reason: "no recognized payload"}
	}
}

func (s *Snapshot) resolveNames(names ...string) ([]string, error) {
	out := make([]string, 0, len(names))
	for _, name := range names {
		t, err := s.snapType(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return features.SortedSet(out), nil
}

// snapType looks a snap up in the snaps map, then in any task whose
// snap-setup carries both the name and a type.
func (s *Snapshot) snapType(name string) (string, error) {
	if t, ok := s.snapTypes[name]; ok {
		return t, nil
	}
	for _, id := range s.taskOrder {
		ss := s.tasks[id].data.SnapSetup
		if ss == nil || ss.Type == "" || ss.SideInfo == nil {
			continue
		}
		if ss.SideInfo.Name == name {
			return ss.Type, nil
		}
	}
	return "", &NotFoundError{Subject: "snap", ID: name, Reason: "not in snapshot"}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
