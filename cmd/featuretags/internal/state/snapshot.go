// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package state resolves which snap types a daemon task or change concerns,
// using a point-in-time snapshot of the daemon's state.json.
//
// A Snapshot is immutable once loaded, so resolution is a pure function
// and a Snapshot may be shared between goroutines.
package state

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/afero"
)

// Snapshot is the subset of a state.json file needed for attribution.
type Snapshot struct {
	snapTypes map[string]string
	tasks     map[string]*taskRecord
	changes   map[string]*changeRecord

	// taskOrder lists task ids sorted, for deterministic fallback scans
	taskOrder []string
}

type taskRecord struct {
	id   string
	kind string
	data taskData

	// decodeErr is set when the payload has a recognized key of an
	// unexpected shape
	decodeErr error
}

type changeRecord struct {
	id      string
	kind    string
	taskIDs []string
}

type rawSnapshot struct {
	Data struct {
		Snaps map[string]struct {
			Type string `json:"type"`
		} `json:"snaps"`
	} `json:"data"`
	Tasks map[string]struct {
		ID   string         `json:"id"`
		Kind string         `json:"kind"`
		Data map[string]any `json:"data"`
	} `json:"tasks"`
	Changes map[string]struct {
		ID      string   `json:"id"`
		Kind    string   `json:"kind"`
		TaskIDs []string `json:"task-ids"`
	} `json:"changes"`
}

// Load parses a state.json document.
//
// # Description
//
// Reads the snaps map, every task (kind and payload) and every change
// (kind, task ids). Task payloads are decoded into the recognized shapes
// up front; a payload whose recognized keys have the wrong shape does not
// fail the load, it only makes that task unresolvable.
//
// # Inputs
//
//   - r: The state.json content.
//
// # Outputs
//
//   - *Snapshot: The loaded snapshot.
//   - error: Wraps ErrInvalidSnapshot if r is not a JSON state document.
func Load(r io.Reader) (*Snapshot, error) {
	var raw rawSnapshot
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}

	s := &Snapshot{
		snapTypes: make(map[string]string, len(raw.Data.Snaps)),
		tasks:     make(map[string]*taskRecord, len(raw.Tasks)),
		changes:   make(map[string]*changeRecord, len(raw.Changes)),
	}
	for name, snap := range raw.Data.Snaps {
		if snap.Type != "" {
			s.snapTypes[name] = snap.Type
		}
	}
	for key, t := range raw.Tasks {
		id := t.ID
		if id == "" {
			id = key
		}
		rec := &taskRecord{id: id, kind: t.Kind}
		rec.data, rec.decodeErr = decodeTaskData(t.Data)
		s.tasks[id] = rec
		s.taskOrder = append(s.taskOrder, id)
	}
	slices.Sort(s.taskOrder)
	for key, c := range raw.Changes {
		id := c.ID
		if id == "" {
			id = key
		}
		s.changes[id] = &changeRecord{id: id, kind: c.Kind, taskIDs: c.TaskIDs}
	}
	return s, nil
}

// LoadFile opens path on fs and loads it with Load.
func LoadFile(fs afero.Fs, path string) (*Snapshot, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open state snapshot: %w", err)
	}
	defer f.Close()

	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

// TaskCount returns the number of tasks in the snapshot.
func (s *Snapshot) TaskCount() int {
	return len(s.tasks)
}

// ChangeCount returns the number of changes in the snapshot.
func (s *Snapshot) ChangeCount() int {
	return len(s.changes)
}
