// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package features

// TaskID identifies a test regardless of variant.
type TaskID struct {
	Suite    string
	TaskName string
}

// String renders the id as "suite:task".
func (t TaskID) String() string {
	return t.Suite + ":" + t.TaskName
}

// TaskIDVariant identifies one variant of a test.
//
// It is comparable and usable as a map key. It never compares equal to a
// TaskID; callers that want variant-agnostic matching compare TaskID()
// explicitly.
type TaskIDVariant struct {
	Suite    string
	TaskName string
	Variant  string
}

// TaskID drops the variant.
func (t TaskIDVariant) TaskID() TaskID {
	return TaskID{Suite: t.Suite, TaskName: t.TaskName}
}

// String renders the id as "suite:task:variant".
func (t TaskIDVariant) String() string {
	return t.Suite + ":" + t.TaskName + ":" + t.Variant
}

// MarshalText renders the id in its String form, so JSON output lists ids
// as plain strings.
func (t TaskIDVariant) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
