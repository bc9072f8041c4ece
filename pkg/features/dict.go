// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package features

import (
	"encoding/json"
	"fmt"
)

// FeatureDict maps each kind to its ordered feature list.
//
// # Description
//
// FeatureDict is the working form used by the extractor and the query
// engine. Kinds whose list would be empty are left out of the map entirely.
// It serializes through FeatureSet, so its JSON form is
// {"cmds":[...],"endpoints":[...],...} with kinds in KnownKinds order.
//
// # Thread Safety
//
// Not safe for concurrent mutation. Query functions never mutate their
// inputs, so a dictionary may be shared by concurrent readers.
type FeatureDict map[Kind][]Feature

// Add appends f to its kind's list without deduplicating.
func (d FeatureDict) Add(f Feature) {
	d[f.FeatureKind()] = append(d[f.FeatureKind()], f)
}

// Len returns the total number of features across all kinds.
func (d FeatureDict) Len() int {
	n := 0
	for _, list := range d {
		n += len(list)
	}
	return n
}

// Kinds returns the kinds present in d, in KnownKinds order.
func (d FeatureDict) Kinds() []Kind {
	var out []Kind
	for _, k := range KnownKinds {
		if len(d[k]) > 0 {
			out = append(out, k)
		}
	}
	return out
}

// MarshalJSON encodes the dictionary through its FeatureSet form.
func (d FeatureDict) MarshalJSON() ([]byte, error) {
	set, err := SetFromDict(d)
	if err != nil {
		return nil, err
	}
	return json.Marshal(set)
}

// UnmarshalJSON decodes a {"<kind>":[...]} document.
func (d *FeatureDict) UnmarshalJSON(b []byte) error {
	var set FeatureSet
	if err := json.Unmarshal(b, &set); err != nil {
		return err
	}
	*d = set.Dict()
	return nil
}

// FeatureSet is the typed, serializable form of a feature dictionary.
//
// It is embedded in TaskFeatures and is also the shape of the
// universe-of-features document stored next to each report set.
type FeatureSet struct {
	Cmds       []Cmd       `json:"cmds,omitempty" bson:"cmds,omitempty"`
	Endpoints  []Endpoint  `json:"endpoints,omitempty" bson:"endpoints,omitempty"`
	Ensures    []Ensure    `json:"ensures,omitempty" bson:"ensures,omitempty"`
	Tasks      []Task      `json:"tasks,omitempty" bson:"tasks,omitempty"`
	Changes    []Change    `json:"changes,omitempty" bson:"changes,omitempty"`
	Interfaces []Interface `json:"interfaces,omitempty" bson:"interfaces,omitempty"`
}

// Dict converts the set to a FeatureDict, leaving out empty kinds.
func (s FeatureSet) Dict() FeatureDict {
	d := make(FeatureDict)
	appendAll(d, s.Cmds)
	appendAll(d, s.Endpoints)
	appendAll(d, s.Ensures)
	appendAll(d, s.Tasks)
	appendAll(d, s.Changes)
	appendAll(d, s.Interfaces)
	return d
}

// Len returns the total number of features in the set.
func (s FeatureSet) Len() int {
	return len(s.Cmds) + len(s.Endpoints) + len(s.Ensures) +
		len(s.Tasks) + len(s.Changes) + len(s.Interfaces)
}

// SetFromDict converts d to its typed form. It fails for a kind outside
// KnownKinds, even with an empty list, and for a list holding a feature that
// does not belong to the list's kind.
func SetFromDict(d FeatureDict) (FeatureSet, error) {
	var s FeatureSet
	for kind, list := range d {
		if !kind.IsKnown() {
			return FeatureSet{}, fmt.Errorf("unknown feature kind %q", kind)
		}
		for _, f := range list {
			if f.FeatureKind() != kind {
				return FeatureSet{}, fmt.Errorf("feature %s listed under %q", f.Key(), kind)
			}
			switch v := f.(type) {
			case Cmd:
				s.Cmds = append(s.Cmds, v)
			case Endpoint:
				s.Endpoints = append(s.Endpoints, v)
			case Ensure:
				s.Ensures = append(s.Ensures, v)
			case Task:
				v.ID = ""
				s.Tasks = append(s.Tasks, v)
			case Change:
				s.Changes = append(s.Changes, v)
			case Interface:
				s.Interfaces = append(s.Interfaces, v)
			default:
				return FeatureSet{}, fmt.Errorf("unsupported feature type %T", f)
			}
		}
	}
	return s, nil
}

func appendAll[T Feature](d FeatureDict, list []T) {
	for _, f := range list {
		d.Add(f)
	}
}
