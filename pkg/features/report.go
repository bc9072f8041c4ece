// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package features

// SchemaVersion is written into every composed SystemFeatures report.
const SchemaVersion = "0.0.0"

// EnvVariable is one environment variable recorded for a test run.
type EnvVariable struct {
	Name  string `json:"name" bson:"name"`
	Value string `json:"value" bson:"value"`
}

// TaskFeatures holds the features observed while one test ran.
//
// (Suite, TaskName, Variant) identifies the test and is unique within a
// SystemFeatures report.
type TaskFeatures struct {
	Suite    string `json:"suite" bson:"suite"`
	TaskName string `json:"task_name" bson:"task_name"`
	Variant  string `json:"variant" bson:"variant"`
	Success  bool   `json:"success" bson:"success"`

	FeatureSet `bson:",inline"`
}

// ID returns the test's full identity.
func (t *TaskFeatures) ID() TaskIDVariant {
	return TaskIDVariant{Suite: t.Suite, TaskName: t.TaskName, Variant: t.Variant}
}

// SystemFeatures is the composed report of one system at one point in time.
//
// A report is never edited in place once written. Reconciling reruns
// produces a new report.
type SystemFeatures struct {
	SchemaVersion string         `json:"schema_version" bson:"schema_version"`
	System        string         `json:"system" bson:"system"`
	Scenarios     []string       `json:"scenarios" bson:"scenarios"`
	EnvVariables  []EnvVariable  `json:"env_variables" bson:"env_variables"`
	Tests         []TaskFeatures `json:"tests" bson:"tests"`
}
