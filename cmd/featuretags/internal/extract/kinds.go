// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package extract

import (
	"maps"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/AleutianAI/featuretags/pkg/features"
)

// Snap types recorded when attribution is impossible.
var (
	// NotFoundSnapTypes marks a task or change the snapshot could not
	// attribute.
	NotFoundSnapTypes = []string{"NOT_FOUND"}

	// NoStateSnapTypes marks a task or change extracted without a snapshot.
	NoStateSnapTypes = []string{"NOT FOUND"}
)

// Telemetry msg values.
const (
	MsgCommandExecution    = "command-execution"
	MsgEndpoint            = "endpoint"
	MsgInterfaceConnection = "interface-connection"
	MsgEnsure              = "ensure"
	MsgTaskStatusChange    = "task-status-change"
	MsgNewChange           = "new-change"
)

// =============================================================================
// Registry
// =============================================================================

// kindExtractor turns the telemetry lines carrying one msg value into one
// kind of feature. A fresh instance is created for every run.
type kindExtractor interface {
	msg() string
	kind() features.Kind

	// handle consumes one line. A *MissingFieldError skips the line; any
	// other error aborts the run.
	handle(line gjson.Result, run *runContext) error

	// result returns the accumulated features in first-seen order.
	result() []features.Feature
}

var registry = map[string]func() kindExtractor{
	"cmd":       func() kindExtractor { return &cmdExtractor{} },
	"endpoint":  func() kindExtractor { return &endpointExtractor{} },
	"interface": func() kindExtractor { return &interfaceExtractor{} },
	"ensure":    func() kindExtractor { return newEnsureExtractor() },
	"task":      func() kindExtractor { return newTaskExtractor() },
	"change":    func() kindExtractor { return newChangeExtractor() },
}

// KindNames returns the registered extractor names, sorted.
func KindNames() []string {
	return slices.Sorted(maps.Keys(registry))
}

func requireField(line gjson.Result, msg, field string) (string, error) {
	v := line.Get(field)
	if !v.Exists() {
		return "", &MissingFieldError{Msg: msg, Field: field}
	}
	return v.String(), nil
}

// =============================================================================
// Simple Kinds
// =============================================================================

type cmdExtractor struct {
	list []features.Feature
}

func (*cmdExtractor) msg() string         { return MsgCommandExecution }
func (*cmdExtractor) kind() features.Kind { return features.KindCmds }

func (e *cmdExtractor) handle(line gjson.Result, _ *runContext) error {
	cmd, err := requireField(line, MsgCommandExecution, "cmd")
	if err != nil {
		return err
	}
	e.list = append(e.list, features.Cmd{Cmd: cmd})
	return nil
}

func (e *cmdExtractor) result() []features.Feature { return e.list }

type endpointExtractor struct {
	list []features.Feature
}

func (*endpointExtractor) msg() string         { return MsgEndpoint }
func (*endpointExtractor) kind() features.Kind { return features.KindEndpoints }

func (e *endpointExtractor) handle(line gjson.Result, _ *runContext) error {
	method, err := requireField(line, MsgEndpoint, "method")
	if err != nil {
		return err
	}
	path, err := requireField(line, MsgEndpoint, "path")
	if err != nil {
		return err
	}
	e.list = append(e.list, features.Endpoint{
		Method: method,
		Path:   path,
		Action: line.Get("action").String(),
	})
	return nil
}

func (e *endpointExtractor) result() []features.Feature { return e.list }

type interfaceExtractor struct {
	list []features.Feature
}

func (*interfaceExtractor) msg() string         { return MsgInterfaceConnection }
func (*interfaceExtractor) kind() features.Kind { return features.KindInterfaces }

func (e *interfaceExtractor) handle(line gjson.Result, _ *runContext) error {
	name, err := requireField(line, MsgInterfaceConnection, "interface")
	if err != nil {
		return err
	}
	plug, err := requireField(line, MsgInterfaceConnection, "plug")
	if err != nil {
		return err
	}
	slot, err := requireField(line, MsgInterfaceConnection, "slot")
	if err != nil {
		return err
	}
	e.list = append(e.list, features.Interface{Name: name, PlugSnapType: plug, SlotSnapType: slot})
	return nil
}

func (e *interfaceExtractor) result() []features.Feature { return e.list }

// =============================================================================
// Ensure
// =============================================================================

// ensureExtractor accumulates the functions run by each manager's ensure
// pass. A line without "func" opens a new pass; a line with "func" extends
// the manager's latest pass.
type ensureExtractor struct {
	records []*features.Ensure
	open    map[string]*features.Ensure
}

func newEnsureExtractor() *ensureExtractor {
	return &ensureExtractor{open: make(map[string]*features.Ensure)}
}

func (*ensureExtractor) msg() string         { return MsgEnsure }
func (*ensureExtractor) kind() features.Kind { return features.KindEnsures }

func (e *ensureExtractor) handle(line gjson.Result, _ *runContext) error {
	manager, err := requireField(line, MsgEnsure, "manager")
	if err != nil {
		return err
	}

	fn := line.Get("func")
	if fn.Exists() {
		if rec, ok := e.open[manager]; ok {
			rec.Functions = append(rec.Functions, fn.String())
			return nil
		}
		e.start(manager, []string{fn.String()})
		return nil
	}
	e.start(manager, []string{})
	return nil
}

func (e *ensureExtractor) start(manager string, functions []string) {
	rec := &features.Ensure{Manager: manager, Functions: functions}
	e.records = append(e.records, rec)
	e.open[manager] = rec
}

func (e *ensureExtractor) result() []features.Feature {
	out := make([]features.Feature, 0, len(e.records))
	for _, rec := range e.records {
		out = append(out, *rec)
	}
	return out
}

// =============================================================================
// Tasks and Changes
// =============================================================================

// taskExtractor keeps one record per task id. Only the status changes after
// the first sighting.
type taskExtractor struct {
	records []*features.Task
	byID    map[string]*features.Task
}

func newTaskExtractor() *taskExtractor {
	return &taskExtractor{byID: make(map[string]*features.Task)}
}

func (*taskExtractor) msg() string         { return MsgTaskStatusChange }
func (*taskExtractor) kind() features.Kind { return features.KindTasks }

func (e *taskExtractor) handle(line gjson.Result, run *runContext) error {
	id, err := requireField(line, MsgTaskStatusChange, "id")
	if err != nil {
		return err
	}
	name, err := requireField(line, MsgTaskStatusChange, "task-name")
	if err != nil {
		return err
	}
	status, err := requireField(line, MsgTaskStatusChange, "status")
	if err != nil {
		return err
	}

	if rec, ok := e.byID[id]; ok {
		rec.LastStatus = features.TaskStatus(status)
		return nil
	}
	rec := &features.Task{
		ID:         id,
		Kind:       name,
		SnapTypes:  run.attributeTask(id),
		LastStatus: features.TaskStatus(status),
	}
	e.records = append(e.records, rec)
	e.byID[id] = rec
	return nil
}

func (e *taskExtractor) result() []features.Feature {
	out := make([]features.Feature, 0, len(e.records))
	for _, rec := range e.records {
		t := *rec
		t.ID = ""
		out = append(out, t)
	}
	return out
}

type changeExtractor struct {
	list []features.Feature
	seen map[string]struct{}
}

func newChangeExtractor() *changeExtractor {
	return &changeExtractor{seen: make(map[string]struct{})}
}

func (*changeExtractor) msg() string         { return MsgNewChange }
func (*changeExtractor) kind() features.Kind { return features.KindChanges }

func (e *changeExtractor) handle(line gjson.Result, run *runContext) error {
	id, err := requireField(line, MsgNewChange, "id")
	if err != nil {
		return err
	}
	kind, err := requireField(line, MsgNewChange, "kind")
	if err != nil {
		return err
	}
	if _, ok := e.seen[id]; ok {
		return nil
	}
	e.seen[id] = struct{}{}
	e.list = append(e.list, features.Change{Kind: kind, SnapTypes: run.attributeChange(id)})
	return nil
}

func (e *changeExtractor) result() []features.Feature { return e.list }
