// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract turns a stream of snapd telemetry lines into the feature
// dictionary of one test.
//
// Each telemetry line is a JSON object whose "msg" field selects the
// extractor kinds that consume it. Tasks and changes are attributed to snap
// types through a state snapshot when one is available.
//
// # Thread Safety
//
// Extract is a sequential pass. Concurrent calls are independent.
package extract

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"log/slog"
	"slices"

	"github.com/tidwall/gjson"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/metrics"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/state"
	"github.com/AleutianAI/featuretags/pkg/features"
	"github.com/AleutianAI/featuretags/pkg/logging"
)

// =============================================================================
// Options
// =============================================================================

// Option configures Extract.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics metrics.ExtractionMetrics
}

// WithLogger sets the logger used for skipped lines and fallbacks.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the recorder for line and feature counts.
func WithMetrics(m metrics.ExtractionMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// runContext carries per-run collaborators to the kind extractors.
type runContext struct {
	snapshot *state.Snapshot
	logger   *slog.Logger
	metrics  metrics.ExtractionMetrics
	line     int
}

func (r *runContext) attributeTask(id string) []string {
	return r.attribute("task", id, r.snapshot.ResolveSnapTypes)
}

func (r *runContext) attributeChange(id string) []string {
	return r.attribute("change", id, r.snapshot.ResolveSnapTypesForChange)
}

func (r *runContext) attribute(subject, id string, resolve func(string) ([]string, error)) []string {
	if r.snapshot == nil {
		r.metrics.RecordFallback(subject, "no_state")
		return slices.Clone(NoStateSnapTypes)
	}
	types, err := resolve(id)
	if err != nil {
		r.logger.Debug("snap type not resolved", "subject", subject, "id", id, "line", r.line, "error", err)
		r.metrics.RecordFallback(subject, "not_found")
		return slices.Clone(NotFoundSnapTypes)
	}
	return types
}

// =============================================================================
// Extraction
// =============================================================================

// Extract consumes lines once and returns the features they describe.
//
// # Description
//
// The requested kinds are looked up in the registry before any line is
// read. Every non-blank line must be a JSON object; lines exported with
// journalctl's JSON output are unwrapped from their MESSAGE field. A line
// is handed to each requested kind whose msg matches and is otherwise
// ignored. When the sequence ends, every kind's list is deduplicated in
// first-seen order and empty kinds are dropped.
//
// # Inputs
//
//   - ctx: Checked between lines.
//   - lines: Forward-only line sequence, such as Lines(r).
//   - wantedKinds: Registry names (see KindNames). Empty means all kinds.
//   - snapshot: State snapshot for task and change attribution, or nil.
//   - opts: WithLogger, WithMetrics.
//
// # Outputs
//
//   - features.FeatureDict: The deduplicated features.
//   - error: *UnknownKindError (ErrInvalidFeatureList) for a bad kind,
//     *LineError wrapping ErrMalformedLine for an undecodable line, the
//     sequence's read error, or ctx.Err().
//
// # Examples
//
//	f, _ := extract.OpenJournal(fs, "journal.json.zst")
//	defer f.Close()
//	dict, err := extract.Extract(ctx, extract.Lines(f), []string{"cmd", "task"}, snap)
func Extract(ctx context.Context, lines iter.Seq2[[]byte, error], wantedKinds []string, snapshot *state.Snapshot, opts ...Option) (features.FeatureDict, error) {
	o := options{metrics: metrics.NopExtractionMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrDiscard(o.logger)

	extractors, err := newExtractors(wantedKinds)
	if err != nil {
		return nil, err
	}
	byMsg := make(map[string][]kindExtractor, len(extractors))
	for _, ex := range extractors {
		byMsg[ex.msg()] = append(byMsg[ex.msg()], ex)
	}

	run := &runContext{snapshot: snapshot, logger: o.logger, metrics: o.metrics}
	for raw, err := range lines {
		if err != nil {
			return nil, err
		}
		run.line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw = bytes.TrimSpace(raw)
		if len(raw) == 0 {
			continue
		}
		line, err := decodeLine(raw)
		if err != nil {
			return nil, &LineError{Line: run.line, Err: err}
		}

		msg := line.Get("msg").String()
		o.metrics.RecordLine(msg)
		for _, ex := range byMsg[msg] {
			err := ex.handle(line, run)
			if err == nil {
				continue
			}
			if errors.Is(err, ErrMissingField) {
				o.logger.Warn("skipping telemetry line", "line", run.line, "error", err)
				o.metrics.RecordSkipped(msg)
				continue
			}
			return nil, &LineError{Line: run.line, Err: err}
		}
	}

	dict := make(features.FeatureDict)
	for _, ex := range extractors {
		list := features.Dedup(ex.result())
		o.metrics.RecordFeatures(string(ex.kind()), len(list))
		if len(list) > 0 {
			dict[ex.kind()] = list
		}
	}
	o.logger.Debug("extraction finished", "lines", run.line, "features", dict.Len())
	return dict, nil
}

// newExtractors instantiates the requested kinds in registry-name order.
func newExtractors(wanted []string) ([]kindExtractor, error) {
	if len(wanted) == 0 {
		wanted = KindNames()
	}
	names := slices.Clone(wanted)
	slices.Sort(names)
	names = slices.Compact(names)

	out := make([]kindExtractor, 0, len(names))
	for _, name := range names {
		newFn, ok := registry[name]
		if !ok {
			return nil, &UnknownKindError{Name: name, Known: KindNames()}
		}
		out = append(out, newFn())
	}
	return out, nil
}

func decodeLine(raw []byte) (gjson.Result, error) {
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, ErrMalformedLine
	}
	line := gjson.ParseBytes(raw)
	if !line.IsObject() {
		return gjson.Result{}, ErrMalformedLine
	}
	if !line.Get("msg").Exists() {
		if m := line.Get("MESSAGE"); m.Type == gjson.String && gjson.Valid(m.Str) {
			if inner := gjson.Parse(m.Str); inner.IsObject() {
				return inner, nil
			}
		}
	}
	return line, nil
}
