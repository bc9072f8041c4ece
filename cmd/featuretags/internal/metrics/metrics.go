// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package metrics records extraction statistics for one featuretags run.
//
// Runs are short-lived, so nothing is served over HTTP. Instead the
// collected values are written once, at the end of the run, as a
// node-exporter textfile that a collector on the CI host picks up.
package metrics

import (
	"bytes"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/afero"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/util"
)

const (
	metricsNamespace = "featuretags"
	metricsSubsystem = "extract"
)

// =============================================================================
// Interface
// =============================================================================

// ExtractionMetrics receives events from the feature extractor.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type ExtractionMetrics interface {
	// RecordLine counts one telemetry line by its msg value ("" when absent).
	RecordLine(msg string)

	// RecordSkipped counts a recognized line dropped for a missing field.
	RecordSkipped(msg string)

	// RecordFallback counts a task or change attributed to a sentinel snap
	// type. Subject is "task" or "change"; reason is "not_found" or
	// "no_state".
	RecordFallback(subject, reason string)

	// RecordFeatures sets the final feature count for one kind.
	RecordFeatures(kind string, n int)
}

// NopExtractionMetrics discards everything.
type NopExtractionMetrics struct{}

func (NopExtractionMetrics) RecordLine(string)             {}
func (NopExtractionMetrics) RecordSkipped(string)          {}
func (NopExtractionMetrics) RecordFallback(string, string) {}
func (NopExtractionMetrics) RecordFeatures(string, int)    {}

var _ ExtractionMetrics = NopExtractionMetrics{}

// =============================================================================
// Prometheus Implementation
// =============================================================================

// PrometheusExtractionMetrics collects extraction metrics in a private
// registry.
type PrometheusExtractionMetrics struct {
	registry *prometheus.Registry

	linesTotal     *prometheus.CounterVec
	skippedTotal   *prometheus.CounterVec
	fallbacksTotal *prometheus.CounterVec
	features       *prometheus.GaugeVec
}

var _ ExtractionMetrics = (*PrometheusExtractionMetrics)(nil)

// NewPrometheusExtractionMetrics creates a recorder with its own registry.
//
// # Description
//
// A private registry keeps the textfile free of Go runtime metrics and
// lets tests create as many recorders as they like.
//
// # Outputs
//
//   - *PrometheusExtractionMetrics: Ready-to-use recorder.
func NewPrometheusExtractionMetrics() *PrometheusExtractionMetrics {
	m := &PrometheusExtractionMetrics{
		registry: prometheus.NewRegistry(),

		linesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "lines_total",
				Help:      "Telemetry lines read, by msg",
			},
			[]string{"msg"},
		),

		skippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "skipped_lines_total",
				Help:      "Recognized telemetry lines skipped for a missing field, by msg",
			},
			[]string{"msg"},
		),

		fallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "attribution_fallbacks_total",
				Help:      "Tasks and changes attributed to a sentinel snap type",
			},
			[]string{"subject", "reason"},
		),

		features: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "features",
				Help:      "Distinct features extracted, by kind",
			},
			[]string{"kind"},
		),
	}
	m.registry.MustRegister(m.linesTotal, m.skippedTotal, m.fallbacksTotal, m.features)
	return m
}

func (m *PrometheusExtractionMetrics) RecordLine(msg string) {
	m.linesTotal.WithLabelValues(msg).Inc()
}

func (m *PrometheusExtractionMetrics) RecordSkipped(msg string) {
	m.skippedTotal.WithLabelValues(msg).Inc()
}

func (m *PrometheusExtractionMetrics) RecordFallback(subject, reason string) {
	m.fallbacksTotal.WithLabelValues(subject, reason).Inc()
}

func (m *PrometheusExtractionMetrics) RecordFeatures(kind string, n int) {
	m.features.WithLabelValues(kind).Set(float64(n))
}

// Registry exposes the private registry, mainly for tests.
func (m *PrometheusExtractionMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every collected metric to path on fs in the text
// exposition format. The file is written to a temporary name and renamed
// into place.
func (m *PrometheusExtractionMetrics) WriteTextfile(fs afero.Fs, path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return fmt.Errorf("encode metrics: %w", err)
		}
	}
	if err := util.WriteFileAtomic(fs, path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
