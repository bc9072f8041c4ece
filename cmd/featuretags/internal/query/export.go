// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/retriever"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/util"
	"github.com/AleutianAI/featuretags/pkg/features"
	"github.com/AleutianAI/featuretags/pkg/logging"
)

// Export copies reports from r into the directory layout read by
// retriever.DirRetriever.
//
// # Description
//
// For each timestamp, the reports of the named systems (all systems when
// systems is empty) are written to <outputDir>/<timestamp>/<system>.json,
// and the timestamp's universe, when the source has one, to
// <outputDir>/<timestamp>/all-features.json. Each file is written
// atomically, so a failed export leaves complete files behind and can be
// re-run.
//
// # Inputs
//
//   - ctx: Checked between files.
//   - r: Source of reports.
//   - fs: Destination filesystem.
//   - outputDir: Root of the exported tree.
//   - timestamps: Timestamps to export.
//   - systems: Systems to export, or nil for all.
//   - logger: Progress; nil discards.
//
// # Outputs
//
//   - []string: Paths written, in write order.
//   - error: Retrieval or write errors.
func Export(ctx context.Context, r retriever.Retriever, fs afero.Fs, outputDir string, timestamps, systems []string, logger *slog.Logger) ([]string, error) {
	logger = logging.OrDiscard(logger)

	var written []string
	for _, ts := range timestamps {
		reports, err := r.Systems(ctx, ts, systems)
		if err != nil {
			return written, fmt.Errorf("export %s: %w", ts, err)
		}
		if err := fs.MkdirAll(filepath.Join(outputDir, ts), 0755); err != nil {
			return written, fmt.Errorf("export %s: %w", ts, err)
		}

		for _, report := range reports {
			if err := ctx.Err(); err != nil {
				return written, err
			}
			if report.System == "" {
				return written, fmt.Errorf("export %s: report without a system name", ts)
			}
			path := filepath.Join(outputDir, ts, report.System+".json")
			if err := util.WriteJSONAtomic(fs, path, report); err != nil {
				return written, err
			}
			written = append(written, path)
		}

		universe, err := r.AllFeatures(ctx, ts)
		switch {
		case errors.Is(err, retriever.ErrNotFound):
			logger.Debug("no universe document to export", "timestamp", ts)
		case err != nil:
			return written, fmt.Errorf("export %s: %w", ts, err)
		default:
			set, err := features.SetFromDict(universe)
			if err != nil {
				return written, fmt.Errorf("export %s: %w", ts, err)
			}
			path := filepath.Join(outputDir, ts, retriever.AllFeaturesFile)
			if err := util.WriteJSONAtomic(fs, path, set); err != nil {
				return written, err
			}
			written = append(written, path)
		}
		logger.Info("exported timestamp", "timestamp", ts, "systems", len(reports))
	}
	return written, nil
}
