// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/extract"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/metrics"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/state"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/util"
)

type extractFlags struct {
	journal     string
	state       string
	kinds       []string
	output      string
	metricsFile string
}

func (a *app) extractCmd() *cobra.Command {
	var flags extractFlags
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract the features of one test from its telemetry journal",
		Long: fmt.Sprintf(`Extract reads a snapd telemetry journal, one JSON object per line, and
writes the distinct features it describes as a JSON feature dictionary.

Journals ending in .gz or .zst are decompressed. Use "-" to read stdin.
Known feature kinds: %s.`, strings.Join(extract.KindNames(), ", ")),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "journal", "output"); err != nil {
				return err
			}
			return a.runExtract(cmd, flags)
		},
	}
	cmd.Flags().StringVarP(&flags.journal, "journal", "j", "", "telemetry journal (- for stdin)")
	cmd.Flags().StringVarP(&flags.state, "state", "s", "", "snapd state.json used to attribute tasks and changes to snap types")
	cmd.Flags().StringSliceVarP(&flags.kinds, "features", "f", nil, "feature kinds to extract (default all)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "write extraction metrics in Prometheus text format to this file")
	return cmd
}

func (a *app) runExtract(cmd *cobra.Command, flags extractFlags) error {
	var snap *state.Snapshot
	if flags.state != "" {
		s, err := state.LoadFile(a.fs, flags.state)
		if err != nil {
			return err
		}
		a.logger.Debug("loaded state", "path", flags.state, "tasks", s.TaskCount(), "changes", s.ChangeCount())
		snap = s
	}

	var journal io.Reader = a.stdin
	if flags.journal != "-" {
		f, err := extract.OpenJournal(a.fs, flags.journal)
		if err != nil {
			return err
		}
		defer f.Close()
		journal = f
	}

	opts := []extract.Option{extract.WithLogger(a.logger)}
	var recorder *metrics.PrometheusExtractionMetrics
	if flags.metricsFile != "" {
		recorder = metrics.NewPrometheusExtractionMetrics()
		opts = append(opts, extract.WithMetrics(recorder))
	}

	dict, err := extract.Extract(cmd.Context(), extract.Lines(journal), flags.kinds, snap, opts...)
	if err != nil {
		return err
	}
	if err := util.WriteJSONAtomic(a.fs, flags.output, dict); err != nil {
		return err
	}
	a.logger.Info("extracted features", "output", flags.output, "kinds", len(dict))

	if recorder != nil {
		if err := recorder.WriteTextfile(a.fs, flags.metricsFile); err != nil {
			return err
		}
	}
	return nil
}
