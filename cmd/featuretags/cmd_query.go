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
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/query"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/retriever"
	"github.com/AleutianAI/featuretags/pkg/features"
)

// =============================================================================
// diff
// =============================================================================

func (a *app) diffCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare the features of stored reports",
	}
	cmd.AddCommand(a.diffSystemsCmd(), a.diffAllFeaturesCmd())
	return cmd
}

type diffSystemsFlags struct {
	source       dataSourceFlags
	ts1, sys1    string
	ts2, sys2    string
	removeFailed bool
	onlySame     bool
}

func (a *app) diffSystemsCmd() *cobra.Command {
	var flags diffSystemsFlags
	cmd := &cobra.Command{
		Use:   "systems",
		Short: "Print the features of the first system missing from the second",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "timestamp1", "system1", "timestamp2", "system2"); err != nil {
				return err
			}
			return a.withRetriever(cmd, &flags.source, func(ctx context.Context, r retriever.Retriever) error {
				dict, err := query.Diff(ctx, r, flags.ts1, flags.sys1, flags.ts2, flags.sys2, flags.removeFailed, flags.onlySame)
				if err != nil {
					return err
				}
				return writeJSON(a.stdout, dict)
			})
		},
	}
	flags.source.register(cmd)
	cmd.Flags().StringVar(&flags.ts1, "timestamp1", "", "timestamp of the first run")
	cmd.Flags().StringVar(&flags.sys1, "system1", "", "system of the first run")
	cmd.Flags().StringVar(&flags.ts2, "timestamp2", "", "timestamp of the second run")
	cmd.Flags().StringVar(&flags.sys2, "system2", "", "system of the second run")
	cmd.Flags().BoolVar(&flags.removeFailed, "remove-failed", false, "ignore failed tests")
	cmd.Flags().BoolVar(&flags.onlySame, "only-same", false, "only compare tests run on both systems")
	return cmd
}

type systemFlags struct {
	source       dataSourceFlags
	timestamp    string
	system       string
	removeFailed bool
}

func (f *systemFlags) register(cmd *cobra.Command) {
	f.source.register(cmd)
	cmd.Flags().StringVarP(&f.timestamp, "timestamp", "t", "", "timestamp of the run")
	cmd.Flags().StringVarP(&f.system, "system", "s", "", "system of the run")
	cmd.Flags().BoolVar(&f.removeFailed, "remove-failed", false, "ignore failed tests")
}

func (a *app) diffAllFeaturesCmd() *cobra.Command {
	var flags systemFlags
	cmd := &cobra.Command{
		Use:   "all-features",
		Short: "Print the known features a system never exercised",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "timestamp", "system"); err != nil {
				return err
			}
			return a.withRetriever(cmd, &flags.source, func(ctx context.Context, r retriever.Retriever) error {
				dict, err := query.DiffAllFeatures(ctx, r, flags.timestamp, flags.system, flags.removeFailed)
				if err != nil {
					return err
				}
				return writeJSON(a.stdout, dict)
			})
		},
	}
	flags.register(cmd)
	return cmd
}

// =============================================================================
// dup
// =============================================================================

func (a *app) dupCmd() *cobra.Command {
	var flags systemFlags
	var workers int
	cmd := &cobra.Command{
		Use:   "dup",
		Short: "List tests whose features are all exercised by other tests of the system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "timestamp", "system"); err != nil {
				return err
			}
			if !cmd.Flags().Changed("workers") {
				workers = a.cfg.Query.Workers
			}
			if workers < 0 {
				return badArgs("--workers must not be negative")
			}
			return a.withRetriever(cmd, &flags.source, func(ctx context.Context, r retriever.Retriever) error {
				dups, err := query.FindDuplicates(ctx, r, flags.timestamp, flags.system, flags.removeFailed, workers)
				if err != nil {
					return err
				}
				a.logger.Info("found duplicate tests", "system", flags.system, "count", len(dups))
				return writeJSON(a.stdout, dups)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel checks (default from config, 0 means one per CPU)")
	return cmd
}

// =============================================================================
// export
// =============================================================================

func (a *app) exportCmd() *cobra.Command {
	var (
		source     dataSourceFlags
		timestamps []string
		systems    []string
		output     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy stored reports into a local directory",
		Long: `Export writes <output>/<timestamp>/<system>.json for every requested run,
plus the run's all-features.json when the store has one. The result can
be read back with -d.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "timestamps", "output"); err != nil {
				return err
			}
			return a.withRetriever(cmd, &source, func(ctx context.Context, r retriever.Retriever) error {
				written, err := query.Export(ctx, r, a.fs, output, timestamps, systems, a.logger)
				if err != nil {
					return err
				}
				for _, path := range written {
					fmt.Fprintln(a.stdout, path)
				}
				return nil
			})
		},
	}
	source.register(cmd)
	cmd.Flags().StringSliceVarP(&timestamps, "timestamps", "t", nil, "timestamps to export")
	cmd.Flags().StringSliceVarP(&systems, "systems", "s", nil, "systems to export (default all)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory")
	return cmd
}

// =============================================================================
// list
// =============================================================================

func (a *app) listCmd() *cobra.Command {
	var source dataSourceFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored timestamps, newest first, with their systems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRetriever(cmd, &source, func(ctx context.Context, r retriever.Retriever) error {
				list, err := r.SortedTimestampsAndSystems(ctx)
				if err != nil {
					return err
				}
				return writeJSON(a.stdout, list)
			})
		},
	}
	source.register(cmd)
	return cmd
}

// =============================================================================
// feat
// =============================================================================

func (a *app) featCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feat",
		Short: "Print stored features",
	}
	cmd.AddCommand(a.featAllCmd(), a.featSysCmd(), a.featFindCmd(), a.featTasksCmd())
	return cmd
}

func (a *app) featAllCmd() *cobra.Command {
	var (
		source    dataSourceFlags
		timestamp string
	)
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Print every feature known at a timestamp",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "timestamp"); err != nil {
				return err
			}
			return a.withRetriever(cmd, &source, func(ctx context.Context, r retriever.Retriever) error {
				dict, err := r.AllFeatures(ctx, timestamp)
				if err != nil {
					return err
				}
				return writeJSON(a.stdout, dict)
			})
		},
	}
	source.register(cmd)
	cmd.Flags().StringVarP(&timestamp, "timestamp", "t", "", "timestamp of the run")
	return cmd
}

func (a *app) featSysCmd() *cobra.Command {
	var (
		flags  systemFlags
		filter query.TestFilter
	)
	cmd := &cobra.Command{
		Use:   "sys",
		Short: "Print the consolidated features of a system",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "timestamp", "system"); err != nil {
				return err
			}
			return a.withRetriever(cmd, &flags.source, func(ctx context.Context, r retriever.Retriever) error {
				dict, err := query.FeatSys(ctx, r, flags.timestamp, flags.system, flags.removeFailed, filter)
				if err != nil {
					return err
				}
				return writeJSON(a.stdout, dict)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&filter.Suite, "suite", "", "only tests of this suite")
	cmd.Flags().StringVar(&filter.Task, "task", "", "only tests with this task name")
	cmd.Flags().StringVar(&filter.Variant, "variant", "", "only tests with this variant")
	return cmd
}

func (a *app) featFindCmd() *cobra.Command {
	var (
		source       dataSourceFlags
		timestamp    string
		feature      string
		systems      []string
		removeFailed bool
		exact        bool
	)
	cmd := &cobra.Command{
		Use:   "find",
		Short: "Print the tests that exercise a feature, by system",
		Long: `Find classifies --feature, a JSON object, as a command, endpoint, interface,
task or change, then lists the tests of each system that exercise it.
Tasks match on kind and last status, changes on kind, interfaces on name.
With --exact every field must match.`,
		Example: `  featuretags feat find -d reports -t 2025-01-01T00:00:00 --feature '{"cmd": "snap list"}'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "timestamp", "feature"); err != nil {
				return err
			}
			f, err := query.ParseFeature([]byte(feature))
			if err != nil {
				return err
			}
			return a.withRetriever(cmd, &source, func(ctx context.Context, r retriever.Retriever) error {
				found, err := query.FindFeature(ctx, r, timestamp, f, removeFailed, systems, exact)
				if err != nil {
					return err
				}
				return writeJSON(a.stdout, found)
			})
		},
	}
	source.register(cmd)
	cmd.Flags().StringVarP(&timestamp, "timestamp", "t", "", "timestamp of the run")
	cmd.Flags().StringVar(&feature, "feature", "", "feature to look for, as JSON")
	cmd.Flags().StringSliceVarP(&systems, "systems", "s", nil, "systems to search (default all)")
	cmd.Flags().BoolVar(&removeFailed, "remove-failed", false, "ignore failed tests")
	cmd.Flags().BoolVar(&exact, "exact", false, "require every field to match")
	return cmd
}

func (a *app) featTasksCmd() *cobra.Command {
	var (
		source    dataSourceFlags
		timestamp string
	)
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List every test run at a timestamp, across all systems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "timestamp"); err != nil {
				return err
			}
			return a.withRetriever(cmd, &source, func(ctx context.Context, r retriever.Retriever) error {
				tasks, err := query.TaskList(ctx, r, timestamp)
				if err != nil {
					return err
				}
				ids := slices.SortedFunc(maps.Keys(tasks), func(x, y features.TaskIDVariant) int {
					return strings.Compare(x.String(), y.String())
				})
				return writeJSON(a.stdout, ids)
			})
		},
	}
	source.register(cmd)
	cmd.Flags().StringVarP(&timestamp, "timestamp", "t", "", "timestamp of the run")
	return cmd
}
