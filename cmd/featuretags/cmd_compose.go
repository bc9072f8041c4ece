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
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/compose"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/util"
)

func (a *app) composeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Build per-system reports from per-test feature files",
	}
	cmd.AddCommand(a.composeListCmd(), a.composeSystemCmd(), a.composeRerunCmd())
	return cmd
}

func (a *app) composeListCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the <backend>:<system> pairs present in a directory of per-test files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "dir"); err != nil {
				return err
			}
			systems, err := compose.SystemList(a.fs, dir)
			if err != nil {
				return err
			}
			for _, s := range systems {
				fmt.Fprintln(a.stdout, s)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory of per-test feature files")
	return cmd
}

type composeSystemFlags struct {
	dir       string
	systems   []string
	output    string
	failed    string
	env       []string
	scenarios []string
}

func (a *app) composeSystemCmd() *cobra.Command {
	var flags composeSystemFlags
	cmd := &cobra.Command{
		Use:   "system",
		Short: "Compose the report of one or more systems",
		Long: `System joins the per-test files of each system into one report written to
<output>/<system>.json. Without --system every system found in the
directory is composed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "dir", "output"); err != nil {
				return err
			}
			return a.runComposeSystem(flags)
		},
	}
	cmd.Flags().StringVarP(&flags.dir, "dir", "d", "", "directory of per-test feature files")
	cmd.Flags().StringSliceVarP(&flags.systems, "system", "s", nil, "<backend>:<system> to compose (default all)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output directory")
	cmd.Flags().StringVar(&flags.failed, "failed", "", "file listing failed tests, one per line")
	cmd.Flags().StringArrayVar(&flags.env, "env", nil, "NAME=value recorded in the report (repeatable)")
	cmd.Flags().StringArrayVar(&flags.scenarios, "scenario", nil, "scenario recorded in the report (repeatable)")
	return cmd
}

func (a *app) runComposeSystem(flags composeSystemFlags) error {
	env, err := util.ParseEnvAssignments(flags.env)
	if err != nil {
		return err
	}
	opts := compose.Options{Env: env, Scenarios: flags.scenarios}
	if flags.failed != "" {
		if opts.Failed, err = a.readFailed(flags.failed); err != nil {
			return err
		}
	}

	systems := flags.systems
	if len(systems) == 0 {
		if systems, err = compose.SystemList(a.fs, flags.dir); err != nil {
			return err
		}
	}

	if _, err := compose.OutputPaths(flags.output, systems); err != nil {
		return err
	}

	for _, id := range systems {
		report, err := compose.ComposeSystem(a.fs, flags.dir, id, opts, a.logger)
		if err != nil {
			return err
		}
		path, err := compose.WriteSystem(a.fs, flags.output, report)
		if err != nil {
			return err
		}
		a.logger.Info("composed system", "system", id, "tests", len(report.Tests), "output", path)
		fmt.Fprintln(a.stdout, path)
	}
	return nil
}

// readFailed reads a list of failed test names. Blank lines and lines
// starting with '#' are ignored.
func (a *app) readFailed(path string) (map[string]bool, error) {
	f, err := a.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open failed tests: %w", err)
	}
	defer f.Close()

	failed := make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		failed[line] = true
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read failed tests: %w", err)
	}
	return failed, nil
}

func (a *app) composeRerunCmd() *cobra.Command {
	var dir, output string
	cmd := &cobra.Command{
		Use:   "rerun",
		Short: "Merge rerun attempts of each system into its original run",
		Long: `Rerun reads reports named <system>_<attempt>.json, attempt 1 being the
original run, and writes one reconciled <system>.json per original. Each
rerun test replaces the original test with the same suite, task and
variant.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := requireFlags(cmd, "dir", "output"); err != nil {
				return err
			}
			written, err := compose.ReplaceOldRuns(a.fs, dir, output, a.logger)
			if err != nil {
				return err
			}
			for _, path := range written {
				fmt.Fprintln(a.stdout, path)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory of <system>_<attempt>.json reports")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output directory")
	return cmd
}
