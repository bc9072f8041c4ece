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
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/featuretags/cmd/featuretags/config"
	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/retriever"
	"github.com/AleutianAI/featuretags/pkg/logging"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	fs     afero.Fs
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// root flags
	configPath string
	logLevel   string
	logJSON    bool

	cfg    config.Config
	root   *logging.Logger
	logger *slog.Logger

	// started is set once flag parsing is over and a command runs
	started bool
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{
		fs:     afero.NewOsFs(),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		logger: logging.OrDiscard(nil),
	}
}

// run executes one command line and returns its exit code.
func run(ctx context.Context, args []string, a *app) int {
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	err := cmd.ExecuteContext(ctx)
	if a.root != nil {
		_ = a.root.Close()
	}
	if err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		if !a.started {
			fmt.Fprintf(a.stderr, "Run '%s --help' for usage.\n", cmd.CommandPath())
		}
	}
	return exitCode(err, a.started)
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "featuretags",
		Short: "Extract, compose and query snapd feature tags",
		Long: `featuretags turns snapd telemetry recorded during spread test runs into
feature reports, and answers coverage questions over stored reports.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $"+config.EnvConfigPath+")")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "log as JSON")

	root.AddCommand(
		a.extractCmd(),
		a.composeCmd(),
		a.diffCmd(),
		a.dupCmd(),
		a.exportCmd(),
		a.listCmd(),
		a.featCmd(),
	)
	return root
}

// setup loads the config file and builds the logger. Flags override the
// file.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.started = true

	cfg, err := config.Load(a.fs, a.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("log-json") {
		cfg.Log.JSON = a.logJSON
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return badArgs("%v", err)
	}
	a.cfg = cfg

	a.root = logging.New(logging.Config{
		Level:  level,
		JSON:   cfg.Log.JSON,
		LogDir: cfg.Log.Dir,
		Output: a.stderr,
	})
	a.logger = a.root.With("run_id", uuid.NewString(), "command", cmd.CommandPath()).Slog()
	a.logger.Debug("configuration loaded", "config", a.configPath, "workers", cfg.Query.Workers, "data_source", cfg.DataSource)
	return nil
}

// =============================================================================
// Data Source
// =============================================================================

// dataSourceFlags selects the report store of a query command.
type dataSourceFlags struct {
	dir   string
	creds string
}

func (d *dataSourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&d.dir, "dir", "d", "", "directory of stored reports (<dir>/<timestamp>/<system>.json)")
	cmd.Flags().StringVarP(&d.creds, "file", "f", "", "MongoDB credentials file (JSON or YAML)")
}

// openRetriever opens the store named by the flags, or by the config file
// when no flag is given.
func (a *app) openRetriever(ctx context.Context, d *dataSourceFlags) (retriever.Retriever, error) {
	src := a.cfg.DataSource
	if d.dir != "" || d.creds != "" {
		src = config.DataSource{Dir: d.dir, CredentialsFile: d.creds}
	}
	if err := src.Validate(); err != nil {
		return nil, fmt.Errorf("%w (use -d or -f)", err)
	}
	return retriever.Open(ctx, a.fs, src, a.logger)
}

// withRetriever runs fn against the selected store and closes it after.
func (a *app) withRetriever(cmd *cobra.Command, d *dataSourceFlags, fn func(context.Context, retriever.Retriever) error) error {
	ctx := cmd.Context()
	r, err := a.openRetriever(ctx, d)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := r.Close(ctx); cerr != nil {
			a.logger.Warn("closing report store", "error", cerr)
		}
	}()
	return fn(ctx, r)
}

// requireFlags returns a bad-arguments error naming the first of names
// left empty.
func requireFlags(cmd *cobra.Command, names ...string) error {
	for _, name := range names {
		f := cmd.Flags().Lookup(name)
		if f == nil || f.Value.String() == "" || f.Value.String() == "[]" {
			return badArgs("required flag --%s not set", name)
		}
	}
	return nil
}
