// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the settings of the featuretags CLI and the loaders
// for its config file and database credentials.
package config

import (
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
)

// Default database location of feature reports.
const (
	DefaultDatabase   = "snapd"
	DefaultCollection = "features"
)

// validate checks the `validate` struct tags of loaded settings.
var validate = validator.New(validator.WithRequiredStructEnabled())

type Config struct {
	// Log: level, format and optional log directory
	Log LogConfig `yaml:"log"`

	// Query: tuning of the query engine
	Query QueryConfig `yaml:"query"`

	// DataSource: where stored reports are read from
	DataSource DataSource `yaml:"data_source"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	JSON  bool   `yaml:"json"`
	Dir   string `yaml:"dir,omitempty"` // e.g. ~/.featuretags/logs
}

type QueryConfig struct {
	// Workers bounds the duplicate search. 0 means one per CPU.
	Workers int `yaml:"workers" validate:"gte=0"`
}

// DataSource selects the report store. Exactly one field must be set.
type DataSource struct {
	Dir             string `yaml:"dir,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// Validate returns ErrInvalidDataSource unless exactly one of Dir and
// CredentialsFile is set.
func (d DataSource) Validate() error {
	if (d.Dir == "") == (d.CredentialsFile == "") {
		return ErrInvalidDataSource
	}
	return nil
}

// Credentials locate and authenticate a MongoDB report store.
type Credentials struct {
	Host       string `yaml:"host" validate:"required"`
	Port       int    `yaml:"port" validate:"required,min=1,max=65535"`
	User       string `yaml:"user" validate:"required"`
	Password   string `yaml:"password" validate:"required"`
	Database   string `yaml:"database,omitempty"`
	Collection string `yaml:"collection,omitempty"`
}

// LogValue keeps the password out of logs.
func (c Credentials) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("host", c.Host),
		slog.Int("port", c.Port),
		slog.String("user", c.User),
		slog.String("database", c.Database),
		slog.String("collection", c.Collection),
	)
}

func (c Credentials) String() string {
	return fmt.Sprintf("%s@%s:%d/%s.%s", c.User, c.Host, c.Port, c.Database, c.Collection)
}

func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
		Query: QueryConfig{
			Workers: 0,
		},
	}
}
