// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted when no config
// path is passed to Load.
const EnvConfigPath = "FEATURETAGS_CONFIG"

// Load reads the config file at path on top of DefaultConfig.
//
// # Description
//
// An empty path falls back to $FEATURETAGS_CONFIG. When both are empty the
// defaults are returned unchanged. Keys missing from the file keep their
// default values. The data source is not checked here because CLI flags
// may still override it.
//
// # Inputs
//
//   - fs: Filesystem holding the file.
//   - path: Config file path, or "".
//
// # Outputs
//
//   - Config: Defaults overlaid with the file.
//   - error: Read failures, or ErrInvalidConfig for bad YAML or values.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return cfg, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// LoadCredentials reads and validates a MongoDB credentials file.
//
// # Description
//
// The file holds host, port, user and password, and optionally database
// and collection. It may be JSON or YAML. Database and collection default
// to DefaultDatabase and DefaultCollection.
//
// # Outputs
//
//   - Credentials: Validated credentials with defaults applied.
//   - error: Read failures, or ErrInvalidCredentials.
//
// # Examples
//
//	creds, err := config.LoadCredentials(afero.NewOsFs(), "/etc/featuretags/mongo.json")
func LoadCredentials(fs afero.Fs, path string) (Credentials, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Credentials{}, fmt.Errorf("failed to read the credentials file %w", err)
	}

	var creds Credentials
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		err = decodeJSONCredentials(trimmed, &creds)
	} else {
		err = yaml.Unmarshal(data, &creds)
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %s: %v", ErrInvalidCredentials, path, err)
	}
	if err := validate.Struct(creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: %s: %v", ErrInvalidCredentials, path, err)
	}

	if creds.Database == "" {
		creds.Database = DefaultDatabase
	}
	if creds.Collection == "" {
		creds.Collection = DefaultCollection
	}
	return creds, nil
}

// decodeJSONCredentials reads the JSON form, which may be tab-indented and
// so is not always valid YAML.
func decodeJSONCredentials(data []byte, creds *Credentials) error {
	var raw struct {
		Host       string `json:"host"`
		Port       int    `json:"port"`
		User       string `json:"user"`
		Password   string `json:"password"`
		Database   string `json:"database"`
		Collection string `json:"collection"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*creds = Credentials(raw)
	return nil
}
