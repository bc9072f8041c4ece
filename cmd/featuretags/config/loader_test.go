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
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults verifies defaults when no file is named.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	cfg, err := Load(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

// TestLoad_OverlaysFile verifies file values override defaults.
func TestLoad_OverlaysFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/ft.yaml", []byte(`
log:
  level: debug
query:
  workers: 4
data_source:
  dir: /srv/features
`), 0644))

	cfg, err := Load(fs, "/etc/ft.yaml")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.False(t, cfg.Log.JSON)
	assert.Equal(t, 4, cfg.Query.Workers)
	assert.Equal(t, "/srv/features", cfg.DataSource.Dir)
}

// TestLoad_FromEnv verifies the environment variable is used.
func TestLoad_FromEnv(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/env.yaml", []byte("log:\n  json: true\n"), 0644))
	t.Setenv(EnvConfigPath, "/env.yaml")

	cfg, err := Load(fs, "")
	require.NoError(t, err)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_Invalid(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte("query:\n  workers: -1\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/level.yaml", []byte("log:\n  level: loud\n"), 0644))
	require.NoError(t, afero.WriteFile(fs, "/syntax.yaml", []byte("log: [\n"), 0644))

	for _, path := range []string{"/bad.yaml", "/level.yaml", "/syntax.yaml"} {
		_, err := Load(fs, path)
		assert.ErrorIs(t, err, ErrInvalidConfig, path)
	}

	_, err := Load(fs, "/missing.yaml")
	assert.Error(t, err)
}

func TestDataSource_Validate(t *testing.T) {
	assert.NoError(t, DataSource{Dir: "/d"}.Validate())
	assert.NoError(t, DataSource{CredentialsFile: "/c.json"}.Validate())
	assert.ErrorIs(t, DataSource{}.Validate(), ErrInvalidDataSource)
	assert.ErrorIs(t, DataSource{Dir: "/d", CredentialsFile: "/c.json"}.Validate(), ErrInvalidDataSource)
}

// =============================================================================
// Credentials
// =============================================================================

func TestLoadCredentials(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Credentials
		wantErr bool
	}{
		{
			name:    "json with tabs",
			content: "{\n\t\"host\": \"db.local\",\n\t\"port\": 27017,\n\t\"user\": \"ci\",\n\t\"password\": \"s3cret\"\n}",
			want:    Credentials{Host: "db.local", Port: 27017, User: "ci", Password: "s3cret", Database: "snapd", Collection: "features"},
		},
		{
			name:    "yaml with overrides",
			content: "host: db.local\nport: 27018\nuser: ci\npassword: s3cret\ndatabase: staging\ncollection: feats\n",
			want:    Credentials{Host: "db.local", Port: 27018, User: "ci", Password: "s3cret", Database: "staging", Collection: "feats"},
		},
		{name: "missing password", content: `{"host": "db", "port": 1, "user": "u"}`, wantErr: true},
		{name: "port out of range", content: `{"host": "db", "port": 70000, "user": "u", "password": "p"}`, wantErr: true},
		{name: "not a document", content: `{"host": `, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/creds", []byte(tt.content), 0600))

			got, err := LoadCredentials(fs, "/creds")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCredentials_LogValueHidesPassword(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	creds := Credentials{Host: "db", Port: 27017, User: "ci", Password: "s3cret"}

	logger.Info("connecting", "creds", creds)

	assert.Contains(t, buf.String(), "creds.host=db")
	assert.NotContains(t, buf.String(), "s3cret")
	assert.NotContains(t, creds.String(), "s3cret")
}
