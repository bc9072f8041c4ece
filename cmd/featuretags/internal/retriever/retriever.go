// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package retriever reads stored feature reports from a directory tree or a
// MongoDB collection behind one interface.
//
// # Layout
//
// The directory store holds <dir>/<timestamp>/<system>.json, one
// SystemFeatures document each, plus <dir>/<timestamp>/all-features.json
// holding every feature that could have been observed at that timestamp.
//
// The MongoDB store holds the same documents with an added BSON date
// "timestamp" field. The universe document is flagged "all_features": true.
//
// # Thread Safety
//
// Retrievers are not safe for concurrent use. Each owns a Cache that is
// read and written without locks.
package retriever

import (
	"context"
	"log/slog"
	"slices"

	"github.com/spf13/afero"

	"github.com/AleutianAI/featuretags/cmd/featuretags/config"
	"github.com/AleutianAI/featuretags/pkg/features"
)

// AllFeaturesFile is the universe document of a timestamp directory.
const AllFeaturesFile = "all-features.json"

// TimestampSystems lists the systems stored under one timestamp.
type TimestampSystems struct {
	Timestamp string   `json:"timestamp"`
	Systems   []string `json:"systems"`
}

// Retriever gives read access to stored reports.
//
// Returned reports may be shared with the retriever's cache and must be
// treated as read-only.
type Retriever interface {
	// SortedTimestampsAndSystems lists every timestamp, newest first, with
	// the systems stored under it in name order.
	SortedTimestampsAndSystems(ctx context.Context) ([]TimestampSystems, error)

	// SingleSystem returns the one report of system at timestamp. Anything
	// but exactly one match is an *AmbiguousResultError.
	SingleSystem(ctx context.Context, timestamp, system string) (*features.SystemFeatures, error)

	// Systems returns the reports of the named systems at timestamp, or of
	// every system when systems is empty. Names with no report are skipped.
	Systems(ctx context.Context, timestamp string, systems []string) ([]*features.SystemFeatures, error)

	// AllFeatures returns the universe of features at timestamp.
	AllFeatures(ctx context.Context, timestamp string) (features.FeatureDict, error)

	// Close releases the backend.
	Close(ctx context.Context) error
}

// Open builds the retriever selected by src.
//
// # Description
//
// A directory source opens a DirRetriever on fs. A credentials source
// reads the credentials file from fs and connects a MongoRetriever.
//
// # Outputs
//
//   - Retriever: Ready to query. The caller must Close it.
//   - error: config.ErrInvalidDataSource, credential or connection errors,
//     or ErrNotFound for a missing directory.
func Open(ctx context.Context, fs afero.Fs, src config.DataSource, logger *slog.Logger) (Retriever, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	if src.Dir != "" {
		return NewDirRetriever(fs, src.Dir, logger)
	}
	creds, err := config.LoadCredentials(fs, src.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return NewMongoRetriever(ctx, creds, logger)
}

// =============================================================================
// Cache
// =============================================================================

// Cache holds the results of full scans, keyed by timestamp.
//
// It belongs to a single retriever for that retriever's lifetime. There is
// no eviction and no locking; a Cache must not be shared between
// goroutines.
type Cache struct {
	systems map[string][]*features.SystemFeatures
	all     map[string]features.FeatureDict
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{
		systems: make(map[string][]*features.SystemFeatures),
		all:     make(map[string]features.FeatureDict),
	}
}

// Systems returns the complete report list cached for timestamp.
func (c *Cache) Systems(timestamp string) ([]*features.SystemFeatures, bool) {
	reports, ok := c.systems[timestamp]
	return slices.Clone(reports), ok
}

// PutSystems caches the complete report list of timestamp. Only full scans
// may be stored.
func (c *Cache) PutSystems(timestamp string, reports []*features.SystemFeatures) {
	c.systems[timestamp] = slices.Clone(reports)
}

// AllFeatures returns the universe cached for timestamp.
func (c *Cache) AllFeatures(timestamp string) (features.FeatureDict, bool) {
	d, ok := c.all[timestamp]
	return d, ok
}

func (c *Cache) PutAllFeatures(timestamp string, d features.FeatureDict) {
	c.all[timestamp] = d
}
