// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/afero"

	"github.com/AleutianAI/featuretags/cmd/featuretags/internal/util"
	"github.com/AleutianAI/featuretags/pkg/features"
	"github.com/AleutianAI/featuretags/pkg/logging"
)

// DirRetriever reads reports from <dir>/<timestamp>/<system>.json.
type DirRetriever struct {
	fs     afero.Fs
	dir    string
	cache  *Cache
	logger *slog.Logger
}

// NewDirRetriever opens the report tree rooted at dir.
//
// # Outputs
//
//   - *DirRetriever: Reader over dir.
//   - error: ErrNotFound if dir is not an existing directory.
func NewDirRetriever(fs afero.Fs, dir string, logger *slog.Logger) (*DirRetriever, error) {
	ok, err := afero.DirExists(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: directory %s", ErrNotFound, dir)
	}
	return &DirRetriever{
		fs:     fs,
		dir:    dir,
		cache:  NewCache(),
		logger: logging.OrDiscard(logger).With("retriever", "dir", "dir", dir),
	}, nil
}

func (r *DirRetriever) SortedTimestampsAndSystems(ctx context.Context) ([]TimestampSystems, error) {
	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", r.dir, err)
	}

	var out []TimestampSystems
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() {
			continue
		}
		systems, err := r.systemNames(entry.Name())
		if err != nil {
			return nil, err
		}
		if len(systems) == 0 {
			continue
		}
		out = append(out, TimestampSystems{Timestamp: entry.Name(), Systems: systems})
	}
	slices.SortFunc(out, func(a, b TimestampSystems) int { return strings.Compare(b.Timestamp, a.Timestamp) })
	return out, nil
}

func (r *DirRetriever) SingleSystem(_ context.Context, timestamp, system string) (*features.SystemFeatures, error) {
	path := filepath.Join(r.dir, timestamp, system+".json")
	ok, err := afero.Exists(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !ok {
		return nil, &AmbiguousResultError{Timestamp: timestamp, Subject: system, Count: 0}
	}
	return r.readReport(path)
}

func (r *DirRetriever) Systems(ctx context.Context, timestamp string, systems []string) ([]*features.SystemFeatures, error) {
	full := len(systems) == 0
	if full {
		if reports, ok := r.cache.Systems(timestamp); ok {
			r.logger.Debug("systems served from cache", "timestamp", timestamp)
			return reports, nil
		}
	}

	names, err := r.systemNames(timestamp)
	if err != nil {
		return nil, err
	}
	var reports []*features.SystemFeatures
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !full && !slices.Contains(systems, name) {
			continue
		}
		report, err := r.readReport(filepath.Join(r.dir, timestamp, name+".json"))
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	if full {
		r.cache.PutSystems(timestamp, reports)
	}
	return reports, nil
}

func (r *DirRetriever) AllFeatures(_ context.Context, timestamp string) (features.FeatureDict, error) {
	if d, ok := r.cache.AllFeatures(timestamp); ok {
		return d, nil
	}

	path := filepath.Join(r.dir, timestamp, AllFeaturesFile)
	ok, err := afero.Exists(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !ok {
		return nil, &AmbiguousResultError{Timestamp: timestamp, Subject: AllFeaturesFile, Count: 0}
	}

	// The timestamp and all_features keys of exported universe documents
	// have no FeatureSet field and are dropped here.
	var set features.FeatureSet
	if err := util.ReadJSON(r.fs, path, &set); err != nil {
		return nil, err
	}
	d := set.Dict()
	r.cache.PutAllFeatures(timestamp, d)
	return d, nil
}

func (r *DirRetriever) Close(context.Context) error { return nil }

// systemNames lists the report files of timestamp without their extension,
// sorted.
func (r *DirRetriever) systemNames(timestamp string) ([]string, error) {
	dir := filepath.Join(r.dir, timestamp)
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		ok, _ := afero.DirExists(r.fs, dir)
		if !ok {
			return nil, fmt.Errorf("%w: timestamp %s in %s", ErrNotFound, timestamp, r.dir)
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == AllFeaturesFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(name, ".json"))
	}
	slices.Sort(names)
	return names, nil
}

func (r *DirRetriever) readReport(path string) (*features.SystemFeatures, error) {
	var report features.SystemFeatures
	if err := util.ReadJSON(r.fs, path, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
