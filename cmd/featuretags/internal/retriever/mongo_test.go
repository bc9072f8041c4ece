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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AleutianAI/featuretags/pkg/features"
)

// fakeCollection answers Find from in-memory documents. It understands
// equality filters and {"$ne": v}.
type fakeCollection struct {
	docs  []bson.M
	finds int
	err   error
}

func (c *fakeCollection) Find(_ context.Context, filter interface{}, _ ...*options.FindOptions) (*mongo.Cursor, error) {
	c.finds++
	if c.err != nil {
		return nil, c.err
	}
	var out []interface{}
	for _, doc := range c.docs {
		if matches(doc, filter.(bson.M)) {
			out = append(out, doc)
		}
	}
	return mongo.NewCursorFromDocuments(out, nil, nil)
}

func matches(doc, filter bson.M) bool {
	for key, want := range filter {
		if op, ok := want.(bson.M); ok {
			if doc[key] == op["$ne"] {
				return false
			}
			continue
		}
		if doc[key] != want {
			return false
		}
	}
	return true
}

var (
	t1 = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	t2 = time.Date(2024, 6, 1, 12, 30, 0, 250_000_000, time.UTC)
)

func reportDoc(t *testing.T, ts time.Time, report features.SystemFeatures) bson.M {
	t.Helper()
	raw, err := bson.Marshal(report)
	require.NoError(t, err)
	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	doc[fieldTimestamp] = primitive.NewDateTimeFromTime(ts)
	return doc
}

func mongoFixture(t *testing.T) *fakeCollection {
	t.Helper()
	ubuntu := features.SystemFeatures{
		SchemaVersion: features.SchemaVersion,
		System:        "ubuntu-24.04-64",
		Scenarios:     []string{},
		EnvVariables:  []features.EnvVariable{},
		Tests: []features.TaskFeatures{{
			Suite: "tests/main", TaskName: "a", Success: true,
			FeatureSet: features.FeatureSet{Cmds: []features.Cmd{{Cmd: "snap list"}}},
		}},
	}
	fedora := features.SystemFeatures{System: "fedora-42-64", Tests: []features.TaskFeatures{}}

	return &fakeCollection{docs: []bson.M{
		reportDoc(t, t1, ubuntu),
		reportDoc(t, t1, fedora),
		reportDoc(t, t2, ubuntu),
		reportDoc(t, t2, ubuntu),
		{
			fieldTimestamp:   primitive.NewDateTimeFromTime(t1),
			fieldAllFeatures: true,
			"cmds":           bson.A{bson.M{"cmd": "snap list"}, bson.M{"cmd": "snap pack"}},
			"interfaces":     bson.A{bson.M{"name": "network"}},
		},
	}}
}

func TestTimestamps(t *testing.T) {
	assert.Equal(t, "2024-05-01T00:00:00", FormatTimestamp(t1))
	assert.Equal(t, "2024-06-01T12:30:00.250000", FormatTimestamp(t2))

	for _, s := range []string{"2024-06-01T12:30:00.250000", "2024-06-01T12:30:00.25Z", "2024-06-01 12:30:00.25"} {
		got, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.Equal(t, primitive.NewDateTimeFromTime(t2), got, s)
	}
	got, err := ParseTimestamp("2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, primitive.NewDateTimeFromTime(t1), got)

	_, err = ParseTimestamp("yesterday")
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestMongoRetriever_SortedTimestampsAndSystems(t *testing.T) {
	r := newMongoRetriever(nil, mongoFixture(t), nil)

	got, err := r.SortedTimestampsAndSystems(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []TimestampSystems{
		{Timestamp: "2024-06-01T12:30:00.250000", Systems: []string{"ubuntu-24.04-64"}},
		{Timestamp: "2024-05-01T00:00:00", Systems: []string{"fedora-42-64", "ubuntu-24.04-64"}},
	}, got)
}

func TestMongoRetriever_SingleSystem(t *testing.T) {
	r := newMongoRetriever(nil, mongoFixture(t), nil)
	ctx := context.Background()

	report, err := r.SingleSystem(ctx, "2024-05-01T00:00:00", "ubuntu-24.04-64")
	require.NoError(t, err)
	assert.Equal(t, "ubuntu-24.04-64", report.System)
	require.Len(t, report.Tests, 1)
	assert.Equal(t, []features.Cmd{{Cmd: "snap list"}}, report.Tests[0].Cmds)

	_, err = r.SingleSystem(ctx, "2024-06-01T12:30:00.250000", "ubuntu-24.04-64")
	var ambiguous *AmbiguousResultError
	require.True(t, errors.As(err, &ambiguous))
	assert.Equal(t, 2, ambiguous.Count)
	assert.ErrorIs(t, err, ErrAmbiguousResult)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = r.SingleSystem(ctx, "2024-05-01T00:00:00", "arch")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.SingleSystem(ctx, "not-a-time", "arch")
	assert.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestMongoRetriever_SystemsCache(t *testing.T) {
	coll := mongoFixture(t)
	r := newMongoRetriever(nil, coll, nil)
	ctx := context.Background()

	subset, err := r.Systems(ctx, "2024-05-01T00:00:00", []string{"fedora-42-64"})
	require.NoError(t, err)
	require.Len(t, subset, 1)
	assert.Equal(t, 1, coll.finds)

	all, err := r.Systems(ctx, "2024-05-01T00:00:00", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, coll.finds)

	again, err := r.Systems(ctx, "2024-05-01T00:00:00", nil)
	require.NoError(t, err)
	assert.Len(t, again, 2)
	assert.Equal(t, 2, coll.finds, "full scan served from cache")

	_, err = r.Systems(ctx, "2024-05-01T00:00:00", []string{"fedora-42-64"})
	require.NoError(t, err)
	_, err = r.SingleSystem(ctx, "2024-05-01T00:00:00", "fedora-42-64")
	require.NoError(t, err)
	assert.Equal(t, 4, coll.finds, "subsets and single reads bypass the cache")
}

func TestMongoRetriever_AllFeatures(t *testing.T) {
	coll := mongoFixture(t)
	r := newMongoRetriever(nil, coll, nil)
	ctx := context.Background()

	d, err := r.AllFeatures(ctx, "2024-05-01T00:00:00")
	require.NoError(t, err)
	assert.Equal(t, features.FeatureDict{
		features.KindCmds:       {features.Cmd{Cmd: "snap list"}, features.Cmd{Cmd: "snap pack"}},
		features.KindInterfaces: {features.Interface{Name: "network"}},
	}, d)

	_, err = r.AllFeatures(ctx, "2024-05-01T00:00:00")
	require.NoError(t, err)
	assert.Equal(t, 1, coll.finds)

	_, err = r.AllFeatures(ctx, "2024-06-01T12:30:00.250000")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, r.Close(ctx))
}

func TestMongoRetriever_FindError(t *testing.T) {
	boom := errors.New("connection reset")
	r := newMongoRetriever(nil, &fakeCollection{err: boom}, nil)

	_, err := r.Systems(context.Background(), "2024-05-01", nil)
	assert.ErrorIs(t, err, boom)
	_, err = r.SortedTimestampsAndSystems(context.Background())
	assert.ErrorIs(t, err, boom)
}
