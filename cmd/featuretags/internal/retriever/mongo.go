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
	"maps"
	"net"
	"slices"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AleutianAI/featuretags/cmd/featuretags/config"
	"github.com/AleutianAI/featuretags/pkg/features"
	"github.com/AleutianAI/featuretags/pkg/logging"
)

// Document fields added to stored reports.
const (
	fieldTimestamp   = "timestamp"
	fieldSystem      = "system"
	fieldAllFeatures = "all_features"
)

// collection is the part of *mongo.Collection the retriever uses.
type collection interface {
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
}

// MongoRetriever reads reports from a MongoDB collection.
type MongoRetriever struct {
	client *mongo.Client
	coll   collection
	cache  *Cache
	logger *slog.Logger
}

// NewMongoRetriever connects to the database named by creds and checks
// that it answers.
//
// # Inputs
//
//   - ctx: Bounds the connection and the initial ping.
//   - creds: Validated credentials, see config.LoadCredentials.
//   - logger: Query logging; nil discards.
//
// # Outputs
//
//   - *MongoRetriever: Connected reader. Close disconnects it.
//   - error: Connection or authentication failures.
func NewMongoRetriever(ctx context.Context, creds config.Credentials, logger *slog.Logger) (*MongoRetriever, error) {
	opts := options.Client().
		SetHosts([]string{net.JoinHostPort(creds.Host, strconv.Itoa(creds.Port))}).
		SetAuth(options.Credential{Username: creds.User, Password: creds.Password})

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", creds, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping %s: %w", creds, err)
	}

	logger = logging.OrDiscard(logger)
	logger.Debug("connected to report store", "creds", creds)
	coll := client.Database(creds.Database).Collection(creds.Collection)
	return newMongoRetriever(client, coll, logger), nil
}

func newMongoRetriever(client *mongo.Client, coll collection, logger *slog.Logger) *MongoRetriever {
	return &MongoRetriever{
		client: client,
		coll:   coll,
		cache:  NewCache(),
		logger: logging.OrDiscard(logger).With("retriever", "mongo"),
	}
}

func (r *MongoRetriever) SortedTimestampsAndSystems(ctx context.Context) ([]TimestampSystems, error) {
	filter := bson.M{fieldAllFeatures: bson.M{"$ne": true}}
	projection := options.Find().SetProjection(bson.M{fieldTimestamp: 1, fieldSystem: 1})

	var docs []struct {
		Timestamp time.Time `bson:"timestamp"`
		System    string    `bson:"system"`
	}
	if err := r.find(ctx, filter, &docs, projection); err != nil {
		return nil, err
	}

	byTime := make(map[time.Time][]string)
	for _, doc := range docs {
		t := doc.Timestamp.UTC()
		byTime[t] = append(byTime[t], doc.System)
	}
	times := slices.SortedFunc(maps.Keys(byTime), func(a, b time.Time) int { return b.Compare(a) })

	out := make([]TimestampSystems, 0, len(times))
	for _, t := range times {
		systems := byTime[t]
		slices.Sort(systems)
		out = append(out, TimestampSystems{Timestamp: FormatTimestamp(t), Systems: slices.Compact(systems)})
	}
	return out, nil
}

func (r *MongoRetriever) SingleSystem(ctx context.Context, timestamp, system string) (*features.SystemFeatures, error) {
	filter, err := systemFilter(timestamp)
	if err != nil {
		return nil, err
	}
	filter[fieldSystem] = system

	var reports []*features.SystemFeatures
	if err := r.find(ctx, filter, &reports); err != nil {
		return nil, err
	}
	if len(reports) != 1 {
		return nil, &AmbiguousResultError{Timestamp: timestamp, Subject: system, Count: len(reports)}
	}
	return reports[0], nil
}

func (r *MongoRetriever) Systems(ctx context.Context, timestamp string, systems []string) ([]*features.SystemFeatures, error) {
	if len(systems) > 0 {
		var out []*features.SystemFeatures
		for _, system := range systems {
			filter, err := systemFilter(timestamp)
			if err != nil {
				return nil, err
			}
			filter[fieldSystem] = system

			var reports []*features.SystemFeatures
			if err := r.find(ctx, filter, &reports); err != nil {
				return nil, err
			}
			out = append(out, reports...)
		}
		return out, nil
	}

	if reports, ok := r.cache.Systems(timestamp); ok {
		r.logger.Debug("systems served from cache", "timestamp", timestamp)
		return reports, nil
	}
	filter, err := systemFilter(timestamp)
	if err != nil {
		return nil, err
	}
	var reports []*features.SystemFeatures
	if err := r.find(ctx, filter, &reports); err != nil {
		return nil, err
	}
	r.cache.PutSystems(timestamp, reports)
	return reports, nil
}

func (r *MongoRetriever) AllFeatures(ctx context.Context, timestamp string) (features.FeatureDict, error) {
	if d, ok := r.cache.AllFeatures(timestamp); ok {
		return d, nil
	}
	ts, err := ParseTimestamp(timestamp)
	if err != nil {
		return nil, err
	}

	var sets []features.FeatureSet
	filter := bson.M{fieldTimestamp: ts, fieldAllFeatures: true}
	if err := r.find(ctx, filter, &sets); err != nil {
		return nil, err
	}
	if len(sets) != 1 {
		return nil, &AmbiguousResultError{Timestamp: timestamp, Subject: "all features", Count: len(sets)}
	}
	d := sets[0].Dict()
	r.cache.PutAllFeatures(timestamp, d)
	return d, nil
}

func (r *MongoRetriever) Close(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.Disconnect(ctx)
}

func (r *MongoRetriever) find(ctx context.Context, filter bson.M, results any, opts ...*options.FindOptions) error {
	r.logger.Debug("find", "filter", filter)
	cur, err := r.coll.Find(ctx, filter, opts...)
	if err != nil {
		return fmt.Errorf("find %v: %w", filter, err)
	}
	if err := cur.All(ctx, results); err != nil {
		return fmt.Errorf("decode %v: %w", filter, err)
	}
	return nil
}

// systemFilter selects the system reports of one timestamp.
func systemFilter(timestamp string) (bson.M, error) {
	ts, err := ParseTimestamp(timestamp)
	if err != nil {
		return nil, err
	}
	return bson.M{fieldTimestamp: ts, fieldAllFeatures: bson.M{"$ne": true}}, nil
}

// =============================================================================
// Timestamps
// =============================================================================

// timestampLayouts are tried in order by ParseTimestamp. Fractional seconds
// are accepted by every layout that has a seconds field.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp reads an ISO 8601 timestamp as listed by
// SortedTimestampsAndSystems. Times without a zone are taken as UTC.
func ParseTimestamp(s string) (primitive.DateTime, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return primitive.NewDateTimeFromTime(t), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// FormatTimestamp renders t in UTC without a zone suffix, with microseconds
// only when they are non-zero.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/int(time.Microsecond) != 0 {
		return t.Format("2006-01-02T15:04:05.000000")
	}
	return t.Format("2006-01-02T15:04:05")
}
