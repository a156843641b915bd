// Package mongostore provides a MongoDB-backed event store.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/dshills/conductor/internal/event"
)

type (
	// Options configures the store.
	Options struct {
		Client     *mongo.Client
		Database   string
		Collection string
		Timeout    time.Duration
	}

	// Store implements event.Store on a MongoDB collection.
	Store struct {
		mongo   *mongo.Client
		coll    collection
		timeout time.Duration
	}

	eventDocument struct {
		ID            string    `bson:"_id"`
		Type          string    `bson:"event_type"`
		Timestamp     time.Time `bson:"timestamp"`
		CorrelationID string    `bson:"correlation_id"`
		Sequence      int64     `bson:"sequence"`
		Record        []byte    `bson:"record"`
	}

	// findFilter holds the predicates evaluated by the database.
	findFilter struct {
		CorrelationID string
		Since         time.Time
		Until         time.Time
	}
)

const (
	defaultCollection = "conductor_events"
	defaultTimeout    = 5 * time.Second
	clientName        = "events-mongo"
)

// New returns a store backed by opts.Client and creates its indexes.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	name := opts.Collection
	if name == "" {
		name = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	wrapper := mongoCollection{coll: opts.Client.Database(opts.Database).Collection(name)}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := wrapper.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}
	return newStoreWithCollection(opts.Client, wrapper, timeout), nil
}

func newStoreWithCollection(client *mongo.Client, coll collection, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Store{mongo: client, coll: coll, timeout: timeout}
}

// Name returns the health check name.
func (s *Store) Name() string { return clientName }

// Ping checks connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	if s.mongo == nil {
		return errors.New("mongo client not configured")
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

// Append implements event.Store. Appending an id twice replaces the record.
func (s *Store) Append(ctx context.Context, e *event.UniversalEvent) error {
	record, err := event.Encode(e)
	if err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc := eventDocument{
		ID:            e.ID.String(),
		Type:          e.Type,
		Timestamp:     e.Timestamp.UTC(),
		CorrelationID: string(e.Source.CorrelationID),
		Sequence:      int64(e.Sequence),
		Record:        record,
	}
	if err := s.coll.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("mongo append: %w", err)
	}
	return nil
}

// Query implements event.Store.
func (s *Store) Query(ctx context.Context, q event.Query) (events []*event.UniversalEvent, err error) {
	match, err := q.Matcher()
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	newestFirst := q.Pattern == "" && q.Limit > 0
	var limit int64
	if newestFirst {
		limit = int64(q.Limit)
	}
	cur, err := s.coll.Find(ctx, findFilter{CorrelationID: string(q.CorrelationID), Since: q.Since, Until: q.Until}, newestFirst, limit)
	if err != nil {
		return nil, fmt.Errorf("mongo query: %w", err)
	}
	defer func() {
		if cerr := cur.Close(ctx); err == nil && cerr != nil {
			err = cerr
		}
	}()

	for cur.Next(ctx) {
		var doc eventDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		e := new(event.UniversalEvent)
		if err := e.UnmarshalJSON(doc.Record); err != nil {
			return nil, fmt.Errorf("mongo decode %s: %w", doc.ID, err)
		}
		if match(e) {
			events = append(events, e)
		}
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	if newestFirst {
		for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
			events[i], events[j] = events[j], events[i]
		}
	}
	return event.Limit(events, q.Limit), nil
}

// Cleanup implements event.Store.
func (s *Store) Cleanup(ctx context.Context, before time.Time) (int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	n, err := s.coll.DeleteBefore(ctx, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("mongo cleanup: %w", err)
	}
	return int(n), nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	if s.mongo == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.mongo.Disconnect(ctx)
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (f findFilter) bson() bson.M {
	filter := bson.M{}
	if f.CorrelationID != "" {
		filter["correlation_id"] = f.CorrelationID
	}
	ts := bson.M{}
	if !f.Since.IsZero() {
		ts["$gte"] = f.Since.UTC()
	}
	if !f.Until.IsZero() {
		ts["$lte"] = f.Until.UTC()
	}
	if len(ts) > 0 {
		filter["timestamp"] = ts
	}
	return filter
}

func sortOrder(newestFirst bool) bson.D {
	dir := 1
	if newestFirst {
		dir = -1
	}
	return bson.D{{Key: "timestamp", Value: dir}, {Key: "sequence", Value: dir}}
}

type collection interface {
	Upsert(ctx context.Context, doc eventDocument) error
	Find(ctx context.Context, filter findFilter, newestFirst bool, limit int64) (cursor, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	EnsureIndexes(ctx context.Context) error
}

type cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

type mongoCollection struct {
	coll *mongo.Collection
}

func (c mongoCollection) Upsert(ctx context.Context, doc eventDocument) error {
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (c mongoCollection) Find(ctx context.Context, filter findFilter, newestFirst bool, limit int64) (cursor, error) {
	opts := options.Find().SetSort(sortOrder(newestFirst))
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := c.coll.Find(ctx, filter.bson(), opts)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (c mongoCollection) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": before}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c mongoCollection) EnsureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "timestamp", Value: 1}, {Key: "sequence", Value: 1}}},
		{Keys: bson.D{{Key: "correlation_id", Value: 1}, {Key: "timestamp", Value: 1}}},
	})
	return err
}
